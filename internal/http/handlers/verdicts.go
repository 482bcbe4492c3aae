package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/platform/apierr"
)

type VerdictHandler struct {
	store *verdicts.Store
}

func NewVerdictHandler(store *verdicts.Store) *VerdictHandler {
	return &VerdictHandler{store: store}
}

// GET /v1/verdicts?alert_id=&limit=
func (h *VerdictHandler) List(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondAPIError(c, apierr.BadRequest("invalid_limit", strconv.ErrSyntax).WithParam("limit"))
			return
		}
		limit = n
	}
	recs, err := h.store.Recent(c.Request.Context(), strings.TrimSpace(c.Query("alert_id")), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "verdict_log_error", err)
		return
	}
	response.RespondOK(c, gin.H{"object": "list", "data": recs})
}
