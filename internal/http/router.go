package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/triage-backend/internal/http/handlers"
	httpMW "github.com/yungbote/triage-backend/internal/http/middleware"
	"github.com/yungbote/triage-backend/internal/observability"
	"github.com/yungbote/triage-backend/internal/platform/idempotency"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	ServiceName     string
	Metrics         *observability.Metrics
	Idempotency     idempotency.Store
	CORSOrigins     []string
	MaxRequestBytes int64

	HealthHandler     *httpH.HealthHandler
	TriageHandler     *httpH.TriageHandler
	GNNHandler        *httpH.GNNHandler
	SupervisorHandler *httpH.SupervisorHandler
	ModelsHandler     *httpH.ModelsHandler
	GraphHandler      *httpH.GraphHandler
	VerdictHandler    *httpH.VerdictHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
		r.GET("/readyz", cfg.HealthHandler.Readyz)
		r.GET("/health", cfg.HealthHandler.Health)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))
	v1.Use(httpMW.Idempotency(cfg.Idempotency, cfg.Log, cfg.Metrics))
	{
		if cfg.TriageHandler != nil {
			v1.POST("/triage", cfg.TriageHandler.Triage)
		}
		if cfg.GNNHandler != nil {
			v1.POST("/gnn/predict", cfg.GNNHandler.Predict)
		}
		if cfg.SupervisorHandler != nil {
			v1.POST("/supervisor", cfg.SupervisorHandler.Run)
		}
		if cfg.GraphHandler != nil {
			v1.POST("/graph/alerts", cfg.GraphHandler.Ingest)
		}
		if cfg.ModelsHandler != nil {
			v1.GET("/models", cfg.ModelsHandler.List)
		}
		if cfg.VerdictHandler != nil {
			v1.GET("/verdicts", cfg.VerdictHandler.List)
		}
	}

	return r
}
