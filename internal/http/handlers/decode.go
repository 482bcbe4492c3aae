package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/platform/apierr"
)

var (
	errEmptyBody    = errors.New("provide a JSON file or JSON body")
	errNotJSONFile  = errors.New("only JSON files are supported")
	errInvalidJSON  = errors.New("invalid JSON format")
	errNotAnObject  = errors.New("JSON document must be an object")
	errBodyTooLarge = errors.New("request body too large")
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// decodeDocument parses one JSON value, keeping numbers as json.Number so
// integer ids survive untouched.
func decodeDocument(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apierr.New(http.StatusRequestEntityTooLarge, "request_too_large", errBodyTooLarge)
		}
		if errors.Is(err, io.EOF) {
			return nil, apierr.BadRequest("empty_body", errEmptyBody)
		}
		return nil, apierr.BadRequest("invalid_json", errInvalidJSON)
	}
	if dec.More() {
		return nil, apierr.BadRequest("invalid_json", errInvalidJSON)
	}
	return v, nil
}

func decodeUpload(fh *multipart.FileHeader, field string) (any, error) {
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".json") {
		return nil, apierr.BadRequest("invalid_file", fmt.Errorf("%s: %w", field, errNotJSONFile)).WithParam(field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apierr.BadRequest("invalid_file", err).WithParam(field)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, apierr.BadRequest("invalid_file", err).WithParam(field)
	}
	v, err := decodeDocument(bytes.NewReader(raw))
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			ae.Param = field
		}
		return nil, err
	}
	return v, nil
}

// readDocument returns the JSON body, or the multipart file under field.
func readDocument(c *gin.Context, field string) (any, error) {
	if isMultipart(c) {
		fh, err := c.FormFile(field)
		if err != nil {
			return nil, apierr.BadRequest("missing_file", fmt.Errorf("multipart field %q: %w", field, err)).WithParam(field)
		}
		return decodeUpload(fh, field)
	}
	if c.Request.Body == nil {
		return nil, apierr.BadRequest("empty_body", errEmptyBody)
	}
	return decodeDocument(c.Request.Body)
}

func readObject(c *gin.Context, field string) (map[string]any, error) {
	v, err := readDocument(c, field)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apierr.BadRequest("invalid_request", errNotAnObject).WithParam(field)
	}
	return m, nil
}
