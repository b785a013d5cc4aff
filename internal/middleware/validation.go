package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qlozet/stylefeed/internal/validation"
)

const maxValidatedBody = 1 << 20

// SchemaBody rejects a request whose JSON body does not satisfy schema. The
// body is buffered and restored so handlers can still bind it.
func SchemaBody(v *validation.Validator, schema validation.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ct := c.GetHeader("Content-Type"); ct != "" {
			if media, _, err := mime.ParseMediaType(ct); err != nil || media != "application/json" {
				rejectBody(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json", nil)
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxValidatedBody+1))
		if err != nil {
			rejectBody(c, http.StatusBadRequest, "BODY_READ_ERROR", "Failed to read request body", nil)
			return
		}
		if len(body) > maxValidatedBody {
			rejectBody(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body is too large", nil)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		switch {
		case len(bytes.TrimSpace(body)) == 0:
			rejectBody(c, http.StatusBadRequest, "EMPTY_BODY", "Request body is required", nil)
			return
		case !json.Valid(body):
			rejectBody(c, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", nil)
			return
		}

		result, err := v.Validate(schema, body)
		if err != nil {
			rejectBody(c, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", "Request schema could not be applied", nil)
			return
		}
		if !result.Valid {
			rejectBody(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request body failed validation", result.Fields())
			return
		}

		c.Next()
	}
}

func rejectBody(c *gin.Context, status int, code, message string, fields map[string][]string) {
	errorObj := gin.H{"code": code, "message": message}
	if len(fields) > 0 {
		errorObj["fields"] = fields
	}
	if requestID := GetRequestID(c); requestID != "" {
		errorObj["requestId"] = requestID
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorObj})
}
