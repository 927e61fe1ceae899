package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coldline/internal/archiver"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware converts errors attached to the gin context into
// a JSON error body. Handlers report errors via AbortWithError and never
// write error bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, recorddomain.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "record_not_found",
			Message: "record not found in any tier",
		}
	case errors.Is(err, recorddomain.ErrInvalidRecordID):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_record_id",
			Message: "record id is malformed",
		}
	case errors.Is(err, recorddomain.ErrInvalidTimestamp):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_timestamp",
			Message: "timestamp is malformed",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, recorddomain.ErrRecordExists):
		return http.StatusConflict, errorPayload{
			Type:    "record_exists",
			Message: "a record with this id already exists",
		}
	case errors.Is(err, archiver.ErrCycleInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "cycle_in_progress",
			Message: "a migration cycle is already running",
		}
	case errors.Is(err, recorddomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "store_unavailable",
			Message: "a storage tier is temporarily unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog tags request log lines with a stable error type so
// transient tier outages can be told apart from client mistakes.
func classifyErrorForLog(err error) string {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal_error"
	}
	return payload.Type
}
