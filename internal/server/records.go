package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
)

type putRecordRequest struct {
	// ID is honored on create; the put route takes the id from the path.
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

func (r putRecordRequest) timestamp() (time.Time, error) {
	raw := strings.TrimSpace(r.Timestamp)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, recorddomain.ErrInvalidTimestamp
	}
	return ts, nil
}

// CreateRecord writes a new record, generating an id when the body omits
// one. A supplied id that is already resident is a conflict.
func (s *Server) CreateRecord(c *gin.Context) {
	var req putRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ts, err := req.timestamp()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.records.Create(c.Request.Context(), recorddomain.PutRequest{
		ID:        strings.TrimSpace(req.ID),
		Timestamp: ts,
		Payload:   req.Payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": record})
}

// PutRecord writes a record under a caller-chosen id. Writing an existing id
// overwrites it.
func (s *Server) PutRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req putRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ts, err := req.timestamp()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.records.Put(c.Request.Context(), recorddomain.PutRequest{
		ID:        id,
		Timestamp: ts,
		Payload:   req.Payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// GetRecord resolves a record through the tier fallback and reports which
// tier served it.
func (s *Server) GetRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	lookup, err := s.records.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": lookup.Record,
		"tier": lookup.Tier,
	})
}

// RestoreRecord copies an archived record back into the hot tier. The
// archival copy is retained.
func (s *Server) RestoreRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	record, err := s.records.Restore(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
