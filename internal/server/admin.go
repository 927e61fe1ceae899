package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
)

// RunArchiverCycle triggers one migration cycle synchronously. A cycle
// already holding the guard yields 409 rather than queueing a second run.
func (s *Server) RunArchiverCycle(c *gin.Context) {
	stats, err := s.engineA.RunCycle(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetArchiveState reports the journal's last observed migration state for
// one record. Records the journal never saw, or whose entry was evicted,
// yield 404.
func (s *Server) GetArchiveState(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !recorddomain.ValidID(id) {
		AbortWithError(c, recorddomain.ErrInvalidRecordID)
		return
	}

	entry, ok := s.journal.Get(id)
	if !ok {
		AbortWithError(c, recorddomain.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

// ListArchiveStates dumps the journal. Bounded by the journal's capacity,
// intended for operator inspection rather than pagination.
func (s *Server) ListArchiveStates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.journal.Snapshot()})
}
