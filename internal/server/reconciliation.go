package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetSupplierBalance answers what the supplier is currently owed. The
// service rebuilds a missing or stale snapshot before responding.
func (s *Server) GetSupplierBalance(c *gin.Context) {
	resp, err := s.reconSvc.SupplierBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReconciliationOverview(c *gin.Context) {
	resp, err := s.reconSvc.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
