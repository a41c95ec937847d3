package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	collectiondomain "github.com/trackvault/trackvault/internal/collection/domain"
)

func (s *Server) RecordCollection(c *gin.Context) {
	var req collectiondomain.RecordCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.collectionSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_no", resp.Receipt)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCollections(c *gin.Context) {
	var query struct {
		PageToken  string `form:"page_token"`
		PageSize   int32  `form:"page_size"`
		SupplierID string `form:"supplier_id"`
		ProductID  string `form:"product_id"`
		From       string `form:"from"`
		To         string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	collectedFrom, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	collectedTo, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.collectionSvc.List(c.Request.Context(), collectiondomain.ListCollectionRequest{
		PageToken:     strings.TrimSpace(query.PageToken),
		PageSize:      query.PageSize,
		SupplierID:    strings.TrimSpace(query.SupplierID),
		ProductID:     strings.TrimSpace(query.ProductID),
		CollectedFrom: collectedFrom,
		CollectedTo:   collectedTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCollectionByID(c *gin.Context) {
	resp, err := s.collectionSvc.GetByID(c.Request.Context(), collectiondomain.GetCollectionRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCollectionByReceipt(c *gin.Context) {
	resp, err := s.collectionSvc.GetByReceipt(c.Request.Context(), collectiondomain.GetCollectionByReceiptRequest{
		Receipt: strings.TrimSpace(c.Param("receipt")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isCollectionValidationError(err error) bool {
	switch err {
	case collectiondomain.ErrInvalidQuantity,
		collectiondomain.ErrInvalidUnit,
		collectiondomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
