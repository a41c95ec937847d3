package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	paymentdomain "github.com/trackvault/trackvault/internal/payment/domain"
)

func (s *Server) RecordPayment(c *gin.Context) {
	var req paymentdomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		PageToken  string `form:"page_token"`
		PageSize   int32  `form:"page_size"`
		SupplierID string `form:"supplier_id"`
		From       string `form:"from"`
		To         string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paidFrom, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	paidTo, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		PageToken:  strings.TrimSpace(query.PageToken),
		PageSize:   query.PageSize,
		SupplierID: strings.TrimSpace(query.SupplierID),
		PaidFrom:   paidFrom,
		PaidTo:     paidTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.GetByID(c.Request.Context(), paymentdomain.GetPaymentRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	doc, err := s.paymentSvc.Receipt(c.Request.Context(), paymentdomain.ReceiptRequest{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=payment-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", data)
}

func isPaymentValidationError(err error) bool {
	switch err {
	case paymentdomain.ErrInvalidAmount,
		paymentdomain.ErrInvalidMethod,
		paymentdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
