package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
)

type createSupplierRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Region string `json:"region"`
}

func (s *Server) CreateSupplier(c *gin.Context) {
	var req createSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.supplierSvc.Create(c.Request.Context(), supplierdomain.CreateSupplierRequest{
		Code:   strings.TrimSpace(req.Code),
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
		Region: strings.TrimSpace(req.Region),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSuppliers(c *gin.Context) {
	var query struct {
		PageToken   string `form:"page_token"`
		PageSize    int32  `form:"page_size"`
		Name        string `form:"name"`
		Region      string `form:"region"`
		Status      string `form:"status"`
		CreatedFrom string `form:"created_from"`
		CreatedTo   string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}
	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}

	resp, err := s.supplierSvc.List(c.Request.Context(), supplierdomain.ListSupplierRequest{
		PageToken:   strings.TrimSpace(query.PageToken),
		PageSize:    query.PageSize,
		Name:        strings.TrimSpace(query.Name),
		Region:      strings.TrimSpace(query.Region),
		Status:      strings.TrimSpace(query.Status),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSupplierByID(c *gin.Context) {
	resp, err := s.supplierSvc.GetByID(c.Request.Context(), supplierdomain.GetSupplierRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateSupplierRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Phone  *string `json:"phone"`
	Region *string `json:"region"`
	Status *string `json:"status"`
}

func (s *Server) UpdateSupplier(c *gin.Context) {
	var req updateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.supplierSvc.Update(c.Request.Context(), supplierdomain.UpdateSupplierRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Region: req.Region,
		Status: req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isSupplierValidationError(err error) bool {
	switch err {
	case supplierdomain.ErrInvalidName,
		supplierdomain.ErrInvalidEmail,
		supplierdomain.ErrInvalidCode,
		supplierdomain.ErrInvalidStatus,
		supplierdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
