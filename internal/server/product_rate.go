package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
)

type addRateRequest struct {
	Rate          decimal.Decimal `json:"rate"`
	Unit          string          `json:"unit"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   *string         `json:"effective_to"`
	Active        *bool           `json:"active"`
	Notes         string          `json:"notes"`
}

func (s *Server) AddProductRate(c *gin.Context) {
	var req addRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effectiveFrom, err := parseDate(req.EffectiveFrom)
	if err != nil {
		AbortWithError(c, newValidationError("effective_from", "invalid_effective_from", "invalid effective_from"))
		return
	}

	var effectiveTo *time.Time
	if req.EffectiveTo != nil {
		parsed, err := parseDate(*req.EffectiveTo)
		if err != nil {
			AbortWithError(c, newValidationError("effective_to", "invalid_effective_to", "invalid effective_to"))
			return
		}
		effectiveTo = &parsed
	}

	resp, err := s.rateSvc.Add(c.Request.Context(), ratedomain.AddRateRequest{
		ProductID:     strings.TrimSpace(c.Param("id")),
		Rate:          req.Rate,
		Unit:          strings.TrimSpace(req.Unit),
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   effectiveTo,
		Active:        req.Active,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProductRates(c *gin.Context) {
	var query struct {
		ActiveOnly string `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	resp, err := s.rateSvc.ListForProduct(c.Request.Context(), ratedomain.ListRatesRequest{
		ProductID:  strings.TrimSpace(c.Param("id")),
		ActiveOnly: activeOnly != nil && *activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetCurrentProductRate resolves which rate applies to one unit of the
// product on a date, defaulting to today. Read-only.
func (s *Server) GetCurrentProductRate(c *gin.Context) {
	var query struct {
		Unit string `form:"unit"`
		On   string `form:"on"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	on, err := parseOptionalTime(query.On, false)
	if err != nil {
		AbortWithError(c, newValidationError("on", "invalid_on", "invalid on date"))
		return
	}

	resp, err := s.rateSvc.ResolveCurrent(c.Request.Context(), ratedomain.ResolveCurrentRateRequest{
		ProductID: strings.TrimSpace(c.Param("id")),
		Unit:      strings.TrimSpace(query.Unit),
		On:        on,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateProductRate(c *gin.Context) {
	resp, err := s.rateSvc.Deactivate(c.Request.Context(), ratedomain.DeactivateRateRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isRateValidationError(err error) bool {
	switch err {
	case ratedomain.ErrInvalidRate,
		ratedomain.ErrInvalidUnit,
		ratedomain.ErrUnitNotAllowed,
		ratedomain.ErrInvalidEffectiveRange,
		ratedomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
