package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ProductRate prices one unit of a product over an inclusive date interval.
// A nil EffectiveTo keeps the rate open-ended. Rows are append-only: new
// rates supersede old ones, the only mutation is flipping Active off.
type ProductRate struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProductID     snowflake.ID    `gorm:"column:product_id;not null;index:ix_product_rates_product_unit,priority:1" json:"product_id"`
	Unit          string          `gorm:"type:text;not null;index:ix_product_rates_product_unit,priority:2" json:"unit"`
	Rate          decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"rate"`
	EffectiveFrom time.Time       `gorm:"type:date;not null;index" json:"effective_from"`
	EffectiveTo   *time.Time      `gorm:"type:date" json:"effective_to,omitempty"`
	Active        bool            `gorm:"not null;default:true" json:"active"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProductRate) TableName() string { return "product_rates" }

// Covers reports whether day falls inside the rate's interval. Both bounds
// are inclusive.
func (r ProductRate) Covers(day time.Time) bool {
	day = DateOf(day)
	if day.Before(DateOf(r.EffectiveFrom)) {
		return false
	}
	if r.EffectiveTo == nil {
		return true
	}
	return !day.After(DateOf(*r.EffectiveTo))
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IntervalsOverlap reports whether two inclusive date intervals share at
// least one day. A nil end bound means the interval never closes.
func IntervalsOverlap(fromA time.Time, toA *time.Time, fromB time.Time, toB *time.Time) bool {
	if toB != nil && DateOf(fromA).After(DateOf(*toB)) {
		return false
	}
	if toA != nil && DateOf(fromB).After(DateOf(*toA)) {
		return false
	}
	return true
}
