package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Product is a tracked commodity. Units is the closed list of measurement
// units rates and collections may reference for it.
type Product struct {
	ID          snowflake.ID                `gorm:"primaryKey" json:"id"`
	Code        string                      `gorm:"uniqueIndex;not null" json:"code"`
	Name        string                      `gorm:"type:text;not null" json:"name"`
	Description *string                     `gorm:"type:text" json:"description,omitempty"`
	Units       datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"units"`
	Active      bool                        `gorm:"not null;default:true" json:"active"`
	Metadata    datatypes.JSONMap           `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// HasUnit reports whether unit is in the product's allowed list. Units are
// stored normalized lower-case, so comparison folds case.
func (p Product) HasUnit(unit string) bool {
	unit = strings.ToLower(strings.TrimSpace(unit))
	for _, u := range p.Units {
		if u == unit {
			return true
		}
	}
	return false
}
