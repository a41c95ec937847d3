package option

import (
	"time"

	"gorm.io/gorm"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

// Option mutates a GORM statement before execution.
type Option interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination turns a cursor token into a keyset predicate and limit.
// Fetches one row beyond the page size so callers can detect another page.
func ApplyPagination(page pagination.Pagination) Option {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 250 {
		size = 250
	}

	if o.page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(o.page.PageToken)
		if err == nil && cursor.CreatedAt != "" {
			if ts, perr := time.Parse(time.RFC3339, cursor.CreatedAt); perr == nil {
				stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", ts, ts, cursor.ID)
			}
		}
	}

	return stmt.Limit(size + 1)
}
