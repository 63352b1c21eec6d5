// Package rls applies row-level security scoping for row_guard isolation.
// Controllers running against the shared database must always filter by
// org_id; on postgres the session variable below additionally lets RLS
// policies enforce the same boundary server-side.
package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant sets the tenant session variable for the current transaction.
// Only meaningful on postgres; callers skip it for other dialects.
func WithTenant(tx *gorm.DB, orgID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_org_id = ?",
		fmt.Sprintf("%d", orgID),
	).Error
}

// Scope appends the mandatory org_id filter for shared-schema queries.
func Scope(tx *gorm.DB, orgID int64) *gorm.DB {
	return tx.Where("org_id = ?", orgID)
}
