// Package tenant resolves request slugs into immutable tenant contexts.
package tenant

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sokosuite/soko/pkg/rls"
	"gorm.io/gorm"
)

// Context is the per-request tenant value. It is built once by the Resolver
// and threaded explicitly through the call chain; it is never stored in
// globals and never mutated. A re-resolution produces a fresh value.
type Context struct {
	OrgID    snowflake.ID
	Slug     string
	Plan     string
	Timezone string
	// Location is the loaded tenant timezone, UTC when loading failed.
	Location *time.Location

	// DB is the database handle selected by the isolation switch for this
	// request. Dedicated is true when it points at the tenant's own
	// database; otherwise rows must be scoped by org_id.
	DB        *gorm.DB
	Dedicated bool

	// DegradedReason is non-empty when db_per_org acquisition fell back to
	// the shared database under the fallback policy. Resolution still
	// succeeded; the reason exists for telemetry.
	DegradedReason string
}

// Scoped returns a query handle safe for tenant data access. On a shared
// database it applies the mandatory org_id row guard; on a dedicated
// database the whole database belongs to the tenant already.
func (t *Context) Scoped(ctx context.Context) *gorm.DB {
	tx := t.DB.WithContext(ctx)
	if t.Dedicated {
		return tx
	}
	return rls.Scope(tx, int64(t.OrgID))
}

// Transaction runs fn inside a transaction on the tenant's database. In
// row_guard mode on postgres the RLS session variable is set first so
// server-side policies enforce the same boundary.
func (t *Context) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !t.Dedicated && tx.Dialector.Name() == "postgres" {
			if err := rls.WithTenant(tx, int64(t.OrgID)); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}
