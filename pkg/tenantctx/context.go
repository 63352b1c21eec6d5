// Package tenantctx carries tenant identity on a context.Context. The full
// tenant context value travels explicitly through the call chain; these keys
// only expose identity to cross-cutting concerns (logging, row scoping).
package tenantctx

import "context"

type keyType string

const (
	orgIDKey keyType = "org_id"
	slugKey  keyType = "tenant_slug"
)

// WithTenant returns a context carrying the resolved organization identity.
func WithTenant(ctx context.Context, orgID int64, slug string) context.Context {
	ctx = context.WithValue(ctx, orgIDKey, orgID)
	return context.WithValue(ctx, slugKey, slug)
}

// OrgID returns the organization id carried by ctx, if any.
func OrgID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(orgIDKey).(int64)
	return id, ok
}

// Slug returns the tenant slug carried by ctx, if any.
func Slug(ctx context.Context) (string, bool) {
	slug, ok := ctx.Value(slugKey).(string)
	return slug, ok
}
