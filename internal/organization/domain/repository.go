package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no organization matches the requested slug.
var ErrNotFound = errors.New("organization not found")

// Directory is the read-only lookup over the control-plane organization
// store.
type Directory interface {
	WithTx(tx *gorm.DB) Directory
	FindBySlug(ctx context.Context, slug string) (*Organization, error)

	// FindBySlugForUpdate locks the organization row for the duration of
	// the surrounding transaction. Used when resolution has a provisioning
	// side effect, so two requests cannot race it.
	FindBySlugForUpdate(ctx context.Context, slug string) (*Organization, error)
}
