package repository

import (
	"context"
	"errors"

	"github.com/sokosuite/soko/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) domain.Directory {
	return &directory{db: db}
}

func (r *directory) WithTx(tx *gorm.DB) domain.Directory {
	return &directory{db: tx}
}

func (r *directory) FindBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.findBySlug(ctx, slug, false)
}

func (r *directory) FindBySlugForUpdate(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.findBySlug(ctx, slug, true)
}

func (r *directory) findBySlug(ctx context.Context, slug string, lock bool) (*domain.Organization, error) {
	tx := r.db.WithContext(ctx)
	if lock && supportsRowLocks(r.db) {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var org domain.Organization
	err := tx.Where("slug = ?", slug).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// sqlite has no SELECT ... FOR UPDATE; the whole-database write lock covers it.
func supportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
