package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/sokosuite/soko/internal/organization/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, domain.Directory, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Organization{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return db, NewDirectory(db), node
}

func TestFindBySlug(t *testing.T) {
	db, dir, node := setup(t)

	org := domain.Organization{
		ID:     node.Generate(),
		Name:   "Acme",
		Slug:   "acme",
		Status: domain.StatusActive,
		Plan:   "pro",
	}
	require.NoError(t, db.Create(&org).Error)

	found, err := dir.FindBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, org.ID, found.ID)
	assert.Equal(t, "pro", found.Plan)
}

func TestFindBySlugNotFound(t *testing.T) {
	_, dir, _ := setup(t)

	_, err := dir.FindBySlug(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindBySlugForUpdate(t *testing.T) {
	db, dir, node := setup(t)

	org := domain.Organization{
		ID:     node.Generate(),
		Slug:   "acme",
		Name:   "Acme",
		Status: domain.StatusTrial,
	}
	require.NoError(t, db.Create(&org).Error)

	// sqlite takes no row lock, the lookup itself must still work
	found, err := dir.FindBySlugForUpdate(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, org.ID, found.ID)
}

func TestWithTxScopesToTransaction(t *testing.T) {
	db, dir, node := setup(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		org := domain.Organization{
			ID:     node.Generate(),
			Slug:   "acme",
			Name:   "Acme",
			Status: domain.StatusActive,
		}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		// visible inside the transaction through the scoped directory
		found, err := dir.WithTx(tx).FindBySlug(context.Background(), "acme")
		if err != nil {
			return err
		}
		assert.Equal(t, org.ID, found.ID)
		return nil
	})
	require.NoError(t, err)
}
