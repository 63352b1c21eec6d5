package navigation

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type syncFixture struct {
	db    *gorm.DB
	orgID snowflake.ID
	sync  *Synchronizer
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Entry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &syncFixture{
		db:    db,
		orgID: node.Generate(),
		sync:  NewSynchronizer(db, node, nil, zap.NewNop()),
	}
}

func (f *syncFixture) entries(t *testing.T, moduleKey string) []Entry {
	t.Helper()
	var rows []Entry
	err := f.db.Where("org_id = ? AND module_key = ?", f.orgID, moduleKey).
		Order("href").
		Find(&rows).Error
	require.NoError(t, err)
	return rows
}

func TestSyncCreatesEntries(t *testing.T) {
	f := newSyncFixture(t)

	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos", SortOrder: 1},
		{Label: "Reports", Href: "/apps/pos/reports", ParentKey: "pos", SortOrder: 2},
	})

	rows := f.entries(t, "pos")
	require.Len(t, rows, 2)
	assert.Equal(t, "Sales", rows[0].Label)
	assert.True(t, rows[0].IsActive)
	require.NotNil(t, rows[1].ParentKey)
	assert.Equal(t, "pos", *rows[1].ParentKey)
}

func TestSyncUpsertsExistingEntries(t *testing.T) {
	f := newSyncFixture(t)

	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos", SortOrder: 1},
	})
	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Point of Sale", Href: "/apps/pos", SortOrder: 5},
	})

	rows := f.entries(t, "pos")
	require.Len(t, rows, 1, "re-declaring the same href must not duplicate")
	assert.Equal(t, "Point of Sale", rows[0].Label)
	assert.Equal(t, 5, rows[0].SortOrder)
	assert.True(t, rows[0].IsActive)
}

func TestSyncDeactivatesUndeclaredEntries(t *testing.T) {
	f := newSyncFixture(t)

	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos"},
		{Label: "Reports", Href: "/apps/pos/reports"},
	})
	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos"},
	})

	rows := f.entries(t, "pos")
	require.Len(t, rows, 2, "undeclared entries are kept, never deleted")
	assert.True(t, rows[0].IsActive)
	assert.False(t, rows[1].IsActive)

	// declaring it again reactivates the row
	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos"},
		{Label: "Reports", Href: "/apps/pos/reports"},
	})
	rows = f.entries(t, "pos")
	assert.True(t, rows[1].IsActive)
}

func TestSyncEmptyDeclarationIsNoOp(t *testing.T) {
	f := newSyncFixture(t)

	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos"},
	})
	f.sync.Sync(context.Background(), f.orgID, "pos", nil)
	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{})

	rows := f.entries(t, "pos")
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsActive, "an empty declaration must not wipe the menu")
}

func TestSyncSkipsMalformedItems(t *testing.T) {
	f := newSyncFixture(t)

	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "", Href: "/apps/pos/broken"},
		{Label: "No Href", Href: "   "},
		{Label: "Sales", Href: "/apps/pos"},
	})

	rows := f.entries(t, "pos")
	require.Len(t, rows, 1)
	assert.Equal(t, "Sales", rows[0].Label)
}

func TestSyncScopesByOrgAndModule(t *testing.T) {
	f := newSyncFixture(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	otherOrg := node.Generate()

	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos"},
	})
	f.sync.Sync(context.Background(), otherOrg, "pos", []Item{
		{Label: "Sales", Href: "/apps/pos"},
	})
	f.sync.Sync(context.Background(), f.orgID, "dealership", []Item{
		{Label: "Inventory", Href: "/apps/dealership"},
	})

	// shrinking one scope must not touch the others
	f.sync.Sync(context.Background(), f.orgID, "pos", []Item{
		{Label: "Sales V2", Href: "/apps/pos/v2"},
	})

	var otherRows []Entry
	require.NoError(t, f.db.Where("org_id = ?", otherOrg).Find(&otherRows).Error)
	require.Len(t, otherRows, 1)
	assert.True(t, otherRows[0].IsActive)

	dealer := f.entries(t, "dealership")
	require.Len(t, dealer, 1)
	assert.True(t, dealer[0].IsActive)

	pos := f.entries(t, "pos")
	require.Len(t, pos, 2)
	for _, row := range pos {
		if row.Href == "/apps/pos" {
			assert.False(t, row.IsActive)
		} else {
			assert.True(t, row.IsActive)
		}
	}
}
