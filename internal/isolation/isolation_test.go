package isolation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeOpener struct {
	db     *gorm.DB
	err    error
	opened []string
}

func (f *fakeOpener) Open(ctx context.Context, name string) (*gorm.DB, error) {
	f.opened = append(f.opened, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.db, nil
}

type fakeProvisioner struct {
	err     error
	ensured []string
}

func (f *fakeProvisioner) EnsureDatabase(ctx context.Context, name string) error {
	f.ensured = append(f.ensured, name)
	return f.err
}

func testDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", t.Name(), name)), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func testOrgID(t *testing.T) snowflake.ID {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node.Generate()
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeRowGuard, ParseMode(""))
	assert.Equal(t, ModeRowGuard, ParseMode("row_guard"))
	assert.Equal(t, ModeRowGuard, ParseMode("something-else"))
	assert.Equal(t, ModeDBPerOrg, ParseMode("db_per_org"))
	assert.Equal(t, ModeDBPerOrg, ParseMode("  DB_PER_ORG  "))
}

func TestDatabaseName(t *testing.T) {
	name := DatabaseName(7, "acme-corp")
	assert.Equal(t, "soko_org_7_acme_corp", name)

	// the normalized form must stay a safe identifier
	name = DatabaseName(7, "Ünsafe Slug!")
	assert.Equal(t, "soko_org_7_unsafe_slug", name)
}

func TestAcquireRowGuardReturnsSharedHandle(t *testing.T) {
	shared := testDB(t, "shared")
	sw := NewSwitch(ModeRowGuard, shared, nil, nil, Policy{}, zap.NewNop(), nil)

	acq, err := sw.Acquire(context.Background(), testOrgID(t), "acme")
	require.NoError(t, err)
	assert.Same(t, shared, acq.DB)
	assert.False(t, acq.Dedicated)
	assert.False(t, acq.Degraded)
}

func TestAcquireDBPerOrgOpensDedicatedDatabase(t *testing.T) {
	shared := testDB(t, "shared")
	dedicated := testDB(t, "dedicated")
	orgID := testOrgID(t)

	opener := &fakeOpener{db: dedicated}
	prov := &fakeProvisioner{}
	sw := NewSwitch(ModeDBPerOrg, shared, opener, prov, Policy{}, zap.NewNop(), nil)

	acq, err := sw.Acquire(context.Background(), orgID, "acme")
	require.NoError(t, err)
	assert.Same(t, dedicated, acq.DB)
	assert.True(t, acq.Dedicated)
	assert.False(t, acq.Degraded)

	wantName := DatabaseName(orgID, "acme")
	assert.Equal(t, []string{wantName}, prov.ensured)
	assert.Equal(t, []string{wantName}, opener.opened)
}

func TestAcquireDBPerOrgWithoutOpenerStaysShared(t *testing.T) {
	shared := testDB(t, "shared")
	sw := NewSwitch(ModeDBPerOrg, shared, nil, nil, Policy{}, zap.NewNop(), nil)

	acq, err := sw.Acquire(context.Background(), testOrgID(t), "acme")
	require.NoError(t, err)
	assert.Same(t, shared, acq.DB)
	assert.False(t, acq.Dedicated)
	assert.False(t, acq.Degraded, "a missing capability is not a degradation")
}

func TestAcquireOpenFailureDegradesWhenPolicyAllows(t *testing.T) {
	shared := testDB(t, "shared")
	opener := &fakeOpener{err: errors.New("connection refused")}
	sw := NewSwitch(ModeDBPerOrg, shared, opener, nil, Policy{AllowFallbackRowGuard: true}, zap.NewNop(), nil)

	acq, err := sw.Acquire(context.Background(), testOrgID(t), "acme")
	require.NoError(t, err)
	assert.Same(t, shared, acq.DB)
	assert.False(t, acq.Dedicated)
	assert.True(t, acq.Degraded)
	assert.Contains(t, acq.Reason, "connection refused")
}

func TestAcquireOpenFailurePropagatesWhenPolicyForbids(t *testing.T) {
	shared := testDB(t, "shared")
	opener := &fakeOpener{err: errors.New("connection refused")}
	sw := NewSwitch(ModeDBPerOrg, shared, opener, nil, Policy{AllowFallbackRowGuard: false}, zap.NewNop(), nil)

	_, err := sw.Acquire(context.Background(), testOrgID(t), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAcquireProvisionFailureDegradesWhenPolicyAllows(t *testing.T) {
	shared := testDB(t, "shared")
	prov := &fakeProvisioner{err: errors.New("permission denied")}
	sw := NewSwitch(ModeDBPerOrg, shared, &fakeOpener{db: shared}, prov, Policy{AllowFallbackRowGuard: true}, zap.NewNop(), nil)

	acq, err := sw.Acquire(context.Background(), testOrgID(t), "acme")
	require.NoError(t, err)
	assert.True(t, acq.Degraded)
	assert.Contains(t, acq.Reason, "permission denied")
}
