package server

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/sokosuite/soko/internal/config"
	"github.com/sokosuite/soko/internal/dispatch"
	"github.com/sokosuite/soko/internal/isolation"
	"github.com/sokosuite/soko/internal/migration"
	"github.com/sokosuite/soko/internal/module"
	"github.com/sokosuite/soko/internal/navigation"
	orgdomain "github.com/sokosuite/soko/internal/organization/domain"
	orgrepo "github.com/sokosuite/soko/internal/organization/repository"
	"github.com/sokosuite/soko/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testModule struct {
	key        string
	routes     []dispatch.RouteDecl
	migrations fs.FS
	nav        []navigation.Item
}

func (m *testModule) Key() string                   { return m.key }
func (m *testModule) Routes() []dispatch.RouteDecl  { return m.routes }
func (m *testModule) Migrations() fs.FS             { return m.migrations }
func (m *testModule) Navigation() []navigation.Item { return m.nav }

type serverFixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	engine *gin.Engine
	server *Server
}

func newServerFixture(t *testing.T, modules ...module.Module) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orgdomain.Organization{}, &navigation.Entry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	dir := orgrepo.NewDirectory(db)
	sw := isolation.NewSwitch(isolation.ModeRowGuard, db, nil, nil, isolation.Policy{}, log, nil)
	resolver := tenant.NewResolver(db, dir, sw, nil, log)
	runner := migration.NewRunner(node, nil, nil, log)
	registry := module.NewRegistry(nil, log)
	for _, m := range modules {
		require.NoError(t, registry.Register(m))
	}
	nav := navigation.NewSynchronizer(db, node, nil, log)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Cfg:      config.Config{},
		Engine:   engine,
		Resolver: resolver,
		Runner:   runner,
		Registry: registry,
		Nav:      nav,
		Log:      log,
	})
	srv.RegisterRoutes()

	return &serverFixture{db: db, node: node, engine: engine, server: srv}
}

func (f *serverFixture) seedOrg(t *testing.T, slug, status string) orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:     f.node.Generate(),
		Name:   slug,
		Slug:   slug,
		Status: status,
		Plan:   "free",
	}
	require.NoError(t, f.db.Create(&org).Error)
	return org
}

func (f *serverFixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.engine.ServeHTTP(w, req)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Type
}

func echoModule(key string) *testModule {
	return &testModule{
		key: key,
		routes: []dispatch.RouteDecl{
			dispatch.GET("", dispatch.HandlerFunc(func(c *gin.Context, req dispatch.Request) {
				c.JSON(http.StatusOK, gin.H{
					"module": req.Module,
					"tenant": req.Tenant.Slug,
				})
			})),
			dispatch.GET("{id}", dispatch.HandlerFunc(func(c *gin.Context, req dispatch.Request) {
				c.JSON(http.StatusOK, gin.H{"id": req.Named["id"]})
			})),
		},
		nav: []navigation.Item{{Label: key, Href: "/apps/" + key}},
	}
}

func TestServeModuleRoot(t *testing.T) {
	f := newServerFixture(t, echoModule("pos"))
	f.seedOrg(t, "acme", orgdomain.StatusActive)

	w := f.do("GET", "/t/acme/apps/pos")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pos", body["module"])
	assert.Equal(t, "acme", body["tenant"])
}

func TestServeModuleTailRoute(t *testing.T) {
	f := newServerFixture(t, echoModule("pos"))
	f.seedOrg(t, "acme", orgdomain.StatusActive)

	w := f.do("GET", "/t/acme/apps/pos/42")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "42", body["id"])
}

func TestUnknownTenantIs404(t *testing.T) {
	f := newServerFixture(t, echoModule("pos"))

	w := f.do("GET", "/t/ghost/apps/pos")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorType(t, w))
}

func TestInactiveTenantIs403(t *testing.T) {
	f := newServerFixture(t, echoModule("pos"))
	f.seedOrg(t, "dormant", orgdomain.StatusSuspended)

	w := f.do("GET", "/t/dormant/apps/pos")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorType(t, w))
}

func TestUnknownModuleIsDistinctFromUnknownRoute(t *testing.T) {
	f := newServerFixture(t, echoModule("pos"))
	f.seedOrg(t, "acme", orgdomain.StatusActive)

	w := f.do("GET", "/t/acme/apps/crm")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "module_not_found", errorType(t, w))

	w = f.do("GET", "/t/acme/apps/pos/no/such/route")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route_not_found", errorType(t, w))
}

func TestModuleMigrationsRunOnFirstRequest(t *testing.T) {
	mod := echoModule("pos")
	mod.migrations = fstest.MapFS{
		"0001_sales.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE pos_sales (id INTEGER PRIMARY KEY, org_id INTEGER NOT NULL);"),
		},
	}
	f := newServerFixture(t, mod)
	f.seedOrg(t, "acme", orgdomain.StatusActive)

	w := f.do("GET", "/t/acme/apps/pos")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, f.db.Migrator().HasTable("pos_sales"))

	// second request must not re-apply
	w = f.do("GET", "/t/acme/apps/pos")
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, f.db.Model(&migration.Record{}).Where("module_key = ?", "pos").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNavigationSyncedOnFirstRequest(t *testing.T) {
	f := newServerFixture(t, echoModule("pos"))
	org := f.seedOrg(t, "acme", orgdomain.StatusActive)

	w := f.do("GET", "/t/acme/apps/pos")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []navigation.Entry
	require.NoError(t, f.db.Where("org_id = ? AND module_key = ?", org.ID, "pos").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "/apps/pos", rows[0].Href)
	assert.True(t, rows[0].IsActive)
}

func TestFailureErrorMapping(t *testing.T) {
	assert.ErrorIs(t, failureError(tenant.Failure{Reason: tenant.ReasonEmptySlug}), ErrNotFound)
	assert.ErrorIs(t, failureError(tenant.Failure{Reason: tenant.ReasonOrgNotFound}), ErrNotFound)
	assert.ErrorIs(t, failureError(tenant.Failure{Reason: tenant.ReasonOrgInactive}), ErrForbidden)
	assert.ErrorIs(t, failureError(tenant.Failure{Reason: tenant.ReasonDBSwitchFailed}), ErrServiceUnavailable)
	assert.ErrorIs(t, failureError(tenant.Failure{Reason: tenant.ReasonException}), ErrInternal)
}

func TestMapError(t *testing.T) {
	status, payload := mapError(ErrModuleNotFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "module_not_found", payload.Type)

	status, payload = mapError(ErrRouteNotFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "route_not_found", payload.Type)

	status, payload = mapError(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Type)
}
