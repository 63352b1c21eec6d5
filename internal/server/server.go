package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sokosuite/soko/internal/config"
	"github.com/sokosuite/soko/internal/dispatch"
	"github.com/sokosuite/soko/internal/migration"
	"github.com/sokosuite/soko/internal/module"
	"github.com/sokosuite/soko/internal/navigation"
	"github.com/sokosuite/soko/internal/observability"
	obslogger "github.com/sokosuite/soko/internal/observability/logger"
	obsmetrics "github.com/sokosuite/soko/internal/observability/metrics"
	obstracing "github.com/sokosuite/soko/internal/observability/tracing"
	"github.com/sokosuite/soko/internal/tenant"
	"github.com/sokosuite/soko/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server wires the tenant pipeline behind the slug-addressed HTTP surface.
type Server struct {
	cfg      config.Config
	engine   *gin.Engine
	resolver *tenant.Resolver
	runner   *migration.Runner
	registry *module.Registry
	nav      *navigation.Synchronizer
	mx       *obsmetrics.Metrics
	log      *zap.Logger

	// navigation sync is idempotent but not free; remember which
	// (org, module) pairs this process has already synced
	navSynced sync.Map
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ServerParams struct {
	fx.In

	Cfg      config.Config
	Engine   *gin.Engine
	Resolver *tenant.Resolver
	Runner   *migration.Runner
	Registry *module.Registry
	Nav      *navigation.Synchronizer
	Metrics  *obsmetrics.Metrics
	Log      *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		cfg:      p.Cfg,
		engine:   p.Engine,
		resolver: p.Resolver,
		runner:   p.Runner,
		registry: p.Registry,
		nav:      p.Nav,
		mx:       p.Metrics,
		log:      p.Log,
	}
}

// RegisterRoutes mounts the tenant-addressed module surface.
func (s *Server) RegisterRoutes() {
	s.engine.Any("/t/:slug/apps/:module", s.handleModule)
	s.engine.Any("/t/:slug/apps/:module/*tail", s.handleModule)
}

// handleModule runs the pipeline: resolve tenant, ensure the module schema
// on the tenant's database, sync navigation, dispatch into the module.
func (s *Server) handleModule(c *gin.Context) {
	slug := c.Param("slug")
	moduleKey := c.Param("module")
	tail := c.Param("tail")

	tc, failure := s.resolver.Resolve(c.Request.Context(), slug)
	if !failure.Ok() {
		AbortWithError(c, failureError(failure))
		return
	}

	ctx := tenantctx.WithTenant(c.Request.Context(), int64(tc.OrgID), tc.Slug)
	c.Request = c.Request.WithContext(ctx)

	mod, ok := s.registry.Get(moduleKey)
	if !ok {
		s.mx.RecordDispatch(ctx, moduleKey, "module_not_found")
		AbortWithError(c, ErrModuleNotFound)
		return
	}

	if migrations := mod.Migrations(); migrations != nil {
		if err := s.runner.Apply(ctx, tc.DB, mod.Key(), migrations); err != nil {
			// an inconsistent schema is fatal to the request; the detail
			// stays server-side
			s.log.Error("module migration failed",
				zap.String("tenant", tc.Slug),
				zap.String("module", mod.Key()),
				zap.Error(err),
			)
			AbortWithError(c, ErrInternal)
			return
		}
	}

	s.syncNavigationOnce(ctx, tc, mod)

	table, ok := s.registry.Table(mod.Key())
	if !ok {
		s.mx.RecordDispatch(ctx, moduleKey, "module_not_found")
		AbortWithError(c, ErrModuleNotFound)
		return
	}

	handler, params, named, err := table.Match(c.Request.Method, tail)
	if err != nil {
		if errors.Is(err, dispatch.ErrRouteNotFound) {
			s.mx.RecordDispatch(ctx, mod.Key(), "route_not_found")
			AbortWithError(c, ErrRouteNotFound)
			return
		}
		s.mx.RecordDispatch(ctx, mod.Key(), "dispatch_error")
		s.log.Error("route match failed",
			zap.String("tenant", tc.Slug),
			zap.String("module", mod.Key()),
			zap.Error(err),
		)
		AbortWithError(c, ErrInternal)
		return
	}

	s.mx.RecordDispatch(ctx, mod.Key(), "ok")
	handler.Handle(c, dispatch.Request{
		Tenant: tc,
		Module: mod.Key(),
		Params: params,
		Named:  named,
	})
}

func (s *Server) syncNavigationOnce(ctx context.Context, tc *tenant.Context, mod module.Module) {
	key := fmt.Sprintf("%d|%s", tc.OrgID, mod.Key())
	if _, done := s.navSynced.LoadOrStore(key, struct{}{}); done {
		return
	}
	s.nav.Sync(ctx, tc.OrgID, mod.Key(), mod.Navigation())
}

func failureError(failure tenant.Failure) error {
	switch failure.Reason {
	case tenant.ReasonEmptySlug, tenant.ReasonOrgNotFound:
		return ErrNotFound
	case tenant.ReasonOrgInactive:
		return ErrForbidden
	case tenant.ReasonDBSwitchFailed:
		return ErrServiceUnavailable
	default:
		return ErrInternal
	}
}

func run(lc fx.Lifecycle, engine *gin.Engine, log *zap.Logger) {
	server := &http.Server{
		Addr:    ":8080",
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)
