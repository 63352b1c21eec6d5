package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sokosuite/soko/internal/isolation"
	"github.com/sokosuite/soko/internal/observability/metrics"
	orgdomain "github.com/sokosuite/soko/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reason classifies a resolution failure. All failures are soft: at a
// multi-tenant edge most of them are ordinary traffic (bots probing slugs,
// expired trials), so they surface as values, never as panics.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonEmptySlug      Reason = "empty-slug"
	ReasonOrgNotFound    Reason = "org-not-found"
	ReasonOrgInactive    Reason = "org-inactive"
	ReasonDBSwitchFailed Reason = "db-switch-failed"
	ReasonException      Reason = "exception"
)

// Failure is the side-channel outcome of a failed resolution. The zero
// value means success.
type Failure struct {
	Reason Reason
	Detail string
}

// Ok reports whether resolution succeeded.
func (f Failure) Ok() bool { return f.Reason == ReasonNone }

func (f Failure) String() string {
	if f.Detail == "" {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
}

var errOrgInactive = errors.New("organization does not admit requests")

// switchError marks a dedicated-database acquisition failure so it maps to
// the db-switch-failed reason rather than the exception catch-all.
type switchError struct{ cause error }

func (e *switchError) Error() string { return e.cause.Error() }
func (e *switchError) Unwrap() error { return e.cause }

// Resolver validates slugs against the organization directory and acquires
// the correct database handle for the isolation mode.
type Resolver struct {
	db  *gorm.DB
	dir orgdomain.Directory
	sw  *isolation.Switch
	mx  *metrics.Metrics
	log *zap.Logger

	mu   sync.Mutex
	last Failure
}

func NewResolver(db *gorm.DB, dir orgdomain.Directory, sw *isolation.Switch, mx *metrics.Metrics, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{db: db, dir: dir, sw: sw, mx: mx, log: log}
}

// LastFailure returns the most recent resolution failure, for diagnostics.
func (r *Resolver) LastFailure() Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Resolve validates the slug and returns the tenant context with its
// database handle, or a definite failure. It never panics and never returns
// a Go error: unexpected directory errors become the exception reason.
func (r *Resolver) Resolve(ctx context.Context, rawSlug string) (*Context, Failure) {
	tc, failure := r.resolve(ctx, rawSlug)

	r.mu.Lock()
	r.last = failure
	r.mu.Unlock()

	outcome := "ok"
	if !failure.Ok() {
		outcome = string(failure.Reason)
		r.log.Debug("tenant resolution failed",
			zap.String("slug", strings.TrimSpace(rawSlug)),
			zap.String("reason", outcome),
			zap.String("detail", failure.Detail),
		)
	}
	r.mx.RecordResolution(ctx, outcome)

	return tc, failure
}

func (r *Resolver) resolve(ctx context.Context, rawSlug string) (*Context, Failure) {
	slug := strings.TrimSpace(rawSlug)
	if slug == "" {
		return nil, Failure{Reason: ReasonEmptySlug}
	}

	org, acq, err := r.lookupAndAcquire(ctx, slug)
	if err != nil {
		return nil, classify(err)
	}

	loc, locErr := time.LoadLocation(org.Timezone())
	if locErr != nil {
		// display timezone is best-effort
		loc = time.UTC
	}

	tc := &Context{
		OrgID:          org.ID,
		Slug:           org.Slug,
		Plan:           org.Plan,
		Timezone:       org.Timezone(),
		Location:       loc,
		DB:             acq.DB,
		Dedicated:      acq.Dedicated,
		DegradedReason: acq.Reason,
	}

	if acq.Degraded {
		// resolution still succeeds under the fallback policy; the reason
		// is mandatory telemetry, recorded by the switch and kept here
		r.log.Warn("tenant resolved on degraded shared database",
			zap.String("tenant", org.Slug),
			zap.String("reason", acq.Reason),
		)
	}

	return tc, Failure{}
}

// lookupAndAcquire runs the directory lookup, the status gate, and the
// database acquisition. When the isolation mode carries a provisioning side
// effect the organization row stays locked for the duration, so concurrent
// requests cannot provision duplicate dedicated databases.
func (r *Resolver) lookupAndAcquire(ctx context.Context, slug string) (*orgdomain.Organization, isolation.Acquisition, error) {
	if r.sw.Mode() != isolation.ModeDBPerOrg {
		org, err := r.dir.FindBySlug(ctx, slug)
		if err != nil {
			return nil, isolation.Acquisition{}, err
		}
		if !org.AdmitsRequests() {
			return nil, isolation.Acquisition{}, errOrgInactive
		}
		acq, err := r.sw.Acquire(ctx, org.ID, org.Slug)
		return org, acq, err
	}

	var org *orgdomain.Organization
	var acq isolation.Acquisition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := r.dir.WithTx(tx).FindBySlugForUpdate(ctx, slug)
		if err != nil {
			return err
		}
		if !found.AdmitsRequests() {
			return errOrgInactive
		}
		org = found

		acquired, err := r.sw.Acquire(ctx, found.ID, found.Slug)
		if err != nil {
			return &switchError{cause: err}
		}
		acq = acquired
		return nil
	})
	if err != nil {
		return nil, isolation.Acquisition{}, err
	}
	return org, acq, nil
}

func classify(err error) Failure {
	var swErr *switchError
	switch {
	case errors.Is(err, orgdomain.ErrNotFound):
		return Failure{Reason: ReasonOrgNotFound}
	case errors.Is(err, errOrgInactive):
		return Failure{Reason: ReasonOrgInactive}
	case errors.As(err, &swErr):
		return Failure{Reason: ReasonDBSwitchFailed, Detail: swErr.Error()}
	default:
		return Failure{Reason: ReasonException, Detail: err.Error()}
	}
}
