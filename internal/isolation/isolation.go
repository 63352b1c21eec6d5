// Package isolation selects the database-acquisition strategy for a tenant.
package isolation

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/sokosuite/soko/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mode is the process-wide isolation strategy.
type Mode string

const (
	// ModeRowGuard shares one database across tenants; rows carry an
	// org_id column and every query filters on it.
	ModeRowGuard Mode = "row_guard"
	// ModeDBPerOrg gives each organization a dedicated database.
	ModeDBPerOrg Mode = "db_per_org"
)

// ParseMode normalizes a configured mode, defaulting to row_guard.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeDBPerOrg:
		return ModeDBPerOrg
	default:
		return ModeRowGuard
	}
}

// Opener connects to a dedicated tenant database by name. Backends that
// cannot address databases by name do not provide one.
type Opener interface {
	Open(ctx context.Context, name string) (*gorm.DB, error)
}

// Provisioner creates a dedicated tenant database if it does not exist.
// Idempotent. Backends without the capability do not provide one.
type Provisioner interface {
	EnsureDatabase(ctx context.Context, name string) error
}

// Policy governs behavior when dedicated-database acquisition fails.
type Policy struct {
	// AllowFallbackRowGuard degrades to the shared database on failure
	// instead of failing resolution. The degradation reason is always
	// recorded for observability.
	AllowFallbackRowGuard bool
}

// Acquisition is the outcome of acquiring a database for a tenant.
type Acquisition struct {
	DB        *gorm.DB
	Dedicated bool
	// Degraded is set when db_per_org acquisition failed and policy fell
	// back to the shared database. Reason carries the underlying cause.
	Degraded bool
	Reason   string
}

// Switch chooses between the two acquisition strategies. Capabilities are
// resolved once at configuration time; a nil Opener or Provisioner means the
// backend does not support that step and it is skipped.
type Switch struct {
	mode   Mode
	shared *gorm.DB
	opener Opener
	prov   Provisioner
	policy Policy
	log    *zap.Logger
	mx     *metrics.Metrics
}

func NewSwitch(mode Mode, shared *gorm.DB, opener Opener, prov Provisioner, policy Policy, log *zap.Logger, mx *metrics.Metrics) *Switch {
	if log == nil {
		log = zap.NewNop()
	}
	return &Switch{
		mode:   mode,
		shared: shared,
		opener: opener,
		prov:   prov,
		policy: policy,
		log:    log,
		mx:     mx,
	}
}

// Mode returns the configured isolation mode.
func (s *Switch) Mode() Mode { return s.mode }

// Acquire returns the database handle for the organization. In row_guard
// mode this cannot fail. In db_per_org mode a failure either degrades to the
// shared handle (policy-enabled fallback, reported via Acquisition.Degraded)
// or propagates as an error.
func (s *Switch) Acquire(ctx context.Context, orgID snowflake.ID, orgSlug string) (Acquisition, error) {
	if s.mode != ModeDBPerOrg {
		return Acquisition{DB: s.shared}, nil
	}

	name := DatabaseName(orgID, orgSlug)

	if s.prov != nil {
		if err := s.prov.EnsureDatabase(ctx, name); err != nil {
			return s.degradeOrFail(ctx, orgSlug, fmt.Errorf("ensure database %s: %w", name, err))
		}
	}

	if s.opener == nil {
		// backend cannot address databases by name, stay on the shared handle
		return Acquisition{DB: s.shared}, nil
	}

	conn, err := s.opener.Open(ctx, name)
	if err != nil {
		return s.degradeOrFail(ctx, orgSlug, fmt.Errorf("open database %s: %w", name, err))
	}

	return Acquisition{DB: conn, Dedicated: true}, nil
}

func (s *Switch) degradeOrFail(ctx context.Context, orgSlug string, cause error) (Acquisition, error) {
	if !s.policy.AllowFallbackRowGuard {
		return Acquisition{}, cause
	}

	s.log.Warn("db_per_org acquisition degraded to shared database",
		zap.String("tenant", orgSlug),
		zap.Error(cause),
	)
	s.mx.RecordFallbackDegradation(ctx, orgSlug, cause.Error())

	return Acquisition{
		DB:       s.shared,
		Degraded: true,
		Reason:   cause.Error(),
	}, nil
}

// DatabaseName derives the dedicated database name for an organization.
// Slugs are URL-safe and immutable; the id keeps names unique even if a
// slug were ever recycled.
func DatabaseName(orgID snowflake.ID, orgSlug string) string {
	normalized := strings.ReplaceAll(slug.Make(orgSlug), "-", "_")
	return fmt.Sprintf("soko_org_%d_%s", orgID, normalized)
}
