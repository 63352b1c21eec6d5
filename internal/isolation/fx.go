package isolation

import (
	"github.com/sokosuite/soko/internal/config"
	"github.com/sokosuite/soko/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewFromConfig wires the switch with the capabilities the configured
// backend actually supports. Only postgres can create and address databases
// by name; other backends run db_per_org with the steps skipped.
func NewFromConfig(cfg config.Config, shared *gorm.DB, log *zap.Logger, mx *metrics.Metrics) *Switch {
	mode := ParseMode(cfg.IsolationMode)
	policy := Policy{AllowFallbackRowGuard: cfg.AllowFallbackRowGuard}

	var opener Opener
	var prov Provisioner
	if mode == ModeDBPerOrg && cfg.DBType == "postgres" {
		opener = NewGormOpener(cfg)
		prov = NewPostgresProvisioner(shared)
	}

	return NewSwitch(mode, shared, opener, prov, policy, log, mx)
}

var Module = fx.Module("isolation",
	fx.Provide(NewFromConfig),
)
