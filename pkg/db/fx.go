package db

import (
	"github.com/sokosuite/soko/internal/config"
	obslogger "github.com/sokosuite/soko/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// NewSharedDB opens the shared (control-plane) database handle.
func NewSharedDB(cfg config.Config) (*gorm.DB, error) {
	return Open(FromAppConfig(cfg), &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
	})
}

var Module = fx.Module("db",
	fx.Provide(NewSharedDB),
)
