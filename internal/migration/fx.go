package migration

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/sokosuite/soko/internal/config"
	"github.com/sokosuite/soko/internal/navigation"
	orgdomain "github.com/sokosuite/soko/internal/organization/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// NewLockerFromConfig builds the cross-replica migration lock when redis is
// configured. A nil result disables it; the advisory database lock still
// protects concurrent application.
func NewLockerFromConfig(cfg config.Config) *Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})
	return NewLocker(client)
}

func runControlPlane(conn *gorm.DB, cfg config.Config) error {
	if cfg.DBType != "postgres" {
		// dev backends without a migrate driver get the schema via gorm
		return conn.AutoMigrate(
			&orgdomain.Organization{},
			&Record{},
			&navigation.Entry{},
		)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunControlPlane(sqlDB)
}

var Module = fx.Module("migrations",
	fx.Provide(
		NewLockerFromConfig,
		NewRunner,
	),
	fx.Invoke(runControlPlane),
)
