package isolation

import (
	"context"
	"fmt"

	"github.com/sokosuite/soko/internal/config"
	obslogger "github.com/sokosuite/soko/internal/observability/logger"
	dbpkg "github.com/sokosuite/soko/pkg/db"
	"gorm.io/gorm"
)

// gormOpener opens dedicated tenant databases on the same server as the
// shared connection, reusing the configured credentials.
type gormOpener struct {
	base dbpkg.Config
}

func NewGormOpener(cfg config.Config) Opener {
	return &gormOpener{base: dbpkg.FromAppConfig(cfg)}
}

func (o *gormOpener) Open(_ context.Context, name string) (*gorm.DB, error) {
	return dbpkg.Open(o.base.WithName(name), &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
	})
}

// postgresProvisioner creates tenant databases through the shared handle.
// CREATE DATABASE cannot run inside a transaction and has no IF NOT EXISTS
// on postgres, so existence is checked first and duplicate-create races are
// tolerated.
type postgresProvisioner struct {
	shared *gorm.DB
}

func NewPostgresProvisioner(shared *gorm.DB) Provisioner {
	return &postgresProvisioner{shared: shared}
}

func (p *postgresProvisioner) EnsureDatabase(ctx context.Context, name string) error {
	var count int64
	err := p.shared.WithContext(ctx).
		Raw("SELECT count(*) FROM pg_database WHERE datname = ?", name).
		Scan(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	err = p.shared.WithContext(ctx).Exec(fmt.Sprintf("CREATE DATABASE %q", name)).Error
	if err != nil && dbpkg.IsDuplicateKeyErr(err) {
		// lost a create race with another worker, the database exists now
		return nil
	}
	return err
}
