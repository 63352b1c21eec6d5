package migration

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sokosuite/soko/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Record is one row of the per-database migration ledger. A script is
// applied to a given database at most once, ever, regardless of how many
// tenants route through it.
type Record struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ModuleKey string       `gorm:"column:module_key;not null;uniqueIndex:ux_module_migrations_script,priority:1"`
	Filename  string       `gorm:"not null;uniqueIndex:ux_module_migrations_script,priority:2"`
	AppliedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "module_migrations" }

// Runner applies a module's schema scripts to whichever database the tenant
// resolved to. Scripts are ordered by filename, run one transaction per
// file, and recorded in the ledger on commit. Migrations are forward-only;
// there is no down mechanic.
type Runner struct {
	locks  *keyedMutex
	locker *Locker
	genID  *snowflake.Node
	mx     *metrics.Metrics
	log    *zap.Logger
}

const (
	distLockTTL  = 60 * time.Second
	distLockWait = 30 * time.Second
)

func NewRunner(genID *snowflake.Node, locker *Locker, mx *metrics.Metrics, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		locks:  newKeyedMutex(),
		locker: locker,
		genID:  genID,
		mx:     mx,
		log:    log,
	}
}

// Apply brings the target database up to date for the module. Already
// recorded scripts are skipped; the first failing script rolls back and
// aborts, leaving earlier scripts committed so a retry resumes from the
// failure point.
func (r *Runner) Apply(ctx context.Context, db *gorm.DB, moduleKey string, dir fs.FS) error {
	if db == nil {
		return fmt.Errorf("migration target database is required")
	}
	if dir == nil {
		return nil
	}

	dbName := db.Migrator().CurrentDatabase()
	lockKey := fmt.Sprintf("migrate:%s:%s", moduleKey, dbName)

	// only one worker per process applies a given (module, database)
	unlock := r.locks.Lock(lockKey)
	defer unlock()

	if r.locker != nil {
		token, err := r.locker.Acquire(ctx, lockKey, distLockTTL, distLockWait)
		if err != nil {
			return fmt.Errorf("acquire migration lock for %s: %w", moduleKey, err)
		}
		defer func() {
			_ = r.locker.Release(ctx, lockKey, token)
		}()
	}

	if err := db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("ensure migration ledger: %w", err)
	}

	scripts, err := listScripts(dir)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return nil
	}

	applied, err := r.appliedSet(ctx, db, moduleKey)
	if err != nil {
		return err
	}

	for _, filename := range scripts {
		if applied[filename] {
			continue
		}
		if err := r.applyScript(ctx, db, moduleKey, dir, filename); err != nil {
			return fmt.Errorf("apply %s/%s: %w", moduleKey, filename, err)
		}
	}

	return nil
}

func listScripts(dir fs.FS) ([]string, error) {
	scripts, err := fs.Glob(dir, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration scripts: %w", err)
	}
	// lexical order is the ordering contract, filenames embed a prefix
	sort.Strings(scripts)
	return scripts, nil
}

func (r *Runner) appliedSet(ctx context.Context, db *gorm.DB, moduleKey string) (map[string]bool, error) {
	var filenames []string
	err := db.WithContext(ctx).
		Model(&Record{}).
		Where("module_key = ?", moduleKey).
		Pluck("filename", &filenames).Error
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}

	applied := make(map[string]bool, len(filenames))
	for _, name := range filenames {
		applied[name] = true
	}
	return applied, nil
}

func (r *Runner) applyScript(ctx context.Context, db *gorm.DB, moduleKey string, dir fs.FS, filename string) error {
	raw, err := fs.ReadFile(dir, filename)
	if err != nil {
		return err
	}

	start := time.Now()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			// serialize racing workers across connections for this
			// (module, database) until the transaction commits
			if lockErr := tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockID(moduleKey, filename)).Error; lockErr != nil {
				return lockErr
			}
		}

		// someone else may have applied this script while we waited
		var already int64
		if err := tx.Model(&Record{}).
			Where("module_key = ? AND filename = ?", moduleKey, filename).
			Count(&already).Error; err != nil {
			return err
		}
		if already > 0 {
			return nil
		}

		for _, statement := range SplitStatements(string(raw)) {
			if err := tx.Exec(statement).Error; err != nil {
				return fmt.Errorf("statement %q: %w", truncate(statement, 80), err)
			}
		}

		return tx.Create(&Record{
			ID:        r.genID.Generate(),
			ModuleKey: moduleKey,
			Filename:  filename,
			AppliedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return err
	}

	r.mx.RecordMigrationApplied(ctx, moduleKey, time.Since(start))
	r.log.Info("migration applied",
		zap.String("module", moduleKey),
		zap.String("filename", filename),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

func advisoryLockID(moduleKey, filename string) int64 {
	_ = filename // the lock scope is the module, not the script
	h := fnv.New64a()
	_, _ = h.Write([]byte("soko:migrate:" + moduleKey))
	return int64(h.Sum64())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
