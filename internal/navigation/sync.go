package navigation

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sokosuite/soko/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Synchronizer upserts a module's declared navigation for an organization.
// Idempotent and safe to call on every module load. Navigation is a UX
// concern: failures are rolled back and logged, never surfaced to the
// request.
type Synchronizer struct {
	db    *gorm.DB
	genID *snowflake.Node
	mx    *metrics.Metrics
	log   *zap.Logger
}

func NewSynchronizer(db *gorm.DB, genID *snowflake.Node, mx *metrics.Metrics, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{db: db, genID: genID, mx: mx, log: log}
}

// Sync reconciles the stored entries with the declared items. Declared
// items are upserted and reactivated; stored entries absent from the
// declaration are deactivated. An empty declaration is a no-op so an
// accidental empty call can never wipe a tenant's menu.
func (s *Synchronizer) Sync(ctx context.Context, orgID snowflake.ID, moduleKey string, items []Item) {
	err := s.apply(ctx, orgID, moduleKey, items)
	result := "ok"
	if err != nil {
		result = "error"
		s.log.Error("navigation sync failed",
			zap.Int64("org_id", int64(orgID)),
			zap.String("module", moduleKey),
			zap.Error(err),
		)
	}
	s.mx.RecordNavigationSync(ctx, moduleKey, result)
}

func (s *Synchronizer) apply(ctx context.Context, orgID snowflake.ID, moduleKey string, items []Item) error {
	valid := make([]Item, 0, len(items))
	for _, item := range items {
		item.Label = strings.TrimSpace(item.Label)
		item.Href = strings.TrimSpace(item.Href)
		if !item.valid() {
			// one malformed item must not abort the whole sync
			s.log.Warn("skipping malformed navigation item",
				zap.String("module", moduleKey),
				zap.String("label", item.Label),
				zap.String("href", item.Href),
			)
			continue
		}
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return nil
	}

	now := time.Now().UTC()
	hrefs := make([]string, 0, len(valid))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range valid {
			hrefs = append(hrefs, item.Href)

			var parent *string
			if key := strings.TrimSpace(item.ParentKey); key != "" {
				parent = &key
			}

			entry := Entry{
				ID:        s.genID.Generate(),
				OrgID:     orgID,
				ModuleKey: moduleKey,
				Href:      item.Href,
				Label:     item.Label,
				ParentKey: parent,
				SortOrder: item.SortOrder,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}

			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "org_id"}, {Name: "module_key"}, {Name: "href"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"label", "parent_key", "sort_order", "is_active", "updated_at",
				}),
			}).Create(&entry).Error
			if err != nil {
				return err
			}
		}

		// shrink by deactivation, never deletion
		return tx.Model(&Entry{}).
			Where("org_id = ? AND module_key = ? AND href NOT IN ?", orgID, moduleKey, hrefs).
			Where("is_active = ?", true).
			Updates(map[string]interface{}{
				"is_active":  false,
				"updated_at": now,
			}).Error
	})
}
