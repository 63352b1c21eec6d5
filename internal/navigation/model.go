// Package navigation maintains each organization's module navigation
// entries.
package navigation

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entry is one durable navigation row. Entries are never deleted; entries a
// module stops declaring are deactivated so history and references survive.
type Entry struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;uniqueIndex:ux_navigation_entries_scope,priority:1" json:"org_id"`
	ModuleKey string       `gorm:"column:module_key;not null;uniqueIndex:ux_navigation_entries_scope,priority:2" json:"module_key"`
	Href      string       `gorm:"not null;uniqueIndex:ux_navigation_entries_scope,priority:3" json:"href"`
	Label     string       `gorm:"type:text;not null" json:"label"`
	ParentKey *string      `gorm:"column:parent_key" json:"parent_key"`
	SortOrder int          `gorm:"not null;default:0" json:"sort_order"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "navigation_entries" }

// Item is one navigation entry as declared by a module.
type Item struct {
	Label     string
	Href      string
	ParentKey string
	SortOrder int
}

func (i Item) valid() bool {
	return i.Label != "" && i.Href != ""
}
