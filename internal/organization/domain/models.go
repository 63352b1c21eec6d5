// Package domain contains persistence models for the organization directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization statuses. Only active and trial organizations admit requests.
const (
	StatusActive    = "active"
	StatusTrial     = "trial"
	StatusSuspended = "suspended"
	StatusClosed    = "closed"
)

// Organization represents a tenant. Records are created by the provisioning
// flow; this subsystem only reads them.
type Organization struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Slug         string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Status       string            `gorm:"type:text;not null;default:'trial'" json:"status"`
	Plan         string            `gorm:"type:text;not null;default:'free'" json:"plan"`
	TimezoneName string            `gorm:"column:timezone_name" json:"timezone_name"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// AdmitsRequests reports whether the organization may serve traffic.
func (o Organization) AdmitsRequests() bool {
	switch o.Status {
	case StatusActive, StatusTrial:
		return true
	default:
		return false
	}
}

// Timezone returns the organization timezone, defaulting to UTC. Older
// directory schemas may lack the column entirely; an empty value must not
// break resolution.
func (o Organization) Timezone() string {
	if o.TimezoneName == "" {
		return "UTC"
	}
	return o.TimezoneName
}
