package models

import (
	"time"

	"github.com/google/uuid"
)

// Grant represents one outstanding or historical borrow of a single seat.
// A grant is created by a successful borrow, mutated exactly once when it is
// returned, and never deleted (retained for audit).
type Grant struct {
	GrantID    uuid.UUID  `json:"grant_id" gorm:"type:uuid;primaryKey"`
	PackageID  uuid.UUID  `json:"package_id" gorm:"type:uuid;not null;index"`
	TenantID   string     `json:"tenant_id" gorm:"type:varchar(64);not null;index"`
	ProductID  string     `json:"product_id" gorm:"type:varchar(64);not null"`
	User       string     `json:"user" gorm:"column:username;type:varchar(255);not null"`
	BorrowedAt time.Time  `json:"borrowed_at" gorm:"not null"`
	ReturnedAt *time.Time `json:"returned_at,omitempty" gorm:"index"`

	// Relationships
	Pool *LicensePool `json:"pool,omitempty" gorm:"foreignKey:PackageID"`
}

// TableName returns the table name for the Grant model
func (Grant) TableName() string {
	return "grants"
}

// Outstanding reports whether the seat is still borrowed.
func (g *Grant) Outstanding() bool {
	return g.ReturnedAt == nil
}

// Return marks the grant as returned at the given time.
func (g *Grant) Return(at time.Time) {
	g.ReturnedAt = &at
}
