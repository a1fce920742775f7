package models

import (
	"time"

	"github.com/google/uuid"
)

// PoolState classifies a pool's occupancy tier.
type PoolState string

const (
	// PoolStateIdle means no seats are borrowed.
	PoolStateIdle PoolState = "idle"
	// PoolStateCommit means occupancy is within the pre-purchased commit tier.
	PoolStateCommit PoolState = "commit"
	// PoolStateOverage means occupancy exceeds the commit tier.
	PoolStateOverage PoolState = "overage"
)

// LicensePool is one product's license grant to one tenant. BorrowedCount is
// mutated only by the allocation engine; everything else is fixed at
// provisioning time.
type LicensePool struct {
	PackageID              uuid.UUID `json:"package_id" gorm:"type:uuid;primaryKey"`
	VendorID               string    `json:"vendor_id" gorm:"type:varchar(64);not null;index"`
	TenantID               string    `json:"tenant_id" gorm:"type:varchar(64);not null;index"`
	ProductID              string    `json:"product_id" gorm:"type:varchar(64);not null;index"`
	Total                  int       `json:"total" gorm:"not null"`
	CommitQty              int       `json:"commit_qty" gorm:"not null"`
	MaxOverage             int       `json:"max_overage" gorm:"not null"`
	CommitPrice            float64   `json:"commit_price"`
	OveragePricePerLicense float64   `json:"overage_price_per_license"`
	CRMOpportunityID       *string   `json:"crm_opportunity_id,omitempty" gorm:"column:crm_opportunity_id"`
	BorrowedCount          int       `json:"borrowed_count" gorm:"not null;default:0"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`

	// Relationships
	Vendor  *Vendor  `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
	Tenant  *Tenant  `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Grants  []Grant  `json:"grants,omitempty" gorm:"foreignKey:PackageID"`
}

// TableName returns the table name for the LicensePool model
func (LicensePool) TableName() string {
	return "license_pools"
}

// EffectiveCapacity is the enforced upper bound on concurrent borrows.
// MaxOverage is caller-supplied and may disagree with Total - CommitQty, so
// the borrowable capacity is clamped to min(Total, CommitQty + MaxOverage).
func (p *LicensePool) EffectiveCapacity() int {
	cap := p.CommitQty + p.MaxOverage
	if p.Total < cap {
		return p.Total
	}
	return cap
}

// Available returns the number of seats that can still be borrowed.
func (p *LicensePool) Available() int {
	return p.EffectiveCapacity() - p.BorrowedCount
}

// State derives the occupancy tier from the counters. Never persisted;
// recomputed at read time.
func (p *LicensePool) State() PoolState {
	switch {
	case p.BorrowedCount == 0:
		return PoolStateIdle
	case p.BorrowedCount <= p.CommitQty:
		return PoolStateCommit
	default:
		return PoolStateOverage
	}
}
