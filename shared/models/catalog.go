package models

import "time"

// Vendor represents a software vendor that owns a product catalog.
// Created at system setup and never mutated by normal operation.
type Vendor struct {
	VendorID  string    `json:"vendor_id" gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Pools []LicensePool `json:"pools,omitempty" gorm:"foreignKey:VendorID"`
}

// Tenant represents a customer organization. The tenant id doubles as the
// dashboard subdomain (bmw.localhost -> tenant "bmw") and is the sole
// isolation boundary for pools and grants.
type Tenant struct {
	TenantID    string    `json:"tenant_id" gorm:"type:varchar(64);primaryKey"`
	CompanyName string    `json:"company_name" gorm:"not null"`
	CRMID       string    `json:"crm_id" gorm:"column:crm_id"`
	CreatedAt   time.Time `json:"created_at"`

	// Relationships
	Pools []LicensePool `json:"pools,omitempty" gorm:"foreignKey:TenantID"`
}

// Product represents a vendor-owned licensable tool.
type Product struct {
	ProductID   string    `json:"product_id" gorm:"type:varchar(64);primaryKey"`
	ProductName string    `json:"product_name" gorm:"not null"`
	VendorID    string    `json:"vendor_id" gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for the Vendor model
func (Vendor) TableName() string {
	return "vendors"
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}
