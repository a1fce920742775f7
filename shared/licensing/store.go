package licensing

import (
	"context"

	"github.com/google/uuid"

	"github.com/seatgrid/license-server/shared/models"
)

// Store is the persistence boundary of the allocation engine. BorrowSeat and
// ReturnSeat own the occupancy critical sections: each implementation must
// make check-and-increment and return-and-decrement atomic per pool, and must
// never serialize operations on different pools against each other.
type Store interface {
	// Catalog writes (setup/seeding and provisioning only).
	CreateVendor(ctx context.Context, vendor *models.Vendor) error
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	// EnsureProduct creates the product if it does not exist yet.
	EnsureProduct(ctx context.Context, product *models.Product) error

	// Catalog reads.
	VendorByID(ctx context.Context, vendorID string) (*models.Vendor, error)
	TenantByID(ctx context.Context, tenantID string) (*models.Tenant, error)
	Tenants(ctx context.Context) ([]models.Tenant, error)
	ProductByID(ctx context.Context, productID string) (*models.Product, error)

	// Pool lifecycle and tenant-scoped listing. Listings are ordered by
	// provisioning time, oldest first.
	CreatePool(ctx context.Context, pool *models.LicensePool) error
	PoolsForTenantProduct(ctx context.Context, tenantID, productID string) ([]models.LicensePool, error)
	PoolsForTenant(ctx context.Context, tenantID string) ([]models.LicensePool, error)
	PoolsForVendor(ctx context.Context, vendorID string) ([]models.LicensePool, error)

	// BorrowSeat atomically checks the pool's effective capacity, increments
	// borrowed_count and appends a grant. Returns ErrCapacityExceeded when the
	// pool is full and ErrUnknownPool when the package id does not exist.
	BorrowSeat(ctx context.Context, packageID uuid.UUID, user string) (*models.Grant, error)
	// ReturnSeat atomically sets returned_at on the grant and decrements the
	// owning pool's borrowed_count. Returns ErrUnknownGrant or
	// ErrAlreadyReturned; on either, the counter is untouched.
	ReturnSeat(ctx context.Context, grantID uuid.UUID) (*models.Grant, error)

	// Grant ledger reads.
	GrantsForPool(ctx context.Context, packageID uuid.UUID) ([]models.Grant, error)
	OutstandingGrantsForTenant(ctx context.Context, tenantID string) ([]models.Grant, error)
}
