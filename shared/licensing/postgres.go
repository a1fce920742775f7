package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seatgrid/license-server/shared/models"
)

// PostgresStore persists pools and grants through gorm. Occupancy updates run
// inside a transaction that locks the pool row with SELECT ... FOR UPDATE, so
// the check-and-increment is serialized per pool by the database while other
// pools stay untouched.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an established gorm connection.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates or updates the catalog, pool and grant tables.
func (s *PostgresStore) Migrate() error {
	return s.db.AutoMigrate(
		&models.Vendor{},
		&models.Tenant{},
		&models.Product{},
		&models.LicensePool{},
		&models.Grant{},
	)
}

// CreateVendor stores a vendor reference record.
func (s *PostgresStore) CreateVendor(ctx context.Context, vendor *models.Vendor) error {
	return s.db.WithContext(ctx).Create(vendor).Error
}

// CreateTenant stores a tenant reference record.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return s.db.WithContext(ctx).Create(tenant).Error
}

// EnsureProduct creates the product if it is not known yet.
func (s *PostgresStore) EnsureProduct(ctx context.Context, product *models.Product) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(product).Error
}

// VendorByID looks up a vendor reference record.
func (s *PostgresStore) VendorByID(ctx context.Context, vendorID string) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := s.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&vendor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownVendor
		}
		return nil, fmt.Errorf("fetching vendor %s: %w", vendorID, err)
	}
	return &vendor, nil
}

// TenantByID looks up a tenant reference record.
func (s *PostgresStore) TenantByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, fmt.Errorf("fetching tenant %s: %w", tenantID, err)
	}
	return &tenant, nil
}

// Tenants returns all tenants in creation order.
func (s *PostgresStore) Tenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, nil
}

// ProductByID looks up a product reference record.
func (s *PostgresStore) ProductByID(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("product_id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPool
		}
		return nil, fmt.Errorf("fetching product %s: %w", productID, err)
	}
	return &product, nil
}

// CreatePool registers a freshly provisioned pool.
func (s *PostgresStore) CreatePool(ctx context.Context, pool *models.LicensePool) error {
	return s.db.WithContext(ctx).Create(pool).Error
}

// PoolsForTenantProduct lists the tenant's pools for one product, oldest
// first.
func (s *PostgresStore) PoolsForTenantProduct(ctx context.Context, tenantID, productID string) ([]models.LicensePool, error) {
	var pools []models.LicensePool
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("created_at ASC").
		Find(&pools).Error
	if err != nil {
		return nil, fmt.Errorf("listing pools: %w", err)
	}
	return pools, nil
}

// PoolsForTenant lists every pool held by the tenant, oldest first.
func (s *PostgresStore) PoolsForTenant(ctx context.Context, tenantID string) ([]models.LicensePool, error) {
	var pools []models.LicensePool
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&pools).Error
	if err != nil {
		return nil, fmt.Errorf("listing pools: %w", err)
	}
	return pools, nil
}

// PoolsForVendor lists every pool granted by the vendor, oldest first.
func (s *PostgresStore) PoolsForVendor(ctx context.Context, vendorID string) ([]models.LicensePool, error) {
	var pools []models.LicensePool
	err := s.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC").
		Find(&pools).Error
	if err != nil {
		return nil, fmt.Errorf("listing pools: %w", err)
	}
	return pools, nil
}

// BorrowSeat locks the pool row, re-checks capacity and appends the grant in
// one transaction. Both the counter bump and the grant insert commit together
// or not at all.
func (s *PostgresStore) BorrowSeat(ctx context.Context, packageID uuid.UUID, user string) (*models.Grant, error) {
	var grant *models.Grant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool models.LicensePool
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("package_id = ?", packageID).
			First(&pool).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownPool
			}
			return fmt.Errorf("locking pool %s: %w", packageID, err)
		}

		if pool.BorrowedCount >= pool.EffectiveCapacity() {
			return ErrCapacityExceeded
		}

		grant = &models.Grant{
			GrantID:    uuid.New(),
			PackageID:  packageID,
			TenantID:   pool.TenantID,
			ProductID:  pool.ProductID,
			User:       user,
			BorrowedAt: time.Now(),
		}
		if err := tx.Create(grant).Error; err != nil {
			return fmt.Errorf("creating grant: %w", err)
		}

		return tx.Model(&models.LicensePool{}).
			Where("package_id = ?", packageID).
			Update("borrowed_count", pool.BorrowedCount+1).Error
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// ReturnSeat locks the owning pool row, then marks the grant returned and
// decrements the counter in the same transaction. The pool lock serializes
// duplicate returns of one grant, so the second caller sees returned_at set.
func (s *PostgresStore) ReturnSeat(ctx context.Context, grantID uuid.UUID) (*models.Grant, error) {
	var returned *models.Grant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var grant models.Grant
		if err := tx.Where("grant_id = ?", grantID).First(&grant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownGrant
			}
			return fmt.Errorf("fetching grant %s: %w", grantID, err)
		}

		var pool models.LicensePool
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("package_id = ?", grant.PackageID).
			First(&pool).Error
		if err != nil {
			return fmt.Errorf("locking pool %s: %w", grant.PackageID, err)
		}

		// Re-read under the pool lock; a concurrent return may have won.
		if err := tx.Where("grant_id = ?", grantID).First(&grant).Error; err != nil {
			return fmt.Errorf("re-fetching grant %s: %w", grantID, err)
		}
		if grant.ReturnedAt != nil {
			return ErrAlreadyReturned
		}

		grant.Return(time.Now())
		if err := tx.Model(&models.Grant{}).
			Where("grant_id = ?", grantID).
			Update("returned_at", grant.ReturnedAt).Error; err != nil {
			return fmt.Errorf("updating grant: %w", err)
		}

		if err := tx.Model(&models.LicensePool{}).
			Where("package_id = ?", grant.PackageID).
			Update("borrowed_count", pool.BorrowedCount-1).Error; err != nil {
			return fmt.Errorf("updating pool: %w", err)
		}

		returned = &grant
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// GrantsForPool lists every grant ever issued against the pool.
func (s *PostgresStore) GrantsForPool(ctx context.Context, packageID uuid.UUID) ([]models.Grant, error) {
	var grants []models.Grant
	err := s.db.WithContext(ctx).
		Where("package_id = ?", packageID).
		Order("borrowed_at ASC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return grants, nil
}

// OutstandingGrantsForTenant lists the tenant's unreturned grants.
func (s *PostgresStore) OutstandingGrantsForTenant(ctx context.Context, tenantID string) ([]models.Grant, error) {
	var grants []models.Grant
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND returned_at IS NULL", tenantID).
		Order("borrowed_at ASC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return grants, nil
}
