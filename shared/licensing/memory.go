package licensing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seatgrid/license-server/shared/models"
)

// MemoryStore is a map-backed store used by tests and when the service runs
// without a database. Occupancy updates lock only the affected pool, so
// traffic on one tenant's pool never blocks another's.
type MemoryStore struct {
	mu       sync.RWMutex
	vendors  map[string]models.Vendor
	tenants  map[string]models.Tenant
	products map[string]models.Product
	pools    map[uuid.UUID]*memPool
	// poolOrder preserves provisioning order for pool listings.
	poolOrder []uuid.UUID
	// tenantIDs preserves creation order for AllTenants.
	tenantIDs []string

	grantsMu sync.RWMutex
	grants   map[uuid.UUID]*memGrant
}

// memPool pairs a pool with the mutex that serializes its occupancy updates.
type memPool struct {
	mu   sync.Mutex
	pool models.LicensePool
}

// memGrant pairs a grant with its owning pool. The grant's fields are only
// mutated while holding the pool's mutex.
type memGrant struct {
	owner *memPool
	grant models.Grant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vendors:  make(map[string]models.Vendor),
		tenants:  make(map[string]models.Tenant),
		products: make(map[string]models.Product),
		pools:    make(map[uuid.UUID]*memPool),
		grants:   make(map[uuid.UUID]*memGrant),
	}
}

// CreateVendor stores a vendor reference record.
func (s *MemoryStore) CreateVendor(_ context.Context, vendor *models.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = time.Now()
	}
	s.vendors[vendor.VendorID] = *vendor
	return nil
}

// CreateTenant stores a tenant reference record.
func (s *MemoryStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now()
	}
	if _, exists := s.tenants[tenant.TenantID]; !exists {
		s.tenantIDs = append(s.tenantIDs, tenant.TenantID)
	}
	s.tenants[tenant.TenantID] = *tenant
	return nil
}

// EnsureProduct creates the product if it is not known yet.
func (s *MemoryStore) EnsureProduct(_ context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[product.ProductID]; exists {
		return nil
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	s.products[product.ProductID] = *product
	return nil
}

// VendorByID looks up a vendor reference record.
func (s *MemoryStore) VendorByID(_ context.Context, vendorID string) (*models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vendor, ok := s.vendors[vendorID]
	if !ok {
		return nil, ErrUnknownVendor
	}
	return &vendor, nil
}

// TenantByID looks up a tenant reference record.
func (s *MemoryStore) TenantByID(_ context.Context, tenantID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrUnknownTenant
	}
	return &tenant, nil
}

// Tenants returns all tenants in creation order.
func (s *MemoryStore) Tenants(_ context.Context) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]models.Tenant, 0, len(s.tenantIDs))
	for _, id := range s.tenantIDs {
		tenants = append(tenants, s.tenants[id])
	}
	return tenants, nil
}

// ProductByID looks up a product reference record.
func (s *MemoryStore) ProductByID(_ context.Context, productID string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[productID]
	if !ok {
		return nil, ErrUnknownPool
	}
	return &product, nil
}

// CreatePool registers a freshly provisioned pool.
func (s *MemoryStore) CreatePool(_ context.Context, pool *models.LicensePool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if pool.CreatedAt.IsZero() {
		pool.CreatedAt = now
	}
	pool.UpdatedAt = now
	s.pools[pool.PackageID] = &memPool{pool: *pool}
	s.poolOrder = append(s.poolOrder, pool.PackageID)
	return nil
}

func (s *MemoryStore) listPools(match func(*models.LicensePool) bool) []models.LicensePool {
	s.mu.RLock()
	records := make([]*memPool, 0, len(s.poolOrder))
	for _, id := range s.poolOrder {
		records = append(records, s.pools[id])
	}
	s.mu.RUnlock()

	var pools []models.LicensePool
	for _, record := range records {
		record.mu.Lock()
		pool := record.pool
		record.mu.Unlock()
		if match(&pool) {
			pools = append(pools, pool)
		}
	}
	return pools
}

// PoolsForTenantProduct lists the tenant's pools for one product, oldest
// first.
func (s *MemoryStore) PoolsForTenantProduct(_ context.Context, tenantID, productID string) ([]models.LicensePool, error) {
	return s.listPools(func(p *models.LicensePool) bool {
		return p.TenantID == tenantID && p.ProductID == productID
	}), nil
}

// PoolsForTenant lists every pool held by the tenant, oldest first.
func (s *MemoryStore) PoolsForTenant(_ context.Context, tenantID string) ([]models.LicensePool, error) {
	return s.listPools(func(p *models.LicensePool) bool {
		return p.TenantID == tenantID
	}), nil
}

// PoolsForVendor lists every pool granted by the vendor, oldest first.
func (s *MemoryStore) PoolsForVendor(_ context.Context, vendorID string) ([]models.LicensePool, error) {
	return s.listPools(func(p *models.LicensePool) bool {
		return p.VendorID == vendorID
	}), nil
}

// BorrowSeat performs the atomic check-and-increment under the pool's mutex.
// A concurrent caller that observed stale headroom re-checks inside the
// critical section, so the pool can never exceed its effective capacity.
func (s *MemoryStore) BorrowSeat(_ context.Context, packageID uuid.UUID, user string) (*models.Grant, error) {
	s.mu.RLock()
	record, ok := s.pools[packageID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownPool
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	if record.pool.BorrowedCount >= record.pool.EffectiveCapacity() {
		return nil, ErrCapacityExceeded
	}
	record.pool.BorrowedCount++
	record.pool.UpdatedAt = time.Now()

	grant := models.Grant{
		GrantID:    uuid.New(),
		PackageID:  packageID,
		TenantID:   record.pool.TenantID,
		ProductID:  record.pool.ProductID,
		User:       user,
		BorrowedAt: time.Now(),
	}

	s.grantsMu.Lock()
	s.grants[grant.GrantID] = &memGrant{owner: record, grant: grant}
	s.grantsMu.Unlock()

	return &grant, nil
}

// ReturnSeat performs the atomic return-and-decrement under the owning pool's
// mutex. The returned_at check and the counter update share the critical
// section, so a duplicate return can never double-decrement.
func (s *MemoryStore) ReturnSeat(_ context.Context, grantID uuid.UUID) (*models.Grant, error) {
	s.grantsMu.RLock()
	record, ok := s.grants[grantID]
	s.grantsMu.RUnlock()
	if !ok {
		return nil, ErrUnknownGrant
	}

	record.owner.mu.Lock()
	defer record.owner.mu.Unlock()

	if record.grant.ReturnedAt != nil {
		return nil, ErrAlreadyReturned
	}
	record.grant.Return(time.Now())
	record.owner.pool.BorrowedCount--
	record.owner.pool.UpdatedAt = time.Now()

	grant := record.grant
	return &grant, nil
}

// GrantsForPool lists every grant ever issued against the pool.
func (s *MemoryStore) GrantsForPool(_ context.Context, packageID uuid.UUID) ([]models.Grant, error) {
	s.grantsMu.RLock()
	records := make([]*memGrant, 0, len(s.grants))
	for _, record := range s.grants {
		records = append(records, record)
	}
	s.grantsMu.RUnlock()

	var grants []models.Grant
	for _, record := range records {
		record.owner.mu.Lock()
		grant := record.grant
		record.owner.mu.Unlock()
		if grant.PackageID == packageID {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

// OutstandingGrantsForTenant lists the tenant's unreturned grants.
func (s *MemoryStore) OutstandingGrantsForTenant(_ context.Context, tenantID string) ([]models.Grant, error) {
	s.grantsMu.RLock()
	records := make([]*memGrant, 0, len(s.grants))
	for _, record := range s.grants {
		records = append(records, record)
	}
	s.grantsMu.RUnlock()

	var grants []models.Grant
	for _, record := range records {
		record.owner.mu.Lock()
		grant := record.grant
		record.owner.mu.Unlock()
		if grant.TenantID == tenantID && grant.Outstanding() {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}
