package licensing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seatgrid/license-server/shared/models"
)

// Engine is the only component permitted to mutate pool occupancy. It owns
// pool selection, validation and the read projections; the per-pool atomicity
// of the occupancy update itself lives in the Store implementations.
type Engine struct {
	store Store
}

// NewEngine creates an allocation engine on top of the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// ProductConfig is the vendor-supplied configuration for a new license pool.
type ProductConfig struct {
	ProductID              string  `json:"product_id"`
	ProductName            string  `json:"product_name"`
	Total                  int     `json:"total"`
	CommitQty              int     `json:"commit_qty"`
	MaxOverage             int     `json:"max_overage"`
	CommitPrice            float64 `json:"commit_price"`
	OveragePricePerLicense float64 `json:"overage_price_per_license"`
	CRMOpportunityID       *string `json:"crm_opportunity_id,omitempty"`
}

// PoolStatus is a read-only projection of pool occupancy. For a single pool
// PackageID is set; aggregated views over stacked pools leave it nil.
type PoolStatus struct {
	PackageID  *uuid.UUID       `json:"package_id,omitempty"`
	TenantID   string           `json:"tenant_id"`
	ProductID  string           `json:"product_id"`
	Tool       string           `json:"tool"`
	VendorName string           `json:"vendor_name,omitempty"`
	Total      int              `json:"total"`
	Borrowed   int              `json:"borrowed"`
	Available  int              `json:"available"`
	Commit     int              `json:"commit"`
	MaxOverage int              `json:"max_overage"`
	Status     models.PoolState `json:"status"`
}

// Customer is the vendor-facing view of a tenant holding this vendor's pools.
type Customer struct {
	TenantID       string `json:"tenant_id"`
	CompanyName    string `json:"company_name"`
	CRMID          string `json:"crm_id"`
	ActiveLicenses int    `json:"active_licenses"`
}

// Borrow takes one seat for the user from the tenant's pools for the product.
// Stacked pools for the same pair are tried in provisioning order; the borrow
// lands in the first pool with headroom. Fails with ErrUnknownPool when the
// pair has no pool and ErrCapacityExceeded when every pool is full.
func (e *Engine) Borrow(ctx context.Context, tenantID, productID, user string) (*models.Grant, error) {
	pools, err := e.store.PoolsForTenantProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("listing pools for %s/%s: %w", tenantID, productID, err)
	}
	if len(pools) == 0 {
		return nil, ErrUnknownPool
	}

	for i := range pools {
		grant, err := e.store.BorrowSeat(ctx, pools[i].PackageID, user)
		if errors.Is(err, ErrCapacityExceeded) {
			continue
		}
		if err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"tenant_id":  tenantID,
			"product_id": productID,
			"grant_id":   grant.GrantID,
			"user":       user,
		}).Info("License borrowed")
		return grant, nil
	}

	return nil, ErrCapacityExceeded
}

// Return gives back the seat held by the grant. Idempotency guard: a second
// return of the same grant fails with ErrAlreadyReturned and does not
// decrement the pool again. No tenant context is required; the grant resolves
// its own pool.
func (e *Engine) Return(ctx context.Context, grantID uuid.UUID) (*models.Grant, error) {
	grant, err := e.store.ReturnSeat(ctx, grantID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":  grant.TenantID,
		"product_id": grant.ProductID,
		"grant_id":   grant.GrantID,
	}).Info("License returned")
	return grant, nil
}

// Status reports occupancy for a (tenant, product) pair, aggregated over
// stacked pools. Reflects the latest committed state.
func (e *Engine) Status(ctx context.Context, tenantID, productID string) (*PoolStatus, error) {
	pools, err := e.store.PoolsForTenantProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("listing pools for %s/%s: %w", tenantID, productID, err)
	}
	if len(pools) == 0 {
		return nil, ErrUnknownPool
	}

	status := e.aggregate(ctx, tenantID, productID, pools)
	return &status, nil
}

// StatusAll reports occupancy for every product the tenant holds pools for.
func (e *Engine) StatusAll(ctx context.Context, tenantID string) ([]PoolStatus, error) {
	pools, err := e.store.PoolsForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing pools for tenant %s: %w", tenantID, err)
	}

	byProduct := make(map[string][]models.LicensePool)
	var order []string
	for _, pool := range pools {
		if _, seen := byProduct[pool.ProductID]; !seen {
			order = append(order, pool.ProductID)
		}
		byProduct[pool.ProductID] = append(byProduct[pool.ProductID], pool)
	}

	statuses := make([]PoolStatus, 0, len(order))
	for _, productID := range order {
		statuses = append(statuses, e.aggregate(ctx, tenantID, productID, byProduct[productID]))
	}
	return statuses, nil
}

// aggregate folds stacked pools for one pair into a single status view.
func (e *Engine) aggregate(ctx context.Context, tenantID, productID string, pools []models.LicensePool) PoolStatus {
	status := PoolStatus{
		TenantID:  tenantID,
		ProductID: productID,
		Tool:      productID,
	}
	if product, err := e.store.ProductByID(ctx, productID); err == nil {
		status.Tool = product.ProductName
	}
	for i := range pools {
		pool := &pools[i]
		status.Total += pool.Total
		status.Borrowed += pool.BorrowedCount
		status.Available += pool.Available()
		status.Commit += pool.CommitQty
		status.MaxOverage += pool.MaxOverage
	}
	if len(pools) == 1 {
		status.PackageID = &pools[0].PackageID
	}
	switch {
	case status.Borrowed == 0:
		status.Status = models.PoolStateIdle
	case status.Borrowed <= status.Commit:
		status.Status = models.PoolStateCommit
	default:
		status.Status = models.PoolStateOverage
	}
	return status
}

// Provision creates a fresh license pool for the tenant. Each call is a new
// grant of capacity; pre-existing pools for the same pair are left untouched
// so stacked purchase events stay separately billable.
func (e *Engine) Provision(ctx context.Context, vendorID, tenantID string, cfg ProductConfig) (*models.LicensePool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if _, err := e.store.VendorByID(ctx, vendorID); err != nil {
		return nil, err
	}
	if _, err := e.store.TenantByID(ctx, tenantID); err != nil {
		return nil, err
	}

	product := &models.Product{
		ProductID:   cfg.ProductID,
		ProductName: cfg.ProductName,
		VendorID:    vendorID,
	}
	if err := e.store.EnsureProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("ensuring product %s: %w", cfg.ProductID, err)
	}

	pool := &models.LicensePool{
		PackageID:              uuid.New(),
		VendorID:               vendorID,
		TenantID:               tenantID,
		ProductID:              cfg.ProductID,
		Total:                  cfg.Total,
		CommitQty:              cfg.CommitQty,
		MaxOverage:             cfg.MaxOverage,
		CommitPrice:            cfg.CommitPrice,
		OveragePricePerLicense: cfg.OveragePricePerLicense,
		CRMOpportunityID:       cfg.CRMOpportunityID,
	}
	if err := e.store.CreatePool(ctx, pool); err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if cfg.CommitQty+cfg.MaxOverage != cfg.Total {
		logrus.WithFields(logrus.Fields{
			"package_id":  pool.PackageID,
			"total":       cfg.Total,
			"commit_qty":  cfg.CommitQty,
			"max_overage": cfg.MaxOverage,
		}).Warnf("Pool tiers do not add up to total, borrowable capacity clamped to %d", pool.EffectiveCapacity())
	}

	logrus.WithFields(logrus.Fields{
		"package_id": pool.PackageID,
		"vendor_id":  vendorID,
		"tenant_id":  tenantID,
		"product_id": cfg.ProductID,
	}).Info("License pool provisioned")
	return pool, nil
}

func validateConfig(cfg ProductConfig) error {
	if cfg.ProductID == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidConfiguration)
	}
	if cfg.Total < 0 || cfg.CommitQty < 0 || cfg.MaxOverage < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidConfiguration)
	}
	if cfg.CommitQty > cfg.Total {
		return fmt.Errorf("%w: commit_qty %d exceeds total %d", ErrInvalidConfiguration, cfg.CommitQty, cfg.Total)
	}
	if cfg.CommitPrice < 0 || cfg.OveragePricePerLicense < 0 {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

// TenantLicenses lists every pool the tenant holds, annotated with derived
// occupancy and the vendor's display name. Scoped by tenant at the store
// query, never at the presentation layer.
func (e *Engine) TenantLicenses(ctx context.Context, tenantID string) ([]PoolStatus, error) {
	pools, err := e.store.PoolsForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing pools for tenant %s: %w", tenantID, err)
	}

	vendorNames := make(map[string]string)
	licenses := make([]PoolStatus, 0, len(pools))
	for i := range pools {
		pool := &pools[i]
		name, seen := vendorNames[pool.VendorID]
		if !seen {
			if vendor, err := e.store.VendorByID(ctx, pool.VendorID); err == nil {
				name = vendor.Name
			}
			vendorNames[pool.VendorID] = name
		}

		status := e.aggregate(ctx, tenantID, pool.ProductID, pools[i:i+1])
		status.PackageID = &pool.PackageID
		status.VendorName = name
		licenses = append(licenses, status)
	}
	return licenses, nil
}

// VendorCustomers lists every tenant holding at least one pool from the
// vendor, with the count of currently outstanding grants. borrowed_count
// equals the pool's outstanding grants by invariant, so no ledger scan is
// needed.
func (e *Engine) VendorCustomers(ctx context.Context, vendorID string) ([]Customer, error) {
	if _, err := e.store.VendorByID(ctx, vendorID); err != nil {
		return nil, err
	}
	pools, err := e.store.PoolsForVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing pools for vendor %s: %w", vendorID, err)
	}

	active := make(map[string]int)
	var order []string
	for i := range pools {
		if _, seen := active[pools[i].TenantID]; !seen {
			order = append(order, pools[i].TenantID)
		}
		active[pools[i].TenantID] += pools[i].BorrowedCount
	}

	customers := make([]Customer, 0, len(order))
	for _, tenantID := range order {
		customer := Customer{TenantID: tenantID, ActiveLicenses: active[tenantID]}
		if tenant, err := e.store.TenantByID(ctx, tenantID); err == nil {
			customer.CompanyName = tenant.CompanyName
			customer.CRMID = tenant.CRMID
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

// AllTenants returns the full tenant reference list.
func (e *Engine) AllTenants(ctx context.Context) ([]models.Tenant, error) {
	return e.store.Tenants(ctx)
}

// TenantGrants lists the tenant's currently outstanding grants.
func (e *Engine) TenantGrants(ctx context.Context, tenantID string) ([]models.Grant, error) {
	return e.store.OutstandingGrantsForTenant(ctx, tenantID)
}
