package licensing

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatgrid/license-server/shared/models"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	engine := NewEngine(store)

	require.NoError(t, store.CreateVendor(ctx, &models.Vendor{VendorID: "vector", Name: "Vector Informatik GmbH"}))
	require.NoError(t, store.CreateTenant(ctx, &models.Tenant{TenantID: "bmw", CompanyName: "BMW AG", CRMID: "CRM-2024-001"}))
	require.NoError(t, store.CreateTenant(ctx, &models.Tenant{TenantID: "mercedes", CompanyName: "Mercedes-Benz Group AG", CRMID: "CRM-2024-002"}))

	return engine, store
}

func provisionPool(t *testing.T, engine *Engine, tenantID, productID string, total, commit, overage int) *models.LicensePool {
	t.Helper()
	pool, err := engine.Provision(context.Background(), "vector", tenantID, ProductConfig{
		ProductID:              productID,
		ProductName:            productID,
		Total:                  total,
		CommitQty:              commit,
		MaxOverage:             overage,
		CommitPrice:            5000.0,
		OveragePricePerLicense: 500.0,
	})
	require.NoError(t, err)
	return pool
}

func TestProvisionValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  ProductConfig
	}{
		{"commit exceeds total", ProductConfig{ProductID: "p", Total: 5, CommitQty: 6, MaxOverage: 0}},
		{"negative total", ProductConfig{ProductID: "p", Total: -1, CommitQty: 0, MaxOverage: 0}},
		{"negative overage", ProductConfig{ProductID: "p", Total: 5, CommitQty: 2, MaxOverage: -3}},
		{"negative price", ProductConfig{ProductID: "p", Total: 5, CommitQty: 2, MaxOverage: 3, CommitPrice: -1}},
		{"missing product id", ProductConfig{Total: 5, CommitQty: 2, MaxOverage: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Provision(ctx, "vector", "bmw", tc.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	_, err := engine.Provision(ctx, "vector", "nobody", ProductConfig{ProductID: "p", Total: 5, CommitQty: 2, MaxOverage: 3})
	assert.ErrorIs(t, err, ErrUnknownTenant)

	_, err = engine.Provision(ctx, "ghost", "bmw", ProductConfig{ProductID: "p", Total: 5, CommitQty: 2, MaxOverage: 3})
	assert.ErrorIs(t, err, ErrUnknownVendor)
}

func TestBorrowUnknownPool(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Borrow(context.Background(), "bmw", "davinci-se", "alice")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestReturnUnknownGrant(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Return(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUnknownGrant)
}

func TestTierClassification(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	provisionPool(t, engine, "bmw", "davinci-se", 20, 5, 15)

	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateIdle, status.Status)

	borrow := func(n int) {
		for i := 0; i < n; i++ {
			_, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
			require.NoError(t, err)
		}
	}

	borrow(3)
	status, err = engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateCommit, status.Status)
	assert.Equal(t, 3, status.Borrowed)

	borrow(9) // 12 total
	status, err = engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateOverage, status.Status)

	borrow(8) // 20 total
	status, err = engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateOverage, status.Status)
	assert.Equal(t, 0, status.Available)

	_, err = engine.Borrow(ctx, "bmw", "davinci-se", "alice")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestEffectiveCapacityClamp(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Tiers do not add up to total; borrowable capacity clamps to 4+2=6.
	provisionPool(t, engine, "bmw", "davinci-se", 10, 4, 2)

	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 6, status.Available)

	for i := 0; i < 6; i++ {
		_, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
		require.NoError(t, err)
	}
	_, err = engine.Borrow(ctx, "bmw", "davinci-se", "alice")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestConcurrentBorrowNoOversell(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	pool := provisionPool(t, engine, "bmw", "davinci-se", 5, 5, 0)

	const callers = 50
	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Borrow(ctx, "bmw", "davinci-se", "racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case err == ErrCapacityExceeded:
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 5, successes)
	assert.Equal(t, callers-5, rejections)

	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 5, status.Borrowed)

	grants, err := store.GrantsForPool(ctx, pool.PackageID)
	require.NoError(t, err)
	assert.Len(t, grants, 5)
}

func TestConcurrentBorrowReturnChurn(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	pool := provisionPool(t, engine, "bmw", "davinci-se", 5, 5, 0)

	const workers = 20
	const iterations = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				grant, err := engine.Borrow(ctx, "bmw", "davinci-se", "churner")
				if err == ErrCapacityExceeded {
					continue
				}
				if err != nil {
					t.Errorf("unexpected borrow error: %v", err)
					return
				}
				if _, err := engine.Return(ctx, grant.GrantID); err != nil {
					t.Errorf("unexpected return error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Borrowed)
	assert.Equal(t, 5, status.Available)

	grants, err := store.GrantsForPool(ctx, pool.PackageID)
	require.NoError(t, err)
	for _, grant := range grants {
		assert.False(t, grant.Outstanding(), "grant %s left outstanding", grant.GrantID)
	}
}

func TestIdempotentReturn(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	provisionPool(t, engine, "bmw", "davinci-se", 20, 5, 15)

	grant, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
	require.NoError(t, err)

	_, err = engine.Return(ctx, grant.GrantID)
	require.NoError(t, err)

	_, err = engine.Return(ctx, grant.GrantID)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	// The duplicate return must not have decremented again.
	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Borrowed)
	assert.Equal(t, 20, status.Available)
}

func TestStatusMatchesLedger(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	pool := provisionPool(t, engine, "bmw", "davinci-se", 20, 5, 15)

	var grants []*models.Grant
	for i := 0; i < 8; i++ {
		grant, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
		require.NoError(t, err)
		grants = append(grants, grant)
	}
	for _, grant := range grants[:3] {
		_, err := engine.Return(ctx, grant.GrantID)
		require.NoError(t, err)
	}

	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)

	ledger, err := store.GrantsForPool(ctx, pool.PackageID)
	require.NoError(t, err)
	outstanding := 0
	for _, grant := range ledger {
		if grant.Outstanding() {
			outstanding++
		}
	}
	assert.Equal(t, status.Borrowed, outstanding)
	assert.Equal(t, 5, outstanding)
}

func TestTenantIsolation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Both tenants hold pools for the same product.
	provisionPool(t, engine, "bmw", "davinci-se", 20, 5, 15)
	provisionPool(t, engine, "mercedes", "davinci-se", 10, 5, 5)

	for i := 0; i < 4; i++ {
		_, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
		require.NoError(t, err)
	}

	bmwStatus, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 4, bmwStatus.Borrowed)

	mercedesStatus, err := engine.Status(ctx, "mercedes", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 0, mercedesStatus.Borrowed)
	assert.Equal(t, 10, mercedesStatus.Total)

	mercedesLicenses, err := engine.TenantLicenses(ctx, "mercedes")
	require.NoError(t, err)
	require.Len(t, mercedesLicenses, 1)
	assert.Equal(t, "mercedes", mercedesLicenses[0].TenantID)
	assert.Equal(t, 0, mercedesLicenses[0].Borrowed)

	mercedesGrants, err := engine.TenantGrants(ctx, "mercedes")
	require.NoError(t, err)
	assert.Empty(t, mercedesGrants)

	bmwGrants, err := engine.TenantGrants(ctx, "bmw")
	require.NoError(t, err)
	assert.Len(t, bmwGrants, 4)
	for _, grant := range bmwGrants {
		assert.Equal(t, "bmw", grant.TenantID)
	}
}

func TestStackedPoolsExtendCapacity(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Two purchase events for the same pair stay independent pools; borrows
	// fill the older pool first, then spill into the newer one.
	first := provisionPool(t, engine, "bmw", "davinci-se", 2, 2, 0)
	second := provisionPool(t, engine, "bmw", "davinci-se", 3, 3, 0)

	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, 5, status.Total)
	assert.Nil(t, status.PackageID)

	var packageIDs []uuid.UUID
	for i := 0; i < 5; i++ {
		grant, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
		require.NoError(t, err)
		packageIDs = append(packageIDs, grant.PackageID)
	}
	_, err = engine.Borrow(ctx, "bmw", "davinci-se", "alice")
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	assert.Equal(t, first.PackageID, packageIDs[0])
	assert.Equal(t, first.PackageID, packageIDs[1])
	for _, id := range packageIDs[2:] {
		assert.Equal(t, second.PackageID, id)
	}

	licenses, err := engine.TenantLicenses(ctx, "bmw")
	require.NoError(t, err)
	assert.Len(t, licenses, 2)
}

func TestVendorCustomers(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	provisionPool(t, engine, "bmw", "davinci-se", 20, 5, 15)
	provisionPool(t, engine, "mercedes", "davinci-se", 10, 5, 5)

	for i := 0; i < 3; i++ {
		_, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
		require.NoError(t, err)
	}

	customers, err := engine.VendorCustomers(ctx, "vector")
	require.NoError(t, err)
	require.Len(t, customers, 2)

	byTenant := make(map[string]Customer)
	for _, customer := range customers {
		byTenant[customer.TenantID] = customer
	}
	assert.Equal(t, 3, byTenant["bmw"].ActiveLicenses)
	assert.Equal(t, "BMW AG", byTenant["bmw"].CompanyName)
	assert.Equal(t, "CRM-2024-001", byTenant["bmw"].CRMID)
	assert.Equal(t, 0, byTenant["mercedes"].ActiveLicenses)

	_, err = engine.VendorCustomers(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownVendor)
}

func TestAllTenants(t *testing.T) {
	engine, _ := newTestEngine(t)

	tenants, err := engine.AllTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "bmw", tenants[0].TenantID)
	assert.Equal(t, "mercedes", tenants[1].TenantID)
}

func TestEndToEndScenario(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	provisionPool(t, engine, "bmw", "davinci-se", 20, 5, 15)

	var grants []*models.Grant
	borrow := func(n int) {
		for i := 0; i < n; i++ {
			grant, err := engine.Borrow(ctx, "bmw", "davinci-se", "alice")
			require.NoError(t, err)
			grants = append(grants, grant)
		}
	}

	borrow(5)
	status, err := engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateCommit, status.Status)
	assert.Equal(t, 15, status.Available)

	borrow(10)
	status, err = engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateOverage, status.Status)
	assert.Equal(t, 5, status.Available)

	for _, grant := range grants {
		_, err := engine.Return(ctx, grant.GrantID)
		require.NoError(t, err)
	}
	status, err = engine.Status(ctx, "bmw", "davinci-se")
	require.NoError(t, err)
	assert.Equal(t, models.PoolStateIdle, status.Status)
	assert.Equal(t, 20, status.Available)
}
