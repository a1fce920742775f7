package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seatgrid/license-server/shared/licensing"
	"github.com/seatgrid/license-server/shared/models"
)

// DefaultVendorID is the vendor the portal operates as when VENDOR_ID is not
// configured.
const DefaultVendorID = "vector"

// seedDemoData creates the demo catalog: one vendor, three automotive tenants
// and a davinci-se pool per tenant. Skipped when the vendor already exists so
// restarts do not stack extra pools.
func seedDemoData(ctx context.Context, store licensing.Store, engine *licensing.Engine) error {
	if _, err := store.VendorByID(ctx, DefaultVendorID); err == nil {
		logrus.Info("Demo data already seeded, skipping")
		return nil
	}

	vendor := &models.Vendor{VendorID: DefaultVendorID, Name: "Vector Informatik GmbH"}
	if err := store.CreateVendor(ctx, vendor); err != nil {
		return fmt.Errorf("seeding vendor: %w", err)
	}

	tenants := []models.Tenant{
		{TenantID: "bmw", CompanyName: "BMW AG", CRMID: "CRM-2024-001"},
		{TenantID: "mercedes", CompanyName: "Mercedes-Benz Group AG", CRMID: "CRM-2024-002"},
		{TenantID: "audi", CompanyName: "Audi AG", CRMID: "CRM-2024-003"},
	}
	for i := range tenants {
		if err := store.CreateTenant(ctx, &tenants[i]); err != nil {
			return fmt.Errorf("seeding tenant %s: %w", tenants[i].TenantID, err)
		}
	}

	for _, tenant := range tenants {
		_, err := engine.Provision(ctx, DefaultVendorID, tenant.TenantID, licensing.ProductConfig{
			ProductID:              "davinci-se",
			ProductName:            "DaVinci Configurator SE",
			Total:                  20,
			CommitQty:              5,
			MaxOverage:             15,
			CommitPrice:            5000.0,
			OveragePricePerLicense: 500.0,
		})
		if err != nil {
			return fmt.Errorf("seeding pool for %s: %w", tenant.TenantID, err)
		}
	}

	// BMW also gets the compiler suite so the dashboard shows more than one
	// product.
	_, err := engine.Provision(ctx, DefaultVendorID, "bmw", licensing.ProductConfig{
		ProductID:              "greenhills-multi",
		ProductName:            "Greenhills Multi 8.2",
		Total:                  10,
		CommitQty:              4,
		MaxOverage:             6,
		CommitPrice:            8000.0,
		OveragePricePerLicense: 900.0,
	})
	if err != nil {
		return fmt.Errorf("seeding greenhills pool: %w", err)
	}

	logrus.Info("Demo data seeded")
	return nil
}
