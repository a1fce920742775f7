package main

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seatgrid/license-server/shared/licensing"
	"github.com/seatgrid/license-server/shared/metrics"
	"github.com/seatgrid/license-server/shared/middleware"
	"github.com/seatgrid/license-server/shared/utils"
)

// BorrowRequest represents the borrow license request
type BorrowRequest struct {
	Tool string `json:"tool" binding:"required"`
	User string `json:"user" binding:"required"`
}

// ReturnRequest represents the return license request
type ReturnRequest struct {
	LicenseID string `json:"license_id" binding:"required"`
}

// ProvisionRequest represents the vendor provisioning request
type ProvisionRequest struct {
	TenantID               string  `json:"tenant_id" binding:"required"`
	ProductID              string  `json:"product_id" binding:"required"`
	ProductName            string  `json:"product_name" binding:"required"`
	Total                  int     `json:"total"`
	CommitQty              int     `json:"commit_qty"`
	MaxOverage             int     `json:"max_overage"`
	CommitPrice            float64 `json:"commit_price"`
	OveragePricePerLicense float64 `json:"overage_price_per_license"`
	CRMOpportunityID       *string `json:"crm_opportunity_id"`
}

// renderEngineError maps the engine's typed error taxonomy onto HTTP status
// codes. An exhausted pool (409), a missing tool (404) and a missing tenant
// (404 at the middleware) stay three distinguishable outcomes; anything else
// is an unexpected storage fault and surfaces as 500.
func renderEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, licensing.ErrCapacityExceeded):
		utils.ConflictResponse(c, "No licenses available")
	case errors.Is(err, licensing.ErrAlreadyReturned):
		utils.ConflictResponse(c, "License already returned")
	case errors.Is(err, licensing.ErrUnknownPool):
		utils.NotFoundResponse(c, "No license pool for this tool")
	case errors.Is(err, licensing.ErrUnknownGrant):
		utils.NotFoundResponse(c, "License not found")
	case errors.Is(err, licensing.ErrUnknownTenant):
		utils.NotFoundResponse(c, "Tenant not found")
	case errors.Is(err, licensing.ErrUnknownVendor):
		utils.NotFoundResponse(c, "Vendor not found")
	case errors.Is(err, licensing.ErrInvalidConfiguration):
		utils.UnprocessableEntityResponse(c, err.Error())
	default:
		logrus.Errorf("Unexpected engine error: %v", err)
		utils.InternalServerErrorResponse(c, "Internal error")
	}
}

// handleBorrow handles borrowing one license seat for the current tenant
func handleBorrow(engine *licensing.Engine, producer *EventProducer, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, _ := middleware.GetTenantFromContext(c)

		var req BorrowRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		grant, err := engine.Borrow(c.Request.Context(), tenantID, req.Tool, req.User)
		if err != nil {
			if errors.Is(err, licensing.ErrCapacityExceeded) {
				m.CapacityRejections.WithLabelValues(tenantID, req.Tool).Inc()
			}
			renderEngineError(c, err)
			return
		}

		m.BorrowsTotal.WithLabelValues(tenantID, grant.ProductID).Inc()
		m.OutstandingGrants.WithLabelValues(tenantID, grant.ProductID).Inc()

		if err := producer.SendLicenseEvent(LicenseEvent{
			EventType: EventLicenseBorrowed,
			TenantID:  tenantID,
			ProductID: grant.ProductID,
			PackageID: grant.PackageID,
			GrantID:   grant.GrantID,
			User:      grant.User,
			Timestamp: time.Now(),
		}); err != nil {
			// Queue full - event dropped
		}

		utils.CreatedResponse(c, "License borrowed successfully", grant)
	}
}

// handleReturn handles returning a borrowed license seat
func handleReturn(engine *licensing.Engine, producer *EventProducer, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReturnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		grantID, err := uuid.Parse(req.LicenseID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid license ID")
			return
		}

		grant, err := engine.Return(c.Request.Context(), grantID)
		if err != nil {
			renderEngineError(c, err)
			return
		}

		m.ReturnsTotal.WithLabelValues(grant.TenantID, grant.ProductID).Inc()
		m.OutstandingGrants.WithLabelValues(grant.TenantID, grant.ProductID).Dec()

		if err := producer.SendLicenseEvent(LicenseEvent{
			EventType: EventLicenseReturned,
			TenantID:  grant.TenantID,
			ProductID: grant.ProductID,
			PackageID: grant.PackageID,
			GrantID:   grant.GrantID,
			User:      grant.User,
			Timestamp: time.Now(),
		}); err != nil {
			// Queue full - event dropped
		}

		utils.OKResponse(c, "License returned successfully", grant)
	}
}

// handleToolStatus handles getting occupancy for a single tool
func handleToolStatus(engine *licensing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, _ := middleware.GetTenantFromContext(c)

		status, err := engine.Status(c.Request.Context(), tenantID, c.Param("tool"))
		if err != nil {
			renderEngineError(c, err)
			return
		}

		utils.OKResponse(c, "Status retrieved successfully", status)
	}
}

// handleAllStatus handles getting occupancy for every tool the tenant holds
func handleAllStatus(engine *licensing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, _ := middleware.GetTenantFromContext(c)

		statuses, err := engine.StatusAll(c.Request.Context(), tenantID)
		if err != nil {
			renderEngineError(c, err)
			return
		}

		utils.OKResponse(c, "Status retrieved successfully", statuses)
	}
}

// handleTenantLicenses handles the tenant dashboard's license list
func handleTenantLicenses(engine *licensing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, _ := middleware.GetTenantFromContext(c)

		licenses, err := engine.TenantLicenses(c.Request.Context(), tenantID)
		if err != nil {
			renderEngineError(c, err)
			return
		}

		utils.OKResponse(c, "Licenses retrieved successfully", gin.H{
			"tenant_id": tenantID,
			"licenses":  licenses,
		})
	}
}

// handleTenantGrants handles the tenant's outstanding grant audit view
func handleTenantGrants(engine *licensing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, _ := middleware.GetTenantFromContext(c)

		grants, err := engine.TenantGrants(c.Request.Context(), tenantID)
		if err != nil {
			renderEngineError(c, err)
			return
		}

		utils.OKResponse(c, "Grants retrieved successfully", gin.H{
			"tenant_id": tenantID,
			"grants":    grants,
		})
	}
}

// handleVendorCustomers handles the vendor portal's customer list
func handleVendorCustomers(engine *licensing.Engine, vendorID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		customers, err := engine.VendorCustomers(c.Request.Context(), vendorID)
		if err != nil {
			renderEngineError(c, err)
			return
		}

		utils.OKResponse(c, "Customers retrieved successfully", gin.H{
			"customers": customers,
		})
	}
}

// handleProvision handles provisioning a new license pool to a customer
func handleProvision(engine *licensing.Engine, producer *EventProducer, notifier *CRMNotifier, m *metrics.Metrics, vendorID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProvisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		pool, err := engine.Provision(c.Request.Context(), vendorID, req.TenantID, licensing.ProductConfig{
			ProductID:              req.ProductID,
			ProductName:            req.ProductName,
			Total:                  req.Total,
			CommitQty:              req.CommitQty,
			MaxOverage:             req.MaxOverage,
			CommitPrice:            req.CommitPrice,
			OveragePricePerLicense: req.OveragePricePerLicense,
			CRMOpportunityID:       req.CRMOpportunityID,
		})
		if err != nil {
			renderEngineError(c, err)
			return
		}

		m.ProvisionsTotal.WithLabelValues(vendorID, req.TenantID).Inc()

		if err := producer.SendLicenseEvent(LicenseEvent{
			EventType: EventLicenseProvisioned,
			TenantID:  pool.TenantID,
			VendorID:  pool.VendorID,
			ProductID: pool.ProductID,
			PackageID: pool.PackageID,
			Timestamp: time.Now(),
		}); err != nil {
			// Queue full - event dropped
		}

		go notifier.NotifyProvisioned(pool)

		utils.CreatedResponse(c, "License pool provisioned successfully", gin.H{
			"package_id": pool.PackageID,
			"status":     "provisioned",
		})
	}
}

// handleAllTenants resolves tenant ids to display metadata (vendor portal)
func handleAllTenants(engine *licensing.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := engine.AllTenants(c.Request.Context())
		if err != nil {
			renderEngineError(c, err)
			return
		}

		utils.OKResponse(c, "Tenants retrieved successfully", tenants)
	}
}
