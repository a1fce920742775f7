package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/seatgrid/license-server/shared/models"
	"github.com/seatgrid/license-server/shared/utils"
)

// Request contexts resolved from the subdomain.
const (
	ContextTenant  = "tenant"
	ContextVendor  = "vendor"
	ContextUnknown = "unknown"
)

// VendorSubdomain is the reserved subdomain for the vendor portal.
const VendorSubdomain = "vendor"

// CatalogReader is the subset of the store the middleware needs to resolve a
// subdomain to a tenant record.
type CatalogReader interface {
	TenantByID(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// TenantMiddleware resolves the request's tenant or vendor context from the
// Host subdomain (bmw.localhost -> tenant "bmw", vendor.localhost -> vendor
// portal). The core only ever receives an already-resolved id; an unknown
// subdomain yields no implicit access to anything.
type TenantMiddleware struct {
	catalog CatalogReader
}

// NewTenantMiddleware creates the subdomain resolution middleware.
func NewTenantMiddleware(catalog CatalogReader) *TenantMiddleware {
	return &TenantMiddleware{catalog: catalog}
}

// Subdomain extracts the first host label, without the port.
func Subdomain(host string) string {
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.IndexByte(host, '.'); idx >= 0 {
		return host[:idx]
	}
	return host
}

// ResolveContext classifies the request as tenant, vendor or unknown and
// stores the resolved ids on the gin context. Tenant records are looked up
// through the Redis cache first; tenants are immutable, so cache hits are
// always safe.
func (m *TenantMiddleware) ResolveContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		subdomain := Subdomain(c.Request.Host)

		if subdomain == VendorSubdomain {
			c.Set("context", ContextVendor)
			c.Next()
			return
		}

		tenant, err := utils.GetCachedTenant(subdomain)
		if err != nil {
			tenant, err = m.catalog.TenantByID(c.Request.Context(), subdomain)
			if err == nil {
				if cacheErr := utils.CacheTenant(tenant); cacheErr != nil {
					// Cache failure is non-critical
				}
			}
		}

		if err != nil {
			logrus.WithField("host", c.Request.Host).Debug("Request from unresolved subdomain")
			c.Set("context", ContextUnknown)
			c.Next()
			return
		}

		c.Set("context", ContextTenant)
		c.Set("tenant_id", tenant.TenantID)
		c.Set("tenant", tenant)
		c.Next()
	}
}

// RequireTenant aborts requests that did not resolve to a known tenant.
func (m *TenantMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("context") != ContextTenant {
			utils.NotFoundResponse(c, "Tenant not found")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireVendor aborts requests that did not arrive on the vendor portal
// subdomain.
func (m *TenantMiddleware) RequireVendor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("context") != ContextVendor {
			utils.ForbiddenResponse(c, "Vendor portal only")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetTenantFromContext returns the resolved tenant id and record.
func GetTenantFromContext(c *gin.Context) (string, *models.Tenant, bool) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		return "", nil, false
	}
	tenant, _ := c.MustGet("tenant").(*models.Tenant)
	return tenantID, tenant, true
}
