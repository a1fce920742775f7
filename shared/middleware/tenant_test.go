package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/seatgrid/license-server/shared/licensing"
	"github.com/seatgrid/license-server/shared/models"
)

func TestSubdomain(t *testing.T) {
	cases := []struct {
		host     string
		expected string
	}{
		{"bmw.localhost:8001", "bmw"},
		{"bmw.localhost", "bmw"},
		{"vendor.localhost:8001", "vendor"},
		{"mercedes.licenses.example.com", "mercedes"},
		{"localhost:8001", "localhost"},
		{"localhost", "localhost"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, Subdomain(tc.host), "host=%s", tc.host)
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := licensing.NewMemoryStore()
	err := store.CreateTenant(context.Background(), &models.Tenant{
		TenantID:    "bmw",
		CompanyName: "BMW AG",
		CRMID:       "CRM-2024-001",
	})
	assert.NoError(t, err)

	m := NewTenantMiddleware(store)
	router := gin.New()
	router.Use(m.ResolveContext())
	router.GET("/tenant-only", m.RequireTenant(), func(c *gin.Context) {
		tenantID, tenant, ok := GetTenantFromContext(c)
		assert.True(t, ok)
		assert.NotNil(t, tenant)
		c.String(http.StatusOK, tenantID)
	})
	router.GET("/vendor-only", m.RequireVendor(), func(c *gin.Context) {
		c.String(http.StatusOK, "portal")
	})
	return router
}

func request(router *gin.Engine, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestResolveContextTenant(t *testing.T) {
	router := newTestRouter(t)

	w := request(router, "bmw.localhost:8001", "/tenant-only")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bmw", w.Body.String())
}

func TestResolveContextUnknownSubdomain(t *testing.T) {
	router := newTestRouter(t)

	w := request(router, "toyota.localhost:8001", "/tenant-only")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVendorPortalGuard(t *testing.T) {
	router := newTestRouter(t)

	w := request(router, "vendor.localhost:8001", "/vendor-only")
	assert.Equal(t, http.StatusOK, w.Code)

	// Tenant subdomains must not reach vendor operations.
	w = request(router, "bmw.localhost:8001", "/vendor-only")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// And the vendor subdomain carries no tenant context.
	w = request(router, "vendor.localhost:8001", "/tenant-only")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
