package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/seatgrid/license-server/shared/config"
	"github.com/seatgrid/license-server/shared/licensing"
	"github.com/seatgrid/license-server/shared/metrics"
	"github.com/seatgrid/license-server/shared/middleware"
	"github.com/seatgrid/license-server/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize Redis for catalog caching (optional)
	if err := utils.InitRedis(); err != nil {
		logrus.Warnf("Failed to connect to Redis, catalog caching disabled: %v", err)
	} else {
		defer utils.CloseRedis()
	}

	// Initialize the store: postgres when configured, in-memory for demo runs
	store, err := newStore()
	if err != nil {
		log.Fatal("Failed to initialize store:", err)
	}
	engine := licensing.NewEngine(store)

	// Seed demo catalog and pools
	if err := seedDemoData(context.Background(), store, engine); err != nil {
		log.Fatal("Failed to seed demo data:", err)
	}

	// Initialize Kafka producer for license events (optional)
	var producer *EventProducer
	if broker := os.Getenv("KAFKA_BROKER"); broker != "" {
		producer, err = NewEventProducer(broker)
		if err != nil {
			log.Fatal("Failed to initialize Kafka producer:", err)
		}
		defer producer.Close()
	} else {
		logrus.Warn("KAFKA_BROKER not set, license events disabled")
	}

	m := metrics.NewMetrics()

	// Initialize CRM notifier (optional)
	var notifier *CRMNotifier
	if endpoint := os.Getenv("CRM_WEBHOOK_URL"); endpoint != "" {
		notifier = NewCRMNotifier(endpoint, m)
	}

	vendorID := os.Getenv("VENDOR_ID")
	if vendorID == "" {
		vendorID = DefaultVendorID
	}

	tenantMiddleware := middleware.NewTenantMiddleware(store)
	router := newRouter(engine, tenantMiddleware, producer, notifier, m, vendorID)

	// Start server
	port := os.Getenv("LICENSE_SERVER_PORT")
	if port == "" {
		port = "8001"
	}

	logrus.Infof("License server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start license server:", err)
	}
}

// newStore selects the persistence backend. STORAGE_BACKEND=postgres uses the
// shared database; anything else runs in-memory, matching the original demo's
// local-file setup.
func newStore() (licensing.Store, error) {
	if os.Getenv("STORAGE_BACKEND") != "postgres" {
		logrus.Info("Using in-memory store")
		return licensing.NewMemoryStore(), nil
	}

	db, err := config.ConnectDatabase()
	if err != nil {
		return nil, err
	}
	store := licensing.NewPostgresStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	logrus.Info("Using postgres store")
	return store, nil
}

// newRouter wires the subdomain middleware and all tenant/vendor routes.
func newRouter(engine *licensing.Engine, tenantMiddleware *middleware.TenantMiddleware, producer *EventProducer, notifier *CRMNotifier, m *metrics.Metrics, vendorID string) *gin.Engine {
	router := gin.Default()

	// Health check and metrics, reachable from any subdomain
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "License server is healthy", nil)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.Use(tenantMiddleware.ResolveContext())

	// Tenant dashboard and client API
	licenses := router.Group("/licenses")
	licenses.Use(tenantMiddleware.RequireTenant())
	{
		licenses.POST("/borrow", handleBorrow(engine, producer, m))
		licenses.POST("/return", handleReturn(engine, producer, m))
		licenses.GET("/status", handleAllStatus(engine))
		licenses.GET("/status/:tool", handleToolStatus(engine))
	}

	tenantAPI := router.Group("/api/tenant")
	tenantAPI.Use(tenantMiddleware.RequireTenant())
	{
		tenantAPI.GET("/licenses", handleTenantLicenses(engine))
		tenantAPI.GET("/grants", handleTenantGrants(engine))
	}

	// Vendor portal API
	vendorAPI := router.Group("/api/vendor")
	vendorAPI.Use(tenantMiddleware.RequireVendor())
	{
		vendorAPI.GET("/customers", handleVendorCustomers(engine, vendorID))
		vendorAPI.GET("/tenants", handleAllTenants(engine))
		vendorAPI.POST("/provision", handleProvision(engine, producer, notifier, m, vendorID))
	}

	return router
}
