package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	BorrowsTotal       *prometheus.CounterVec
	ReturnsTotal       *prometheus.CounterVec
	CapacityRejections *prometheus.CounterVec
	ProvisionsTotal    *prometheus.CounterVec
	OutstandingGrants  *prometheus.GaugeVec
	CRMNotifyFailures  prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BorrowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licenseserver_borrows_total",
				Help: "Total number of successful license borrows",
			},
			[]string{"tenant_id", "product_id"},
		),

		ReturnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licenseserver_returns_total",
				Help: "Total number of successful license returns",
			},
			[]string{"tenant_id", "product_id"},
		),

		CapacityRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licenseserver_capacity_rejections_total",
				Help: "Total number of borrows rejected because capacity was exhausted",
			},
			[]string{"tenant_id", "product_id"},
		),

		ProvisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "licenseserver_provisions_total",
				Help: "Total number of license pools provisioned",
			},
			[]string{"vendor_id", "tenant_id"},
		),

		OutstandingGrants: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "licenseserver_outstanding_grants",
				Help: "Currently outstanding grants per tenant and product",
			},
			[]string{"tenant_id", "product_id"},
		),

		CRMNotifyFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "licenseserver_crm_notify_failures_total",
				Help: "Total number of failed CRM opportunity notifications",
			},
		),
	}
}
