package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seatgrid/license-server/shared/metrics"
	"github.com/seatgrid/license-server/shared/models"
	"github.com/seatgrid/license-server/shared/utils"
)

// CRMNotifier pushes provisioning facts to the CRM system when a pool was
// sold against a CRM opportunity. The webhook is an external system, so calls
// go through a circuit breaker; provisioning itself never waits on CRM.
type CRMNotifier struct {
	endpoint   string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
	metrics    *metrics.Metrics
}

// NewCRMNotifier creates a notifier for the given webhook endpoint.
// Circuit opens after 5 failures and probes again after 30 seconds.
func NewCRMNotifier(endpoint string, m *metrics.Metrics) *CRMNotifier {
	return &CRMNotifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: utils.NewCircuitBreaker(5, 30*time.Second),
		metrics: m,
	}
}

// NotifyProvisioned reports a newly provisioned pool against its CRM
// opportunity. Safe to call on a nil notifier when no webhook is configured.
func (n *CRMNotifier) NotifyProvisioned(pool *models.LicensePool) {
	if n == nil || pool.CRMOpportunityID == nil {
		return
	}

	err := n.breaker.Call(func() error {
		return n.post(pool)
	})
	if err != nil {
		n.metrics.CRMNotifyFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"package_id":     pool.PackageID,
			"opportunity_id": *pool.CRMOpportunityID,
		}).Warnf("CRM notification failed: %v", err)
	}
}

func (n *CRMNotifier) post(pool *models.LicensePool) error {
	payload := map[string]interface{}{
		"opportunity_id":            *pool.CRMOpportunityID,
		"package_id":                pool.PackageID,
		"tenant_id":                 pool.TenantID,
		"product_id":                pool.ProductID,
		"total":                     pool.Total,
		"commit_qty":                pool.CommitQty,
		"max_overage":               pool.MaxOverage,
		"commit_price":              pool.CommitPrice,
		"overage_price_per_license": pool.OveragePricePerLicense,
		"timestamp":                 time.Now(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal CRM payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.endpoint+"/opportunities/provisioned", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create CRM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", pool.TenantID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send CRM notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("CRM returned status %d", resp.StatusCode)
	}

	return nil
}
