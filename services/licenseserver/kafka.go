package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// License event types published to the license-events topic.
const (
	EventLicenseBorrowed    = "license_borrowed"
	EventLicenseReturned    = "license_returned"
	EventLicenseProvisioned = "license_provisioned"
)

// LicenseEvent is the audit event emitted for every borrow, return and
// provisioning. Events are observability output; the grant ledger stays the
// source of truth.
type LicenseEvent struct {
	EventType string    `json:"event_type"`
	TenantID  string    `json:"tenant_id"`
	VendorID  string    `json:"vendor_id,omitempty"`
	ProductID string    `json:"product_id"`
	PackageID uuid.UUID `json:"package_id"`
	GrantID   uuid.UUID `json:"grant_id,omitempty"`
	User      string    `json:"user,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventProducer handles Kafka message production with a worker pool
type EventProducer struct {
	writer       *kafka.Writer
	eventChan    chan LicenseEvent
	workerCount  int
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// NewEventProducer creates a new Kafka producer with a worker pool
func NewEventProducer(broker string) (*EventProducer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	ep := &EventProducer{
		writer:       writer,
		eventChan:    make(chan LicenseEvent, 1000),
		workerCount:  10,
		shutdownChan: make(chan struct{}),
	}

	ep.startWorkers()

	return ep, nil
}

// startWorkers starts the worker pool for async event publishing
func (ep *EventProducer) startWorkers() {
	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.eventWorker(i)
	}

	logrus.Infof("[Kafka] Started %d license event workers", ep.workerCount)
}

// eventWorker publishes license events from the channel
func (ep *EventProducer) eventWorker(id int) {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.eventChan:
			if err := ep.sendEventSync(event); err != nil {
				logrus.Warnf("[Kafka Worker %d] Failed to send license event: %v", id, err)
			}
		case <-ep.shutdownChan:
			return
		}
	}
}

// SendLicenseEvent queues a license event asynchronously (non-blocking).
// Safe to call on a nil producer so the service can run without a broker.
func (ep *EventProducer) SendLicenseEvent(event LicenseEvent) error {
	if ep == nil {
		return nil
	}
	select {
	case ep.eventChan <- event:
		return nil
	default:
		// Channel full - drop event
		return fmt.Errorf("license event queue full, event dropped")
	}
}

// sendEventSync sends a license event to Kafka synchronously (called by workers)
func (ep *EventProducer) sendEventSync(event LicenseEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal license event: %w", err)
	}

	msg := kafka.Message{
		Topic: "license-events",
		Key:   []byte(event.TenantID),
		Value: message,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
			{Key: "product_id", Value: []byte(event.ProductID)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ep.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write license event to Kafka: %w", err)
	}

	return nil
}

// Close gracefully shuts down the producer and its workers
func (ep *EventProducer) Close() error {
	if ep == nil {
		return nil
	}

	close(ep.shutdownChan)
	ep.wg.Wait()
	close(ep.eventChan)

	if err := ep.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}

	logrus.Info("[Kafka] Graceful shutdown complete")
	return nil
}
