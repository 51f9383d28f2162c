package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

// OwnerNotification is the body posted to the owner webhook
type OwnerNotification struct {
	EventType models.RentalEventType    `json:"event_type"`
	Data      models.RentalEventMessage `json:"data"`
	SentAt    time.Time                 `json:"sent_at"`
}

// OwnerNotifier tells apartment owners about rentals of their apartments
// by posting to a webhook. With no endpoint configured it only logs.
type OwnerNotifier struct {
	endpoint   string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
	log        logrus.FieldLogger

	mutex       sync.RWMutex
	delivered   int64
	lastSuccess time.Time
	lastError   error
}

// NewOwnerNotifier creates a new owner notifier
func NewOwnerNotifier(endpoint string, breaker *utils.CircuitBreaker, log logrus.FieldLogger) *OwnerNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OwnerNotifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		log:     log,
	}
}

// Notify delivers one rental event to the owner webhook
func (n *OwnerNotifier) Notify(ctx context.Context, event models.RentalEventMessage) error {
	log := n.log.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"apartment_id": event.ApartmentID,
		"owner_id":     event.OwnerID,
	})

	if n.endpoint == "" {
		log.Info("Owner notification (no webhook configured)")
		n.record(nil)
		return nil
	}

	err := n.breaker.Call(func() error {
		return n.post(ctx, event)
	})
	n.record(err)
	if err != nil {
		return err
	}

	log.Info("Owner notified")
	return nil
}

func (n *OwnerNotifier) post(ctx context.Context, event models.RentalEventMessage) error {
	body, err := json.Marshal(OwnerNotification{
		EventType: event.EventType,
		Data:      event,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal owner notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", event.OwnerID)
	req.Header.Set("X-Event-ID", event.ID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send owner notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("owner webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *OwnerNotifier) record(err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if err != nil {
		n.lastError = err
		return
	}
	n.delivered++
	n.lastSuccess = time.Now()
	n.lastError = nil
}

// GetStatus returns the current delivery status
func (n *OwnerNotifier) GetStatus() map[string]interface{} {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	status := map[string]interface{}{
		"endpoint":     n.endpoint,
		"delivered":    n.delivered,
		"last_success": n.lastSuccess,
		"circuit":      n.breaker.Stats(),
	}
	if n.lastError != nil {
		status["last_error"] = n.lastError.Error()
	}
	return status
}
