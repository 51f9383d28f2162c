package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

// Publisher delivers one outbox event downstream
type Publisher interface {
	Publish(ctx context.Context, event *models.RentalEvent) error
}

// RelayStats summarizes the outbox by delivery status
type RelayStats struct {
	Pending           int64 `json:"pending"`
	Published         int64 `json:"published"`
	PermanentlyFailed int64 `json:"permanently_failed"`
}

// Relay moves pending rental events from the outbox table to the broker
type Relay struct {
	db           *gorm.DB
	publisher    Publisher
	breaker      *utils.CircuitBreaker
	maxRetries   int
	batchSize    int
	pollInterval time.Duration
	baseDelay    time.Duration
	log          logrus.FieldLogger
	now          func() time.Time
}

// NewRelay creates a new outbox relay
func NewRelay(db *gorm.DB, publisher Publisher, breaker *utils.CircuitBreaker, maxRetries, batchSize int, pollInterval time.Duration, log logrus.FieldLogger) *Relay {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Relay{
		db:           db,
		publisher:    publisher,
		breaker:      breaker,
		maxRetries:   maxRetries,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		baseDelay:    time.Minute,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run polls the outbox until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	r.log.WithField("poll_interval", r.pollInterval.String()).Info("Starting outbox relay")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessBatch(ctx); err != nil {
			r.log.WithError(err).Error("Error processing outbox batch")
		}

		select {
		case <-ctx.Done():
			r.log.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// relayLockKey is the postgres advisory lock held by the replica that is
// currently relaying.
const relayLockKey int64 = 0x72656e74616c

// ProcessBatch publishes up to batchSize due events, oldest first, and
// returns how many were published.
//
// Events of one apartment go out in occurrence order. Once an event fails,
// later events of the same apartment wait until it is published or given up.
// On postgres the batch runs under a transaction-scoped advisory lock and
// claims its rows with FOR UPDATE SKIP LOCKED, so replicas never publish the
// same event or overtake each other within an apartment.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	published := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := r.claimRelay(tx)
		if err != nil || !claimed {
			return err
		}

		var due []models.RentalEvent
		if err := r.dueEvents(tx).Find(&due).Error; err != nil {
			return fmt.Errorf("failed to fetch pending events: %w", err)
		}
		if len(due) == 0 {
			return nil
		}

		r.log.WithField("count", len(due)).Debug("Publishing outbox events")
		published, err = r.publishBatch(ctx, tx, due)
		return err
	})
	return published, err
}

// claimRelay reports whether this replica may relay now
func (r *Relay) claimRelay(tx *gorm.DB) (bool, error) {
	if tx.Dialector.Name() != "postgres" {
		return true, nil
	}

	var claimed bool
	if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", relayLockKey).Scan(&claimed).Error; err != nil {
		return false, fmt.Errorf("failed to claim outbox relay lock: %w", err)
	}
	if !claimed {
		r.log.Debug("Another relay replica holds the outbox, skipping poll")
	}
	return claimed, nil
}

// dueEvents selects pending events whose retry time has come, leaving out
// any event queued behind an earlier one of the same apartment that is
// still backing off.
func (r *Relay) dueEvents(tx *gorm.DB) *gorm.DB {
	now := r.now()
	q := tx.Model(&models.RentalEvent{}).
		Where("status = ? AND next_retry_at <= ?", models.OutboxStatusPending, now).
		Where(`NOT EXISTS (
			SELECT 1 FROM rental_events AS earlier
			WHERE earlier.apartment_id = rental_events.apartment_id
			AND earlier.status = ?
			AND earlier.occurred_at < rental_events.occurred_at
			AND earlier.next_retry_at > ?)`, models.OutboxStatusPending, now).
		Order("occurred_at ASC").
		Limit(r.batchSize)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return q
}

func (r *Relay) publishBatch(ctx context.Context, tx *gorm.DB, due []models.RentalEvent) (int, error) {
	published := 0
	stalled := make(map[uuid.UUID]bool)
	for i := range due {
		event := &due[i]
		if stalled[event.ApartmentID] {
			continue
		}

		pubErr := r.breaker.Call(func() error {
			return r.publisher.Publish(ctx, event)
		})

		if errors.Is(pubErr, utils.ErrCircuitOpen) || errors.Is(pubErr, utils.ErrTooManyRequests) {
			// Not attempted; leave the rest of the batch for a later poll
			r.log.WithField("circuit", r.breaker.Stats().Name).Warn("Broker circuit open, deferring outbox batch")
			break
		}

		if pubErr == nil {
			if err := r.markPublished(tx, event); err != nil {
				return published, err
			}
			published++
			continue
		}

		stalled[event.ApartmentID] = true
		if err := r.markFailed(tx, event, pubErr); err != nil {
			return published, err
		}

		// Stop the batch while the broker is known to be down
		if r.breaker.GetState() == utils.StateOpen {
			break
		}
	}

	return published, nil
}

func (r *Relay) markPublished(tx *gorm.DB, event *models.RentalEvent) error {
	now := r.now()
	err := tx.Model(event).Updates(map[string]interface{}{
		"status":        string(models.OutboxStatusPublished),
		"published_at":  now,
		"error_message": "",
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark event %s published: %w", event.ID, err)
	}

	r.log.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"apartment_id": event.ApartmentID,
	}).Info("Rental event published")
	return nil
}

// markFailed schedules the next attempt with exponential backoff
// (1m, 2m, 4m, ...) or gives up after maxRetries.
func (r *Relay) markFailed(tx *gorm.DB, event *models.RentalEvent, cause error) error {
	retries := event.RetryCount + 1
	updates := map[string]interface{}{
		"retry_count":   retries,
		"error_message": cause.Error(),
	}

	log := r.log.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"retry_count": retries,
	}).WithError(cause)

	if retries >= r.maxRetries {
		updates["status"] = string(models.OutboxStatusPermanentlyFailed)
		updates["error_message"] = fmt.Sprintf("Max retries reached: %s", cause.Error())
		log.Error("Rental event permanently failed")
	} else {
		next := r.now().Add(r.baseDelay * time.Duration(1<<(retries-1)))
		updates["next_retry_at"] = next
		log.WithField("next_retry_at", next).Warn("Rental event publish failed, will retry")
	}

	if err := tx.Model(event).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to record publish failure of event %s: %w", event.ID, err)
	}
	return nil
}

// Stats returns outbox counts per status
func (r *Relay) Stats(ctx context.Context) (RelayStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.RentalEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return RelayStats{}, fmt.Errorf("failed to count outbox events: %w", err)
	}

	var stats RelayStats
	for _, row := range rows {
		switch models.OutboxStatus(row.Status) {
		case models.OutboxStatusPending:
			stats.Pending = row.Count
		case models.OutboxStatusPublished:
			stats.Published = row.Count
		case models.OutboxStatusPermanentlyFailed:
			stats.PermanentlyFailed = row.Count
		}
	}
	return stats, nil
}
