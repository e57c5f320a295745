package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"

	bolt "go.etcd.io/bbolt"
)

const analyticsBucket = "events"

// BoltAnalytics persists analytics events to a local BoltDB file. Writes are sequence-keyed so
// events come back in emission order. Emit failures are logged and dropped, keeping the sink
// best-effort as the rest of the application expects.
type BoltAnalytics struct {
	db *bolt.DB

	logger *slog.Logger
}

// NewBoltAnalytics opens (or creates, with 0600 permissions) the analytics database at the given
// path and ensures the events bucket exists.
func NewBoltAnalytics(path string, logger *slog.Logger) (BoltAnalytics, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltAnalytics{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(analyticsBucket))
		return err
	})

	return BoltAnalytics{
		db:     db,
		logger: logger.With(slog.String("module", "analytics")),
	}, err
}

// Emit appends one event to the events bucket. It never returns an error; failures are logged and
// the event is dropped.
func (b BoltAnalytics) Emit(event AnalyticsEvent) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(analyticsBucket))
		if bk == nil {
			return nil
		}

		seq, err := bk.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bk.Put(key, v)
	})
	if err != nil {
		b.logger.Error("Failed to record analytics event",
			slog.String("type", event.Type),
			slog.String("err", err.Error()))
	}
}

// Events retrieves all recorded events in emission order.
func (b BoltAnalytics) Events(context.Context) ([]AnalyticsEvent, error) {
	var events []AnalyticsEvent
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(analyticsBucket))
		if bk == nil {
			return nil
		}

		return bk.ForEach(func(_, v []byte) error {
			var event AnalyticsEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases the underlying database file.
func (b BoltAnalytics) Close() error {
	return b.db.Close()
}
