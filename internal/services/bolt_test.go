package services_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/solverpad/tutor-web-ui/internal/services"
)

func newTestAnalytics(t *testing.T) services.BoltAnalytics {
	t.Helper()
	b, err := services.NewBoltAnalytics(
		filepath.Join(t.TempDir(), "analytics.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err != nil {
		t.Fatalf("NewBoltAnalytics() error = %v", err)
	}
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return b
}

func TestBoltAnalyticsEmitAndReadBack(t *testing.T) {
	b := newTestAnalytics(t)

	events := []services.AnalyticsEvent{
		{Type: services.EventSessionStarted, Timestamp: time.Now()},
		{Type: services.EventMessageSubmitted, Timestamp: time.Now(), Fields: map[string]any{
			"hasImage":      true,
			"contentLength": float64(12),
		}},
		{Type: services.EventStreamError, Timestamp: time.Now(), Fields: map[string]any{
			"errorMessage": "boom",
		}},
	}
	for _, ev := range events {
		b.Emit(ev)
	}

	got, err := b.Events(context.Background())
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("Events() returned %d events, want %d", len(got), len(events))
	}
	for i, ev := range events {
		if got[i].Type != ev.Type {
			t.Errorf("event %d type = %q, want %q (order must match emission order)", i, got[i].Type, ev.Type)
		}
	}
	if got[1].Fields["hasImage"] != true {
		t.Errorf("event fields not preserved: %+v", got[1].Fields)
	}
	if got[2].Fields["errorMessage"] != "boom" {
		t.Errorf("event fields not preserved: %+v", got[2].Fields)
	}
}

func TestBoltAnalyticsEmptyRead(t *testing.T) {
	b := newTestAnalytics(t)

	got, err := b.Events(context.Background())
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Events() = %v, want empty", got)
	}
}
