package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/usecase"
)

type metricsFake struct {
	started  int
	finished []string
	lags     []time.Duration
	toggles  map[string]bool
	synced   int
	failed   int
	skipped  bool
	pending  int
}

func (m *metricsFake) StartEvent() { m.started++ }

func (m *metricsFake) FinishEvent(_, kind string, _ time.Duration, _ error) {
	m.finished = append(m.finished, kind)
}

func (m *metricsFake) ObserveQueueLag(_ string, lag time.Duration) { m.lags = append(m.lags, lag) }

func (m *metricsFake) RecordToggle(_, feature string, enabled bool) {
	if m.toggles == nil {
		m.toggles = map[string]bool{}
	}
	m.toggles[feature] = enabled
}

func (m *metricsFake) RecordSync(_ string, synced, failed int, skipped bool) {
	m.synced, m.failed, m.skipped = synced, failed, skipped
}

func (m *metricsFake) SetOfflinePending(count int) { m.pending = count }

type syncFake struct {
	report usecase.SyncReport
	err    error
}

func (f syncFake) SyncOnce(context.Context) (usecase.SyncReport, error) { return f.report, f.err }

type statsFake map[string]int

func (f statsFake) Stats(context.Context) (map[string]int, error) { return f, nil }

func TestUploadEventRecordsLagAndKind(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &metricsFake{}
	h := newEventHandlers(m, func() time.Time { return now })

	err := h.uploadEvent(context.Background(), domain.UploadEvent{
		Kind:      domain.UploadFailed,
		Code:      "CONNECTION_TIMEOUT",
		Timestamp: now.Add(-2 * time.Second),
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if m.started != 1 || len(m.finished) != 1 || m.finished[0] != string(domain.UploadFailed) {
		t.Fatalf("unexpected event metrics: %+v", m)
	}
	if len(m.lags) != 1 || m.lags[0] != 2*time.Second {
		t.Fatalf("expected 2s lag, got %v", m.lags)
	}
}

func TestUploadEventWithoutTimestampSkipsLag(t *testing.T) {
	m := &metricsFake{}
	h := newEventHandlers(m, time.Now)
	if err := h.uploadEvent(context.Background(), domain.UploadEvent{Kind: domain.UploadCompleted}); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(m.lags) != 0 {
		t.Fatalf("expected no lag sample, got %v", m.lags)
	}
}

func TestToggleEventIsCounted(t *testing.T) {
	m := &metricsFake{}
	h := newEventHandlers(m, time.Now)
	if err := h.toggle(context.Background(), domain.ToggleEvent{Feature: "use_smart_router", Enabled: true}); err != nil {
		t.Fatalf("handle toggle: %v", err)
	}
	if !m.toggles["use_smart_router"] {
		t.Fatalf("expected toggle to be recorded, got %v", m.toggles)
	}
}

func TestOfflineSyncerTickRecordsReportAndPending(t *testing.T) {
	m := &metricsFake{}
	s := &offlineSyncer{
		sync:    syncFake{report: usecase.SyncReport{Synced: 3, Failed: 1}},
		stats:   statsFake{"pending": 4},
		metrics: m,
	}
	s.tick(context.Background())
	if m.synced != 3 || m.failed != 1 || m.skipped {
		t.Fatalf("unexpected sync metrics: %+v", m)
	}
	if m.pending != 4 {
		t.Fatalf("expected 4 pending, got %d", m.pending)
	}
}

func TestOfflineSyncerTickSurvivesSyncError(t *testing.T) {
	m := &metricsFake{}
	s := &offlineSyncer{
		sync:    syncFake{err: errors.New("disk full")},
		stats:   statsFake{"pending": 2},
		metrics: m,
	}
	s.tick(context.Background())
	if m.synced != 0 || m.pending != 2 {
		t.Fatalf("expected only pending gauge update, got %+v", m)
	}
}
