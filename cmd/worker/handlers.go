package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/usecase"
)

type eventMetrics interface {
	StartEvent()
	FinishEvent(service, kind string, duration time.Duration, err error)
	ObserveQueueLag(service string, lag time.Duration)
	RecordToggle(service, feature string, enabled bool)
}

type eventHandlers struct {
	metrics eventMetrics
	now     func() time.Time
}

func newEventHandlers(m eventMetrics, now func() time.Time) *eventHandlers {
	return &eventHandlers{metrics: m, now: now}
}

func (h *eventHandlers) uploadEvent(_ context.Context, event domain.UploadEvent) error {
	start := h.now()
	h.metrics.StartEvent()
	if !event.Timestamp.IsZero() {
		h.metrics.ObserveQueueLag(serviceName, start.Sub(event.Timestamp))
	}

	switch event.Kind {
	case domain.UploadFailed:
		slog.Warn("upload_failed_event",
			"organization_id", event.OrganizationID,
			"file_name", event.FileName,
			"category", event.Category,
			"code", event.Code,
			"strategy", event.Strategy,
			"attempts", event.Attempts,
		)
	default:
		slog.Info("upload_completed_event",
			"organization_id", event.OrganizationID,
			"asset_id", event.AssetID,
			"storage_path", event.StoragePath,
			"status", event.Status,
			"attempts", event.Attempts,
		)
	}

	h.metrics.FinishEvent(serviceName, string(event.Kind), h.now().Sub(start), nil)
	return nil
}

func (h *eventHandlers) toggle(_ context.Context, event domain.ToggleEvent) error {
	h.metrics.RecordToggle(serviceName, event.Feature, event.Enabled)
	slog.Debug("flag_toggle_event",
		"feature", event.Feature,
		"organization_id", event.OrganizationID,
		"user_id", event.UserID,
		"enabled", event.Enabled,
	)
	return nil
}

type syncRunner interface {
	SyncOnce(ctx context.Context) (usecase.SyncReport, error)
}

type queueStats interface {
	Stats(ctx context.Context) (map[string]int, error)
}

type syncMetrics interface {
	RecordSync(service string, synced, failed int, skipped bool)
	SetOfflinePending(count int)
}

type offlineSyncer struct {
	sync    syncRunner
	stats   queueStats
	metrics syncMetrics
}

func (s *offlineSyncer) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *offlineSyncer) tick(ctx context.Context) {
	report, err := s.sync.SyncOnce(ctx)
	if err != nil {
		slog.Error("offline_sync_failed", "error", err)
	} else {
		s.metrics.RecordSync(serviceName, report.Synced, report.Failed, report.Skipped)
		if report.Synced > 0 || report.Failed > 0 {
			slog.Info("offline_sync_completed", "synced", report.Synced, "failed", report.Failed)
		}
	}

	counts, err := s.stats.Stats(ctx)
	if err != nil {
		slog.Warn("offline_queue_stats_failed", "error", err)
		return
	}
	s.metrics.SetOfflinePending(counts["pending"])
}
