package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

const defaultSyncBatch = 50

type SyncReport struct {
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}

// OfflineSyncUseCase drains uploads parked during a storage outage.
type OfflineSyncUseCase struct {
	queue      ports.OfflineQueue
	storage    ports.StorageBackend
	assets     ports.AssetStore
	supervisor *recovery.Supervisor
	events     ports.EventPublisher
	batch      int
	now        func() time.Time
}

func NewOfflineSyncUseCase(
	queue ports.OfflineQueue,
	storage ports.StorageBackend,
	assets ports.AssetStore,
	supervisor *recovery.Supervisor,
	events ports.EventPublisher,
) *OfflineSyncUseCase {
	return &OfflineSyncUseCase{
		queue:      queue,
		storage:    storage,
		assets:     assets,
		supervisor: supervisor,
		events:     events,
		batch:      defaultSyncBatch,
		now:        time.Now,
	}
}

// SyncOnce uploads one batch of pending items. Another process holding the
// queue lock makes it a no-op.
func (uc *OfflineSyncUseCase) SyncOnce(ctx context.Context) (SyncReport, error) {
	unlock, err := uc.queue.Lock(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrTemporary) {
			return SyncReport{Skipped: true}, nil
		}
		return SyncReport{}, fmt.Errorf("lock offline queue: %w", err)
	}
	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			slog.Warn("offline_queue_unlock_failed", "error", unlockErr)
		}
	}()

	pending, err := uc.queue.Pending(ctx, uc.batch)
	if err != nil {
		return SyncReport{}, fmt.Errorf("load pending uploads: %w", err)
	}

	var report SyncReport
	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := uc.syncItem(ctx, item); err != nil {
			report.Failed++
			reason := recovery.Classify(err).Key()
			if markErr := uc.queue.MarkFailed(ctx, item.ID, reason); markErr != nil {
				return report, fmt.Errorf("mark offline upload failed: %w", markErr)
			}
			slog.Warn("offline_sync_failed", "upload_id", item.ID, "asset_id", item.AssetID, "reason", reason)
			continue
		}
		if err := uc.queue.MarkSynced(ctx, item.ID); err != nil {
			return report, fmt.Errorf("mark offline upload synced: %w", err)
		}
		report.Synced++
	}
	if report.Synced > 0 || report.Failed > 0 {
		slog.Info("offline_sync_completed", "synced", report.Synced, "failed", report.Failed)
	}
	return report, nil
}

func (uc *OfflineSyncUseCase) syncItem(ctx context.Context, item domain.OfflineUpload) error {
	exec := uc.supervisor.ExecuteWithRecovery(ctx, "storage.offline_sync", func(ctx context.Context, _ recovery.Attempt) error {
		_, err := uc.storage.Save(ctx, item.StoragePath, bytes.NewReader(item.Payload))
		return err
	}, recovery.HandleOptions{})
	if !exec.Success {
		if exec.Err == nil {
			return errors.New("offline sync did not complete")
		}
		return exec.Err
	}

	if item.AssetID != "" && uc.assets != nil {
		asset, err := uc.assets.GetByID(ctx, item.OrganizationID, item.AssetID)
		if err != nil {
			return err
		}
		asset.Status = domain.AssetStored
		asset.UpdatedAt = uc.now().UTC()
		if err := uc.assets.UpdateLocation(ctx, asset); err != nil {
			return err
		}
	}

	if uc.events != nil {
		event := domain.UploadEvent{
			Kind:           domain.UploadCompleted,
			AssetID:        item.AssetID,
			OrganizationID: item.OrganizationID,
			FileName:       item.FileName,
			StoragePath:    item.StoragePath,
			Status:         domain.AssetStored,
			Attempts:       item.Attempts + exec.Attempts,
			Timestamp:      uc.now().UTC(),
		}
		if err := uc.events.PublishUploadEvent(ctx, event); err != nil {
			slog.Warn("upload_event_publish_failed", "kind", string(event.Kind), "asset_id", event.AssetID, "error", err)
		}
	}
	return nil
}
