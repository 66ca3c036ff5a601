package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

const (
	UploadMethodSmart  = "smart"
	UploadMethodLegacy = "legacy"

	storageSaveResource = "storage.save"
	defaultMaxUpload    = 100 << 20
)

// FeatureGate is the flag evaluator as seen by the use cases.
type FeatureGate interface {
	IsFeatureEnabled(ctx context.Context, feature string, fc domain.FeatureFlagContext) bool
}

type UploadRequest struct {
	Context     pathcontext.Input
	FlagContext domain.FeatureFlagContext
	FileName    string
	MimeType    string
	Body        io.Reader
}

type UploadResult struct {
	Asset         *domain.Asset            `json:"asset,omitempty"`
	UploadMethod  string                   `json:"uploadMethod"`
	Context       *domain.UploadContext    `json:"context,omitempty"`
	StorageConfig *domain.StorageConfig    `json:"storageConfig,omitempty"`
	Payload       *domain.PayloadInfo      `json:"payload,omitempty"`
	Attempts      int                      `json:"attempts"`
	Recovery      *domain.RecoveryDecision `json:"recovery,omitempty"`
	Warnings      []string                 `json:"warnings"`
}

type UploadOption func(*UploadUseCase)

func WithPayloadInspector(inspector ports.PayloadInspector) UploadOption {
	return func(uc *UploadUseCase) {
		uc.inspector = inspector
	}
}

func WithOfflineQueue(queue ports.OfflineQueue) UploadOption {
	return func(uc *UploadUseCase) {
		uc.offline = queue
	}
}

func WithEventPublisher(publisher ports.EventPublisher) UploadOption {
	return func(uc *UploadUseCase) {
		uc.events = publisher
	}
}

func WithMaxUploadBytes(limit int64) UploadOption {
	return func(uc *UploadUseCase) {
		if limit > 0 {
			uc.maxBytes = limit
		}
	}
}

func WithUploadClock(now func() time.Time) UploadOption {
	return func(uc *UploadUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

type UploadUseCase struct {
	resolver   *pathcontext.Resolver
	gate       FeatureGate
	supervisor *recovery.Supervisor
	storage    ports.StorageBackend
	assets     ports.AssetStore

	inspector ports.PayloadInspector
	offline   ports.OfflineQueue
	events    ports.EventPublisher
	maxBytes  int64
	now       func() time.Time
}

func NewUploadUseCase(
	resolver *pathcontext.Resolver,
	gate FeatureGate,
	supervisor *recovery.Supervisor,
	storage ports.StorageBackend,
	assets ports.AssetStore,
	opts ...UploadOption,
) *UploadUseCase {
	uc := &UploadUseCase{
		resolver:   resolver,
		gate:       gate,
		supervisor: supervisor,
		storage:    storage,
		assets:     assets,
		maxBytes:   defaultMaxUpload,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Upload routes, stores and records a single file. Failures after the
// request was accepted return a result carrying the recovery decision
// together with the classified error.
func (uc *UploadUseCase) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	fc := req.FlagContext
	if fc.OrganizationID == "" {
		fc.OrganizationID = req.Context.OrganizationID
	}
	if fc.UserID == "" {
		fc.UserID = req.Context.UserID
	}

	result := &UploadResult{UploadMethod: UploadMethodSmart, Warnings: []string{}}
	uploadCtx, storagePath, err := uc.route(ctx, req, fc, result)
	if err != nil {
		return nil, err
	}

	data, err := readLimited(req.Body, uc.maxBytes)
	if err != nil {
		if ue, ok := asUploadError(err); ok {
			ue.Details = domain.ValidationDetails{FileName: req.FileName, MaxSize: uc.maxBytes, FileSize: int64(len(data))}
			return uc.fail(ctx, result, uploadCtx, req, storagePath, ue, fc)
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload body", err)
	}

	info := domain.PayloadInfo{Size: int64(len(data)), MimeType: req.MimeType}
	if uc.inspector != nil {
		info, err = uc.inspector.Inspect(ctx, req.FileName, data)
		if err != nil {
			return uc.fail(ctx, result, uploadCtx, req, storagePath, err, fc)
		}
	}
	result.Payload = &info
	mimeType := req.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = info.MimeType
	}

	var reference string
	exec := uc.supervisor.ExecuteWithRecovery(ctx, storageSaveResource, func(ctx context.Context, attempt recovery.Attempt) error {
		ref, saveErr := uc.save(ctx, attempt, storagePath, data)
		if saveErr == nil {
			reference = ref
		}
		return saveErr
	}, recovery.HandleOptions{FlagContext: &fc})
	result.Attempts = exec.Attempts

	asset := &domain.Asset{
		ID:             uuid.NewString(),
		OrganizationID: uploadCtx.OrganizationID,
		UserID:         uploadCtx.UserID,
		CampaignID:     uploadCtx.CampaignID,
		ProjectID:      uploadCtx.SelectedProjectID,
		ClientID:       uploadCtx.ClientID,
		FileName:       req.FileName,
		MimeType:       mimeType,
		Size:           info.Size,
		StoragePath:    storagePath,
		StorageType:    storageTypeOf(uploadCtx),
		UploadType:     uploadCtx.UploadType,
		Tags:           append([]string{}, uploadCtx.AutoTags...),
		Status:         domain.AssetStored,
		CreatedAt:      uc.now().UTC(),
	}
	asset.UpdatedAt = asset.CreatedAt

	if !exec.Success {
		result.Recovery = exec.Decision
		if uc.offline != nil && shouldQueueOffline(exec) {
			return uc.queueOffline(ctx, result, asset, data, exec)
		}
		return uc.fail(ctx, result, uploadCtx, req, storagePath, exec.Err, fc)
	}

	if reference != "" && reference != storagePath {
		slog.Debug("storage_reference", "asset_id", asset.ID, "reference", reference)
	}
	if err := uc.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset metadata: %w", err)
	}
	result.Asset = asset
	uc.publish(ctx, domain.UploadEvent{
		Kind:           domain.UploadCompleted,
		AssetID:        asset.ID,
		OrganizationID: asset.OrganizationID,
		UserID:         asset.UserID,
		CampaignID:     asset.CampaignID,
		FileName:       asset.FileName,
		StoragePath:    asset.StoragePath,
		Status:         asset.Status,
		Attempts:       exec.Attempts,
		Timestamp:      asset.CreatedAt,
	})
	return result, nil
}

func (uc *UploadUseCase) route(
	ctx context.Context,
	req UploadRequest,
	fc domain.FeatureFlagContext,
	result *UploadResult,
) (domain.UploadContext, string, error) {
	if !uc.gate.IsFeatureEnabled(ctx, flags.FlagUseSmartRouter, fc) {
		orgID := strings.TrimSpace(req.Context.OrganizationID)
		if orgID == "" {
			return domain.UploadContext{}, "", domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("organizationId is required"))
		}
		result.UploadMethod = UploadMethodLegacy
		uploadCtx := domain.UploadContext{
			OrganizationID: orgID,
			UserID:         strings.TrimSpace(req.Context.UserID),
			CampaignID:     strings.TrimSpace(req.Context.CampaignID),
			AutoTags:       []string{"org:" + orgID, "storage:" + string(domain.StorageUnorganized)},
		}
		return uploadCtx, uc.resolver.LegacyPath(orgID, req.FileName), nil
	}

	in := req.Context
	if in.SelectedProjectID != "" && !uc.gate.IsFeatureEnabled(ctx, flags.FlagHybridStorage, fc) {
		in.SelectedProjectID, in.SelectedProjectName, in.MigrationMode = "", "", false
		result.Warnings = append(result.Warnings, "hybrid storage is disabled, the campaign folder is used")
	}

	uploadCtx, cfg, err := uc.resolver.BuildCampaignContext(in)
	if err != nil {
		return domain.UploadContext{}, "", err
	}
	validation := uc.resolver.ValidateContext(uploadCtx)
	if !validation.IsValid {
		kind := domain.ErrInvalidInput
		if validation.SecurityViolation {
			kind = domain.ErrCrossTenantAccess
		}
		return domain.UploadContext{}, "", domain.WrapError(kind, "validate upload context", errors.New(strings.Join(validation.Errors, "; ")))
	}
	result.Warnings = append(result.Warnings, validation.Warnings...)
	result.Context = &uploadCtx
	result.StorageConfig = &cfg
	return uploadCtx, uc.resolver.ResolveStoragePath(uploadCtx, req.FileName), nil
}

func (uc *UploadUseCase) save(ctx context.Context, attempt recovery.Attempt, path string, data []byte) (string, error) {
	if prev := attempt.Previous; prev != nil && prev.FallbackRegion != "" {
		if regional, ok := uc.storage.(ports.RegionalStorageBackend); ok {
			return regional.SaveToRegion(ctx, prev.FallbackRegion, path, bytes.NewReader(data))
		}
	}
	return uc.storage.Save(ctx, path, bytes.NewReader(data))
}

func (uc *UploadUseCase) queueOffline(
	ctx context.Context,
	result *UploadResult,
	asset *domain.Asset,
	data []byte,
	exec recovery.ExecutionResult,
) (*UploadResult, error) {
	asset.Status = domain.AssetQueuedOffline
	item := domain.OfflineUpload{
		ID:             uuid.NewString(),
		AssetID:        asset.ID,
		OrganizationID: asset.OrganizationID,
		StoragePath:    asset.StoragePath,
		FileName:       asset.FileName,
		MimeType:       asset.MimeType,
		Payload:        data,
		CreatedAt:      asset.CreatedAt,
	}
	if err := uc.offline.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue offline upload: %w", err)
	}
	if err := uc.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset metadata: %w", err)
	}
	slog.Warn("upload_queued_offline", "asset_id", asset.ID, "organization_id", asset.OrganizationID, "attempts", exec.Attempts)

	result.Asset = asset
	event := domain.UploadEvent{
		Kind:           domain.UploadFailed,
		AssetID:        asset.ID,
		OrganizationID: asset.OrganizationID,
		UserID:         asset.UserID,
		CampaignID:     asset.CampaignID,
		FileName:       asset.FileName,
		StoragePath:    asset.StoragePath,
		Status:         asset.Status,
		Attempts:       exec.Attempts,
		Timestamp:      uc.now().UTC(),
	}
	if exec.Decision != nil {
		event.Category, event.Code, event.Strategy = exec.Decision.Category, exec.Decision.Code, exec.Decision.Strategy
	}
	uc.publish(ctx, event)
	return result, nil
}

func (uc *UploadUseCase) fail(
	ctx context.Context,
	result *UploadResult,
	uploadCtx domain.UploadContext,
	req UploadRequest,
	storagePath string,
	cause error,
	fc domain.FeatureFlagContext,
) (*UploadResult, error) {
	ue := recovery.Classify(cause)
	if result.Recovery == nil {
		decision := uc.supervisor.HandleError(ctx, ue, recovery.HandleOptions{FlagContext: &fc})
		result.Recovery = &decision
	}
	ue.ID = result.Recovery.ErrorID
	uc.publish(ctx, domain.UploadEvent{
		Kind:           domain.UploadFailed,
		OrganizationID: uploadCtx.OrganizationID,
		UserID:         uploadCtx.UserID,
		CampaignID:     uploadCtx.CampaignID,
		FileName:       req.FileName,
		StoragePath:    storagePath,
		Category:       result.Recovery.Category,
		Code:           result.Recovery.Code,
		Strategy:       result.Recovery.Strategy,
		Attempts:       max(result.Attempts, 1),
		Timestamp:      uc.now().UTC(),
	})
	return result, ue
}

func (uc *UploadUseCase) publish(ctx context.Context, event domain.UploadEvent) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishUploadEvent(ctx, event); err != nil {
		slog.Warn("upload_event_publish_failed", "kind", string(event.Kind), "asset_id", event.AssetID, "error", err)
	}
}

// shouldQueueOffline is true when storage is gone for good or the breaker
// kept the backend closed off for the whole retry sequence.
func shouldQueueOffline(exec recovery.ExecutionResult) bool {
	if exec.Decision != nil && exec.Decision.Strategy == domain.StrategyGracefulDegradation {
		return true
	}
	return resilience.IsCircuitOpen(exec.Err)
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, errors.New("upload body is empty")
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return data, domain.NewUploadError(recovery.CodeFileTooLarge, domain.ValidationDetails{})
	}
	return data, nil
}

func asUploadError(err error) (*domain.UploadError, bool) {
	var ue *domain.UploadError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

func storageTypeOf(ctx domain.UploadContext) domain.StorageType {
	if ctx.IsHybridStorage {
		return domain.StorageOrganized
	}
	return domain.StorageUnorganized
}
