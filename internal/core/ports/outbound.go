package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

// StorageBackend stores upload payloads under a resolved path and returns a
// backend reference for the stored object.
type StorageBackend interface {
	Save(ctx context.Context, path string, data io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// RegionalStorageBackend can target a specific replica region. The upload
// flow uses it after a region failover decision.
type RegionalStorageBackend interface {
	StorageBackend
	SaveToRegion(ctx context.Context, region, path string, data io.Reader) (string, error)
}

// UploadPresigner issues direct-upload URLs for backends that support them.
type UploadPresigner interface {
	PresignUpload(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// AssetStore is the asset metadata store, filterable by organization and tags.
type AssetStore interface {
	Create(ctx context.Context, asset *domain.Asset) error
	GetByID(ctx context.Context, organizationID, id string) (*domain.Asset, error)
	List(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error)
	UpdateLocation(ctx context.Context, asset *domain.Asset) error
}

// TenantProvider supplies organization attributes for flag evaluation and
// tenant checks.
type TenantProvider interface {
	GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error)
	GetMemberRole(ctx context.Context, organizationID, userID string) (string, error)
}

// EventPublisher announces upload outcomes.
type EventPublisher interface {
	PublishUploadEvent(ctx context.Context, event domain.UploadEvent) error
}

// ToggleRecorder receives every flag evaluation result.
type ToggleRecorder interface {
	RecordToggle(ctx context.Context, event domain.ToggleEvent) error
}

// EventSubscriber consumes events published by the API process.
type EventSubscriber interface {
	SubscribeUploadEvents(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
	SubscribeToggles(ctx context.Context, handler func(context.Context, domain.ToggleEvent) error) error
}

// WriteLockQueue orders writers waiting on a locked storage resource.
// Enqueue is idempotent per uploadID and returns a 1-based position.
type WriteLockQueue interface {
	Enqueue(ctx context.Context, resource, uploadID string) (int, error)
	Release(ctx context.Context, resource, uploadID string) error
}

// OfflineQueue parks uploads while the storage backend is unavailable.
type OfflineQueue interface {
	Enqueue(ctx context.Context, upload domain.OfflineUpload) error
	Pending(ctx context.Context, limit int) ([]domain.OfflineUpload, error)
	MarkSynced(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// Lock grants exclusive sync rights across processes. It returns
	// domain.ErrTemporary when another process holds the lock.
	Lock(ctx context.Context) (unlock func() error, err error)
}

// PayloadInspector examines a buffered upload body. Integrity problems are
// reported as *domain.UploadError.
type PayloadInspector interface {
	Inspect(ctx context.Context, fileName string, data []byte) (domain.PayloadInfo, error)
}

// AnalyticsExporter renders error analytics into a downloadable document.
type AnalyticsExporter interface {
	ExportErrorAnalytics(w io.Writer, analytics domain.ErrorAnalytics, stats domain.RecoveryStats, trends domain.ErrorTrends) error
}
