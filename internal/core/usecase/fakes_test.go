package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

var fixedNow = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

type gateFake struct {
	disabled map[string]bool
}

func (g gateFake) IsFeatureEnabled(_ context.Context, feature string, _ domain.FeatureFlagContext) bool {
	return !g.disabled[feature]
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string]string
	saves   []string
	errs    []error
	regions []string
}

func newStorageFake(errs ...error) *storageFake {
	return &storageFake{objects: map[string]string{}, errs: errs}
}

func (f *storageFake) Save(_ context.Context, path string, data io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, path)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.objects[path] = string(raw)
	return "mem://" + path, nil
}

func (f *storageFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[path]
	if !ok {
		return nil, domain.WrapError(domain.ErrAssetNotFound, "open", errors.New(path))
	}
	return io.NopCloser(bytes.NewBufferString(body)), nil
}

type regionalStorageFake struct {
	*storageFake
}

func (f regionalStorageFake) SaveToRegion(ctx context.Context, region, path string, data io.Reader) (string, error) {
	f.mu.Lock()
	f.regions = append(f.regions, region)
	f.mu.Unlock()
	return f.storageFake.Save(ctx, path, data)
}

type assetStoreFake struct {
	mu     sync.Mutex
	assets map[string]domain.Asset
	err    error
}

func newAssetStoreFake(assets ...domain.Asset) *assetStoreFake {
	f := &assetStoreFake{assets: map[string]domain.Asset{}}
	for _, a := range assets {
		f.assets[a.ID] = a
	}
	return f
}

func (f *assetStoreFake) Create(_ context.Context, asset *domain.Asset) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[asset.ID] = *asset
	return nil
}

func (f *assetStoreFake) GetByID(_ context.Context, organizationID, id string) (*domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || a.OrganizationID != organizationID {
		return nil, domain.WrapError(domain.ErrAssetNotFound, "get asset", errors.New(id))
	}
	return &a, nil
}

func (f *assetStoreFake) List(_ context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Asset
	for _, a := range f.assets {
		if a.OrganizationID != filter.OrganizationID || !hasTags(a.Tags, filter.Tags) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *assetStoreFake) UpdateLocation(_ context.Context, asset *domain.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[asset.ID] = *asset
	return nil
}

func hasTags(tags, want []string) bool {
	joined := "|" + strings.Join(tags, "|") + "|"
	for _, w := range want {
		if !strings.Contains(joined, "|"+w+"|") {
			return false
		}
	}
	return true
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.UploadEvent
}

func (f *publisherFake) PublishUploadEvent(_ context.Context, event domain.UploadEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type offlineQueueFake struct {
	items   []domain.OfflineUpload
	synced  []string
	failed  map[string]string
	lockErr error
	locked  bool
}

func (f *offlineQueueFake) Enqueue(_ context.Context, upload domain.OfflineUpload) error {
	f.items = append(f.items, upload)
	return nil
}

func (f *offlineQueueFake) Pending(_ context.Context, limit int) ([]domain.OfflineUpload, error) {
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *offlineQueueFake) MarkSynced(_ context.Context, id string) error {
	f.synced = append(f.synced, id)
	return nil
}

func (f *offlineQueueFake) MarkFailed(_ context.Context, id, reason string) error {
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[id] = reason
	return nil
}

func (f *offlineQueueFake) Lock(context.Context) (func() error, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	f.locked = true
	return func() error {
		f.locked = false
		return nil
	}, nil
}

func newTestResolver() *pathcontext.Resolver {
	return pathcontext.NewResolver(pathcontext.WithClock(func() time.Time { return fixedNow }))
}

func newTestSupervisor() (*recovery.Supervisor, *resilience.ManualClock) {
	clock := resilience.NewManualClock(fixedNow)
	return recovery.NewSupervisor(recovery.DefaultConfig(), recovery.WithClock(clock)), clock
}
