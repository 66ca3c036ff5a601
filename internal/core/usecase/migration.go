package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

const (
	migrationBytesPerSecond = 2 << 20
	bulkMigrationThreshold  = 10
	migrationListLimit      = 1000
)

type PathMapping struct {
	AssetID string `json:"assetId"`
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type MigrationPlan struct {
	OrganizationID       string        `json:"organizationId"`
	CampaignID           string        `json:"campaignId"`
	AffectedAssets       int           `json:"affectedAssets"`
	PathMappings         []PathMapping `json:"pathMappings"`
	EstimatedTime        int           `json:"estimatedTime"`
	RequiresConfirmation bool          `json:"requiresConfirmation"`
}

type MigrationResult struct {
	Success        bool     `json:"success"`
	MigratedAssets int      `json:"migratedAssets"`
	FailedAssets   int      `json:"failedAssets"`
	NewPaths       []string `json:"newPaths"`
	Errors         []string `json:"errors,omitempty"`
}

// MigrationUseCase moves campaign assets from the unorganized layout into
// the project layout.
type MigrationUseCase struct {
	resolver   *pathcontext.Resolver
	gate       FeatureGate
	supervisor *recovery.Supervisor
	storage    ports.StorageBackend
	assets     ports.AssetStore
	now        func() time.Time
}

func NewMigrationUseCase(
	resolver *pathcontext.Resolver,
	gate FeatureGate,
	supervisor *recovery.Supervisor,
	storage ports.StorageBackend,
	assets ports.AssetStore,
) *MigrationUseCase {
	return &MigrationUseCase{
		resolver:   resolver,
		gate:       gate,
		supervisor: supervisor,
		storage:    storage,
		assets:     assets,
		now:        time.Now,
	}
}

func (uc *MigrationUseCase) Analyze(ctx context.Context, organizationID, campaignID string) (pathcontext.CampaignStorage, error) {
	assets, err := uc.campaignAssets(ctx, organizationID, campaignID)
	if err != nil {
		return pathcontext.CampaignStorage{}, err
	}
	analysis := pathcontext.AnalyzeCampaignStorage(assets)
	analysis.CampaignID = campaignID
	return analysis, nil
}

// Plan maps every unorganized asset of the campaign to its path under the
// selected project. Nothing is moved.
func (uc *MigrationUseCase) Plan(ctx context.Context, in pathcontext.Input) (MigrationPlan, error) {
	if strings.TrimSpace(in.SelectedProjectID) == "" {
		return MigrationPlan{}, domain.WrapError(domain.ErrInvalidInput, "plan migration", errors.New("selectedProjectId is required"))
	}
	assets, err := uc.campaignAssets(ctx, in.OrganizationID, in.CampaignID)
	if err != nil {
		return MigrationPlan{}, err
	}

	plan := MigrationPlan{
		OrganizationID: in.OrganizationID,
		CampaignID:     in.CampaignID,
		PathMappings:   []PathMapping{},
	}
	var seconds float64
	for _, asset := range assets {
		if isOrganized(asset) {
			continue
		}
		assetIn := in
		assetIn.MigrationMode = true
		if asset.UploadType != "" {
			assetIn.UploadType = string(asset.UploadType)
		}
		uploadCtx, cfg, err := uc.resolver.BuildCampaignContext(assetIn)
		if err != nil {
			return MigrationPlan{}, err
		}
		if !uploadCtx.IsHybridStorage {
			continue
		}
		plan.PathMappings = append(plan.PathMappings, PathMapping{
			AssetID: asset.ID,
			OldPath: asset.StoragePath,
			NewPath: cfg.FullPath() + "/" + path.Base(asset.StoragePath),
		})
		seconds += float64(asset.Size)/migrationBytesPerSecond + 1
	}
	plan.AffectedAssets = len(plan.PathMappings)
	plan.EstimatedTime = int(seconds + 0.5)
	if plan.AffectedAssets > 0 && plan.EstimatedTime == 0 {
		plan.EstimatedTime = 1
	}
	plan.RequiresConfirmation = plan.AffectedAssets > 0
	return plan, nil
}

// Execute copies every planned asset to its new path and updates the
// metadata record. Failures of single assets do not stop the run.
func (uc *MigrationUseCase) Execute(ctx context.Context, in pathcontext.Input, fc domain.FeatureFlagContext) (MigrationResult, error) {
	if fc.OrganizationID == "" {
		fc.OrganizationID = in.OrganizationID
	}
	if fc.UserID == "" {
		fc.UserID = in.UserID
	}
	if !uc.gate.IsFeatureEnabled(ctx, flags.FlagMigrationMode, fc) {
		return MigrationResult{}, domain.WrapError(domain.ErrUnauthorized, "execute migration", errors.New("migration mode is not enabled"))
	}

	plan, err := uc.Plan(ctx, in)
	if err != nil {
		return MigrationResult{}, err
	}
	if plan.AffectedAssets > bulkMigrationThreshold && !uc.gate.IsFeatureEnabled(ctx, flags.FlagBulkMigration, fc) {
		return MigrationResult{}, domain.WrapError(domain.ErrUnauthorized, "execute migration",
			fmt.Errorf("%d assets require bulk migration", plan.AffectedAssets))
	}

	result := MigrationResult{NewPaths: []string{}}
	for _, mapping := range plan.PathMappings {
		if err := uc.migrateAsset(ctx, in, mapping, fc); err != nil {
			result.FailedAssets++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", mapping.AssetID, recovery.Classify(err).Key()))
			slog.Warn("asset_migration_failed", "asset_id", mapping.AssetID, "error", err)
			continue
		}
		result.MigratedAssets++
		result.NewPaths = append(result.NewPaths, mapping.NewPath)
	}
	result.Success = result.FailedAssets == 0
	slog.Info("campaign_migrated",
		"organization_id", in.OrganizationID,
		"campaign_id", in.CampaignID,
		"migrated", result.MigratedAssets,
		"failed", result.FailedAssets,
	)
	return result, nil
}

func (uc *MigrationUseCase) migrateAsset(ctx context.Context, in pathcontext.Input, mapping PathMapping, fc domain.FeatureFlagContext) error {
	asset, err := uc.assets.GetByID(ctx, in.OrganizationID, mapping.AssetID)
	if err != nil {
		return err
	}

	exec := uc.supervisor.ExecuteWithRecovery(ctx, "storage.migrate", func(ctx context.Context, _ recovery.Attempt) error {
		src, err := uc.storage.Open(ctx, mapping.OldPath)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = uc.storage.Save(ctx, mapping.NewPath, src)
		return err
	}, recovery.HandleOptions{FlagContext: &fc})
	if !exec.Success {
		return exec.Err
	}

	asset.StoragePath = mapping.NewPath
	asset.StorageType = domain.StorageOrganized
	asset.ProjectID = in.SelectedProjectID
	asset.Status = domain.AssetMigrated
	asset.Tags = migratedTags(asset.Tags, in.SelectedProjectID)
	asset.UpdatedAt = uc.now().UTC()
	return uc.assets.UpdateLocation(ctx, asset)
}

func (uc *MigrationUseCase) campaignAssets(ctx context.Context, organizationID, campaignID string) ([]domain.Asset, error) {
	if strings.TrimSpace(organizationID) == "" || strings.TrimSpace(campaignID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list campaign assets", errors.New("organizationId and campaignId are required"))
	}
	assets, err := uc.assets.List(ctx, domain.AssetFilter{
		OrganizationID: organizationID,
		Tags:           []string{"campaign:" + campaignID},
		Limit:          migrationListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list campaign assets: %w", err)
	}
	return assets, nil
}

func isOrganized(asset domain.Asset) bool {
	for _, tag := range asset.Tags {
		if tag == "storage:"+string(domain.StorageOrganized) {
			return true
		}
	}
	return asset.StorageType == domain.StorageOrganized
}

func migratedTags(tags []string, projectID string) []string {
	out := make([]string, 0, len(tags)+1)
	for _, tag := range tags {
		if tag == "storage:"+string(domain.StorageUnorganized) || strings.HasPrefix(tag, "project:") {
			continue
		}
		out = append(out, tag)
	}
	out = append(out, "storage:"+string(domain.StorageOrganized))
	if projectID != "" {
		out = append(out, "project:"+projectID)
	}
	return out
}
