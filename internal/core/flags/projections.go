package flags

import (
	"context"
	"maps"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const (
	FlagUseSmartRouter         = "use_smart_router"
	FlagHybridStorage          = "hybrid_storage"
	FlagCampaignSmartRouter    = "use_campaign_smart_router"
	FlagAutoTagging            = "auto_tagging"
	FlagClientInheritance      = "client_inheritance"
	FlagSmartRouterFallback    = "smart_router_fallback"
	FlagUploadRetry            = "upload_retry"
	FlagUploadContextInfo      = "upload_context_info"
	FlagUploadProgress         = "upload_progress_enhancement"
	FlagBatchUploadOptimize    = "batch_upload_optimization"
	FlagParallelUpload         = "parallel_upload_processing"
	FlagMigrationMode          = "migration_mode"
	FlagBulkMigration          = "bulk_migration"
	FlagUploadAnalytics        = "upload_analytics"
	FlagUploadDebugging        = "upload_debugging"
	FlagPerformanceMonitoring  = "performance_monitoring"
	FlagPipelineAwareRouting   = "pipeline_aware_routing"
	FlagSmartFolderSuggestions = "smart_folder_suggestions"
)

type UploadPerformanceConfig struct {
	EnableBatching bool `json:"enableBatching"`
	EnableParallel bool `json:"enableParallel"`
	EnableRetry    bool `json:"enableRetry"`
	MaxRetries     int  `json:"maxRetries"`
	BatchSize      int  `json:"batchSize"`
}

func (e *Evaluator) UploadPerformanceConfig(ctx context.Context, fc domain.FeatureFlagContext) UploadPerformanceConfig {
	cfg := UploadPerformanceConfig{
		EnableBatching: e.Evaluate(ctx, FlagBatchUploadOptimize, fc).Enabled,
		EnableParallel: e.Evaluate(ctx, FlagParallelUpload, fc).Enabled,
		EnableRetry:    e.Evaluate(ctx, FlagUploadRetry, fc).Enabled,
		BatchSize:      1,
	}
	if cfg.EnableRetry {
		cfg.MaxRetries = 3
	}
	if cfg.EnableBatching {
		cfg.BatchSize = 5
	}
	return cfg
}

type UIConfig struct {
	ShowContextInfo   bool `json:"showContextInfo"`
	AllowMethodToggle bool `json:"allowMethodToggle"`
	ShowUploadResults bool `json:"showUploadResults"`
}

func (e *Evaluator) UIConfig(ctx context.Context, fc domain.FeatureFlagContext) UIConfig {
	fc = e.normalizeContext(fc)
	return UIConfig{
		ShowContextInfo:   e.Evaluate(ctx, FlagUploadContextInfo, fc).Enabled,
		AllowMethodToggle: fc.Environment == domain.EnvDevelopment,
		ShowUploadResults: e.Evaluate(ctx, FlagUploadProgress, fc).Enabled,
	}
}

type MigrationStatus struct {
	Active        bool `json:"isActive"`
	BulkMigration bool `json:"bulkMigration"`
}

func (e *Evaluator) MigrationMode(ctx context.Context, fc domain.FeatureFlagContext) MigrationStatus {
	return MigrationStatus{
		Active:        e.Evaluate(ctx, FlagMigrationMode, fc).Enabled,
		BulkMigration: e.Evaluate(ctx, FlagBulkMigration, fc).Enabled,
	}
}

func (e *Evaluator) IsHybridStorageEnabled(ctx context.Context, fc domain.FeatureFlagContext) bool {
	return e.Evaluate(ctx, FlagHybridStorage, fc).Enabled
}

func (e *Evaluator) IsCampaignSmartRouterEnabled(ctx context.Context, fc domain.FeatureFlagContext) bool {
	return e.Evaluate(ctx, FlagCampaignSmartRouter, fc).Enabled
}

// FeatureConfig returns a copy of the catalog config block of a flag.
func (e *Evaluator) FeatureConfig(name string) map[string]any {
	def, ok := e.Catalog().Lookup(name)
	if !ok {
		return nil
	}
	return maps.Clone(def.Config)
}

func (e *Evaluator) Groups() map[string][]string {
	return e.Catalog().Groups()
}
