package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
	"github.com/kirillkom/media-upload-router/internal/core/recommend"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
	"github.com/kirillkom/media-upload-router/internal/core/usecase"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
	"github.com/kirillkom/media-upload-router/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxJSONBodySize = 4 << 20
)

type contextResolver interface {
	BuildCampaignContext(in pathcontext.Input) (domain.UploadContext, domain.StorageConfig, error)
	ValidateContext(ctx domain.UploadContext) pathcontext.ValidationResult
	ResolveStoragePath(ctx domain.UploadContext, filename string) string
}

type folderRecommender interface {
	Build(in recommend.Input) (recommend.Result, error)
}

type flagEvaluator interface {
	Evaluate(ctx context.Context, feature string, fc domain.FeatureFlagContext) flags.Decision
	EvaluateAll(ctx context.Context, fc domain.FeatureFlagContext) map[string]flags.Decision
	GetFeatureFlags(ctx context.Context, fc domain.FeatureFlagContext) map[string]bool
	CanEnableFeature(ctx context.Context, feature string, fc domain.FeatureFlagContext) flags.CanEnableResult
	InvalidateCache(userID, organizationID string)
	InvalidateAll()
	Groups() map[string][]string
}

type recoverySupervisor interface {
	HandleError(ctx context.Context, err error, opts recovery.HandleOptions) domain.RecoveryDecision
	Summarize(ctx context.Context, outcomes []recovery.BatchOutcome, opts recovery.HandleOptions) recovery.BatchResult
	Analytics() *recovery.Analytics
	BreakerSnapshots() []resilience.BreakerSnapshot
}

type dependencyBreakers interface {
	Snapshots() []resilience.BreakerSnapshot
}

type uploader interface {
	Upload(ctx context.Context, req usecase.UploadRequest) (*usecase.UploadResult, error)
}

type migrator interface {
	Analyze(ctx context.Context, organizationID, campaignID string) (pathcontext.CampaignStorage, error)
	Plan(ctx context.Context, in pathcontext.Input) (usecase.MigrationPlan, error)
	Execute(ctx context.Context, in pathcontext.Input, fc domain.FeatureFlagContext) (usecase.MigrationResult, error)
}

type assetLister interface {
	List(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error)
}

type memberRoles interface {
	GetMemberRole(ctx context.Context, organizationID, userID string) (string, error)
}

// Dependencies are the services exposed over HTTP. Optional ones may be nil;
// their endpoints then answer 501.
type Dependencies struct {
	Resolver    contextResolver
	Recommender folderRecommender
	Flags       flagEvaluator
	Recovery    recoverySupervisor
	Breakers    dependencyBreakers
	Uploads     uploader
	Migrations  migrator
	Assets      assetLister
	Members     memberRoles
	Presigner   ports.UploadPresigner
	Exporter    ports.AnalyticsExporter
	Metrics     *metrics.HTTPServerMetrics
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("/metrics", rt.deps.Metrics.Handler())
	}

	mux.HandleFunc("/v1/context", rt.buildContext)
	mux.HandleFunc("/v1/context/path", rt.resolvePath)
	mux.HandleFunc("/v1/recommendations", rt.recommendFolders)

	mux.HandleFunc("/v1/flags", rt.listFlags)
	mux.HandleFunc("/v1/flags/evaluate", rt.evaluateFlags)
	mux.HandleFunc("/v1/flags/can-enable", rt.canEnableFlag)
	mux.HandleFunc("/v1/flags/cache/invalidate", rt.invalidateFlagCache)

	mux.HandleFunc("/v1/errors/handle", rt.handleUploadError)
	mux.HandleFunc("/v1/errors/batch-summary", rt.summarizeBatch)
	mux.HandleFunc("/v1/analytics/errors", rt.errorAnalytics)
	mux.HandleFunc("/v1/analytics/errors/export", rt.exportErrorAnalytics)
	mux.HandleFunc("/v1/breakers", rt.breakers)

	mux.HandleFunc("/v1/uploads", rt.upload)
	mux.HandleFunc("/v1/uploads/presign", rt.presignUpload)
	mux.HandleFunc("/v1/assets", rt.listAssets)

	mux.HandleFunc("/v1/migrations/recommendations", rt.migrationRecommendations)
	mux.HandleFunc("/v1/migrations/plan", rt.planMigration)
	mux.HandleFunc("/v1/migrations/execute", rt.executeMigration)
	mux.HandleFunc("/v1/campaigns/storage", rt.campaignStorage)

	var handler http.Handler = mux
	if validator, err := newRequestValidator(); err != nil {
		slog.Error("openapi_validator_disabled", "error", err)
	} else {
		handler = validator.middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = panicMiddleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// flagContext fills the organization role from the tenant provider when the
// caller did not send one.
func (rt *Router) flagContext(ctx context.Context, fc domain.FeatureFlagContext) domain.FeatureFlagContext {
	if fc.OrganizationRole != "" || rt.deps.Members == nil || fc.OrganizationID == "" || fc.UserID == "" {
		return fc
	}
	role, err := rt.deps.Members.GetMemberRole(ctx, fc.OrganizationID, fc.UserID)
	if err != nil {
		slog.Warn("member_role_lookup_failed", "organization_id", fc.OrganizationID, "user_id", fc.UserID, "error", err)
		return fc
	}
	fc.OrganizationRole = role
	return fc
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is required"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func notConfigured(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": what + " is not configured"})
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request_failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
