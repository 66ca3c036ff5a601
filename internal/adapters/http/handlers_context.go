package httpadapter

import (
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/recommend"
)

type contextResponse struct {
	Context       domain.UploadContext         `json:"context"`
	StorageConfig domain.StorageConfig         `json:"storageConfig"`
	Validation    pathcontext.ValidationResult `json:"validation"`
}

func (rt *Router) buildContext(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Resolver == nil {
		notConfigured(w, "context resolver")
		return
	}

	var in pathcontext.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	uploadCtx, cfg, err := rt.deps.Resolver.BuildCampaignContext(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contextResponse{
		Context:       uploadCtx,
		StorageConfig: cfg,
		Validation:    rt.deps.Resolver.ValidateContext(uploadCtx),
	})
}

func (rt *Router) resolvePath(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Resolver == nil {
		notConfigured(w, "context resolver")
		return
	}

	var req struct {
		Context  pathcontext.Input `json:"context"`
		FileName string            `json:"fileName"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	uploadCtx, cfg, err := rt.deps.Resolver.BuildCampaignContext(req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	validation := rt.deps.Resolver.ValidateContext(uploadCtx)
	if validation.SecurityViolation {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": strings.Join(validation.Errors, "; ")})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":          rt.deps.Resolver.ResolveStoragePath(uploadCtx, req.FileName),
		"fileName":      pathcontext.SanitizeFileName(req.FileName),
		"storageConfig": cfg,
		"validation":    validation,
	})
}

func (rt *Router) recommendFolders(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Recommender == nil {
		notConfigured(w, "recommendation engine")
		return
	}

	var in recommend.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	result, err := rt.deps.Recommender.Build(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) migrationRecommendations(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var analysis pathcontext.StorageAnalysis
	if !decodeJSON(w, r, &analysis) {
		return
	}
	writeJSON(w, http.StatusOK, pathcontext.GenerateMigrationRecommendations(analysis))
}

func (rt *Router) planMigration(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Migrations == nil {
		notConfigured(w, "migrations")
		return
	}

	var in pathcontext.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	plan, err := rt.deps.Migrations.Plan(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (rt *Router) executeMigration(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Migrations == nil {
		notConfigured(w, "migrations")
		return
	}

	var req struct {
		Context     pathcontext.Input         `json:"context"`
		FlagContext domain.FeatureFlagContext `json:"flagContext"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	fc := req.FlagContext
	if fc.OrganizationID == "" {
		fc.OrganizationID = req.Context.OrganizationID
	}
	if fc.UserID == "" {
		fc.UserID = req.Context.UserID
	}

	result, err := rt.deps.Migrations.Execute(r.Context(), req.Context, rt.flagContext(r.Context(), fc))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

func (rt *Router) campaignStorage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.deps.Migrations == nil {
		notConfigured(w, "migrations")
		return
	}

	query := r.URL.Query()
	var organizationID string
	var campaignIDs []string
	if err := runtime.BindQueryParameter("form", true, true, "organizationId", query, &organizationID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "campaignId", query, &campaignIDs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	campaigns := make([]pathcontext.CampaignStorage, 0, len(campaignIDs))
	for _, campaignID := range campaignIDs {
		analysis, err := rt.deps.Migrations.Analyze(r.Context(), organizationID, campaignID)
		if err != nil {
			writeError(w, err)
			return
		}
		campaigns = append(campaigns, analysis)
	}

	var total pathcontext.StorageAnalysis
	for _, c := range campaigns {
		total.TotalAssets += c.TotalAssets
		total.OrganizedAssets += c.OrganizedAssets
		total.UnorganizedAssets += c.UnorganizedAssets
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns":      campaigns,
		"migration":      pathcontext.GenerateMigrationRecommendations(total),
		"optimization":   pathcontext.AnalyzeStorageOptimization(organizationID, campaigns),
		"organizationId": organizationID,
	})
}
