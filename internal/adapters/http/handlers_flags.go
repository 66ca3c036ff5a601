package httpadapter

import (
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

func (rt *Router) listFlags(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.deps.Flags == nil {
		notConfigured(w, "feature flags")
		return
	}

	query := r.URL.Query()
	var fc domain.FeatureFlagContext
	var environment string
	bindings := []struct {
		name string
		dest any
	}{
		{"organizationId", &fc.OrganizationID},
		{"userId", &fc.UserID},
		{"environment", &environment},
		{"userRole", &fc.UserRole},
		{"betaUser", &fc.BetaUser},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	fc.Environment = domain.Environment(strings.ToLower(environment))

	fc = rt.flagContext(r.Context(), fc)
	writeJSON(w, http.StatusOK, map[string]any{
		"flags":  rt.deps.Flags.GetFeatureFlags(r.Context(), fc),
		"groups": rt.deps.Flags.Groups(),
	})
}

func (rt *Router) evaluateFlags(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Flags == nil {
		notConfigured(w, "feature flags")
		return
	}

	var req struct {
		Feature string                    `json:"feature"`
		Context domain.FeatureFlagContext `json:"context"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	fc := rt.flagContext(r.Context(), req.Context)

	if strings.TrimSpace(req.Feature) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"decisions": rt.deps.Flags.EvaluateAll(r.Context(), fc)})
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.Flags.Evaluate(r.Context(), req.Feature, fc))
}

func (rt *Router) canEnableFlag(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Flags == nil {
		notConfigured(w, "feature flags")
		return
	}

	var req struct {
		Feature string                    `json:"feature"`
		Context domain.FeatureFlagContext `json:"context"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Feature) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feature is required"})
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.Flags.CanEnableFeature(r.Context(), req.Feature, rt.flagContext(r.Context(), req.Context)))
}

func (rt *Router) invalidateFlagCache(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Flags == nil {
		notConfigured(w, "feature flags")
		return
	}

	var req struct {
		UserID         string `json:"userId"`
		OrganizationID string `json:"organizationId"`
		All            bool   `json:"all"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case req.All:
		rt.deps.Flags.InvalidateAll()
	case req.UserID != "" || req.OrganizationID != "":
		rt.deps.Flags.InvalidateCache(req.UserID, req.OrganizationID)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId, organizationId or all is required"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
