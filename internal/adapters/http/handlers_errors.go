package httpadapter

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

const defaultTrendWindow = time.Hour

func (rt *Router) handleUploadError(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Recovery == nil {
		notConfigured(w, "recovery supervisor")
		return
	}

	var req struct {
		Error   *domain.UploadError        `json:"error"`
		Context *domain.FeatureFlagContext `json:"context"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Error == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "error is required"})
		return
	}

	decision := rt.deps.Recovery.HandleError(r.Context(), req.Error, rt.handleOptions(r, req.Context))
	writeJSON(w, http.StatusOK, decision)
}

func (rt *Router) summarizeBatch(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Recovery == nil {
		notConfigured(w, "recovery supervisor")
		return
	}

	var req struct {
		Outcomes []struct {
			FileName string              `json:"fileName"`
			Error    *domain.UploadError `json:"error"`
		} `json:"outcomes"`
		Context *domain.FeatureFlagContext `json:"context"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	outcomes := make([]recovery.BatchOutcome, 0, len(req.Outcomes))
	for _, o := range req.Outcomes {
		outcome := recovery.BatchOutcome{FileName: o.FileName}
		if o.Error != nil {
			outcome.Err = o.Error
		}
		outcomes = append(outcomes, outcome)
	}
	writeJSON(w, http.StatusOK, rt.deps.Recovery.Summarize(r.Context(), outcomes, rt.handleOptions(r, req.Context)))
}

func (rt *Router) handleOptions(r *http.Request, fc *domain.FeatureFlagContext) recovery.HandleOptions {
	if fc == nil {
		return recovery.HandleOptions{}
	}
	filled := rt.flagContext(r.Context(), *fc)
	return recovery.HandleOptions{FlagContext: &filled}
}

func (rt *Router) errorAnalytics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.deps.Recovery == nil {
		notConfigured(w, "recovery supervisor")
		return
	}
	window, err := trendWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	analytics := rt.deps.Recovery.Analytics()
	writeJSON(w, http.StatusOK, map[string]any{
		"analytics":         analytics.Snapshot(),
		"recoveryStats":     analytics.Stats(),
		"trends":            analytics.Trends(window),
		"processedErrorIds": analytics.ProcessedErrorIDs(),
	})
}

func (rt *Router) exportErrorAnalytics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.deps.Recovery == nil || rt.deps.Exporter == nil {
		notConfigured(w, "analytics export")
		return
	}
	window, err := trendWindow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	analytics := rt.deps.Recovery.Analytics()
	var buf bytes.Buffer
	if err := rt.deps.Exporter.ExportErrorAnalytics(&buf, analytics.Snapshot(), analytics.Stats(), analytics.Trends(window)); err != nil {
		slog.Error("analytics_export_failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	fileName := fmt.Sprintf("error-analytics-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) breakers(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.deps.Recovery == nil {
		notConfigured(w, "recovery supervisor")
		return
	}
	body := map[string]any{"breakers": rt.deps.Recovery.BreakerSnapshots()}
	if rt.deps.Breakers != nil {
		body["dependencies"] = rt.deps.Breakers.Snapshots()
	}
	writeJSON(w, http.StatusOK, body)
}

func trendWindow(r *http.Request) (time.Duration, error) {
	var raw string
	if err := runtime.BindQueryParameter("form", true, false, "window", r.URL.Query(), &raw); err != nil {
		return 0, err
	}
	if raw == "" {
		return defaultTrendWindow, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return 0, fmt.Errorf("window must be a positive duration, got %q", raw)
	}
	return window, nil
}
