package httpadapter

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/usecase"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
	defaultPresignTTL = 15 * time.Minute
)

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Uploads == nil {
		notConfigured(w, "uploads")
		return
	}
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds the size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	in := formInput(r)
	fc := rt.flagContext(r.Context(), domain.FeatureFlagContext{
		OrganizationID: in.OrganizationID,
		UserID:         in.UserID,
		Environment:    domain.Environment(strings.ToLower(r.FormValue("environment"))),
		UserRole:       r.FormValue("userRole"),
		BetaUser:       formBool(r.FormValue("betaUser")),
		ProjectID:      in.SelectedProjectID,
		CampaignID:     in.CampaignID,
	})

	result, err := rt.deps.Uploads.Upload(r.Context(), usecase.UploadRequest{
		Context:     in,
		FlagContext: fc,
		FileName:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Body:        file,
	})
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordUpload(serviceName, uploadMethod(result), header.Size, err)
	}
	if err != nil {
		if result == nil {
			writeError(w, err)
			return
		}
		body := map[string]any{"error": err.Error(), "result": result}
		if result.Recovery != nil {
			body["userMessage"] = result.Recovery.UserMessage
		}
		writeJSON(w, mapUploadErrorToHTTPStatus(err), body)
		return
	}

	status := http.StatusCreated
	if result.Asset != nil && result.Asset.Status == domain.AssetQueuedOffline {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func uploadMethod(result *usecase.UploadResult) string {
	if result == nil {
		return "unknown"
	}
	return result.UploadMethod
}

// formInput reads the upload context from multipart fields named like the
// JSON fields of pathcontext.Input.
func formInput(r *http.Request) pathcontext.Input {
	in := pathcontext.Input{
		OrganizationID:           r.FormValue("organizationId"),
		UserID:                   r.FormValue("userId"),
		CampaignID:               r.FormValue("campaignId"),
		CampaignName:             r.FormValue("campaignName"),
		SelectedProjectID:        r.FormValue("selectedProjectId"),
		SelectedProjectName:      r.FormValue("selectedProjectName"),
		ClientID:                 r.FormValue("clientId"),
		ProjectClientID:          r.FormValue("projectClientId"),
		PipelineStage:            r.FormValue("pipelineStage"),
		UploadType:               r.FormValue("uploadType"),
		SubType:                  r.FormValue("subType"),
		MigrationMode:            formBool(r.FormValue("migrationMode")),
		RequestingOrganizationID: r.FormValue("requestingOrganizationId"),
	}
	if r.MultipartForm != nil {
		for _, tag := range r.MultipartForm.Value["autoTags"] {
			for _, part := range strings.Split(tag, ",") {
				if part = strings.TrimSpace(part); part != "" {
					in.AutoTags = append(in.AutoTags, part)
				}
			}
		}
	}
	return in
}

func formBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func (rt *Router) presignUpload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.deps.Resolver == nil || rt.deps.Presigner == nil {
		notConfigured(w, "presigned uploads")
		return
	}

	var req struct {
		Context  pathcontext.Input `json:"context"`
		FileName string            `json:"fileName"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	uploadCtx, _, err := rt.deps.Resolver.BuildCampaignContext(req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	validation := rt.deps.Resolver.ValidateContext(uploadCtx)
	if !validation.IsValid {
		status := http.StatusBadRequest
		if validation.SecurityViolation {
			status = http.StatusForbidden
		}
		writeJSON(w, status, map[string]any{"error": strings.Join(validation.Errors, "; "), "validation": validation})
		return
	}

	ttl := rt.cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	path := rt.deps.Resolver.ResolveStoragePath(uploadCtx, req.FileName)
	url, err := rt.deps.Presigner.PresignUpload(r.Context(), path, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       url,
		"path":      path,
		"method":    http.MethodPut,
		"expiresIn": int(ttl.Seconds()),
		"autoTags":  uploadCtx.AutoTags,
	})
}

func (rt *Router) listAssets(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if rt.deps.Assets == nil {
		notConfigured(w, "asset store")
		return
	}

	query := r.URL.Query()
	var filter domain.AssetFilter
	if err := runtime.BindQueryParameter("form", true, true, "organizationId", query, &filter.OrganizationID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "tag", query, &filter.Tags); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &filter.Limit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	assets, err := rt.deps.Assets.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if assets == nil {
		assets = []domain.Asset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets, "count": len(assets)})
}
