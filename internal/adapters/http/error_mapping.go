package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidUploadType):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrCrossTenantAccess):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrAssetNotFound), domain.IsKind(err, domain.ErrUnknownFeature):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mapUploadErrorToHTTPStatus picks the status for a classified upload failure.
func mapUploadErrorToHTTPStatus(err error) int {
	var ue *domain.UploadError
	if !errors.As(err, &ue) {
		return mapErrorToHTTPStatus(err)
	}
	switch ue.Category {
	case domain.CategoryValidation:
		if ue.Code == recovery.CodeFileTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case domain.CategoryPermissions:
		return http.StatusForbidden
	case domain.CategoryNetwork:
		return http.StatusGatewayTimeout
	case domain.CategorySmartRouter:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
