package recovery

import (
	"context"
	"errors"
	"net"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

// Classify maps an arbitrary error onto the upload error taxonomy. The
// original error text is kept in Message and never shown to users.
func Classify(err error) *domain.UploadError {
	if err == nil {
		return nil
	}

	var ue *domain.UploadError
	if errors.As(err, &ue) {
		out := *ue
		if !out.Category.Valid() && out.Details != nil {
			out.Category = out.Details.Category()
		}
		return &out
	}

	classified := classifyKnown(err)
	classified.Message = err.Error()
	return classified
}

func classifyKnown(err error) *domain.UploadError {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewUploadError(CodeConnectionTimeout, domain.NetworkDetails{})
	case errors.Is(err, context.Canceled):
		return domain.NewUploadError(CodeConnectionInterrupted, domain.NetworkDetails{})
	case errors.As(err, &dnsErr):
		return domain.NewUploadError(CodeDNSResolutionFailed, domain.NetworkDetails{Endpoint: dnsErr.Name})
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewUploadError(CodeConnectionTimeout, domain.NetworkDetails{})
	case resilience.IsCircuitOpen(err):
		return domain.NewUploadError(CodeServiceUnavailable, domain.StorageDetails{})
	case errors.Is(err, domain.ErrCrossTenantAccess):
		return domain.NewUploadError(CodeCrossTenantAccessDenied, domain.PermissionDetails{})
	case errors.Is(err, domain.ErrUnauthorized):
		return domain.NewUploadError(CodeInsufficientPermissions, domain.PermissionDetails{})
	case errors.Is(err, domain.ErrInvalidUploadType):
		return domain.NewUploadError(CodeInvalidFileType, domain.ValidationDetails{})
	case errors.Is(err, domain.ErrTemporary):
		return domain.NewUploadError(CodeServiceUnavailable, domain.StorageDetails{})
	default:
		return domain.NewUploadError(CodeInternalServerError, domain.StorageDetails{})
	}
}

// countsAgainstBreaker limits breaker accounting to infrastructure failures.
func countsAgainstBreaker(err error) bool {
	ue := Classify(err)
	switch ue.Category {
	case domain.CategoryNetwork, domain.CategoryStorage:
		return ue.Code != CodeFileTooLarge
	default:
		return false
	}
}
