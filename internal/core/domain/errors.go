package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAssetNotFound      = errors.New("asset not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidUploadType  = errors.New("invalid upload type")
	ErrCrossTenantAccess  = errors.New("cross-tenant access denied")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrUnknownFeature     = errors.New("unknown feature")
	ErrOrganizationAbsent = errors.New("organization not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
