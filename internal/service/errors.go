package service

import (
	"errors"
	"fmt"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/pkg/apperror"
)

// storageError converts a repository failure into an AppError,
// keeping the domain sentinel reachable through errors.Is.
func storageError(op string, err error) *apperror.AppError {
	wrapped := fmt.Errorf("%s: %w", op, err)

	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domain.ErrLockTimeout):
		return apperror.ErrLockTimeout(wrapped)
	case errors.Is(err, domain.ErrDuplicate):
		appErr = apperror.ErrDuplicateTransaction()
	case errors.Is(err, domain.ErrNotPending):
		appErr = apperror.ErrTransactionFinalized()
	default:
		return apperror.ErrDatabaseError(wrapped)
	}
	appErr.Err = wrapped
	return appErr
}
