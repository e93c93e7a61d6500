package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so callers can use errors.Is against a constructor result.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the AppError code carried by err, or "" if there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Security & Credentials (SEC) ----

func ErrInvalidAPIKey() *AppError {
	return New("SEC_001", "Invalid API key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrMissingCredentials() *AppError {
	return New("SEC_003", "Missing credentials", http.StatusUnauthorized)
}

func ErrMissingSignature() *AppError {
	return New("SEC_004", "Missing signature", http.StatusUnauthorized)
}

func ErrAPIKeyExpired() *AppError {
	return New("SEC_005", "API key has expired", http.StatusUnauthorized)
}

func ErrAPIKeyRevoked() *AppError {
	return New("SEC_006", "API key has been revoked", http.StatusUnauthorized)
}

func ErrPermissionDenied(permission string) *AppError {
	return New("SEC_007", fmt.Sprintf("API key lacks %q permission", permission), http.StatusForbidden)
}

func ErrSessionRequired() *AppError {
	return New("SEC_008", "This operation requires a session token", http.StatusForbidden)
}

// ---- Ledger Business Logic (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicateTransaction() *AppError {
	return New("PAY_003", "Duplicate transaction", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAmountOutOfRange(min, max int64) *AppError {
	return New("PAY_002", fmt.Sprintf("Amount must be between %d and %d kobo", min, max), http.StatusBadRequest)
}

func ErrSelfTransfer() *AppError {
	return New("PAY_002", "Cannot transfer to your own wallet", http.StatusBadRequest)
}

func ErrRecipientNotFound() *AppError {
	return New("PAY_002", "Recipient wallet not found", http.StatusBadRequest)
}

func ErrEventInProgress() *AppError {
	return New("PAY_006", "Event is already being processed", http.StatusConflict)
}

func ErrTransactionFinalized() *AppError {
	return New("PAY_007", "Transaction is already finalized", http.StatusConflict)
}

func ErrAmountMismatch() *AppError {
	return New("PAY_008", "Event amount does not match transaction amount", http.StatusUnprocessableEntity)
}

// ---- Credential Lifecycle (KEY) ----

func ErrKeyCapExceeded(max int) *AppError {
	return New("KEY_001", fmt.Sprintf("Maximum of %d active API keys allowed", max), http.StatusConflict)
}

func ErrKeyNotExpired() *AppError {
	return New("KEY_002", "Only expired API keys can be rolled over", http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("AUTH_002", "Email already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

func ErrProviderUnavailable(err error) *AppError {
	return Wrap("SYS_004", "Payment provider unavailable", http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
