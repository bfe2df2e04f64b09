package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// Source errors, shared by every snapshot backend
	ErrNotFound       = fmt.Errorf("not found")
	ErrRateLimited    = fmt.Errorf("rate limited")
	ErrTransient      = fmt.Errorf("transient network error")
	ErrQuotaExceeded  = fmt.Errorf("quota exceeded")
	ErrAPIRequest     = fmt.Errorf("API request failed")
	ErrInvalidChannel = fmt.Errorf("invalid channel reference")

	// Persistence errors
	ErrConflict       = fmt.Errorf("conflict")
	ErrOwnerMismatch  = fmt.Errorf("owner mismatch")
	ErrCommitFailed   = fmt.Errorf("commit failed")
	ErrValidation     = fmt.Errorf("validation failed")
	ErrQueueClosed    = fmt.Errorf("queue closed")
	ErrServiceMissing = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
