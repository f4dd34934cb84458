package store

import "errors"

var (
	ErrATMNotFound           = errors.New("atm not found")
	ErrDeviceNotFound        = errors.New("device not found")
	ErrServiceNotFound       = errors.New("atm claim service not found")
	ErrClaimNotFound         = errors.New("claim not found")
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrAPIKeyInvalid         = errors.New("api key invalid")
	ErrAccessDenied          = errors.New("access denied")
	ErrBranchRequired        = errors.New("user branch required")
	ErrVerificationLocked    = errors.New("verification already completed")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidRecommendation = errors.New("invalid recommendation")
)

// ValidationError carries a message safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(message string) error {
	return ValidationError{Message: message}
}
