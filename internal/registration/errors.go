package registration

import (
	"errors"
	"fmt"

	"eventpress/pkg/validator"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrNotPublished          = errors.New("event is not published")
	ErrTicketNotFound        = errors.New("invalid ticket")
	ErrAlreadyCheckedIn      = errors.New("ticket already checked in")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrAnnouncementNotFound  = errors.New("announcement not found")
	ErrAnnouncementDelivered = errors.New("announcement already delivered")
	ErrStorage               = errors.New("storage failure")
	ErrCrypto                = errors.New("encryption failure")
)

// ValidationError reports a rejected input field. No write has happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationFrom(err error) error {
	var fe *validator.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Reason: fe.Reason}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

// Retryable reports whether err may clear on a later attempt. Missing rows
// and undecryptable ciphertext never do.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func cryptoErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCrypto, op, err)
}
