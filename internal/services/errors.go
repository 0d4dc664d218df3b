package services

import (
	"errors"
	"fmt"

	"github.com/usefloww/floww-backend/pkg/models"
)

// ErrForbidden is returned when a valid identity lacks workspace access.
// Unlike the broker-facing subscribe denial, token issuance may surface this
// explicitly: the caller already proved possession of a valid session.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidChannelToken is returned when a channel token fails signature,
// expiry or channel-binding checks.
var ErrInvalidChannelToken = errors.New("invalid channel token")

// PublishError reports a publish that failed after the retry budget was
// exhausted. It is surfaced to the workflow engine for logging only.
type PublishError struct {
	Channel  models.ChannelName
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed after %d attempts: %v", e.Channel, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
