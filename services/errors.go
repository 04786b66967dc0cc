package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fitQuestAPI/internal/store"
)

// NotFoundError means the user is unknown or their stats could not be
// bootstrapped.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConcurrentUpdateError is returned once the retry budget for a user
// transaction is exhausted. The transaction had no effect.
type ConcurrentUpdateError struct {
	UserID   uuid.UUID
	Attempts int
	Err      error
}

func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("concurrent update for user %s after %d attempts: %v", e.UserID, e.Attempts, e.Err)
}

func (e *ConcurrentUpdateError) Unwrap() error { return e.Err }

// NotificationDeliveryError lists the recipients that could not be notified
// for one dedup ref. The ref stays unsent so a later sweep retries it.
type NotificationDeliveryError struct {
	UserID uuid.UUID
	Ref    store.NotificationRef
	Failed map[uuid.UUID]error
}

func (e *NotificationDeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for id, err := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", id, err))
	}
	return fmt.Sprintf("notification %s for user %s failed for %d recipient(s): %s",
		e.Ref.Key(), e.UserID, len(e.Failed), strings.Join(parts, "; "))
}

// ValidationError rejects a request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConcurrentUpdate(err error) bool {
	var cu *ConcurrentUpdateError
	return errors.As(err, &cu)
}

func IsNotificationDelivery(err error) bool {
	var nd *NotificationDeliveryError
	return errors.As(err, &nd)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
