// Package fleeterr holds the error taxonomy shared by the fleet core. Every error a core
// operation returns on purpose is one of these types, so callers can map them with errors.As.
package fleeterr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConflictError is returned when a link or unique value is already held by another entity.
type ConflictError struct {
	Entity string
	ID     uuid.UUID
	Reason string
}

func (e *ConflictError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s %s conflict: %s", e.Entity, e.ID, e.Reason)
}

// Conflict builds a ConflictError.
func Conflict(entity string, id uuid.UUID, reason string) error {
	return &ConflictError{Entity: entity, ID: id, Reason: reason}
}

// OverlapError is returned when a rental interval collides with an existing one on the same bike.
type OverlapError struct {
	BikeID      uuid.UUID
	ConflictIDs []uuid.UUID
}

func (e *OverlapError) Error() string {
	ids := make([]string, 0, len(e.ConflictIDs))
	for _, id := range e.ConflictIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("rental overlaps existing rentals on bike %s: %s", e.BikeID, strings.Join(ids, ", "))
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id uuid.UUID) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// RateUnavailableError is returned when no exchange rate applies to a conversion.
type RateUnavailableError struct {
	From string
	To   string
	// AsOf is nil when the latest rate was requested.
	AsOf *time.Time
}

func (e *RateUnavailableError) Error() string {
	if e.AsOf == nil {
		return fmt.Sprintf("no exchange rate for %s->%s", e.From, e.To)
	}
	return fmt.Sprintf("no exchange rate for %s->%s on %s", e.From, e.To, e.AsOf.Format(time.DateOnly))
}

// UnknownChannelError is returned when a notification names a channel nobody registered.
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("notification channel %q is not registered", e.Channel)
}

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsOverlap(err error) bool {
	var target *OverlapError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsRateUnavailable(err error) bool {
	var target *RateUnavailableError
	return errors.As(err, &target)
}

func IsUnknownChannel(err error) bool {
	var target *UnknownChannelError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDomain reports whether err belongs to the taxonomy above.
func IsDomain(err error) bool {
	return IsConflict(err) || IsOverlap(err) || IsNotFound(err) ||
		IsRateUnavailable(err) || IsUnknownChannel(err) || IsValidation(err)
}
