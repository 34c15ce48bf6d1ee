package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks. The typed errors below match them.
var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrNoLotAvailable   = errors.New("no parking lot available")
	ErrCapacityExceeded = errors.New("garage is full")
	ErrPaymentRequired  = errors.New("payment required")
	ErrNotFound         = errors.New("not found")
)

// ValidationError reports malformed input such as an empty interval or a
// non-positive price duration.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string        { return e.Msg }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports that an interval is already held.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string        { return e.Msg }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func NewConflictError(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// NoLotAvailableError is returned when random assignment has no candidate.
type NoLotAvailableError struct {
	GarageID int
}

func (e *NoLotAvailableError) Error() string {
	return fmt.Sprintf("no parking lot available in garage %d for the requested window", e.GarageID)
}
func (e *NoLotAvailableError) Is(target error) bool { return target == ErrNoLotAvailable }

// CapacityExceededError is returned when admission denies a vehicle.
type CapacityExceededError struct {
	GarageID int
	Plate    string
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("garage %d is full, licence plate %s cannot enter", e.GarageID, e.Plate)
}
func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// PaymentRequiredError blocks an exit until the owed amount is settled.
type PaymentRequiredError struct {
	Plate string
	Bill  *Bill
}

func (e *PaymentRequiredError) Error() string {
	if e.Bill != nil && !e.Bill.Total.IsZero() {
		return fmt.Sprintf("licence plate %s owes %s %s before leaving the garage", e.Plate, e.Bill.Total.StringFixed(2), e.Bill.Currency)
	}
	return fmt.Sprintf("licence plate %s needs to pay before leaving the garage", e.Plate)
}
func (e *PaymentRequiredError) Is(target error) bool { return target == ErrPaymentRequired }

// NotFoundError names the entity and id that could not be resolved.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFoundError(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}
