package engine

import (
	"time"

	"parking_garage/internal/domain"
)

// ValidateInterval rejects empty or inverted windows.
func ValidateInterval(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return domain.NewValidationError("from_date and to_date are required")
	}
	if !from.Before(to) {
		return domain.NewValidationError("from_date %s must be before to_date %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return nil
}

// Validate checks a candidate reservation for lot against what already holds it.
func (r *Resolver) Validate(s LotState, from, to time.Time) error {
	if err := ValidateInterval(from, to); err != nil {
		return err
	}
	if !r.IsAvailable(s, from, to) {
		return domain.NewConflictError("parking lot %d already occupied in that window", s.Lot.LotNumber)
	}
	return nil
}
