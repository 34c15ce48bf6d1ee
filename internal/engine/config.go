// Package engine holds the allocation and lifecycle rules of a garage:
// lot availability, conflicts, random assignment, admission, show-up timing,
// reassignment decisions and tiered billing. Everything here is pure; the
// caller supplies a snapshot of the garage and the current instant.
package engine

import (
	"time"

	"parking_garage/internal/domain"
)

type Config struct {
	// DefaultStayOffset estimates how long an unscheduled car stays.
	DefaultStayOffset time.Duration
	// DefaultParkWindow is the near-term window used by Booked.
	DefaultParkWindow time.Duration
	// ShowUpLead is how early before from_date an arrival counts as showing up.
	ShowUpLead time.Duration
	// ReassignLookahead bounds which upcoming reservations are protected.
	ReassignLookahead time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultStayOffset: 8 * time.Hour,
		DefaultParkWindow: 2 * time.Hour,
		ShowUpLead:        30 * time.Minute,
		ReassignLookahead: 8 * time.Hour,
	}
}

// ForGarage applies the garage's own overrides.
func (c Config) ForGarage(settings domain.GarageSettings) Config {
	if settings.DefaultStayMinutes.Valid && settings.DefaultStayMinutes.Int64 > 0 {
		c.DefaultStayOffset = time.Duration(settings.DefaultStayMinutes.Int64) * time.Minute
	}
	return c
}
