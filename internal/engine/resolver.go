package engine

import (
	"time"

	"parking_garage/internal/domain"
)

// LotState is everything the resolver needs to know about one lot.
type LotState struct {
	Lot          domain.ParkingLot
	Reservations []domain.Reservation
	// Occupant is the plate parked in the lot, when known.
	Occupant *domain.LicencePlate
}

// Resolver answers availability questions at a fixed instant.
type Resolver struct {
	cfg Config
	now time.Time
}

func NewResolver(cfg Config, now time.Time) *Resolver {
	return &Resolver{cfg: cfg, now: now}
}

func (r *Resolver) Now() time.Time { return r.now }

func (r *Resolver) Config() Config { return r.cfg }

// ValidReservation reports whether res still holds its lot: it has not ended
// and the holder either showed up or may still do so.
func (r *Resolver) ValidReservation(res domain.Reservation) bool {
	if res.ReleasedAt.Valid || !res.ToDate.After(r.now) {
		return false
	}
	if res.Showed {
		return true
	}
	_, deadline := r.cfg.ShowUpWindow(res)
	return !r.now.After(deadline)
}

// Lapsed reports whether res stopped holding its lot but was never released:
// it ended, or its holder missed the show-up deadline.
func (r *Resolver) Lapsed(res domain.Reservation) bool {
	return !res.ReleasedAt.Valid && !r.ValidReservation(res)
}

// IsAvailable reports whether the lot can be given out for [from, to).
func (r *Resolver) IsAvailable(s LotState, from, to time.Time) bool {
	if s.Lot.Disabled {
		return false
	}
	for _, res := range s.Reservations {
		if !r.ValidReservation(res) {
			continue
		}
		if overlapsHalfOpen(res.FromDate, res.ToDate, from, to) {
			return false
		}
	}
	if s.Lot.Occupied {
		until, ok := r.OccupiedUntil(s)
		if ok && until.After(from) {
			return false
		}
	}
	return true
}

// OccupiedUntil estimates when the lot becomes free. The second return value
// is false when nothing holds the lot right now.
func (r *Resolver) OccupiedUntil(s LotState) (time.Time, bool) {
	var until time.Time
	found := false
	for _, res := range s.Reservations {
		if !r.ValidReservation(res) || !res.Contains(r.now) {
			continue
		}
		if !found || res.ToDate.After(until) {
			until = res.ToDate
			found = true
		}
	}
	if found {
		return until, true
	}
	if !s.Lot.Occupied {
		return time.Time{}, false
	}
	if s.Occupant != nil && s.Occupant.EnteredAt.Valid {
		return s.Occupant.EnteredAt.Time.Add(r.cfg.DefaultStayOffset), true
	}
	return r.now.Add(r.cfg.DefaultStayOffset), true
}

// Booked reports whether a near-term reservation whose holder has not yet
// arrived claims the lot.
func (r *Resolver) Booked(s LotState) bool {
	windowEnd := r.now.Add(r.cfg.DefaultParkWindow)
	for _, res := range s.Reservations {
		if res.Showed || !r.ValidReservation(res) {
			continue
		}
		if overlapsHalfOpen(res.FromDate, res.ToDate, r.now, windowEnd) {
			return true
		}
	}
	return false
}

// Availability resolves the full read model for one lot.
func (r *Resolver) Availability(s LotState, from, to time.Time) domain.LotAvailability {
	view := domain.LotAvailability{
		ParkingLot: s.Lot,
		Available:  r.IsAvailable(s, from, to),
		Booked:     r.Booked(s),
	}
	if until, ok := r.OccupiedUntil(s); ok {
		view.OccupiedUntil = &until
	}
	return view
}

// NextFreeSpot returns the earliest instant a lot frees up. It is false when a
// lot is already free or the garage has no lots.
func (r *Resolver) NextFreeSpot(lots []LotState) (time.Time, bool) {
	var next time.Time
	for i, s := range lots {
		until, ok := r.OccupiedUntil(s)
		if !ok {
			return time.Time{}, false
		}
		if i == 0 || until.Before(next) {
			next = until
		}
	}
	return next, len(lots) > 0
}

// OccupiedLots counts lots that are physically occupied or booked.
func (r *Resolver) OccupiedLots(lots []LotState) int {
	n := 0
	for _, s := range lots {
		if s.Lot.Occupied || r.Booked(s) {
			n++
		}
	}
	return n
}
