package engine

import "parking_garage/internal/domain"

// IsFullyOccupied reports whether every lot physically holds a car.
func IsFullyOccupied(lots []LotState) bool {
	for _, s := range lots {
		if !s.Lot.Occupied {
			return false
		}
	}
	return true
}

// IsFull reports whether no free, unbooked, enabled lot remains.
func (r *Resolver) IsFull(lots []LotState) bool {
	for _, s := range lots {
		if !s.Lot.Disabled && !s.Lot.Occupied && !r.Booked(s) {
			return false
		}
	}
	return true
}

// CanEnter decides physical admission. reservations are the plate's own.
// A physically full garage admits nobody; a garage whose remaining capacity is
// reserved admits only holders whose show-up window is open.
func (r *Resolver) CanEnter(garage domain.Garage, lots []LotState, reservations []domain.Reservation) bool {
	if IsFullyOccupied(lots) || garage.Entered >= len(lots) {
		return false
	}
	if r.IsFull(lots) {
		return r.cfg.OpenReservation(reservations, garage.ID, r.now) != nil
	}
	return true
}
