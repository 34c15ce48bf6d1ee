package engine

import "parking_garage/internal/domain"

// LastEntered returns the plate that most recently entered, or nil.
func LastEntered(plates []domain.LicencePlate) *domain.LicencePlate {
	var last *domain.LicencePlate
	for i := range plates {
		p := &plates[i]
		if !p.EnteredAt.Valid {
			continue
		}
		if last == nil || p.EnteredAt.Time.After(last.EnteredAt.Time) {
			last = p
		}
	}
	return last
}

// NeedsReassignment reports whether res has to move off its lot: it starts
// within the lookahead, its lot is held by another car and the car that
// entered last is not the holder's.
func (r *Resolver) NeedsReassignment(res domain.Reservation, lot LotState, lastEntered *domain.LicencePlate) bool {
	if !res.FromDate.After(r.now) || res.FromDate.Sub(r.now) >= r.cfg.ReassignLookahead {
		return false
	}
	if !lot.Lot.Occupied {
		return false
	}
	if lot.Lot.OccupantPlateID.Valid && int(lot.Lot.OccupantPlateID.Int64) == res.LicencePlateID {
		return false
	}
	return lastEntered == nil || lastEntered.ID != res.LicencePlateID
}
