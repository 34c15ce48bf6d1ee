package engine

import (
	"time"

	"parking_garage/internal/domain"
)

// ShowUpWindow returns [from - lead, from + (to-from)/2].
func (c Config) ShowUpWindow(res domain.Reservation) (time.Time, time.Time) {
	start := res.FromDate.Add(-c.ShowUpLead)
	end := res.FromDate.Add(res.ToDate.Sub(res.FromDate) / 2)
	return start, end
}

func (c Config) ShowUpWindowOpen(res domain.Reservation, now time.Time) bool {
	start, end := c.ShowUpWindow(res)
	return !now.Before(start) && !now.After(end)
}

// MarkShowed flags res when now is inside its show-up window.
func (c Config) MarkShowed(res *domain.Reservation, now time.Time) bool {
	if !c.ShowUpWindowOpen(*res, now) {
		return false
	}
	res.Showed = true
	return true
}

// OpenReservation returns the reservation of garageID whose show-up window is
// open at now, preferring the one starting closest to now.
func (c Config) OpenReservation(reservations []domain.Reservation, garageID int, now time.Time) *domain.Reservation {
	var best *domain.Reservation
	var bestGap time.Duration
	for i := range reservations {
		res := &reservations[i]
		if res.GarageID != garageID || !c.ShowUpWindowOpen(*res, now) {
			continue
		}
		gap := res.FromDate.Sub(now)
		if gap < 0 {
			gap = -gap
		}
		if best == nil || gap < bestGap {
			best, bestGap = res, gap
		}
	}
	return best
}
