package memory

import (
	"context"
	"fmt"
	"sort"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type reservationRepo struct {
	db *DB
}

// checkExclusion mirrors the reservations_no_overlap constraint: two
// reservations of one lot may not share an instant of [from, to).
// Released reservations no longer hold their lot.
func (r *reservationRepo) checkExclusion(res *domain.Reservation) error {
	if res.ReleasedAt.Valid {
		return nil
	}
	for _, other := range r.db.data.reservations {
		if other.ID == res.ID || other.ParkingLotID != res.ParkingLotID || other.ReleasedAt.Valid {
			continue
		}
		if res.FromDate.Before(other.ToDate) && other.FromDate.Before(res.ToDate) {
			return fmt.Errorf("%w: reservations_no_overlap (reservation %d)", repository.ErrConflict, other.ID)
		}
	}
	return nil
}

func (r *reservationRepo) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	if !res.FromDate.Before(res.ToDate) {
		return nil, fmt.Errorf("ReservationRepository.Create: from_date must be before to_date")
	}
	if _, ok := t.lots[res.ParkingLotID]; !ok {
		return nil, fmt.Errorf("ReservationRepository.Create: %w: parking lot %d", repository.ErrNotFound, res.ParkingLotID)
	}
	if _, ok := t.plates[res.LicencePlateID]; !ok {
		return nil, fmt.Errorf("ReservationRepository.Create: %w: licence plate %d", repository.ErrNotFound, res.LicencePlateID)
	}
	res.ID = 0
	if err := r.checkExclusion(res); err != nil {
		return nil, fmt.Errorf("ReservationRepository.Create: %w", err)
	}
	res.ID = t.next("reservations")
	res.CreatedAt = r.db.now()
	res.UpdatedAt = res.CreatedAt
	t.reservations[res.ID] = *res
	return res, nil
}

func (r *reservationRepo) FindByID(ctx context.Context, id int) (*domain.Reservation, error) {
	defer r.db.lock(ctx)()
	res, ok := r.db.data.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &res, nil
}

func (r *reservationRepo) filter(ctx context.Context, keep func(domain.Reservation) bool) []domain.Reservation {
	defer r.db.lock(ctx)()
	var out []domain.Reservation
	for _, res := range r.db.data.reservations {
		if keep(res) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromDate.Equal(out[j].FromDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].FromDate.Before(out[j].FromDate)
	})
	return out
}

func (r *reservationRepo) FindByGarageID(ctx context.Context, garageID int) ([]domain.Reservation, error) {
	return r.filter(ctx, func(res domain.Reservation) bool { return res.GarageID == garageID }), nil
}

func (r *reservationRepo) FindByLicencePlateID(ctx context.Context, plateID int) ([]domain.Reservation, error) {
	return r.filter(ctx, func(res domain.Reservation) bool { return res.LicencePlateID == plateID }), nil
}

func (r *reservationRepo) FindByUserID(ctx context.Context, userID int) ([]domain.Reservation, error) {
	return r.filter(ctx, func(res domain.Reservation) bool { return res.UserID == userID }), nil
}

func (r *reservationRepo) Update(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	defer r.db.lock(ctx)()
	current, ok := r.db.data.reservations[res.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	current.ParkingLotID = res.ParkingLotID
	current.FromDate = res.FromDate
	current.ToDate = res.ToDate
	current.Showed = res.Showed
	current.ReleasedAt = res.ReleasedAt
	current.UnavailableNotifiedAt = res.UnavailableNotifiedAt
	if err := r.checkExclusion(&current); err != nil {
		return nil, fmt.Errorf("ReservationRepository.Update: %w", err)
	}
	current.UpdatedAt = r.db.now()
	r.db.data.reservations[res.ID] = current
	*res = current
	return res, nil
}

func (r *reservationRepo) Delete(ctx context.Context, id int) error {
	defer r.db.lock(ctx)()
	if _, ok := r.db.data.reservations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.data.reservations, id)
	return nil
}

func (r *reservationRepo) DeleteByLicencePlateID(ctx context.Context, plateID int) error {
	defer r.db.lock(ctx)()
	for id, res := range r.db.data.reservations {
		if res.LicencePlateID == plateID {
			delete(r.db.data.reservations, id)
		}
	}
	return nil
}

func (r *reservationRepo) Exists(ctx context.Context, id int) (bool, error) {
	defer r.db.lock(ctx)()
	_, ok := r.db.data.reservations[id]
	return ok, nil
}
