package memory

import (
	"context"
	"fmt"
	"sort"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type licencePlateRepo struct {
	db *DB
}

func (r *licencePlateRepo) Create(ctx context.Context, lp *domain.LicencePlate) (*domain.LicencePlate, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.users[lp.UserID]; !ok {
		return nil, fmt.Errorf("LicencePlateRepository.Create: %w: user %d", repository.ErrNotFound, lp.UserID)
	}
	for _, existing := range t.plates {
		if existing.Plate == lp.Plate {
			return nil, fmt.Errorf("LicencePlateRepository.Create: %w: licence plate %s", repository.ErrConflict, lp.Plate)
		}
	}
	lp.ID = t.next("licence_plates")
	lp.CreatedAt = r.db.now()
	lp.UpdatedAt = lp.CreatedAt
	t.plates[lp.ID] = *lp
	return lp, nil
}

func (r *licencePlateRepo) FindByID(ctx context.Context, id int) (*domain.LicencePlate, error) {
	defer r.db.lock(ctx)()
	lp, ok := r.db.data.plates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lp, nil
}

func (r *licencePlateRepo) FindByPlate(ctx context.Context, plate string) (*domain.LicencePlate, error) {
	defer r.db.lock(ctx)()
	for _, lp := range r.db.data.plates {
		if lp.Plate == plate {
			return &lp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *licencePlateRepo) FindByUserID(ctx context.Context, userID int) ([]domain.LicencePlate, error) {
	defer r.db.lock(ctx)()
	var out []domain.LicencePlate
	for _, lp := range r.db.data.plates {
		if lp.UserID == userID {
			out = append(out, lp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *licencePlateRepo) FindInsideGarage(ctx context.Context, garageID int) ([]domain.LicencePlate, error) {
	defer r.db.lock(ctx)()
	var out []domain.LicencePlate
	for _, lp := range r.db.data.plates {
		if lp.GarageID.Valid && int(lp.GarageID.Int64) == garageID {
			out = append(out, lp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnteredAt.Time.Before(out[j].EnteredAt.Time) })
	return out, nil
}

func (r *licencePlateRepo) Update(ctx context.Context, lp *domain.LicencePlate) (*domain.LicencePlate, error) {
	defer r.db.lock(ctx)()
	current, ok := r.db.data.plates[lp.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	current.GarageID = lp.GarageID
	current.Enabled = lp.Enabled
	current.EnteredAt = lp.EnteredAt
	current.PaidAt = lp.PaidAt
	current.InvoicePendingAt = lp.InvoicePendingAt
	current.InvoiceID = lp.InvoiceID
	current.UpdatedAt = r.db.now()
	r.db.data.plates[lp.ID] = current
	*lp = current
	return lp, nil
}

// Delete cascades to reservations and releases any lot the plate occupied.
func (r *licencePlateRepo) Delete(ctx context.Context, id int) error {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.plates[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.plates, id)
	for resID, res := range t.reservations {
		if res.LicencePlateID == id {
			delete(t.reservations, resID)
		}
	}
	for lotID, lot := range t.lots {
		if lot.OccupantPlateID.Valid && int(lot.OccupantPlateID.Int64) == id {
			lot.OccupantPlateID.Valid = false
			t.lots[lotID] = lot
		}
	}
	return nil
}

func (r *licencePlateRepo) Exists(ctx context.Context, id int) (bool, error) {
	defer r.db.lock(ctx)()
	_, ok := r.db.data.plates[id]
	return ok, nil
}
