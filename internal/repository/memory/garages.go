package memory

import (
	"context"
	"slices"
	"sort"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type garageRepo struct {
	db *DB
}

func cloneGarage(g domain.Garage) domain.Garage {
	g.OpeningHours = slices.Clone(g.OpeningHours)
	if g.Location != nil {
		loc := *g.Location
		g.Location = &loc
	}
	return g
}

func (r *garageRepo) Create(ctx context.Context, garage *domain.Garage) (*domain.Garage, error) {
	defer r.db.lock(ctx)()
	t := r.db.data

	garage.ID = t.next("garages")
	garage.CreatedAt = r.db.now()
	garage.UpdatedAt = garage.CreatedAt
	for i := range garage.OpeningHours {
		garage.OpeningHours[i].ID = t.next("opening_hours")
		garage.OpeningHours[i].GarageID = garage.ID
	}
	t.garages[garage.ID] = cloneGarage(*garage)
	return garage, nil
}

func (r *garageRepo) FindByID(ctx context.Context, id int) (*domain.Garage, error) {
	defer r.db.lock(ctx)()
	g, ok := r.db.data.garages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	g = cloneGarage(g)
	return &g, nil
}

// LockForUpdate needs no row lock; the store mutex already serializes writers.
func (r *garageRepo) LockForUpdate(ctx context.Context, id int) (*domain.Garage, error) {
	return r.FindByID(ctx, id)
}

func (r *garageRepo) FindAll(ctx context.Context) ([]domain.Garage, error) {
	defer r.db.lock(ctx)()
	out := make([]domain.Garage, 0, len(r.db.data.garages))
	for _, g := range r.db.data.garages {
		out = append(out, cloneGarage(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *garageRepo) Update(ctx context.Context, garage *domain.Garage) (*domain.Garage, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	current, ok := t.garages[garage.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	current.Name = garage.Name
	current.Settings = garage.Settings
	current.Location = garage.Location
	for i := range garage.OpeningHours {
		garage.OpeningHours[i].ID = t.next("opening_hours")
		garage.OpeningHours[i].GarageID = garage.ID
	}
	current.OpeningHours = garage.OpeningHours
	current.UpdatedAt = r.db.now()
	t.garages[garage.ID] = cloneGarage(current)

	garage.Entered = current.Entered
	garage.OwnerID = current.OwnerID
	garage.CreatedAt = current.CreatedAt
	garage.UpdatedAt = current.UpdatedAt
	return garage, nil
}

// Delete cascades to the rows postgres removes through ON DELETE CASCADE.
func (r *garageRepo) Delete(ctx context.Context, id int) error {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.garages[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.garages, id)
	for lotID, lot := range t.lots {
		if lot.GarageID == id {
			delete(t.lots, lotID)
		}
	}
	for resID, res := range t.reservations {
		if res.GarageID == id {
			delete(t.reservations, resID)
		}
	}
	for priceID, p := range t.prices {
		if p.GarageID == id {
			delete(t.prices, priceID)
		}
	}
	for plateID, p := range t.plates {
		if p.GarageID.Valid && int(p.GarageID.Int64) == id {
			p.GarageID.Valid = false
			t.plates[plateID] = p
		}
	}
	return nil
}

func (r *garageRepo) AdjustEntered(ctx context.Context, id int, delta int) (int, error) {
	defer r.db.lock(ctx)()
	g, ok := r.db.data.garages[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	g.Entered = max(g.Entered+delta, 0)
	g.UpdatedAt = r.db.now()
	r.db.data.garages[id] = g
	return g.Entered, nil
}

func (r *garageRepo) Exists(ctx context.Context, id int) (bool, error) {
	defer r.db.lock(ctx)()
	_, ok := r.db.data.garages[id]
	return ok, nil
}
