package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type priceRepo struct {
	db *DB
}

func (r *priceRepo) Create(ctx context.Context, p *domain.Price) (*domain.Price, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.garages[p.GarageID]; !ok {
		return nil, fmt.Errorf("PriceRepository.Create: %w: garage %d", repository.ErrNotFound, p.GarageID)
	}
	p.ID = t.next("prices")
	p.CreatedAt = r.db.now()
	p.UpdatedAt = p.CreatedAt
	t.prices[p.ID] = *p
	return p, nil
}

func (r *priceRepo) FindByGarageID(ctx context.Context, garageID int) ([]domain.Price, error) {
	defer r.db.lock(ctx)()
	var out []domain.Price
	for _, p := range r.db.data.prices {
		if p.GarageID == garageID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration > out[j].Duration })
	return out, nil
}

func (r *priceRepo) Delete(ctx context.Context, garageID, id int) error {
	defer r.db.lock(ctx)()
	p, ok := r.db.data.prices[id]
	if !ok || p.GarageID != garageID {
		return repository.ErrNotFound
	}
	delete(r.db.data.prices, id)
	return nil
}

type userRepo struct {
	db *DB
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	for _, existing := range t.users {
		if existing.Email == user.Email {
			return nil, fmt.Errorf("UserRepository.Create: %w: email %s", repository.ErrConflict, user.Email)
		}
	}
	user.ID = t.next("users")
	user.CreatedAt = r.db.now()
	user.UpdatedAt = user.CreatedAt
	t.users[user.ID] = *user
	return user, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer r.db.lock(ctx)()
	for _, u := range r.db.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) FindByID(ctx context.Context, id int) (*domain.User, error) {
	defer r.db.lock(ctx)()
	u, ok := r.db.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// Delete cascades to the user's plates, reservations and notifications.
func (r *userRepo) Delete(ctx context.Context, id int) error {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.users, id)
	for plateID, p := range t.plates {
		if p.UserID == id {
			delete(t.plates, plateID)
		}
	}
	for resID, res := range t.reservations {
		if res.UserID == id {
			delete(t.reservations, resID)
		}
	}
	for nID, n := range t.notifications {
		if n.UserID == id {
			delete(t.notifications, nID)
		}
	}
	return nil
}

func (r *userRepo) Exists(ctx context.Context, id int) (bool, error) {
	defer r.db.lock(ctx)()
	_, ok := r.db.data.users[id]
	return ok, nil
}

type notificationRepo struct {
	db *DB
}

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.users[n.UserID]; !ok {
		return nil, fmt.Errorf("NotificationRepository.Create: %w: user %d", repository.ErrNotFound, n.UserID)
	}
	n.ID = t.next("notifications")
	n.Seen = false
	n.CreatedAt = r.db.now()
	t.notifications[n.ID] = *n
	return n, nil
}

func (r *notificationRepo) FindByUserID(ctx context.Context, userID int) ([]domain.Notification, error) {
	defer r.db.lock(ctx)()
	var out []domain.Notification
	for _, n := range r.db.data.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *notificationRepo) MarkSeen(ctx context.Context, id, userID int) error {
	defer r.db.lock(ctx)()
	n, ok := r.db.data.notifications[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotFound
	}
	n.Seen = true
	r.db.data.notifications[id] = n
	return nil
}

type detectionLogRepo struct {
	db *DB
}

func (r *detectionLogRepo) Create(ctx context.Context, entry *domain.DetectionLog) error {
	defer r.db.lock(ctx)()
	entry.ID = int64(r.db.data.next("detection_logs"))
	r.db.data.detectionLogs[entry.ID] = *entry
	return nil
}

func (r *detectionLogRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	defer r.db.lock(ctx)()
	var n int64
	for id, entry := range r.db.data.detectionLogs {
		if entry.ReceivedAt.Before(before) {
			delete(r.db.data.detectionLogs, id)
			n++
		}
	}
	return n, nil
}
