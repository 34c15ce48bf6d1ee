// Package memory is a process-local implementation of the repository
// interfaces. All access is serialized through one mutex; WithinTx holds it for
// the whole callback and restores a snapshot when the callback fails.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type tables struct {
	garages       map[int]domain.Garage
	lots          map[int]domain.ParkingLot
	reservations  map[int]domain.Reservation
	plates        map[int]domain.LicencePlate
	prices        map[int]domain.Price
	users         map[int]domain.User
	notifications map[int]domain.Notification
	detectionLogs map[int64]domain.DetectionLog
	seq           map[string]int
}

func newTables() *tables {
	return &tables{
		garages:       map[int]domain.Garage{},
		lots:          map[int]domain.ParkingLot{},
		reservations:  map[int]domain.Reservation{},
		plates:        map[int]domain.LicencePlate{},
		prices:        map[int]domain.Price{},
		users:         map[int]domain.User{},
		notifications: map[int]domain.Notification{},
		detectionLogs: map[int64]domain.DetectionLog{},
		seq:           map[string]int{},
	}
}

func (t *tables) clone() *tables {
	return &tables{
		garages:       maps.Clone(t.garages),
		lots:          maps.Clone(t.lots),
		reservations:  maps.Clone(t.reservations),
		plates:        maps.Clone(t.plates),
		prices:        maps.Clone(t.prices),
		users:         maps.Clone(t.users),
		notifications: maps.Clone(t.notifications),
		detectionLogs: maps.Clone(t.detectionLogs),
		seq:           maps.Clone(t.seq),
	}
}

func (t *tables) next(table string) int {
	t.seq[table]++
	return t.seq[table]
}

type DB struct {
	mu    sync.Mutex
	data  *tables
	clock func() time.Time
}

type txKey struct{}

// NewStore returns an empty store with every repository wired.
func NewStore() *repository.Store {
	db := &DB{data: newTables(), clock: time.Now}
	return &repository.Store{
		Tx:            db,
		Garages:       &garageRepo{db: db},
		ParkingLots:   &parkingLotRepo{db: db},
		Reservations:  &reservationRepo{db: db},
		LicencePlates: &licencePlateRepo{db: db},
		Prices:        &priceRepo{db: db},
		Users:         &userRepo{db: db},
		Notifications: &notificationRepo{db: db},
		DetectionLogs: &detectionLogRepo{db: db},
	}
}

func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.data = snapshot
		return err
	}
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*DB)
	return ok && owner == db
}

// lock acquires the store mutex unless ctx already runs inside WithinTx.
func (db *DB) lock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *DB) now() time.Time {
	return db.clock().UTC()
}
