package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parking_garage/internal/domain"
)

func TestCanEnter_FullyOccupiedDeniesEveryone(t *testing.T) {
	now := mustTime(t, "2024-01-01T10:00:00Z")
	r := NewResolver(DefaultConfig(), now)
	garage := domain.Garage{ID: 1, Entered: 1}

	a, b := freeLot(1), freeLot(2)
	a.Lot.Occupied, b.Lot.Occupied = true, true
	holder := []domain.Reservation{
		reservation(1, 1, 7, now.Add(10*time.Minute), now.Add(2*time.Hour)),
	}

	assert.True(t, IsFullyOccupied([]LotState{a, b}))
	assert.False(t, r.CanEnter(garage, []LotState{a, b}, nil))
	assert.False(t, r.CanEnter(garage, []LotState{a, b}, holder))
}

func TestCanEnter_SoftFull(t *testing.T) {
	now := mustTime(t, "2024-01-01T10:00:00Z")
	r := NewResolver(DefaultConfig(), now)
	garage := domain.Garage{ID: 1, Entered: 1}

	occupied := freeLot(1)
	occupied.Lot.Occupied = true
	booked := freeLot(2)
	res := reservation(1, 2, 7, now.Add(20*time.Minute), now.Add(3*time.Hour))
	booked.Reservations = []domain.Reservation{res}
	lots := []LotState{occupied, booked}

	assert.False(t, IsFullyOccupied(lots))
	assert.True(t, r.IsFull(lots))
	assert.False(t, r.CanEnter(garage, lots, nil), "walk-in must not take the reserved lot")
	assert.True(t, r.CanEnter(garage, lots, []domain.Reservation{res}), "holder inside show-up window")

	early := reservation(2, 2, 7, now.Add(2*time.Hour), now.Add(4*time.Hour))
	assert.False(t, r.CanEnter(garage, lots, []domain.Reservation{early}), "holder outside show-up window")

	elsewhere := res
	elsewhere.GarageID = 2
	assert.False(t, r.CanEnter(garage, lots, []domain.Reservation{elsewhere}))
}

func TestCanEnter_FreeCapacity(t *testing.T) {
	now := mustTime(t, "2024-01-01T10:00:00Z")
	r := NewResolver(DefaultConfig(), now)

	lots := []LotState{freeLot(1), freeLot(2)}
	assert.False(t, r.IsFull(lots))
	assert.True(t, r.CanEnter(domain.Garage{ID: 1}, lots, nil))
}

func TestCanEnter_HeadcountCap(t *testing.T) {
	now := mustTime(t, "2024-01-01T10:00:00Z")
	r := NewResolver(DefaultConfig(), now)

	lots := []LotState{freeLot(1), freeLot(2)}
	assert.False(t, r.CanEnter(domain.Garage{ID: 1, Entered: 2}, lots, nil))
	assert.False(t, r.CanEnter(domain.Garage{ID: 1}, nil, nil), "garage without lots")
}

func TestIsFull_DisabledLotsCountAsUnavailable(t *testing.T) {
	now := mustTime(t, "2024-01-01T10:00:00Z")
	r := NewResolver(DefaultConfig(), now)
	disabled := freeLot(1)
	disabled.Lot.Disabled = true
	occupied := freeLot(2)
	occupied.Lot.Occupied = true

	assert.True(t, r.IsFull([]LotState{disabled, occupied}))
}

func TestShowUpWindow(t *testing.T) {
	cfg := DefaultConfig()
	from := mustTime(t, "2024-01-01T10:00:00Z")
	res := reservation(1, 1, 7, from, from.Add(4*time.Hour))

	assert.False(t, cfg.ShowUpWindowOpen(res, from.Add(-31*time.Minute)))
	assert.True(t, cfg.ShowUpWindowOpen(res, from.Add(-30*time.Minute)))
	assert.True(t, cfg.ShowUpWindowOpen(res, from.Add(2*time.Hour)))
	assert.False(t, cfg.ShowUpWindowOpen(res, from.Add(2*time.Hour+time.Second)))

	assert.False(t, cfg.MarkShowed(&res, from.Add(3*time.Hour)))
	assert.False(t, res.Showed)
	assert.True(t, cfg.MarkShowed(&res, from.Add(time.Minute)))
	assert.True(t, res.Showed)
}

func TestOpenReservation_PicksClosest(t *testing.T) {
	cfg := DefaultConfig()
	now := mustTime(t, "2024-01-01T10:00:00Z")
	far := reservation(1, 1, 7, now.Add(-2*time.Hour), now.Add(6*time.Hour))
	near := reservation(2, 2, 7, now.Add(10*time.Minute), now.Add(time.Hour))

	got := cfg.OpenReservation([]domain.Reservation{far, near}, 1, now)
	if assert.NotNil(t, got) {
		assert.Equal(t, 2, got.ID)
	}
	assert.Nil(t, cfg.OpenReservation([]domain.Reservation{far, near}, 9, now))
}
