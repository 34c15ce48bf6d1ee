package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

func actorOf(u *domain.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

func TestCreateReservation_PicksRandomLot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 3)
	user := e.user(t, "alice@example.com", domain.RoleUser)
	lp := e.plate(t, user.ID, "ALICE1")
	svc := NewReservationService(e.core, e.notifier)

	res, err := svc.CreateReservation(ctx, actorOf(user), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: lp.ID,
		FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.UserID)
	assert.False(t, res.Showed)

	ids := []int{lots[0].ID, lots[1].ID, lots[2].ID}
	assert.Contains(t, ids, res.ParkingLotID)
	assert.Equal(t, []string{"Reservation confirmed"}, e.notifier.titles())
}

func TestCreateReservation_ExplicitLot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 2)
	alice := e.user(t, "alice@example.com", domain.RoleUser)
	bob := e.user(t, "bob@example.com", domain.RoleUser)
	aliceCar := e.plate(t, alice.ID, "ALICE1")
	bobCar := e.plate(t, bob.ID, "BOB001")
	svc := NewReservationService(e.core, e.notifier)

	first := lots[0].ID
	_, err := svc.CreateReservation(ctx, actorOf(alice), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: aliceCar.ID, ParkingLotID: &first,
		FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.CreateReservation(ctx, actorOf(bob), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: bobCar.ID, ParkingLotID: &first,
		FromDate: baseTime.Add(2 * time.Hour), ToDate: baseTime.Add(4 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	res, err := svc.CreateReservation(ctx, actorOf(bob), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: bobCar.ID, ParkingLotID: &first,
		FromDate: baseTime.Add(3 * time.Hour), ToDate: baseTime.Add(4 * time.Hour),
	})
	require.NoError(t, err, "back-to-back reservations share the boundary")
	assert.Equal(t, first, res.ParkingLotID)

	unknown := 9999
	_, err = svc.CreateReservation(ctx, actorOf(bob), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: bobCar.ID, ParkingLotID: &unknown,
		FromDate: baseTime.Add(5 * time.Hour), ToDate: baseTime.Add(6 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateReservation_OnePlateOneWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g1, _ := e.garage(t, 2)
	g2, _ := e.garage(t, 2)
	user := e.user(t, "alice@example.com", domain.RoleUser)
	lp := e.plate(t, user.ID, "ALICE1")
	svc := NewReservationService(e.core, e.notifier)

	_, err := svc.CreateReservation(ctx, actorOf(user), domain.CreateReservationDTO{
		GarageID: g1.ID, LicencePlateID: lp.ID,
		FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.CreateReservation(ctx, actorOf(user), domain.CreateReservationDTO{
		GarageID: g2.ID, LicencePlateID: lp.ID,
		FromDate: baseTime.Add(2 * time.Hour), ToDate: baseTime.Add(5 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.CreateReservation(ctx, actorOf(user), domain.CreateReservationDTO{
		GarageID: g2.ID, LicencePlateID: lp.ID,
		FromDate: baseTime.Add(3 * time.Hour), ToDate: baseTime.Add(5 * time.Hour),
	})
	assert.NoError(t, err)
}

func TestCreateReservation_Rejects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 1)
	alice := e.user(t, "alice@example.com", domain.RoleUser)
	mallory := e.user(t, "mallory@example.com", domain.RoleUser)
	operator := e.user(t, "ops@example.com", domain.RoleOperator)
	lp := e.plate(t, alice.ID, "ALICE1")
	svc := NewReservationService(e.core, e.notifier)

	tests := []struct {
		name  string
		actor domain.Actor
		dto   domain.CreateReservationDTO
		want  error
	}{
		{
			name:  "window in the past",
			actor: actorOf(alice),
			dto:   domain.CreateReservationDTO{GarageID: g.ID, LicencePlateID: lp.ID, FromDate: baseTime.Add(-3 * time.Hour), ToDate: baseTime.Add(-time.Hour)},
			want:  domain.ErrValidation,
		},
		{
			name:  "reversed window",
			actor: actorOf(alice),
			dto:   domain.CreateReservationDTO{GarageID: g.ID, LicencePlateID: lp.ID, FromDate: baseTime.Add(3 * time.Hour), ToDate: baseTime.Add(time.Hour)},
			want:  domain.ErrValidation,
		},
		{
			name:  "someone else's plate",
			actor: actorOf(mallory),
			dto:   domain.CreateReservationDTO{GarageID: g.ID, LicencePlateID: lp.ID, FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(2 * time.Hour)},
			want:  domain.ErrNotFound,
		},
		{
			name:  "unknown garage",
			actor: actorOf(alice),
			dto:   domain.CreateReservationDTO{GarageID: 404, LicencePlateID: lp.ID, FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(2 * time.Hour)},
			want:  domain.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateReservation(ctx, tt.actor, tt.dto)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	res, err := svc.CreateReservation(ctx, actorOf(operator), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: lp.ID, FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(2 * time.Hour),
	})
	require.NoError(t, err, "staff may book for a customer")
	assert.Equal(t, alice.ID, res.UserID)
	assert.Equal(t, lots[0].ID, res.ParkingLotID)

	other := e.plate(t, mallory.ID, "MAL001")
	_, err = svc.CreateReservation(ctx, actorOf(mallory), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: other.ID, FromDate: baseTime.Add(90 * time.Minute), ToDate: baseTime.Add(4 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrNoLotAvailable)
}

func TestCreateReservation_NoShowGivesLotBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 1)
	late := e.plate(t, e.user(t, "late@example.com", domain.RoleUser).ID, "LATE01")
	noShow := e.reservation(t, g.ID, lots[0].ID, late, baseTime.Add(time.Hour), baseTime.Add(5*time.Hour))
	bob := e.user(t, "bob@example.com", domain.RoleUser)
	bobCar := e.plate(t, bob.ID, "BOB001")
	svc := NewReservationService(e.core, e.notifier)

	// 12:01, one minute past the show-up deadline of the 10:00-14:00 booking
	e.clock.Advance(3*time.Hour + time.Minute)
	now := e.clock.Now()
	res, err := svc.CreateReservation(ctx, actorOf(bob), domain.CreateReservationDTO{
		GarageID: g.ID, LicencePlateID: bobCar.ID, FromDate: now, ToDate: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, lots[0].ID, res.ParkingLotID)

	released, err := e.store.Reservations.FindByID(ctx, noShow.ID)
	require.NoError(t, err)
	assert.Equal(t, now, released.ReleasedAt.Time)
}

func TestCreateReservation_ConcurrentRequestsForOneLot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 1)
	svc := NewReservationService(e.core, e.notifier)

	const callers = 8
	actors := make([]domain.Actor, callers)
	plates := make([]int, callers)
	for i := range callers {
		u := e.user(t, fmt.Sprintf("driver%d@example.com", i), domain.RoleUser)
		actors[i] = actorOf(u)
		plates[i] = e.plate(t, u.ID, fmt.Sprintf("RACE%02d", i)).ID
	}

	lotID := lots[0].ID
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CreateReservation(ctx, actors[i], domain.CreateReservationDTO{
				GarageID: g.ID, LicencePlateID: plates[i], ParkingLotID: &lotID,
				FromDate: baseTime.Add(time.Hour), ToDate: baseTime.Add(3 * time.Hour),
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := e.store.Reservations.FindByGarageID(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestAssignLot_SkipsBookedLots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 2)
	lp := e.plate(t, e.user(t, "alice@example.com", domain.RoleUser).ID, "ALICE1")
	e.reservation(t, g.ID, lots[0].ID, lp, baseTime.Add(time.Hour), baseTime.Add(3*time.Hour))
	svc := NewReservationService(e.core, e.notifier)

	for i := 0; i < 5; i++ {
		lot, err := svc.AssignLot(ctx, g.ID, baseTime.Add(2*time.Hour), baseTime.Add(4*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, lots[1].ID, lot.ID)
	}

	reservations, err := e.store.Reservations.FindByGarageID(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, reservations, 1, "assigning a lot does not book it")

	_, err = svc.AssignLot(ctx, g.ID, baseTime.Add(4*time.Hour), baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListAndCancelReservations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 2)
	alice := e.user(t, "alice@example.com", domain.RoleUser)
	bob := e.user(t, "bob@example.com", domain.RoleUser)
	admin := e.user(t, "owner@example.com", domain.RoleAdmin)
	aliceRes := e.reservation(t, g.ID, lots[0].ID, e.plate(t, alice.ID, "ALICE1"), baseTime.Add(time.Hour), baseTime.Add(2*time.Hour))
	e.reservation(t, g.ID, lots[1].ID, e.plate(t, bob.ID, "BOB001"), baseTime.Add(time.Hour), baseTime.Add(2*time.Hour))
	svc := NewReservationService(e.core, e.notifier)

	mine, err := svc.List(ctx, actorOf(alice), g.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, aliceRes.ID, mine[0].ID)

	all, err := svc.List(ctx, actorOf(admin), g.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, svc.Cancel(ctx, actorOf(bob), aliceRes.ID), domain.ErrNotFound)
	require.NoError(t, svc.Cancel(ctx, actorOf(alice), aliceRes.ID))
	_, err = e.store.Reservations.FindByID(ctx, aliceRes.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, svc.Cancel(ctx, actorOf(alice), aliceRes.ID), domain.ErrNotFound)
}
