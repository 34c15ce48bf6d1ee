package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type fixture struct {
	store  *repository.Store
	user   *domain.User
	garage *domain.Garage
	lot    *domain.ParkingLot
	plate  *domain.LicencePlate
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := NewStore()

	user, err := store.Users.Create(ctx, &domain.User{Email: "owner@example.com", Role: domain.RoleAdmin, Kind: domain.UserRegistered})
	require.NoError(t, err)
	garage, err := store.Garages.Create(ctx, &domain.Garage{OwnerID: user.ID, Name: "Central"})
	require.NoError(t, err)
	lot, err := store.ParkingLots.Create(ctx, &domain.ParkingLot{GarageID: garage.ID, LotNumber: 1})
	require.NoError(t, err)
	plate, err := store.LicencePlates.Create(ctx, &domain.LicencePlate{UserID: user.ID, Plate: "MHAB123", Enabled: true})
	require.NoError(t, err)
	return fixture{store: store, user: user, garage: garage, lot: lot, plate: plate}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := f.store.Garages.AdjustEntered(ctx, f.garage.ID, 1); err != nil {
			return err
		}
		if _, err := f.store.ParkingLots.Create(ctx, &domain.ParkingLot{GarageID: f.garage.ID, LotNumber: 2}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	g, err := f.store.Garages.FindByID(ctx, f.garage.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Entered)
	lots, err := f.store.ParkingLots.FindByGarageID(ctx, f.garage.ID)
	require.NoError(t, err)
	assert.Len(t, lots, 1)
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return f.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := f.store.Garages.AdjustEntered(ctx, f.garage.ID, 1)
			return err
		})
	})
	require.NoError(t, err)

	g, err := f.store.Garages.FindByID(ctx, f.garage.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Entered)
}

func TestAdjustEntered_NeverNegative(t *testing.T) {
	f := newFixture(t)
	entered, err := f.store.Garages.AdjustEntered(context.Background(), f.garage.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, entered)
}

func TestReservations_ExclusionConstraint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	newRes := func(from, to time.Time) *domain.Reservation {
		return &domain.Reservation{GarageID: f.garage.ID, UserID: f.user.ID, LicencePlateID: f.plate.ID,
			ParkingLotID: f.lot.ID, FromDate: from, ToDate: to}
	}

	first, err := f.store.Reservations.Create(ctx, newRes(base, base.Add(2*time.Hour)))
	require.NoError(t, err)

	_, err = f.store.Reservations.Create(ctx, newRes(base.Add(time.Hour), base.Add(3*time.Hour)))
	assert.ErrorIs(t, err, repository.ErrConflict)

	adjacent, err := f.store.Reservations.Create(ctx, newRes(base.Add(2*time.Hour), base.Add(3*time.Hour)))
	require.NoError(t, err)

	first.ToDate = base.Add(150 * time.Minute)
	_, err = f.store.Reservations.Update(ctx, first)
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, f.store.Reservations.Delete(ctx, adjacent.ID))
	_, err = f.store.Reservations.Update(ctx, first)
	assert.NoError(t, err)
}

func TestReservations_ReleasedReservationFreesLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	noShow, err := f.store.Reservations.Create(ctx, &domain.Reservation{GarageID: f.garage.ID, UserID: f.user.ID,
		LicencePlateID: f.plate.ID, ParkingLotID: f.lot.ID, FromDate: base, ToDate: base.Add(4 * time.Hour)})
	require.NoError(t, err)

	late := &domain.Reservation{GarageID: f.garage.ID, UserID: f.user.ID, LicencePlateID: f.plate.ID,
		ParkingLotID: f.lot.ID, FromDate: base.Add(2 * time.Hour), ToDate: base.Add(3 * time.Hour)}
	_, err = f.store.Reservations.Create(ctx, late)
	require.ErrorIs(t, err, repository.ErrConflict)

	noShow.ReleasedAt = null.TimeFrom(base.Add(2 * time.Hour))
	_, err = f.store.Reservations.Update(ctx, noShow)
	require.NoError(t, err)

	_, err = f.store.Reservations.Create(ctx, late)
	require.NoError(t, err)

	stored, err := f.store.Reservations.FindByID(ctx, noShow.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReleasedAt.Valid)
}

func TestGarages_LocationIsCopied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := *f.garage
	g.Location = &domain.Location{Country: "Belgium", Province: "ANT", Municipality: "Antwerpen", PostCode: 2000, Street: "Meir", Number: 1}
	_, err := f.store.Garages.Update(ctx, &g)
	require.NoError(t, err)
	g.Location.Street = "Groenplaats"

	stored, err := f.store.Garages.FindByID(ctx, f.garage.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Location)
	assert.Equal(t, "Meir", stored.Location.Street)

	g.Location = nil
	_, err = f.store.Garages.Update(ctx, &g)
	require.NoError(t, err)
	stored, err = f.store.Garages.FindByID(ctx, f.garage.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Location)
}

func TestLicencePlates_UniqueAndInside(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.LicencePlates.Create(ctx, &domain.LicencePlate{UserID: f.user.ID, Plate: "MHAB123"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	f.plate.Enter(f.garage.ID, time.Now())
	_, err = f.store.LicencePlates.Update(ctx, f.plate)
	require.NoError(t, err)

	inside, err := f.store.LicencePlates.FindInsideGarage(ctx, f.garage.ID)
	require.NoError(t, err)
	require.Len(t, inside, 1)
	assert.Equal(t, f.plate.ID, inside[0].ID)
}

func TestUserDelete_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Reservations.Create(ctx, &domain.Reservation{GarageID: f.garage.ID, UserID: f.user.ID,
		LicencePlateID: f.plate.ID, ParkingLotID: f.lot.ID,
		FromDate: time.Now(), ToDate: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	require.NoError(t, f.store.Users.Delete(ctx, f.user.ID))

	_, err = f.store.LicencePlates.FindByID(ctx, f.plate.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	remaining, err := f.store.Reservations.FindByGarageID(ctx, f.garage.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRegistry_MustExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.store.Registry()

	assert.NoError(t, reg.MustExist(ctx, repository.EntityGarage, f.garage.ID))

	err := reg.MustExist(ctx, repository.EntityParkingLot, 999)
	require.ErrorIs(t, err, domain.ErrNotFound)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, repository.EntityParkingLot, nf.Entity)

	assert.ErrorIs(t, reg.MustExist(ctx, "spaceship", 1), domain.ErrValidation)
}

func TestDetectionLogs_DeleteOlderThan(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.DetectionLogs.Create(ctx, &domain.DetectionLog{ReceivedAt: now.Add(-48 * time.Hour), Source: domain.SourceAPI}))
	require.NoError(t, store.DetectionLogs.Create(ctx, &domain.DetectionLog{ReceivedAt: now, Source: domain.SourceQueue}))

	n, err := store.DetectionLogs.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
