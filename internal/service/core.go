package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/logger"
	"parking_garage/internal/metrics"
	"parking_garage/internal/repository"
	"parking_garage/internal/retry"
)

// Core is what every engine-backed service shares: the store, the engine
// configuration, the lot selector and the clock.
type Core struct {
	Store    *repository.Store
	Engine   engine.Config
	Selector *engine.Selector
	Metrics  *metrics.Metrics
	Retry    *retry.Config
	Clock    func() time.Time
}

func NewCore(store *repository.Store, cfg engine.Config, selector *engine.Selector, m *metrics.Metrics) *Core {
	if selector == nil {
		selector = engine.NewSelector(nil)
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Core{
		Store:    store,
		Engine:   cfg,
		Selector: selector,
		Metrics:  m,
		Retry:    retry.DefaultConfig(),
		Clock:    time.Now,
	}
}

func (c *Core) now() time.Time {
	return c.Clock().In(time.UTC)
}

// inTx runs fn in one transaction and starts over when the store reports a
// serialization failure or deadlock.
func (c *Core) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	op := retry.OnlyIf(
		func(err error) bool { return errors.Is(err, repository.ErrRetryable) },
		func(ctx context.Context) error { return c.Store.Tx.WithinTx(ctx, fn) },
	)
	res := retry.New(c.Retry).DoWithCallback(ctx, op, func(attempt int, err error, next time.Duration) {
		c.Metrics.RetriedTransactions.Inc()
		logger.Named("tx").Warn("retrying transaction",
			zap.Int("attempt", attempt), zap.Duration("backoff", next), zap.Error(err))
	})
	return translate(res.Err)
}

// translate maps storage conflicts that escaped the engine checks onto the
// domain error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrConflict) && !errors.Is(err, domain.ErrConflict) {
		return &domain.ConflictError{Msg: err.Error()}
	}
	return err
}

// resolver binds the engine to garage's settings at the current instant.
func (c *Core) resolver(garage *domain.Garage) *engine.Resolver {
	return engine.NewResolver(c.Engine.ForGarage(garage.Settings), c.now())
}

func (c *Core) garage(ctx context.Context, id int, lock bool) (*domain.Garage, error) {
	var (
		g   *domain.Garage
		err error
	)
	if lock {
		g, err = c.Store.Garages.LockForUpdate(ctx, id)
	} else {
		g, err = c.Store.Garages.FindByID(ctx, id)
	}
	if err != nil {
		return nil, repository.NotFound(err, repository.EntityGarage, id)
	}
	return g, nil
}

// lotStates builds the engine snapshot of a garage: every lot with its
// reservations and the plate parked in it.
func (c *Core) lotStates(ctx context.Context, garageID int) ([]engine.LotState, error) {
	lots, err := c.Store.ParkingLots.FindByGarageID(ctx, garageID)
	if err != nil {
		return nil, fmt.Errorf("load lots of garage %d: %w", garageID, err)
	}
	reservations, err := c.Store.Reservations.FindByGarageID(ctx, garageID)
	if err != nil {
		return nil, fmt.Errorf("load reservations of garage %d: %w", garageID, err)
	}
	inside, err := c.Store.LicencePlates.FindInsideGarage(ctx, garageID)
	if err != nil {
		return nil, fmt.Errorf("load plates inside garage %d: %w", garageID, err)
	}

	plates := make(map[int]*domain.LicencePlate, len(inside))
	for i := range inside {
		plates[inside[i].ID] = &inside[i]
	}
	byLot := make(map[int][]domain.Reservation)
	for _, res := range reservations {
		byLot[res.ParkingLotID] = append(byLot[res.ParkingLotID], res)
	}

	states := make([]engine.LotState, 0, len(lots))
	for _, lot := range lots {
		s := engine.LotState{Lot: lot, Reservations: byLot[lot.ID]}
		if lot.OccupantPlateID.Valid {
			s.Occupant = plates[int(lot.OccupantPlateID.Int64)]
		}
		states = append(states, s)
	}
	return states, nil
}

// releaseLapsed marks every lapsed reservation in states as released so the
// storage exclusion stops counting it. states is updated in place.
func (c *Core) releaseLapsed(ctx context.Context, r *engine.Resolver, states []engine.LotState) error {
	for i := range states {
		for j := range states[i].Reservations {
			res := &states[i].Reservations[j]
			if !r.Lapsed(*res) {
				continue
			}
			res.ReleasedAt = null.TimeFrom(r.Now())
			if _, err := c.Store.Reservations.Update(ctx, res); err != nil {
				return fmt.Errorf("release reservation %d: %w", res.ID, err)
			}
		}
	}
	return nil
}

func findState(states []engine.LotState, lotID int) (int, bool) {
	for i := range states {
		if states[i].Lot.ID == lotID {
			return i, true
		}
	}
	return -1, false
}

// afterCommit collects side effects that may only run once the transaction
// has committed. It is reset at the start of every attempt.
type afterCommit []func(ctx context.Context)

func (a *afterCommit) add(fn func(ctx context.Context)) { *a = append(*a, fn) }
func (a *afterCommit) reset()                            { *a = (*a)[:0] }

func (a afterCommit) run(ctx context.Context) {
	for _, fn := range a {
		fn(ctx)
	}
}

// Notifier delivers a message to one user.
type Notifier interface {
	Notify(ctx context.Context, userID int, title, content string)
}

// GateEventBroadcaster pushes gate activity to connected dashboards.
type GateEventBroadcaster interface {
	BroadcastGateEvent(event domain.GateEventNotification)
}

// BarrierController opens a garage barrier.
type BarrierController interface {
	OpenBarrier(ctx context.Context, garageID int, direction domain.GateDirection, reason string) error
}

// PlateRecognizer reads a licence plate off a camera frame.
type PlateRecognizer interface {
	RecognizePlate(ctx context.Context, image []byte) (string, float32, error)
}

// DetectionGuard suppresses repeated camera reads.
type DetectionGuard interface {
	Allow(ctx context.Context, garageID int, plate string) (bool, error)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, int, string, string) {}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastGateEvent(domain.GateEventNotification) {}

func notifyOrLog(log *logger.Logger, n Notifier) Notifier {
	if n != nil {
		return n
	}
	log.Debug("no notifier configured, user notifications are dropped")
	return noopNotifier{}
}

func logErr(log *logger.Logger, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	log.Error(msg, append(fields, zap.Error(err))...)
}
