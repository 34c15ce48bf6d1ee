package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/metrics"
	"parking_garage/internal/payment"
	"parking_garage/internal/repository"
	"parking_garage/internal/repository/memory"
	"parking_garage/internal/retry"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	store    *repository.Store
	core     *Core
	clock    *clock
	notifier *recordingNotifier
	barrier  *fakeBarrier
	events   *fakeBroadcaster
	payments *fakeGateway
	auth     *AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	c := &clock{now: baseTime}
	core := NewCore(store, engine.DefaultConfig(), engine.NewSelector(engine.NewRandomSource(7)), metrics.NewUnregistered())
	core.Clock = c.Now
	core.Retry = &retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	return &env{
		store:    store,
		core:     core,
		clock:    c,
		notifier: &recordingNotifier{},
		barrier:  &fakeBarrier{},
		events:   &fakeBroadcaster{},
		payments: &fakeGateway{},
		auth:     NewAuthService(store.Users, "test-secret", time.Hour, "test.local").WithPasswordCost(bcrypt.MinCost),
	}
}

func (e *env) gate(deps GateDeps) *GateService {
	if deps.Auth == nil {
		deps.Auth = e.auth
	}
	if deps.Notifier == nil {
		deps.Notifier = e.notifier
	}
	if deps.Barrier == nil {
		deps.Barrier = e.barrier
	}
	if deps.Events == nil {
		deps.Events = e.events
	}
	return NewGateService(e.core, deps)
}

func (e *env) garage(t *testing.T, lots int) (*domain.Garage, []domain.ParkingLot) {
	t.Helper()
	ctx := context.Background()
	owner := e.user(t, "owner@example.com", domain.RoleAdmin)
	g, err := e.store.Garages.Create(ctx, &domain.Garage{OwnerID: owner.ID, Name: "Central"})
	require.NoError(t, err)
	out := make([]domain.ParkingLot, 0, lots)
	for i := 1; i <= lots; i++ {
		lot, err := e.store.ParkingLots.Create(ctx, &domain.ParkingLot{GarageID: g.ID, LotNumber: i})
		require.NoError(t, err)
		out = append(out, *lot)
	}
	return g, out
}

func (e *env) user(t *testing.T, email, role string) *domain.User {
	t.Helper()
	if u, err := e.store.Users.FindByEmail(context.Background(), email); err == nil {
		return u
	}
	u, err := e.store.Users.Create(context.Background(), &domain.User{Email: email, Role: role, Kind: domain.UserRegistered})
	require.NoError(t, err)
	return u
}

func (e *env) payingUser(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := e.store.Users.Create(context.Background(), &domain.User{
		Email: email, Role: domain.RoleUser, Kind: domain.UserRegistered,
		HasAutomaticPayment: true, StripeCustomerID: null.StringFrom("cus_123"),
	})
	require.NoError(t, err)
	return u
}

func (e *env) plate(t *testing.T, userID int, plate string) *domain.LicencePlate {
	t.Helper()
	lp, err := e.store.LicencePlates.Create(context.Background(), &domain.LicencePlate{UserID: userID, Plate: plate, Enabled: true})
	require.NoError(t, err)
	return lp
}

func (e *env) hourlyPrice(t *testing.T, garageID int, amount string) {
	t.Helper()
	_, err := e.store.Prices.Create(context.Background(), &domain.Price{
		GarageID: garageID, Label: "1 hour", Duration: time.Hour,
		Price: decimal.RequireFromString(amount), Currency: "EUR",
	})
	require.NoError(t, err)
}

func (e *env) reservation(t *testing.T, garageID, lotID int, lp *domain.LicencePlate, from, to time.Time) *domain.Reservation {
	t.Helper()
	res, err := e.store.Reservations.Create(context.Background(), &domain.Reservation{
		GarageID: garageID, UserID: lp.UserID, LicencePlateID: lp.ID, ParkingLotID: lotID,
		FromDate: from, ToDate: to,
	})
	require.NoError(t, err)
	return res
}

type sentNotification struct {
	UserID  int
	Title   string
	Content string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID int, title, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Content: content})
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Title)
	}
	return out
}

type barrierCall struct {
	GarageID  int
	Direction domain.GateDirection
}

type fakeBarrier struct {
	mu    sync.Mutex
	calls []barrierCall
}

func (b *fakeBarrier) OpenBarrier(_ context.Context, garageID int, direction domain.GateDirection, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, barrierCall{GarageID: garageID, Direction: direction})
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []domain.GateEventNotification
}

func (f *fakeBroadcaster) BroadcastGateEvent(ev domain.GateEventNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.CollectRequest
	err      error
}

func (g *fakeGateway) Collect(_ context.Context, req payment.CollectRequest) (*payment.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.Invoice{ID: "in_test", Status: "open"}, nil
}

type fakeGuard struct {
	seen map[string]bool
}

func (g *fakeGuard) Allow(_ context.Context, garageID int, plate string) (bool, error) {
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	key := fmt.Sprintf("%d:%s", garageID, plate)
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

type fakeRecognizer struct {
	plate string
	err   error
}

func (r fakeRecognizer) RecognizePlate(context.Context, []byte) (string, float32, error) {
	return r.plate, 99.1, r.err
}
