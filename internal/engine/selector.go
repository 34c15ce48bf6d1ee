package engine

import (
	"math/rand"
	"sync"
	"time"

	"parking_garage/internal/domain"
)

// RandomSource picks an index in [0, n).
type RandomSource interface {
	Intn(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource returns a goroutine-safe source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

type Selector struct {
	rng RandomSource
}

func NewSelector(rng RandomSource) *Selector {
	if rng == nil {
		rng = NewRandomSource(time.Now().UnixNano())
	}
	return &Selector{rng: rng}
}

// Candidates lists lots that are available for [from, to) and not booked.
func (s *Selector) Candidates(r *Resolver, lots []LotState, from, to time.Time, exclude ...int) []LotState {
	var out []LotState
	for _, lot := range lots {
		if containsID(exclude, lot.Lot.ID) {
			continue
		}
		if r.IsAvailable(lot, from, to) && !r.Booked(lot) {
			out = append(out, lot)
		}
	}
	return out
}

// AssignRandomLot picks one candidate uniformly at random.
func (s *Selector) AssignRandomLot(r *Resolver, garageID int, lots []LotState, from, to time.Time, exclude ...int) (*domain.ParkingLot, error) {
	if err := ValidateInterval(from, to); err != nil {
		return nil, err
	}
	candidates := s.Candidates(r, lots, from, to, exclude...)
	if len(candidates) == 0 {
		return nil, &domain.NoLotAvailableError{GarageID: garageID}
	}
	picked := candidates[s.rng.Intn(len(candidates))].Lot
	return &picked, nil
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
