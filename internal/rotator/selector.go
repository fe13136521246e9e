package rotator

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/radiusdt/vector-gateway/internal/models"
)

// Selection phases, reported alongside the chosen variant for metrics.
const (
	PhaseWarmup  = "warmup"
	PhaseExploit = "exploit"
	PhaseExplore = "explore"
)

// Defaults for the two-phase strategy.
const (
	DefaultWarmupRounds = 10
	DefaultEpsilon      = 0.2
)

// ErrNoVariants is returned when a rotator has an empty variant set.
var ErrNoVariants = errors.New("rotator has no variants")

// Rand is the random source the selector draws from. *rand.Rand satisfies
// it; tests inject a seeded instance for deterministic runs.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// lockedRand guards a *rand.Rand for concurrent handlers.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// Selector picks one variant per click using a two-phase strategy:
// a strict round-robin warm-up until every variant has WarmupRounds clicks,
// then epsilon-greedy exploitation of the best EPC. Selection is pure given
// a stats snapshot; the caller records the resulting click.
type Selector struct {
	warmupRounds int
	epsilon      float64
	rng          Rand
}

// NewSelector creates a selector with the default warm-up and epsilon,
// seeded from the clock.
func NewSelector() *Selector {
	return NewSelectorWith(DefaultWarmupRounds, DefaultEpsilon, nil)
}

// NewSelectorWith creates a selector with explicit parameters and random
// source. A nil rng falls back to a clock-seeded source.
func NewSelectorWith(warmupRounds int, epsilon float64, rng Rand) *Selector {
	if rng == nil {
		rng = &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	return &Selector{
		warmupRounds: warmupRounds,
		epsilon:      epsilon,
		rng:          rng,
	}
}

// Select returns the variant to route the next click to, and the phase the
// decision was made in. Variants absent from stats count as all-zero.
func (s *Selector) Select(variants []models.Variant, stats map[string]models.VariantStats) (models.Variant, string, error) {
	if len(variants) == 0 {
		return models.Variant{}, "", ErrNoVariants
	}

	var totalClicks int64
	for _, v := range variants {
		totalClicks += stats[v.ID].Clicks
	}

	// Warm-up: cycle round-robin until every variant has had its rounds,
	// regardless of early performance.
	if totalClicks < int64(len(variants)*s.warmupRounds) {
		idx := int(totalClicks % int64(len(variants)))
		return variants[idx], PhaseWarmup, nil
	}

	if s.rng.Float64() < s.epsilon {
		return variants[s.rng.Intn(len(variants))], PhaseExplore, nil
	}

	// Exploit: strictly greatest EPC wins, ties resolve to the first
	// variant in iteration order.
	best := variants[0]
	bestEPC := stats[best.ID].EPC()
	for _, v := range variants[1:] {
		if epc := stats[v.ID].EPC(); epc > bestEPC {
			best = v
			bestEPC = epc
		}
	}
	return best, PhaseExploit, nil
}
