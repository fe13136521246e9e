package rotator

import (
	"math/rand"
	"testing"

	"github.com/radiusdt/vector-gateway/internal/models"
)

// fixedRand returns a scripted sequence of draws.
type fixedRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (f *fixedRand) Float64() float64 {
	v := f.floats[f.fi%len(f.floats)]
	f.fi++
	return v
}

func (f *fixedRand) Intn(n int) int {
	v := f.ints[f.ii%len(f.ints)]
	f.ii++
	return v % n
}

func testVariants(ids ...string) []models.Variant {
	out := make([]models.Variant, len(ids))
	for i, id := range ids {
		out[i] = models.Variant{ID: id, Target: "https://shop.example/" + id}
	}
	return out
}

func TestSelectNoVariants(t *testing.T) {
	s := NewSelector()
	_, _, err := s.Select(nil, nil)
	if err != ErrNoVariants {
		t.Fatalf("expected ErrNoVariants, got %v", err)
	}
}

func TestSelectWarmupRoundRobin(t *testing.T) {
	variants := testVariants("a", "b", "c")
	s := NewSelectorWith(10, 0.2, &fixedRand{floats: []float64{0.99}, ints: []int{0}})

	stats := map[string]models.VariantStats{}
	counts := map[string]int64{}

	// Drive the full warm-up: 3 variants * 10 rounds = 30 clicks.
	for i := 0; i < 30; i++ {
		v, phase, err := s.Select(variants, stats)
		if err != nil {
			t.Fatalf("select failed at click %d: %v", i, err)
		}
		if phase != PhaseWarmup {
			t.Fatalf("click %d: expected warmup phase, got %s", i, phase)
		}

		// Strict round-robin: click i goes to variant i mod 3.
		want := variants[i%3].ID
		if v.ID != want {
			t.Fatalf("click %d: expected variant %s, got %s", i, want, v.ID)
		}

		counts[v.ID]++
		cur := stats[v.ID]
		cur.Clicks++
		stats[v.ID] = cur
	}

	for _, v := range variants {
		if counts[v.ID] != 10 {
			t.Errorf("variant %s got %d warm-up clicks, expected 10", v.ID, counts[v.ID])
		}
	}

	// Warm-up is over; the next selection must not report warmup.
	_, phase, err := s.Select(variants, stats)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if phase == PhaseWarmup {
		t.Error("warm-up did not end after every variant had its rounds")
	}
}

func TestSelectExploitPicksBestEPC(t *testing.T) {
	variants := testVariants("a", "b", "c")
	// Float64 always above epsilon: never explore.
	s := NewSelectorWith(1, 0.2, &fixedRand{floats: []float64{0.95}, ints: []int{0}})

	stats := map[string]models.VariantStats{
		"a": {Clicks: 100, RevenueApproved: 100}, // EPC 1.0
		"b": {Clicks: 100, RevenueApproved: 250}, // EPC 2.5
		"c": {Clicks: 100, RevenueApproved: 50},  // EPC 0.5
	}

	v, phase, err := s.Select(variants, stats)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if phase != PhaseExploit {
		t.Fatalf("expected exploit phase, got %s", phase)
	}
	if v.ID != "b" {
		t.Errorf("expected best-EPC variant b, got %s", v.ID)
	}
}

func TestSelectExploitTieBreaksToFirst(t *testing.T) {
	variants := testVariants("a", "b")
	s := NewSelectorWith(1, 0.2, &fixedRand{floats: []float64{0.95}, ints: []int{0}})

	stats := map[string]models.VariantStats{
		"a": {Clicks: 50, RevenueApproved: 100},
		"b": {Clicks: 50, RevenueApproved: 100},
	}

	v, _, err := s.Select(variants, stats)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if v.ID != "a" {
		t.Errorf("tie must resolve to the first variant, got %s", v.ID)
	}
}

func TestSelectExplore(t *testing.T) {
	variants := testVariants("a", "b", "c")
	// Float64 below epsilon forces exploration; Intn picks index 2.
	s := NewSelectorWith(1, 0.2, &fixedRand{floats: []float64{0.1}, ints: []int{2}})

	stats := map[string]models.VariantStats{
		"a": {Clicks: 100, RevenueApproved: 500},
		"b": {Clicks: 100},
		"c": {Clicks: 100},
	}

	v, phase, err := s.Select(variants, stats)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if phase != PhaseExplore {
		t.Fatalf("expected explore phase, got %s", phase)
	}
	if v.ID != "c" {
		t.Errorf("expected explored variant c, got %s", v.ID)
	}
}

func TestSelectExploitDominatesAfterWarmup(t *testing.T) {
	variants := testVariants("a", "b")
	rng := &lockedRand{rng: rand.New(rand.NewSource(42))}
	s := NewSelectorWith(1, 0.2, rng)

	stats := map[string]models.VariantStats{
		"a": {Clicks: 100, RevenueApproved: 10},  // EPC 0.1
		"b": {Clicks: 100, RevenueApproved: 300}, // EPC 3.0
	}

	const n = 10000
	bCount := 0
	for i := 0; i < n; i++ {
		v, _, err := s.Select(variants, stats)
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if v.ID == "b" {
			bCount++
		}
	}

	// Exploit 80% of the time plus half of the 20% exploration: ~90%.
	if ratio := float64(bCount) / n; ratio < 0.85 {
		t.Errorf("best variant picked %.1f%% of the time, expected ~90%%", ratio*100)
	}
}

func TestEPCZeroClicksFloor(t *testing.T) {
	s := models.VariantStats{Clicks: 0, RevenueApproved: 7.5}
	if got := s.EPC(); got != 7.5 {
		t.Errorf("zero-click EPC floor: got %v, want 7.5", got)
	}
	s = models.VariantStats{Clicks: 3, RevenueApproved: 7.5}
	if got := s.EPC(); got != 2.5 {
		t.Errorf("EPC: got %v, want 2.5", got)
	}
}
