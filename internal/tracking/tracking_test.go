package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/radiusdt/vector-gateway/internal/catalog"
	"github.com/radiusdt/vector-gateway/internal/models"
	"github.com/radiusdt/vector-gateway/internal/rotator"
	"github.com/radiusdt/vector-gateway/internal/storage"
	"go.uber.org/zap"
)

type fixture struct {
	service    *Service
	eventStore *storage.InMemoryEventStore
	aggregator *rotator.Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := catalog.NewCatalog(
		[]*models.Offer{
			{ID: "shop", Network: "cityads", BaseDeeplink: "https://n.example/track?u={target}", TargetRequired: true},
			{ID: "fixed", Network: "admitad", BaseDeeplink: "https://ad.example/g/token/?ulp=https%3A%2F%2Ffixed.example"},
		},
		[]*models.Rotator{{
			Key:     "rot-main",
			OfferID: "shop",
			Variants: []models.Variant{
				{ID: "a", Target: "https://shop.example/a"},
				{ID: "b", Target: "https://shop.example/b"},
			},
		}},
	)

	eventStore := storage.NewInMemoryEventStore()
	agg := rotator.NewAggregator(storage.NewInMemoryStatsRepo(), cat, zap.NewNop())
	// Warm-up only, no randomness involved for two variants in tests.
	sel := rotator.NewSelectorWith(10, 0, nil)

	return &fixture{
		service:    NewService(cat, sel, agg, eventStore, nil, nil, zap.NewNop()),
		eventStore: eventStore,
		aggregator: agg,
	}
}

func TestRegisterClickDirectOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.RegisterClick(ctx, &ClickParams{
		OfferID: "shop",
		Target:  "http://dest",
		IP:      "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("register click failed: %v", err)
	}

	if result.ClickID == "" {
		t.Error("expected a click id")
	}
	want := "https://n.example/track?u=http%3A%2F%2Fdest&sub1=" + result.ClickID
	if result.RedirectTo != want {
		t.Errorf("redirect = %q, want %q", result.RedirectTo, want)
	}

	click, err := f.eventStore.GetClick(ctx, result.ClickID)
	if err != nil {
		t.Fatalf("get click failed: %v", err)
	}
	if click == nil {
		t.Fatal("click was not persisted")
	}
	if click.OfferID != "shop" || click.Network != "cityads" || click.IP != "203.0.113.7" {
		t.Errorf("unexpected click event: %+v", click)
	}
	if click.RotatorMeta != nil {
		t.Error("direct offer click must not carry rotator meta")
	}
}

func TestRegisterClickThroughRotator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.RegisterClick(ctx, &ClickParams{OfferID: "rot-main"})
	if err != nil {
		t.Fatalf("register click failed: %v", err)
	}

	click, _ := f.eventStore.GetClick(ctx, result.ClickID)
	if click == nil {
		t.Fatal("click was not persisted")
	}
	// Substitution: the stored offer is the rotator's offer, the target the
	// variant's, and attribution points at the variant.
	if click.OfferID != "shop" {
		t.Errorf("offer = %q, want shop", click.OfferID)
	}
	if click.RotatorMeta == nil {
		t.Fatal("rotator click must carry rotator meta")
	}
	if click.RotatorMeta.RotatorKey != "rot-main" || click.RotatorMeta.VariantID != "a" {
		t.Errorf("unexpected rotator meta: %+v", click.RotatorMeta)
	}
	if click.Target != "https://shop.example/a" {
		t.Errorf("target = %q, want variant a's target", click.Target)
	}
	if !strings.Contains(result.RedirectTo, "u=https%3A%2F%2Fshop.example%2Fa") {
		t.Errorf("redirect does not carry the variant target: %q", result.RedirectTo)
	}

	stats, err := f.aggregator.Stats(ctx, "rot-main")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["a"].Clicks != 1 {
		t.Errorf("variant a clicks = %d, want 1", stats["a"].Clicks)
	}
}

func TestRegisterClickRotatorRoundRobin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := f.service.RegisterClick(ctx, &ClickParams{OfferID: "rot-main"}); err != nil {
			t.Fatalf("click %d failed: %v", i, err)
		}
	}

	stats, _ := f.aggregator.Stats(ctx, "rot-main")
	if stats["a"].Clicks != 2 || stats["b"].Clicks != 2 {
		t.Errorf("warm-up must alternate variants: %+v", stats)
	}
}

func TestRegisterClickUnknownOffer(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.RegisterClick(context.Background(), &ClickParams{OfferID: "ghost"})
	if !errors.Is(err, catalog.ErrOfferNotFound) {
		t.Errorf("expected ErrOfferNotFound, got %v", err)
	}
}

func TestRegisterClickTargetRequired(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.RegisterClick(context.Background(), &ClickParams{OfferID: "shop"})
	if !errors.Is(err, ErrTargetRequired) {
		t.Errorf("expected ErrTargetRequired, got %v", err)
	}
}

func TestRegisterClickOptionalTarget(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.RegisterClick(context.Background(), &ClickParams{OfferID: "fixed"})
	if err != nil {
		t.Fatalf("register click failed: %v", err)
	}
	// No placeholder and no target: only the sub is appended, renamed per
	// the network convention.
	want := "https://ad.example/g/token/?ulp=https%3A%2F%2Ffixed.example&subid=" + result.ClickID
	if result.RedirectTo != want {
		t.Errorf("redirect = %q, want %q", result.RedirectTo, want)
	}
}
