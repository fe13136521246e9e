package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/radiusdt/vector-gateway/internal/models"
)

func TestInMemoryEventStoreClickRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore()

	click := &models.ClickEvent{
		ClickID:   "c-1",
		Timestamp: time.Now().UTC(),
		OfferID:   "shop",
		Network:   "cityads",
	}
	if err := store.SaveClick(ctx, click); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetClick(ctx, "c-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.OfferID != "shop" {
		t.Errorf("unexpected click: %+v", got)
	}

	// A miss is (nil, nil), not an error.
	got, err = store.GetClick(ctx, "ghost")
	if err != nil || got != nil {
		t.Errorf("miss: got (%+v, %v), want (nil, nil)", got, err)
	}
}

func TestInMemoryEventStoreConversions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore()

	for i := 0; i < 3; i++ {
		conv := &models.ConversionEvent{
			ClickID: "c-1",
			OrderID: fmt.Sprintf("ord-%d", i),
		}
		if err := store.SaveConversion(ctx, conv); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	byClick, err := store.GetConversionsByClick(ctx, "c-1")
	if err != nil {
		t.Fatalf("get by click failed: %v", err)
	}
	if len(byClick) != 3 {
		t.Errorf("got %d conversions for click, want 3", len(byClick))
	}

	// Listing is most recent first and honors the limit.
	listed, err := store.ListConversions(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("got %d conversions, want 2", len(listed))
	}
	if listed[0].OrderID != "ord-2" || listed[1].OrderID != "ord-1" {
		t.Errorf("unexpected order: %s, %s", listed[0].OrderID, listed[1].OrderID)
	}
}

func TestInMemoryStatsRepoConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryStatsRepo()

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_ = repo.IncrClick(ctx, "rot", "a")
				_ = repo.IncrPostback(ctx, "rot", "a", true, 1)
			}
		}()
	}
	wg.Wait()

	stats, err := repo.Stats(ctx, "rot")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	s := stats["a"]
	want := int64(workers * perWorker)
	if s.Clicks != want {
		t.Errorf("clicks = %d, want %d (lost updates)", s.Clicks, want)
	}
	if s.Actions != want || s.Approved != want {
		t.Errorf("actions = %d approved = %d, want %d", s.Actions, s.Approved, want)
	}
	if s.RevenueApproved != float64(want) {
		t.Errorf("revenue = %v, want %v", s.RevenueApproved, float64(want))
	}
}
