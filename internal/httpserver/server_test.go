package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/radiusdt/vector-gateway/internal/catalog"
	"github.com/radiusdt/vector-gateway/internal/config"
	"github.com/radiusdt/vector-gateway/internal/models"
	"go.uber.org/zap"
)

const testPostbackSecret = "pb-secret"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cat := catalog.NewCatalog(
		[]*models.Offer{
			{ID: "shop", Network: "cityads", BaseDeeplink: "https://n.example/track?u={target}", TargetRequired: true},
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

	cfg := &config.Config{}
	cfg.Postback.Secret = testPostbackSecret
	cfg.Rotator.WarmupRounds = 10
	cfg.Rotator.Epsilon = 0.2

	return NewServer(&Dependencies{
		Catalog: cat,
		Config:  cfg,
		Logger:  zap.NewNop(),
	})
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestClickRedirects(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/click?offer_id=shop&target=http://dest")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (body %s)", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://n.example/track?u=http%3A%2F%2Fdest&sub1=") {
		t.Errorf("unexpected redirect location %q", loc)
	}
}

func TestClickDryRun(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/click?offer_id=shop&target=http://dest&dry=1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if body["click_id"] == "" || body["click_id"] == nil {
		t.Error("missing click_id")
	}
	redirect, _ := body["redirect_to"].(string)
	if !strings.Contains(redirect, "sub1=") {
		t.Errorf("redirect_to missing sub1: %q", redirect)
	}
}

func TestClickValidation(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing offer_id", "/click"},
		{"unknown offer_id", "/click?offer_id=ghost"},
		{"missing required target", "/click?offer_id=shop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			body := decodeJSON(t, rec)
			if body["ok"] != false {
				t.Errorf("ok = %v, want false", body["ok"])
			}
		})
	}
}

func TestPostbackBadSecret(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/postback?key=wrong&sub1=x&payout=10&status=approved")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if rec.Body.String() != "forbidden" {
		t.Errorf("body = %q, want forbidden", rec.Body.String())
	}

	// A rejected postback stores nothing.
	rec = doRequest(t, h, http.MethodGet, "/conversions")
	var convs []interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &convs); err != nil {
		t.Fatalf("invalid conversions response: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("rejected postback was stored: %v", convs)
	}
}

func TestClickPostbackRoundTrip(t *testing.T) {
	h := newTestServer(t)

	// Click through the rotator; warm-up routes the first click to a.
	rec := doRequest(t, h, http.MethodGet, "/click?offer_id=rot-main&dry=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("click status = %d (body %s)", rec.Code, rec.Body.String())
	}
	clickID, _ := decodeJSON(t, rec)["click_id"].(string)
	if clickID == "" {
		t.Fatal("missing click_id")
	}

	rec = doRequest(t, h, http.MethodGet,
		"/postback?key="+testPostbackSecret+"&sub1="+clickID+"&payout=12.5&status=approved&order_id=ord-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("postback status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "OK" {
		t.Errorf("postback body = %q, want OK", rec.Body.String())
	}

	// The approved payout shows up on the routed variant's stats.
	rec = doRequest(t, h, http.MethodGet, "/stats?rotator=rot-main")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats map[string]models.VariantStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats response: %v", err)
	}
	s := stats["a"]
	if s.Clicks != 1 || s.Actions != 1 || s.Approved != 1 || s.RevenueApproved != 12.5 {
		t.Errorf("round-trip stats: got %+v", s)
	}

	// And the conversion is listed with full attribution.
	rec = doRequest(t, h, http.MethodGet, "/conversions")
	var convs []models.ConversionEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &convs); err != nil {
		t.Fatalf("invalid conversions response: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversion, got %d", len(convs))
	}
	conv := convs[0]
	if conv.ClickID != clickID || conv.OfferID != "shop" || conv.OrderID != "ord-1" {
		t.Errorf("unexpected conversion: %+v", conv)
	}
	if conv.RotatorMeta == nil || conv.RotatorMeta.VariantID != "a" {
		t.Errorf("conversion missing rotator attribution: %+v", conv.RotatorMeta)
	}
}

func TestStatsUnknownRotator(t *testing.T) {
	h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/stats?rotator=ghost")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOffersAndRotators(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/offers")
	var offers []models.Offer
	if err := json.Unmarshal(rec.Body.Bytes(), &offers); err != nil {
		t.Fatalf("invalid offers response: %v", err)
	}
	if len(offers) != 1 || offers[0].ID != "shop" {
		t.Errorf("unexpected offers: %+v", offers)
	}

	rec = doRequest(t, h, http.MethodGet, "/rotators")
	var rotators []models.Rotator
	if err := json.Unmarshal(rec.Body.Bytes(), &rotators); err != nil {
		t.Fatalf("invalid rotators response: %v", err)
	}
	if len(rotators) != 1 || rotators[0].Key != "rot-main" {
		t.Errorf("unexpected rotators: %+v", rotators)
	}
}

func TestPullVKForbiddenWithoutSecret(t *testing.T) {
	h := newTestServer(t)
	// CronSecret unset: the endpoint stays closed.
	rec := doRequest(t, h, http.MethodGet, "/cron/pull-vk?key=anything")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
