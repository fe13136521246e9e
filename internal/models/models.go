package models

import (
	"time"
)

// ===========================================
// OFFER / ROTATOR CONFIGURATION
// ===========================================

// Offer is a static affiliate offer definition. Loaded from configuration
// at startup and never mutated at runtime.
type Offer struct {
	ID           string `json:"id"`
	Network      string `json:"network"`
	BaseDeeplink string `json:"base_deeplink"`

	// TargetRequired marks offers whose deep link cannot be built
	// without an explicit target URL.
	TargetRequired bool `json:"target_required,omitempty"`
}

// Variant is one candidate redirect destination inside a rotator.
// Identity is the ID, unique within its rotator.
type Variant struct {
	ID     string `json:"id"`
	Target string `json:"target"`
}

// Rotator is a named traffic-splitting decision point. It maps to exactly
// one underlying offer and owns an ordered list of variants.
type Rotator struct {
	Key      string    `json:"key"`
	OfferID  string    `json:"offer"`
	Variants []Variant `json:"variants"`
}

// ===========================================
// CLICK EVENT
// ===========================================

// RotatorMeta records which rotator variant routed a click. Copied verbatim
// onto the conversion when the postback correlates.
type RotatorMeta struct {
	RotatorKey string `json:"rotator_key"`
	VariantID  string `json:"variant_id"`
}

// ClickEvent is created exactly once per inbound click and never mutated.
type ClickEvent struct {
	ClickID   string    `json:"click_id"`
	Timestamp time.Time `json:"timestamp"`

	OfferID string `json:"offer_id"`
	Network string `json:"network"`
	Target  string `json:"target,omitempty"`

	// Rotator attribution, absent when the click hit an offer directly.
	RotatorMeta *RotatorMeta `json:"rotator_meta,omitempty"`

	// Visitor info, best-effort enrichment.
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	GeoCountry string `json:"geo_country,omitempty"`
}

// ===========================================
// CONVERSION EVENT (POSTBACK)
// ===========================================

// ConversionEvent is appended on postback receipt. Offer, network and
// rotator meta are denormalized from the correlated click at creation time
// so the record stays interpretable if the click is ever pruned.
type ConversionEvent struct {
	ClickID   string    `json:"click_id"`
	Timestamp time.Time `json:"timestamp"`

	Payout   float64 `json:"payout"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
	OrderID  string  `json:"order_id,omitempty"`

	Network string `json:"network,omitempty"`
	OfferID string `json:"offer_id,omitempty"`

	RotatorMeta *RotatorMeta `json:"rotator_meta,omitempty"`
}

// StatusApproved is the postback status that accrues approved revenue.
const StatusApproved = "approved"

// ===========================================
// VARIANT STATS
// ===========================================

// VariantStats are the monotonically incremented counters behind the
// selector's EPC metric. One instance per (rotator key, variant id).
type VariantStats struct {
	Clicks          int64   `json:"clicks"`
	Actions         int64   `json:"actions"`
	Approved        int64   `json:"approved"`
	RevenueApproved float64 `json:"revenue_approved"`
}

// EPC returns earnings per click. The max(1, clicks) floor avoids division
// by zero; it also means a zero-click variant with accrued revenue reports
// its raw revenue as EPC, which is accepted behavior.
func (s VariantStats) EPC() float64 {
	clicks := s.Clicks
	if clicks < 1 {
		clicks = 1
	}
	return s.RevenueApproved / float64(clicks)
}
