package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/radiusdt/vector-gateway/internal/models"
)

var (
	// ErrOfferNotFound is returned for an offer id absent from the catalog.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrRotatorNotFound is returned for a rotator key absent from the catalog.
	ErrRotatorNotFound = errors.New("rotator not found")
)

// Catalog holds the immutable offer and rotator configuration. It is loaded
// once at startup; lookups are safe for concurrent use.
type Catalog struct {
	offers   map[string]*models.Offer
	rotators map[string]*models.Rotator
}

// Load reads offer and rotator configuration from JSON files. Both files
// hold a JSON object keyed by offer id / rotator key. An empty rotators
// path is allowed (no rotators configured).
func Load(offersPath, rotatorsPath string) (*Catalog, error) {
	offers := make(map[string]*models.Offer)
	if err := readJSONFile(offersPath, &offers); err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}
	for id, o := range offers {
		o.ID = id
	}

	rotators := make(map[string]*models.Rotator)
	if rotatorsPath != "" {
		if err := readJSONFile(rotatorsPath, &rotators); err != nil {
			return nil, fmt.Errorf("failed to load rotators: %w", err)
		}
	}
	for key, r := range rotators {
		r.Key = key
		if len(r.Variants) == 0 {
			return nil, fmt.Errorf("rotator %q has no variants", key)
		}
		if _, ok := offers[r.OfferID]; !ok {
			return nil, fmt.Errorf("rotator %q references unknown offer %q", key, r.OfferID)
		}
	}

	return &Catalog{offers: offers, rotators: rotators}, nil
}

// NewCatalog builds a catalog from already parsed configuration. Used by
// tests and embedded setups.
func NewCatalog(offers []*models.Offer, rotators []*models.Rotator) *Catalog {
	c := &Catalog{
		offers:   make(map[string]*models.Offer, len(offers)),
		rotators: make(map[string]*models.Rotator, len(rotators)),
	}
	for _, o := range offers {
		c.offers[o.ID] = o
	}
	for _, r := range rotators {
		c.rotators[r.Key] = r
	}
	return c
}

// OfferByID returns the offer for the given id.
func (c *Catalog) OfferByID(id string) (*models.Offer, error) {
	o, ok := c.offers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, id)
	}
	return o, nil
}

// RotatorByKey returns the rotator for the given key.
func (c *Catalog) RotatorByKey(key string) (*models.Rotator, error) {
	r, ok := c.rotators[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRotatorNotFound, key)
	}
	return r, nil
}

// HasRotator reports whether the key names a configured rotator.
func (c *Catalog) HasRotator(key string) bool {
	_, ok := c.rotators[key]
	return ok
}

// HasVariant reports whether the rotator exists and owns the variant.
func (c *Catalog) HasVariant(rotatorKey, variantID string) bool {
	r, ok := c.rotators[rotatorKey]
	if !ok {
		return false
	}
	for _, v := range r.Variants {
		if v.ID == variantID {
			return true
		}
	}
	return false
}

// Offers returns all offers sorted by id.
func (c *Catalog) Offers() []*models.Offer {
	out := make([]*models.Offer, 0, len(c.offers))
	for _, o := range c.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rotators returns all rotators sorted by key.
func (c *Catalog) Rotators() []*models.Rotator {
	out := make([]*models.Rotator, 0, len(c.rotators))
	for _, r := range c.rotators {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
