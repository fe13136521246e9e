package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/radiusdt/vector-gateway/internal/models"
)

// TargetPlaceholder is the literal token substituted with the
// percent-encoded target in offer templates.
const TargetPlaceholder = "{target}"

// ErrUnknownNetwork is returned for a network with no builder.
var ErrUnknownNetwork = errors.New("unknown network")

// Builder constructs a fully-qualified redirect URL for one affiliate
// network. Two templating modes: a {target} placeholder in the offer's base
// deeplink, or, absent the placeholder, the target appended as the
// network's named query parameter. Subs are appended after target
// substitution; existing query parameters keep their position.
type Builder interface {
	Build(offer *models.Offer, target string, subs map[string]string) (string, error)
}

// ForNetwork returns the builder for a network key. The set of supported
// networks is closed and config-driven.
func ForNetwork(network string) (Builder, error) {
	switch network {
	case "admitad":
		return AdmitadBuilder{}, nil
	case "cityads":
		return CityAdsBuilder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
}

// AdmitadBuilder builds Admitad deep links. Without a placeholder the
// target goes into the ulp parameter, and sub1 is renamed to subid (the
// network's subscriber-id convention) before subs are appended.
type AdmitadBuilder struct{}

func (AdmitadBuilder) Build(offer *models.Offer, target string, subs map[string]string) (string, error) {
	u, err := insertTarget(offer.BaseDeeplink, target, "ulp")
	if err != nil {
		return "", err
	}

	normalized := make(map[string]string, len(subs))
	for k, v := range subs {
		normalized[k] = v
	}
	if v, ok := normalized["sub1"]; ok {
		if _, exists := normalized["subid"]; !exists {
			normalized["subid"] = v
		}
		delete(normalized, "sub1")
	}

	return appendSubs(u, normalized)
}

// CityAdsBuilder builds CityAds deep links; the fallback target parameter
// is url and subs are appended as-is.
type CityAdsBuilder struct{}

func (CityAdsBuilder) Build(offer *models.Offer, target string, subs map[string]string) (string, error) {
	u, err := insertTarget(offer.BaseDeeplink, target, "url")
	if err != nil {
		return "", err
	}
	return appendSubs(u, subs)
}

// insertTarget applies the placeholder substitution, or sets the named
// query parameter when the template carries no placeholder.
func insertTarget(base, target, paramName string) (string, error) {
	if strings.Contains(base, TargetPlaceholder) {
		return strings.ReplaceAll(base, TargetPlaceholder, url.QueryEscape(target)), nil
	}
	if target == "" {
		return base, nil
	}
	return setQueryParam(base, paramName, target)
}

// appendSubs sets every sub as a query parameter, in sorted key order for
// deterministic output.
func appendSubs(rawURL string, subs map[string]string) (string, error) {
	keys := make([]string, 0, len(subs))
	for k := range subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, k := range keys {
		rawURL, err = setQueryParam(rawURL, k, subs[k])
		if err != nil {
			return "", err
		}
	}
	return rawURL, nil
}

// setQueryParam sets key=value on the URL, overwriting an existing value in
// place and otherwise appending at the end. Unlike url.Values.Encode it
// never reorders parameters already present.
func setQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid deeplink %q: %w", rawURL, err)
	}

	encoded := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	if u.RawQuery == "" {
		u.RawQuery = encoded
		return u.String(), nil
	}

	pairs := strings.Split(u.RawQuery, "&")
	replaced := false
	for i, pair := range pairs {
		k := pair
		if idx := strings.Index(pair, "="); idx >= 0 {
			k = pair[:idx]
		}
		if decoded, err := url.QueryUnescape(k); err == nil && decoded == key {
			pairs[i] = encoded
			replaced = true
			break
		}
	}
	if !replaced {
		pairs = append(pairs, encoded)
	}

	u.RawQuery = strings.Join(pairs, "&")
	return u.String(), nil
}
