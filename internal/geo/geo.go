package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Provider resolves an IP address to a country code using a MaxMind
// GeoLite2 database. A nil *Provider is valid and resolves everything to
// the empty string.
type Provider struct {
	reader *maxminddb.Reader
}

// NewProvider opens the MaxMind database at the given path.
func NewProvider(dbPath string) (*Provider, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &Provider{reader: reader}, nil
}

// Country returns the ISO country code for the IP, or "" when the IP is
// unparseable or the lookup fails. Enrichment is best-effort.
func (p *Provider) Country(ip string) string {
	if p == nil {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := p.reader.Lookup(parsed, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// Close closes the GeoIP database.
func (p *Provider) Close() error {
	if p == nil || p.reader == nil {
		return nil
	}
	return p.reader.Close()
}
