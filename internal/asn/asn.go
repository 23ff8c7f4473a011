// Package asn annotates public traceroute hops with their autonomous system.
//
// Lookups use a MaxMind GeoLite2-ASN (or compatible) MMDB file. The database
// is optional: without it hops are reported without ASN information.
package asn

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"

	"github.com/oschwald/maxminddb-golang"
)

// ErrDatabaseNotFound is returned by Open when the MMDB file does not exist.
var ErrDatabaseNotFound = errors.New("ASN database not found")

// record maps the fields of a GeoLite2-ASN entry.
type record struct {
	AutonomousSystemNumber       uint   `maxminddb:"autonomous_system_number"`
	AutonomousSystemOrganization string `maxminddb:"autonomous_system_organization"`
}

// DB is an open ASN database.
type DB struct {
	reader *maxminddb.Reader
}

// Open opens the MMDB file at path.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat ASN database: %w", err)
	}

	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ASN database: %w", err)
	}
	return &DB{reader: reader}, nil
}

// LookupASN returns the AS number and organization of addr.
// ok is false when the address is not in the database.
func (db *DB) LookupASN(addr netip.Addr) (uint, string, bool) {
	if db == nil || db.reader == nil || !addr.IsValid() {
		return 0, "", false
	}

	var rec record
	if err := db.reader.Lookup(net.IP(addr.AsSlice()), &rec); err != nil {
		return 0, "", false
	}
	if rec.AutonomousSystemNumber == 0 {
		return 0, "", false
	}

	org := rec.AutonomousSystemOrganization
	if known, ok := GoogleASN(rec.AutonomousSystemNumber); ok && org == "" {
		org = known
	}
	return rec.AutonomousSystemNumber, org, true
}

// Close releases the database.
func (db *DB) Close() error {
	if db == nil || db.reader == nil {
		return nil
	}
	return db.reader.Close()
}

// googleASNs are autonomous systems operated by Google.
var googleASNs = map[uint]string{
	15169:  "Google LLC",
	19527:  "Google LLC",
	36040:  "Google LLC (YouTube)",
	36384:  "Google LLC",
	36492:  "Google LLC",
	43515:  "Google LLC",
	139070: "Google Asia Pacific",
	396982: "Google Cloud",
}

// GoogleASN reports whether asn belongs to Google and returns its name.
func GoogleASN(asn uint) (string, bool) {
	name, ok := googleASNs[asn]
	return name, ok
}
