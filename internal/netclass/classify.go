package netclass

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrInvalidAddress is returned when the input is not an IP literal.
var ErrInvalidAddress = errors.New("invalid IP address")

// Classification is the path category of a single IP address.
type Classification int

const (
	// Public is a globally routed address outside the reserved ranges.
	Public Classification = iota

	// PrivateRFC1918 is an address from one of the RFC 1918 blocks.
	PrivateRFC1918

	// GooglePrivateAccess is an address from the private.googleapis.com or
	// restricted.googleapis.com VIP ranges.
	GooglePrivateAccess
)

var (
	rfc1918Prefixes = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
	}

	googlePrivateAccessPrefixes = []netip.Prefix{
		netip.MustParsePrefix("199.36.153.0/24"),
		netip.MustParsePrefix("199.36.154.0/23"),
	}
)

// String returns the upper snake case name used in reports.
func (c Classification) String() string {
	switch c {
	case Public:
		return "PUBLIC"
	case PrivateRFC1918:
		return "PRIVATE_RFC1918"
	case GooglePrivateAccess:
		return "GOOGLE_PRIVATE_ACCESS"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Classification) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PUBLIC":
		*c = Public
	case "PRIVATE_RFC1918":
		*c = PrivateRFC1918
	case "GOOGLE_PRIVATE_ACCESS":
		*c = GooglePrivateAccess
	default:
		return fmt.Errorf("unknown classification %q", string(text))
	}
	return nil
}

// Parse parses an IP literal, unmapping IPv4-mapped IPv6 addresses.
// Surrounding whitespace and a single pair of parentheses (as printed by
// traceroute without -n) are tolerated.
func Parse(ip string) (netip.Addr, error) {
	s := strings.TrimSpace(ip)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("%w: %q has a zone", ErrInvalidAddress, ip)
	}
	return addr.Unmap(), nil
}

// Classify classifies an IP literal.
func Classify(ip string) (Classification, error) {
	addr, err := Parse(ip)
	if err != nil {
		return Public, err
	}
	return ClassifyAddr(addr), nil
}

// ClassifyAddr classifies an already parsed address.
// IPv6 addresses are always Public.
func ClassifyAddr(addr netip.Addr) Classification {
	addr = addr.Unmap()
	if !addr.Is4() {
		return Public
	}
	for _, p := range rfc1918Prefixes {
		if p.Contains(addr) {
			return PrivateRFC1918
		}
	}
	for _, p := range googlePrivateAccessPrefixes {
		if p.Contains(addr) {
			return GooglePrivateAccess
		}
	}
	return Public
}

// IsPrivatePath reports whether traffic to an address of this class stays
// off the public internet.
func IsPrivatePath(c Classification) bool {
	return c == PrivateRFC1918 || c == GooglePrivateAccess
}
