package model

import "fmt"

// PathStatus is the path classification of one evidence category.
//
// Design decision: We use iota-based constants rather than string constants
// for cheap comparisons in the aggregator. The text form is used in JSON and
// in the history database.
type PathStatus int

const (
	// PathUnknown means the evidence could not be collected or parsed.
	PathUnknown PathStatus = iota

	// PathPrivate means the evidence points at a private network path.
	PathPrivate

	// PathPublic means the evidence points at the public internet.
	PathPublic
)

// String returns the report name of the status.
func (s PathStatus) String() string {
	switch s {
	case PathUnknown:
		return "UNKNOWN"
	case PathPrivate:
		return "PRIVATE"
	case PathPublic:
		return "PUBLIC"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PathStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PathStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "UNKNOWN":
		*s = PathUnknown
	case "PRIVATE":
		*s = PathPrivate
	case "PUBLIC":
		*s = PathPublic
	default:
		return fmt.Errorf("unknown path status %q", string(text))
	}
	return nil
}

// Verdict is the overall outcome of a verification run.
type Verdict int

const (
	// VerdictIndeterminate means the evidence is partial or contradictory.
	VerdictIndeterminate Verdict = iota

	// VerdictPrivateConfirmed means a tunnel is up and the API traffic uses it.
	VerdictPrivateConfirmed

	// VerdictPublicSuspected means no tunnel and only public-path evidence.
	VerdictPublicSuspected
)

// String returns the report name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictIndeterminate:
		return "INDETERMINATE"
	case VerdictPrivateConfirmed:
		return "PRIVATE_CONFIRMED"
	case VerdictPublicSuspected:
		return "PUBLIC_SUSPECTED"
	default:
		return "INDETERMINATE"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "INDETERMINATE":
		*v = VerdictIndeterminate
	case "PRIVATE_CONFIRMED":
		*v = VerdictPrivateConfirmed
	case "PUBLIC_SUSPECTED":
		*v = VerdictPublicSuspected
	default:
		return fmt.Errorf("unknown verdict %q", string(text))
	}
	return nil
}

// RemediationInfo is the catalog entry for one remediation key.
type RemediationInfo struct {
	Title  string
	Impact string
	Action string
}

// remediationMapping maps "<category>_<status>" keys to their guidance.
// Keeping the wording in one place keeps the text, Markdown and JSON
// reports consistent.
var remediationMapping = map[string]RemediationInfo{
	"dns_unknown": {
		Title:  "DNS resolution failed for one or more API hostnames",
		Impact: "Without DNS answers the path to the API cannot be inferred.",
		Action: "Check /etc/resolv.conf and the on-premises DNS forwarder for the googleapis.com zone.",
	},
	"dns_public": {
		Title:  "API hostnames resolve to public Google frontends",
		Impact: "Clients connect to public VIPs, which are normally reached over the internet.",
		Action: "Serve googleapis.com from a private zone (or /etc/hosts) pointing at private.googleapis.com (199.36.153.8/30) or restricted.googleapis.com (199.36.153.4/30).",
	},
	"route_unknown": {
		Title:  "Route check failed",
		Impact: "The kernel route to the API target could not be read, so the egress interface is unknown.",
		Action: "Run `ip route get <target>` manually; install iproute2 or grant the required privileges.",
	},
	"route_public": {
		Title:  "Route to the API uses the public default gateway",
		Impact: "Packets for the API leave through a non-tunnel interface via a public next hop.",
		Action: "Advertise 199.36.153.0/24 (or 199.36.153.4/30 and 199.36.153.8/30) over the VPN or Interconnect and install the route on-premises.",
	},
	"hops_unknown": {
		Title:  "Traceroute produced no usable hops",
		Impact: "The forwarding path could not be observed.",
		Action: "Install traceroute, allow outbound UDP/ICMP probes, or raise --trace-timeout.",
	},
	"hops_public": {
		Title:  "No private hops on the path to the API",
		Impact: "No responding hop is an RFC 1918 address, which is typical of an internet path.",
		Action: "Compare with the hops expected behind the VPN gateway; verify Cloud Router route advertisements.",
	},
	"vpn_unknown": {
		Title:  "No established VPN tunnel detected",
		Impact: "IPsec, OpenVPN and WireGuard probes did not report an established tunnel.",
		Action: "Bring the tunnel up (e.g. `ipsec up <conn>`) or rerun with --sudo if the probes need privileges.",
	},
}

// GetRemediationInfo returns the catalog entry for a category and status.
func GetRemediationInfo(category string, status PathStatus) RemediationInfo {
	key := category + "_" + lowerStatus(status)
	if info, ok := remediationMapping[key]; ok {
		return info
	}
	return RemediationInfo{
		Title:  fmt.Sprintf("%s evidence is %s", category, status),
		Impact: "The evidence category did not confirm a private path.",
		Action: "Review the raw evidence in the detailed report.",
	}
}

func lowerStatus(s PathStatus) string {
	switch s {
	case PathPrivate:
		return "private"
	case PathPublic:
		return "public"
	default:
		return "unknown"
	}
}
