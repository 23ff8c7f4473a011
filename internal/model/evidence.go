package model

import (
	"encoding/json"

	"github.com/nao1215/privpath/internal/netclass"
)

// HostnameEvidence holds the DNS answers for one configured hostname.
type HostnameEvidence struct {
	// Hostname is the configured name, e.g. "*.googleapis.com".
	Hostname string `json:"hostname"`

	// QueriedName is the name actually sent to the resolver. It differs
	// from Hostname only for wildcard entries.
	QueriedName string `json:"queried_name"`

	// Addresses are the resolved IP literals in resolver order.
	Addresses []string `json:"addresses"`

	// Classifications is parallel to Addresses.
	Classifications []netclass.Classification `json:"classifications"`

	// InvalidAddresses are resolver answers that are not IP literals.
	InvalidAddresses []string `json:"invalid_addresses,omitempty"`

	// Error is the resolution error, if any.
	Error string `json:"error,omitempty"`
}

// Status summarizes the hostname evidence.
// Unknown when resolution failed or returned nothing, Public when any
// address is public, Private otherwise.
func (h HostnameEvidence) Status() PathStatus {
	if h.Error != "" || len(h.Classifications) == 0 {
		return PathUnknown
	}
	for _, c := range h.Classifications {
		if !netclass.IsPrivatePath(c) {
			return PathPublic
		}
	}
	return PathPrivate
}

// Has reports whether any address has the given classification.
func (h HostnameEvidence) Has(c netclass.Classification) bool {
	for _, got := range h.Classifications {
		if got == c {
			return true
		}
	}
	return false
}

// RouteEvidence is derived from one "route to target" query.
type RouteEvidence struct {
	TargetIP            string     `json:"target_ip"`
	RawRouteText        string     `json:"raw_route_text"`
	UsesTunnelInterface bool       `json:"uses_tunnel_interface"`
	UsesPrivateGateway  bool       `json:"uses_private_gateway"`
	Interface           string     `json:"interface,omitempty"`
	Gateway             string     `json:"gateway,omitempty"`
	Verdict             PathStatus `json:"verdict"`
	Error               string     `json:"error,omitempty"`
}

// Hop is one responding traceroute hop.
type Hop struct {
	// Number is the TTL printed by traceroute (1-based).
	Number int `json:"number"`

	// IP is the first address that answered for this TTL.
	IP string `json:"hop_ip"`

	// Classification of IP.
	Classification netclass.Classification `json:"classification"`

	// IsPrivate is true for RFC 1918 addresses only.
	IsPrivate bool `json:"is_private"`

	// ASN and ASNOrg are filled when an ASN database is configured.
	ASN    uint   `json:"asn,omitempty"`
	ASNOrg string `json:"asn_org,omitempty"`
}

// HopEvidence holds the parsed traceroute towards the API target.
// Hops without an address (timeouts, "* * *") are not stored, so they are
// excluded from both counters.
type HopEvidence struct {
	TargetIP string `json:"target_ip"`
	MaxHops  int    `json:"max_hops"`
	Hops     []Hop  `json:"hops"`

	// TimedOut is true when the trace was cut short; Hops is then partial.
	TimedOut bool   `json:"timed_out,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PrivateHopCount returns the number of hops with a private-path address.
func (h HopEvidence) PrivateHopCount() int {
	n := 0
	for _, hop := range h.Hops {
		if hop.IsPrivate {
			n++
		}
	}
	return n
}

// TotalHopCount returns the number of hops with an address.
func (h HopEvidence) TotalHopCount() int {
	return len(h.Hops)
}

// PrivacyRatio returns PrivateHopCount / TotalHopCount, or 0 with no hops.
func (h HopEvidence) PrivacyRatio() float64 {
	total := h.TotalHopCount()
	if total == 0 {
		return 0
	}
	return float64(h.PrivateHopCount()) / float64(total)
}

// Status is Unknown with no hops, Private with at least one private hop,
// Public otherwise.
func (h HopEvidence) Status() PathStatus {
	switch {
	case h.TotalHopCount() == 0:
		return PathUnknown
	case h.PrivateHopCount() > 0:
		return PathPrivate
	default:
		return PathPublic
	}
}

// MarshalJSON adds the derived counters to the serialized form.
func (h HopEvidence) MarshalJSON() ([]byte, error) {
	type plain HopEvidence
	return json.Marshal(struct {
		plain
		PrivateHopCount int     `json:"private_hop_count"`
		TotalHopCount   int     `json:"total_hop_count"`
		PrivacyRatio    float64 `json:"privacy_ratio"`
	}{
		plain:           plain(h),
		PrivateHopCount: h.PrivateHopCount(),
		TotalHopCount:   h.TotalHopCount(),
		PrivacyRatio:    h.PrivacyRatio(),
	})
}

// VPNProbe is the outcome of probing one tunnel mechanism.
type VPNProbe struct {
	Mechanism   VPNMechanism `json:"mechanism"`
	Command     string       `json:"command"`
	Detected    bool         `json:"detected"`
	Established bool         `json:"established"`
	Error       string       `json:"error,omitempty"`
}

// VPNStatus is the first established tunnel mechanism, or None.
type VPNStatus struct {
	Mechanism   VPNMechanism `json:"mechanism"`
	Established bool         `json:"established"`

	// Probes lists every probe in priority order.
	Probes []VPNProbe `json:"probes,omitempty"`
}

// Status is Private when a tunnel is established, Unknown otherwise.
// Missing tunnel evidence is not proof of a public path.
func (v VPNStatus) Status() PathStatus {
	if v.Established {
		return PathPrivate
	}
	return PathUnknown
}

// Observation is advisory evidence from the supplemental collectors
// (tunnel interfaces, hosts overrides, firewall rules). Observations are
// reported but do not take part in the verdict.
type Observation struct {
	Source  string     `json:"source"`
	Status  PathStatus `json:"status"`
	Summary string     `json:"summary"`
	Details []string   `json:"details,omitempty"`
}

// Evidence is the set of records collected during one run.
// Pipeline steps fill it in order; each step sets only its own field.
type Evidence struct {
	// TargetHost is the hostname whose address is traced.
	TargetHost string `json:"target_host"`

	// Hostnames are the names to resolve.
	Hostnames []string `json:"hostnames"`

	DNS          []HostnameEvidence `json:"dns"`
	Route        RouteEvidence      `json:"route"`
	Hops         HopEvidence        `json:"hops"`
	VPN          VPNStatus          `json:"vpn"`
	Observations []Observation      `json:"observations,omitempty"`

	// TargetLookup is the direct lookup of TargetHost, made at most once
	// per run when TargetHost is not among Hostnames.
	TargetLookup *TargetLookup `json:"target_lookup,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// StepErrors records step failures that did not abort the run.
	StepErrors []string `json:"step_errors,omitempty"`

	// Cancelled is true if the run was interrupted between steps.
	Cancelled bool `json:"cancelled,omitempty"`
}

// NewEvidence creates an empty evidence set for the given target.
func NewEvidence(targetHost string, hostnames []string) *Evidence {
	return &Evidence{
		TargetHost: targetHost,
		Hostnames:  append([]string(nil), hostnames...),
		Route:      RouteEvidence{Verdict: PathUnknown},
		VPN:        VPNStatus{Mechanism: VPNNone},
	}
}

// TargetLookup records the outcome of resolving the target host directly.
type TargetLookup struct {
	IP    string `json:"ip,omitempty"`
	Error string `json:"error,omitempty"`
}

// TargetIP returns the first valid address resolved for the target host,
// falling back to the direct lookup. It returns "" when neither has one.
func (e *Evidence) TargetIP() string {
	for _, h := range e.DNS {
		if h.Hostname == e.TargetHost && len(h.Addresses) > 0 {
			return h.Addresses[0]
		}
	}
	if e.TargetLookup != nil {
		return e.TargetLookup.IP
	}
	return ""
}

// AddObservation appends an advisory observation.
func (e *Evidence) AddObservation(o Observation) {
	e.Observations = append(e.Observations, o)
}
