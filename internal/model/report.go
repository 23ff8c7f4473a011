package model

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/nao1215/privpath/internal/netclass"
	"golang.org/x/crypto/sha3"
)

// RunMeta describes the invocation that produced a report.
// It is filled by the caller after aggregation so that the aggregated
// content stays a pure function of the evidence.
type RunMeta struct {
	// RunID uniquely identifies the run in the history database.
	RunID string `json:"run_id,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall time of the collection pipeline.
	Duration time.Duration `json:"duration"`

	// ProjectID and Region identify the Vertex AI project being verified.
	ProjectID string `json:"project_id,omitempty"`
	Region    string `json:"region,omitempty"`

	// Host is the local hostname.
	Host string `json:"host,omitempty"`

	// Version is the privpath version that generated the report.
	Version string `json:"version,omitempty"`
}

// Remediation is one checklist item attached to a report.
type Remediation struct {
	// Category is the evidence category: dns, route, hops or vpn.
	Category string     `json:"category"`
	Status   PathStatus `json:"status"`
	Title    string     `json:"title"`
	Impact   string     `json:"impact,omitempty"`
	Action   string     `json:"action"`

	// Detail names the concrete evidence, e.g. the failed command.
	Detail string `json:"detail,omitempty"`
}

// VerificationReport aggregates all evidence of one run.
// It is built once by the verdict aggregator and read-only afterwards.
type VerificationReport struct {
	Meta RunMeta `json:"meta"`

	TargetHost string `json:"target_host"`

	DNS          []HostnameEvidence `json:"dns"`
	Route        RouteEvidence      `json:"route"`
	Hops         HopEvidence        `json:"hops"`
	VPN          VPNStatus          `json:"vpn"`
	Observations []Observation      `json:"observations,omitempty"`

	Verdict     Verdict       `json:"verdict"`
	Remediation []Remediation `json:"remediation,omitempty"`

	// StepErrors and Cancelled are carried over from the evidence set.
	StepErrors []string `json:"step_errors,omitempty"`
	Cancelled  bool     `json:"cancelled,omitempty"`
}

// DNSStatus summarizes all hostname evidence: Unknown if any lookup failed
// or nothing resolved, Public if any address is public, Private otherwise.
func (r *VerificationReport) DNSStatus() PathStatus {
	return SummarizeDNS(r.DNS)
}

// SummarizeDNS applies the DNSStatus rule to a slice of hostname evidence.
func SummarizeDNS(dns []HostnameEvidence) PathStatus {
	if len(dns) == 0 {
		return PathUnknown
	}
	status := PathPrivate
	for _, h := range dns {
		switch h.Status() {
		case PathUnknown:
			return PathUnknown
		case PathPublic:
			status = PathPublic
		}
	}
	return status
}

// AddressCounts returns how many resolved addresses fall into each class.
func (r *VerificationReport) AddressCounts() map[netclass.Classification]int {
	counts := make(map[netclass.Classification]int)
	for _, h := range r.DNS {
		for _, c := range h.Classifications {
			counts[c]++
		}
	}
	return counts
}

// HasRemediation reports whether the report carries checklist items.
func (r *VerificationReport) HasRemediation() bool {
	return len(r.Remediation) > 0
}

// digestInput is the part of the report that describes the network path.
// Raw command text is left out because it carries volatile fields (uid,
// cache expiry, RTTs).
type digestInput struct {
	TargetHost string
	DNS        []digestHost
	Route      [3]string
	Hops       []string
	VPN        string
	Verdict    string
}

type digestHost struct {
	Hostname  string
	Addresses []string
}

// EvidenceDigest returns a SHA3-256 hex digest of the path-relevant
// evidence. Two runs with the same digest observed the same network path.
func (r *VerificationReport) EvidenceDigest() string {
	in := digestInput{
		TargetHost: r.TargetHost,
		Route:      [3]string{r.Route.Verdict.String(), r.Route.Interface, r.Route.Gateway},
		VPN:        r.VPN.Mechanism.String(),
		Verdict:    r.Verdict.String(),
	}
	for _, h := range r.DNS {
		in.DNS = append(in.DNS, digestHost{Hostname: h.Hostname, Addresses: h.Addresses})
	}
	for _, hop := range r.Hops.Hops {
		in.Hops = append(in.Hops, hop.IP)
	}

	data, _ := json.Marshal(in) //nolint:errcheck,errchkjson // plain strings and slices; Marshal cannot fail
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
