// Package verdict combines the evidence of one run into a verification
// report with an overall verdict and a remediation checklist.
//
// The decision policy is evaluated in priority order and the first match
// wins:
//
//  1. no established tunnel, every API hostname resolved to public
//     addresses only and the route is public: PUBLIC_SUSPECTED
//  2. an established tunnel, and either a private route or a Private Google
//     Access address in DNS: PRIVATE_CONFIRMED
//  3. anything else: INDETERMINATE
//
// Hop evidence never changes the verdict. It is reported and contributes
// remediation items.
package verdict

import (
	"fmt"
	"strings"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
)

// Evidence categories, in the order remediation items are listed.
const (
	CategoryDNS   = "dns"
	CategoryRoute = "route"
	CategoryHops  = "hops"
	CategoryVPN   = "vpn"
)

// Aggregate builds a report from the four core evidence records.
// It is a pure function: Meta is left empty for the caller to fill.
func Aggregate(dns []model.HostnameEvidence, route model.RouteEvidence, hops model.HopEvidence, vpn model.VPNStatus) *model.VerificationReport {
	report := &model.VerificationReport{
		DNS:   append([]model.HostnameEvidence(nil), dns...),
		Route: route,
		Hops:  hops,
		VPN:   vpn,
	}

	report.Verdict = Decide(dns, route, vpn)
	if report.Verdict != model.VerdictPrivateConfirmed {
		report.Remediation = remediate(dns, route, hops, vpn)
	}
	return report
}

// AggregateEvidence aggregates a collected evidence set, carrying over
// the target host, observations and step errors.
func AggregateEvidence(ev *model.Evidence) *model.VerificationReport {
	report := Aggregate(ev.DNS, ev.Route, ev.Hops, ev.VPN)
	report.TargetHost = ev.TargetHost
	report.Observations = append([]model.Observation(nil), ev.Observations...)
	report.StepErrors = append([]string(nil), ev.StepErrors...)
	report.Cancelled = ev.Cancelled
	return report
}

// Decide applies the decision policy.
func Decide(dns []model.HostnameEvidence, route model.RouteEvidence, vpn model.VPNStatus) model.Verdict {
	if !vpn.Established && allPublic(dns) && route.Verdict == model.PathPublic {
		return model.VerdictPublicSuspected
	}
	if vpn.Established && (route.Verdict == model.PathPrivate || anyGooglePrivateAccess(dns)) {
		return model.VerdictPrivateConfirmed
	}
	return model.VerdictIndeterminate
}

// allPublic reports whether every hostname resolved and every resolved
// address is public. A failed or empty lookup is unknown evidence, so it
// keeps the verdict away from PUBLIC_SUSPECTED.
func allPublic(dns []model.HostnameEvidence) bool {
	if len(dns) == 0 {
		return false
	}
	for _, h := range dns {
		if h.Error != "" || len(h.Classifications) == 0 || len(h.InvalidAddresses) > 0 {
			return false
		}
		for _, c := range h.Classifications {
			if c != netclass.Public {
				return false
			}
		}
	}
	return true
}

func anyGooglePrivateAccess(dns []model.HostnameEvidence) bool {
	for _, h := range dns {
		if h.Has(netclass.GooglePrivateAccess) {
			return true
		}
	}
	return false
}

// remediate lists one item per category whose status is UNKNOWN or PUBLIC.
func remediate(dns []model.HostnameEvidence, route model.RouteEvidence, hops model.HopEvidence, vpn model.VPNStatus) []model.Remediation {
	var items []model.Remediation

	add := func(category string, status model.PathStatus, detail string) {
		if status == model.PathPrivate {
			return
		}
		info := model.GetRemediationInfo(category, status)
		items = append(items, model.Remediation{
			Category: category,
			Status:   status,
			Title:    info.Title,
			Impact:   info.Impact,
			Action:   info.Action,
			Detail:   detail,
		})
	}

	add(CategoryDNS, model.SummarizeDNS(dns), dnsDetail(dns))
	add(CategoryRoute, route.Verdict, routeDetail(route))
	add(CategoryHops, hops.Status(), hopsDetail(hops))
	add(CategoryVPN, vpn.Status(), vpnDetail(vpn))

	return items
}

func dnsDetail(dns []model.HostnameEvidence) string {
	if len(dns) == 0 {
		return "no hostnames were resolved"
	}
	var parts []string
	for _, h := range dns {
		switch h.Status() {
		case model.PathUnknown:
			if h.Error != "" {
				parts = append(parts, h.Error)
			} else {
				parts = append(parts, h.QueriedName+": no addresses")
			}
		case model.PathPublic:
			parts = append(parts, fmt.Sprintf("%s -> %s", h.QueriedName, strings.Join(h.Addresses, ", ")))
		}
	}
	return strings.Join(parts, "; ")
}

func routeDetail(route model.RouteEvidence) string {
	if route.Error != "" {
		return "route check failed: " + route.Error
	}
	if route.Verdict == model.PathUnknown {
		if route.RawRouteText == "" {
			return "route check produced no output"
		}
		return "unrecognized route output: " + route.RawRouteText
	}
	detail := "route to " + route.TargetIP
	if route.Gateway != "" {
		detail += " via " + route.Gateway
	}
	if route.Interface != "" {
		detail += " dev " + route.Interface
	}
	return detail
}

func hopsDetail(hops model.HopEvidence) string {
	if hops.Error != "" && hops.TotalHopCount() == 0 {
		return "traceroute failed: " + hops.Error
	}
	detail := fmt.Sprintf("%d of %d responding hops private", hops.PrivateHopCount(), hops.TotalHopCount())
	if hops.TimedOut {
		detail += " (trace timed out)"
	}
	return detail
}

func vpnDetail(vpn model.VPNStatus) string {
	if len(vpn.Probes) == 0 {
		return "no VPN probes ran"
	}
	parts := make([]string, 0, len(vpn.Probes))
	for _, p := range vpn.Probes {
		state := "not found"
		switch {
		case p.Established:
			state = "established"
		case p.Detected:
			state = "configured, not established"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", p.Mechanism, state))
	}
	return strings.Join(parts, "; ")
}
