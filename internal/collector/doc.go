// Package collector gathers the raw observations behind a verification run
// and turns each into an evidence record.
//
// Collectors:
//   - DNSCollector: resolves the API hostnames and classifies every answer
//   - RouteCollector: reads the kernel route to the API target
//   - HopCollector: traces the forwarding path to the API target
//   - VPNCollector: probes IPsec, OpenVPN and WireGuard in that order
//   - InterfaceCollector: lists tunnel interfaces on the host
//   - ConfigFileCollector: inspects /etc/hosts and /etc/resolv.conf
//   - FirewallCollector: looks for iptables rules about the API ranges
//   - TLSCollector: connects to the API target and records its certificate
//
// Every collector returns a best-effort record. Lookup failures, missing
// binaries, missing privileges and timeouts are recorded in the record
// (and usually degrade it to UNKNOWN); they are never returned as errors.
//
// The parsing functions (ParseRoute, ParseTraceroute, ...) are pure and
// exported so they can be tested against captured command output.
package collector
