package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
)

// WildcardProbeLabel replaces the leading "*" of wildcard hostnames.
// "*.googleapis.com" is probed as "test.googleapis.com".
const WildcardProbeLabel = "test"

// DefaultLookupTimeout bounds a single hostname lookup.
const DefaultLookupTimeout = 5 * time.Second

// Resolver resolves a hostname to IP literals.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ResolutionError wraps a failed lookup.
type ResolutionError struct {
	Host string
	Err  error
}

// Error implements error.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

// Unwrap returns the underlying resolver error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NetResolver is the system resolver with a per-lookup timeout.
type NetResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewNetResolver creates a resolver backed by net.DefaultResolver.
func NewNetResolver(timeout time.Duration) *NetResolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &NetResolver{
		resolver: net.DefaultResolver,
		timeout:  timeout,
	}
}

// LookupHost implements Resolver.
func (r *NetResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.resolver.LookupHost(ctx, host)
}

// DNSCollector resolves hostnames and classifies the answers.
type DNSCollector struct {
	resolver Resolver
	logger   *slog.Logger
}

// DNSOption configures a DNSCollector.
type DNSOption func(*DNSCollector)

// WithDNSLogger sets a custom logger for the DNS collector.
func WithDNSLogger(logger *slog.Logger) DNSOption {
	return func(c *DNSCollector) {
		c.logger = logger
	}
}

// NewDNSCollector creates a DNSCollector.
func NewDNSCollector(resolver Resolver, opts ...DNSOption) *DNSCollector {
	c := &DNSCollector{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryName returns the name to resolve for a configured hostname.
func QueryName(hostname string) string {
	if strings.HasPrefix(hostname, "*.") {
		return WildcardProbeLabel + hostname[1:]
	}
	return hostname
}

// Collect returns one HostnameEvidence per hostname, in input order.
func (c *DNSCollector) Collect(ctx context.Context, hostnames []string) []model.HostnameEvidence {
	results := make([]model.HostnameEvidence, 0, len(hostnames))
	for _, hostname := range hostnames {
		results = append(results, c.collectOne(ctx, hostname))
	}
	return results
}

// collectOne resolves and classifies a single hostname.
func (c *DNSCollector) collectOne(ctx context.Context, hostname string) model.HostnameEvidence {
	ev := model.HostnameEvidence{
		Hostname:        hostname,
		QueriedName:     QueryName(hostname),
		Addresses:       []string{},
		Classifications: []netclass.Classification{},
	}

	addrs, err := c.resolver.LookupHost(ctx, ev.QueriedName)
	if err != nil {
		rerr := &ResolutionError{Host: ev.QueriedName, Err: err}
		ev.Error = rerr.Error()
		c.logger.Warn("DNS resolution failed", "hostname", ev.QueriedName, "error", err)
		return ev
	}

	for _, a := range addrs {
		class, err := netclass.Classify(a)
		if err != nil {
			ev.InvalidAddresses = append(ev.InvalidAddresses, a)
			continue
		}
		ev.Addresses = append(ev.Addresses, a)
		ev.Classifications = append(ev.Classifications, class)
	}

	c.logger.Debug("DNS resolved",
		"hostname", ev.QueriedName,
		"addresses", ev.Addresses,
	)

	return ev
}

// ResolveTarget returns the first valid address of host.
// It is used when the traced host is not among the collected hostnames.
func ResolveTarget(ctx context.Context, resolver Resolver, host string) (string, error) {
	addrs, err := resolver.LookupHost(ctx, QueryName(host))
	if err != nil {
		return "", &ResolutionError{Host: host, Err: err}
	}
	for _, a := range addrs {
		if _, err := netclass.Parse(a); err == nil {
			return a, nil
		}
	}
	return "", &ResolutionError{Host: host, Err: fmt.Errorf("no valid address in %v", addrs)}
}
