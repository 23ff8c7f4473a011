package collector

import (
	"bufio"
	"context"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
	"github.com/nao1215/privpath/internal/runner"
)

const (
	// DefaultMaxHops is the default hop limit of a trace.
	DefaultMaxHops = 10

	// DefaultTraceTimeout bounds the whole trace.
	DefaultTraceTimeout = 30 * time.Second

	// defaultProbeWait is the per-probe wait passed to traceroute, in seconds.
	defaultProbeWait = 2
)

// ASNLookup resolves the autonomous system of a public address.
type ASNLookup interface {
	LookupASN(addr netip.Addr) (asn uint, org string, ok bool)
}

// ParseTraceroute extracts hops from numeric traceroute output.
//
// Each hop line starts with the TTL followed by one or more probe results.
// The first token that parses as an IP address is taken as the hop address;
// lines where every probe timed out ("* * *") produce no hop. Lines beyond
// maxHops are ignored when maxHops > 0.
//
// Only RFC 1918 hops count as private. A Private Google Access address is
// the API frontend itself, so reaching it says nothing about the transit.
func ParseTraceroute(text string, maxHops int) []model.Hop {
	hops := []model.Hop{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			continue
		}
		if maxHops > 0 && n > maxHops {
			break
		}

		for _, tok := range fields[1:] {
			if tok == "*" {
				continue
			}
			addr, err := netclass.Parse(tok)
			if err != nil {
				continue
			}
			class := netclass.ClassifyAddr(addr)
			hops = append(hops, model.Hop{
				Number:         n,
				IP:             addr.String(),
				Classification: class,
				IsPrivate:      class == netclass.PrivateRFC1918,
			})
			break
		}
	}
	return hops
}

// HopCollector traces the path to the API target.
type HopCollector struct {
	runner  runner.Runner
	timeout time.Duration
	asn     ASNLookup
	logger  *slog.Logger
}

// HopOption configures a HopCollector.
type HopOption func(*HopCollector)

// WithTraceTimeout bounds the whole trace.
func WithTraceTimeout(d time.Duration) HopOption {
	return func(c *HopCollector) {
		c.timeout = d
	}
}

// WithASNLookup enables ASN annotation of public hops.
func WithASNLookup(l ASNLookup) HopOption {
	return func(c *HopCollector) {
		c.asn = l
	}
}

// WithHopLogger sets a custom logger.
func WithHopLogger(logger *slog.Logger) HopOption {
	return func(c *HopCollector) {
		c.logger = logger
	}
}

// NewHopCollector creates a HopCollector.
func NewHopCollector(r runner.Runner, opts ...HopOption) *HopCollector {
	c := &HopCollector{
		runner:  r,
		timeout: DefaultTraceTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Command returns the traceroute invocation for targetIP.
func (c *HopCollector) Command(targetIP string, maxHops int) runner.Command {
	return runner.Command{
		Name: "traceroute",
		Args: []string{
			"-n",
			"-m", strconv.Itoa(maxHops),
			"-w", strconv.Itoa(defaultProbeWait),
			targetIP,
		},
		Timeout: c.timeout,
	}
}

// Collect traces targetIP. When the trace times out, the hops printed so
// far are kept and TimedOut is set.
func (c *HopCollector) Collect(ctx context.Context, targetIP string, maxHops int) model.HopEvidence {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	ev := model.HopEvidence{
		TargetIP: targetIP,
		MaxHops:  maxHops,
		Hops:     []model.Hop{},
	}

	if _, err := netclass.Parse(targetIP); err != nil {
		ev.Error = err.Error()
		return ev
	}

	res := c.runner.Run(ctx, c.Command(targetIP, maxHops))
	ev.Hops = ParseTraceroute(res.Stdout, maxHops)
	ev.TimedOut = res.TimedOut
	if err := res.Err(); err != nil {
		ev.Error = err.Error()
		c.logger.Warn("traceroute incomplete",
			"target", targetIP,
			"hops", len(ev.Hops),
			"error", err,
		)
	}

	if c.asn != nil {
		c.annotate(ev.Hops)
	}

	c.logger.Debug("traceroute parsed",
		"target", targetIP,
		"total_hops", ev.TotalHopCount(),
		"private_hops", ev.PrivateHopCount(),
	)
	return ev
}

// annotate fills ASN fields of public hops.
func (c *HopCollector) annotate(hops []model.Hop) {
	for i := range hops {
		if hops[i].Classification != netclass.Public {
			continue
		}
		addr, err := netip.ParseAddr(hops[i].IP)
		if err != nil {
			continue
		}
		if asn, org, ok := c.asn.LookupASN(addr); ok {
			hops[i].ASN = asn
			hops[i].ASNOrg = org
		}
	}
}
