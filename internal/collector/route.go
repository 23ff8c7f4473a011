package collector

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
	"github.com/nao1215/privpath/internal/runner"
)

// tunnelPrefixes are interface name prefixes that denote a tunnel.
var tunnelPrefixes = []string{"tun", "utun", "vpn", "vti", "wg", "ipsec"}

// IsTunnelInterface reports whether name looks like a tunnel interface.
func IsTunnelInterface(name string) bool {
	name = strings.ToLower(name)
	for _, p := range tunnelPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// ParseRoute derives RouteEvidence from the text of a route query.
//
// It understands both the iproute2 form
//
//	199.36.153.8 via 10.8.0.1 dev tun0 src 10.8.0.6 uid 1000
//
// and the BSD "route get" form ("gateway: ..." / "interface: ...").
// The verdict is PRIVATE if the route names a tunnel interface or its
// gateway is an RFC 1918 address, PUBLIC if the text is a well-formed route
// without either, and UNKNOWN if no route clause can be found.
func ParseRoute(targetIP, text string) model.RouteEvidence {
	ev := model.RouteEvidence{
		TargetIP:     targetIP,
		RawRouteText: strings.TrimSpace(text),
		Verdict:      model.PathUnknown,
	}

	tokens := strings.Fields(text)
	wellFormed := false
	for i, tok := range tokens {
		if IsTunnelInterface(tok) {
			ev.UsesTunnelInterface = true
		}
		if i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		switch tok {
		case "dev", "interface:":
			wellFormed = true
			if ev.Interface == "" {
				ev.Interface = next
			}
		case "via", "gateway:":
			wellFormed = true
			if ev.Gateway == "" {
				ev.Gateway = next
			}
		}
	}

	if ev.Gateway != "" {
		if class, err := netclass.Classify(ev.Gateway); err == nil && class == netclass.PrivateRFC1918 {
			ev.UsesPrivateGateway = true
		}
	}

	switch {
	case ev.UsesTunnelInterface || ev.UsesPrivateGateway:
		ev.Verdict = model.PathPrivate
	case wellFormed:
		ev.Verdict = model.PathPublic
	}
	return ev
}

// RouteCollector queries the kernel route to the API target.
type RouteCollector struct {
	runner  runner.Runner
	timeout time.Duration
	logger  *slog.Logger
}

// RouteOption configures a RouteCollector.
type RouteOption func(*RouteCollector)

// WithRouteTimeout sets the command timeout.
func WithRouteTimeout(d time.Duration) RouteOption {
	return func(c *RouteCollector) {
		c.timeout = d
	}
}

// WithRouteLogger sets a custom logger.
func WithRouteLogger(logger *slog.Logger) RouteOption {
	return func(c *RouteCollector) {
		c.logger = logger
	}
}

// NewRouteCollector creates a RouteCollector.
func NewRouteCollector(r runner.Runner, opts ...RouteOption) *RouteCollector {
	c := &RouteCollector{
		runner:  r,
		timeout: runner.DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Command returns the route query for targetIP.
func (c *RouteCollector) Command(targetIP string) runner.Command {
	return runner.Command{
		Name:    "ip",
		Args:    []string{"route", "get", targetIP},
		Timeout: c.timeout,
	}
}

// Collect runs the route query. An invalid target or a failed command
// yields UNKNOWN evidence with Error set.
func (c *RouteCollector) Collect(ctx context.Context, targetIP string) model.RouteEvidence {
	if _, err := netclass.Parse(targetIP); err != nil {
		return model.RouteEvidence{
			TargetIP: targetIP,
			Verdict:  model.PathUnknown,
			Error:    err.Error(),
		}
	}

	res := c.runner.Run(ctx, c.Command(targetIP))
	if err := res.Err(); err != nil {
		c.logger.Warn("route query failed", "target", targetIP, "error", err)
		return model.RouteEvidence{
			TargetIP:     targetIP,
			RawRouteText: strings.TrimSpace(res.Stdout),
			Verdict:      model.PathUnknown,
			Error:        err.Error(),
		}
	}

	ev := ParseRoute(targetIP, res.Stdout)
	c.logger.Debug("route parsed",
		"target", targetIP,
		"interface", ev.Interface,
		"gateway", ev.Gateway,
		"verdict", ev.Verdict.String(),
	)
	return ev
}
