package collector

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/runner"
)

// vpnProbe describes how to detect one tunnel mechanism.
type vpnProbe struct {
	mechanism model.VPNMechanism
	command   runner.Command

	// inspect reports whether the mechanism is configured on the host and
	// whether a tunnel is currently established.
	inspect func(res runner.Result) (detected, established bool)
}

// defaultProbes returns the probes in priority order: IPsec, OpenVPN,
// WireGuard. Status is read from stdout regardless of the exit code
// because "systemctl status" exits non-zero for inactive units.
func defaultProbes(timeout time.Duration) []vpnProbe {
	return []vpnProbe{
		{
			mechanism: model.VPNIPsec,
			command: runner.Command{
				Name:       "ipsec",
				Args:       []string{"status"},
				Timeout:    timeout,
				Privileged: true,
			},
			inspect: func(res runner.Result) (bool, bool) {
				out := res.Stdout
				detected := strings.Contains(out, "Security Associations") ||
					strings.Contains(out, "ESTABLISHED") ||
					strings.Contains(out, "INSTALLED")
				return detected, strings.Contains(out, "ESTABLISHED")
			},
		},
		{
			mechanism: model.VPNOpenVPN,
			command: runner.Command{
				Name:    "systemctl",
				Args:    []string{"status", "openvpn", "--no-pager"},
				Timeout: timeout,
			},
			inspect: func(res runner.Result) (bool, bool) {
				out := res.Stdout
				detected := strings.Contains(out, "Loaded:") &&
					!strings.Contains(out, "not-found")
				return detected, detected && strings.Contains(out, "active (running)")
			},
		},
		{
			mechanism: model.VPNWireGuard,
			command: runner.Command{
				Name:       "wg",
				Args:       []string{"show"},
				Timeout:    timeout,
				Privileged: true,
			},
			inspect: func(res runner.Result) (bool, bool) {
				out := res.Stdout
				detected := strings.Contains(out, "interface:")
				return detected, detected && strings.Contains(out, "latest handshake:")
			},
		},
	}
}

// VPNCollector probes the supported tunnel mechanisms.
type VPNCollector struct {
	runner runner.Runner
	probes []vpnProbe
	logger *slog.Logger
}

// VPNOption configures a VPNCollector.
type VPNOption func(*VPNCollector)

// WithVPNLogger sets a custom logger.
func WithVPNLogger(logger *slog.Logger) VPNOption {
	return func(c *VPNCollector) {
		c.logger = logger
	}
}

// NewVPNCollector creates a VPNCollector whose probes use timeout.
func NewVPNCollector(r runner.Runner, timeout time.Duration, opts ...VPNOption) *VPNCollector {
	if timeout <= 0 {
		timeout = runner.DefaultTimeout
	}
	c := &VPNCollector{
		runner: r,
		probes: defaultProbes(timeout),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs the probes in priority order and stops at the first
// established tunnel. Probes that ran are listed in VPNStatus.Probes.
func (c *VPNCollector) Collect(ctx context.Context) model.VPNStatus {
	status := model.VPNStatus{Mechanism: model.VPNNone}

	for _, p := range c.probes {
		if ctx.Err() != nil {
			break
		}
		res := c.runner.Run(ctx, p.command)
		detected, established := p.inspect(res)

		probe := model.VPNProbe{
			Mechanism:   p.mechanism,
			Command:     p.command.String(),
			Detected:    detected,
			Established: established,
		}
		if err := res.Err(); err != nil && !detected {
			probe.Error = err.Error()
		}
		status.Probes = append(status.Probes, probe)

		c.logger.Debug("vpn probe",
			"mechanism", p.mechanism.String(),
			"detected", detected,
			"established", established,
		)

		if established {
			status.Mechanism = p.mechanism
			status.Established = true
			break
		}
	}
	return status
}
