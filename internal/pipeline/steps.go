package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/collector"
	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/runner"
)

// DNSStep resolves the configured hostnames.
type DNSStep struct {
	collector *collector.DNSCollector
}

// NewDNSStep creates a DNS step.
func NewDNSStep(c *collector.DNSCollector) *DNSStep {
	return &DNSStep{collector: c}
}

// Name returns the step name.
func (s *DNSStep) Name() string {
	return "dns"
}

// Do executes the DNS step.
func (s *DNSStep) Do(ctx context.Context, ev *model.Evidence) error {
	ev.DNS = s.collector.Collect(ctx, ev.Hostnames)
	return nil
}

// targetIP finds the address to trace.
//
// The address comes from the DNS evidence of the target host. When the
// target host was not among the resolved hostnames it is looked up
// directly with resolver. The direct lookup is made once and stored on ev,
// so every step of a run uses the same address.
func targetIP(ctx context.Context, resolver collector.Resolver, ev *model.Evidence) (string, error) {
	if ip := ev.TargetIP(); ip != "" {
		return ip, nil
	}
	if slices.Contains(ev.Hostnames, ev.TargetHost) {
		return "", fmt.Errorf("target host %s did not resolve", ev.TargetHost)
	}
	if ev.TargetLookup != nil {
		return "", errors.New(ev.TargetLookup.Error)
	}
	if resolver == nil {
		return "", fmt.Errorf("no address for target host %s", ev.TargetHost)
	}

	ip, err := collector.ResolveTarget(ctx, resolver, ev.TargetHost)
	if err != nil {
		ev.TargetLookup = &model.TargetLookup{Error: err.Error()}
		return "", err
	}
	ev.TargetLookup = &model.TargetLookup{IP: ip}
	return ip, nil
}

// RouteStep reads the kernel route to the target address.
type RouteStep struct {
	collector *collector.RouteCollector
	resolver  collector.Resolver
}

// NewRouteStep creates a route step. resolver is used only when the
// target host is not among the resolved hostnames; it may be nil.
func NewRouteStep(c *collector.RouteCollector, resolver collector.Resolver) *RouteStep {
	return &RouteStep{collector: c, resolver: resolver}
}

// Name returns the step name.
func (s *RouteStep) Name() string {
	return "route"
}

// Do executes the route step.
func (s *RouteStep) Do(ctx context.Context, ev *model.Evidence) error {
	ip, err := targetIP(ctx, s.resolver, ev)
	if err != nil {
		ev.Route = model.RouteEvidence{Verdict: model.PathUnknown, Error: err.Error()}
		return nil
	}
	ev.Route = s.collector.Collect(ctx, ip)
	return nil
}

// HopStep traces the path to the target address.
type HopStep struct {
	collector *collector.HopCollector
	resolver  collector.Resolver
	maxHops   int
}

// NewHopStep creates a hop step.
func NewHopStep(c *collector.HopCollector, resolver collector.Resolver, maxHops int) *HopStep {
	return &HopStep{collector: c, resolver: resolver, maxHops: maxHops}
}

// Name returns the step name.
func (s *HopStep) Name() string {
	return "hops"
}

// Do executes the hop step. When hops carry ASN data, an observation
// naming the traversed autonomous systems is added.
func (s *HopStep) Do(ctx context.Context, ev *model.Evidence) error {
	ip, err := targetIP(ctx, s.resolver, ev)
	if err != nil {
		ev.Hops = model.HopEvidence{MaxHops: s.maxHops, Hops: []model.Hop{}, Error: err.Error()}
		return nil
	}
	ev.Hops = s.collector.Collect(ctx, ip, s.maxHops)

	if obs, ok := asnObservation(ev.Hops); ok {
		ev.AddObservation(obs)
	}
	return nil
}

// asnObservation summarizes the autonomous systems of public hops.
func asnObservation(hops model.HopEvidence) (model.Observation, bool) {
	orgs := make(map[uint]string)
	for _, h := range hops.Hops {
		if h.ASN != 0 {
			orgs[h.ASN] = h.ASNOrg
		}
	}
	if len(orgs) == 0 {
		return model.Observation{}, false
	}

	asns := make([]uint, 0, len(orgs))
	for a := range orgs {
		asns = append(asns, a)
	}
	sort.Slice(asns, func(i, j int) bool { return asns[i] < asns[j] })

	details := make([]string, 0, len(asns))
	for _, a := range asns {
		details = append(details, fmt.Sprintf("AS%d %s", a, orgs[a]))
	}
	return model.Observation{
		Source:  "asn",
		Status:  model.PathPublic,
		Summary: fmt.Sprintf("public hops cross %d autonomous system(s)", len(asns)),
		Details: details,
	}, true
}

// VPNStep probes the tunnel mechanisms.
type VPNStep struct {
	collector *collector.VPNCollector
}

// NewVPNStep creates a VPN step.
func NewVPNStep(c *collector.VPNCollector) *VPNStep {
	return &VPNStep{collector: c}
}

// Name returns the step name.
func (s *VPNStep) Name() string {
	return "vpn"
}

// Do executes the VPN step.
func (s *VPNStep) Do(ctx context.Context, ev *model.Evidence) error {
	ev.VPN = s.collector.Collect(ctx)
	return nil
}

// InterfaceStep reports tunnel interfaces.
type InterfaceStep struct {
	collector *collector.InterfaceCollector
}

// NewInterfaceStep creates an interface step.
func NewInterfaceStep(c *collector.InterfaceCollector) *InterfaceStep {
	return &InterfaceStep{collector: c}
}

// Name returns the step name.
func (s *InterfaceStep) Name() string {
	return "interfaces"
}

// Do executes the interface step.
func (s *InterfaceStep) Do(ctx context.Context, ev *model.Evidence) error {
	ev.AddObservation(s.collector.Collect(ctx))
	return nil
}

// ConfigFileStep inspects the hosts file and resolv.conf.
type ConfigFileStep struct {
	collector *collector.ConfigFileCollector
}

// NewConfigFileStep creates a config file step.
func NewConfigFileStep(c *collector.ConfigFileCollector) *ConfigFileStep {
	return &ConfigFileStep{collector: c}
}

// Name returns the step name.
func (s *ConfigFileStep) Name() string {
	return "name_config"
}

// Do executes the config file step.
func (s *ConfigFileStep) Do(ctx context.Context, ev *model.Evidence) error {
	for _, obs := range s.collector.Collect(ctx) {
		ev.AddObservation(obs)
	}
	return nil
}

// FirewallStep lists firewall rules about the API ranges.
type FirewallStep struct {
	collector *collector.FirewallCollector
}

// NewFirewallStep creates a firewall step.
func NewFirewallStep(c *collector.FirewallCollector) *FirewallStep {
	return &FirewallStep{collector: c}
}

// Name returns the step name.
func (s *FirewallStep) Name() string {
	return "firewall"
}

// Do executes the firewall step.
func (s *FirewallStep) Do(ctx context.Context, ev *model.Evidence) error {
	ev.AddObservation(s.collector.Collect(ctx))
	return nil
}

// TLSStep connects to the target address and records the certificate.
type TLSStep struct {
	collector *collector.TLSCollector
	resolver  collector.Resolver
}

// NewTLSStep creates a TLS step.
func NewTLSStep(c *collector.TLSCollector, resolver collector.Resolver) *TLSStep {
	return &TLSStep{collector: c, resolver: resolver}
}

// Name returns the step name.
func (s *TLSStep) Name() string {
	return "tls"
}

// Do executes the TLS step.
func (s *TLSStep) Do(ctx context.Context, ev *model.Evidence) error {
	ip, err := targetIP(ctx, s.resolver, ev)
	if err != nil {
		ev.AddObservation(model.Observation{
			Source:  "tls",
			Status:  model.PathUnknown,
			Summary: "no handshake: " + err.Error(),
		})
		return nil
	}
	ev.AddObservation(s.collector.Collect(ctx, ip, ev.TargetHost))
	return nil
}

// Deps are the external collaborators of the default pipeline.
type Deps struct {
	// Runner executes diagnostic commands.
	Runner runner.Runner

	// Resolver resolves hostnames.
	Resolver collector.Resolver

	// Interfaces lists network interfaces. Nil uses the system list.
	Interfaces collector.InterfaceLister

	// ASN annotates public hops. Optional.
	ASN collector.ASNLookup

	// TLS performs the handshake probe. Nil uses a NetTLSProber.
	TLS collector.TLSProber
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// MaxHops bounds the trace depth.
	MaxHops int

	// CommandTimeout bounds each diagnostic command except traceroute.
	CommandTimeout time.Duration

	// TraceTimeout bounds the whole trace.
	TraceTimeout time.Duration

	// HostsFile and ResolvConf override the name-service file paths.
	HostsFile  string
	ResolvConf string

	// SkipSupplemental leaves out the interface, name-config, firewall
	// and tls steps.
	SkipSupplemental bool

	// Logger is passed to the collectors.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineMaxHops sets the trace depth.
func WithPipelineMaxHops(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxHops = n
	}
}

// WithPipelineCommandTimeout sets the per-command timeout.
func WithPipelineCommandTimeout(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CommandTimeout = d
	}
}

// WithPipelineTraceTimeout sets the total trace timeout.
func WithPipelineTraceTimeout(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.TraceTimeout = d
	}
}

// WithPipelineNameConfigFiles overrides the hosts and resolv.conf paths.
func WithPipelineNameConfigFiles(hostsFile, resolvConf string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.HostsFile = hostsFile
		c.ResolvConf = resolvConf
	}
}

// WithPipelineSkipSupplemental runs only the four core collectors.
func WithPipelineSkipSupplemental(skip bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.SkipSupplemental = skip
	}
}

// WithPipelineCollectorLogger sets the logger used by the collectors.
func WithPipelineCollectorLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates the standard verification pipeline:
// dns, route, hops, vpn, then the supplemental interfaces, name_config,
// firewall and tls steps. It continues past step errors unless pipelineOpts
// say otherwise.
func DefaultPipeline(deps Deps, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(append([]Option{WithContinueOnError(true)}, pipelineOpts...)...)

	cfg := &DefaultPipelineConfig{
		MaxHops:        collector.DefaultMaxHops,
		CommandTimeout: runner.DefaultTimeout,
		TraceTimeout:   collector.DefaultTraceTimeout,
		Logger:         slog.Default(),
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	hopOpts := []collector.HopOption{
		collector.WithTraceTimeout(cfg.TraceTimeout),
		collector.WithHopLogger(cfg.Logger),
	}
	if deps.ASN != nil {
		hopOpts = append(hopOpts, collector.WithASNLookup(deps.ASN))
	}

	p.AddSteps(
		NewDNSStep(collector.NewDNSCollector(deps.Resolver, collector.WithDNSLogger(cfg.Logger))),
		NewRouteStep(collector.NewRouteCollector(deps.Runner,
			collector.WithRouteTimeout(cfg.CommandTimeout),
			collector.WithRouteLogger(cfg.Logger),
		), deps.Resolver),
		NewHopStep(collector.NewHopCollector(deps.Runner, hopOpts...), deps.Resolver, cfg.MaxHops),
		NewVPNStep(collector.NewVPNCollector(deps.Runner, cfg.CommandTimeout, collector.WithVPNLogger(cfg.Logger))),
	)

	if !cfg.SkipSupplemental {
		prober := deps.TLS
		if prober == nil {
			prober = collector.NewNetTLSProber(cfg.CommandTimeout)
		}
		p.AddSteps(
			NewInterfaceStep(collector.NewInterfaceCollector(deps.Interfaces)),
			NewConfigFileStep(collector.NewConfigFileCollector(cfg.HostsFile, cfg.ResolvConf)),
			NewFirewallStep(collector.NewFirewallCollector(deps.Runner, cfg.CommandTimeout)),
			NewTLSStep(collector.NewTLSCollector(prober), deps.Resolver),
		)
	}

	return p
}

// StepSummary renders the performed steps for logs.
func StepSummary(ev *model.Evidence) string {
	return strings.Join(ev.PerformedSteps, " -> ")
}
