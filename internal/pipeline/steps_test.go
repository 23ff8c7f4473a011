package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/privpath/internal/collector"
	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/runner"
	"github.com/nao1215/privpath/internal/verdict"
)

// fakeRunner returns canned results keyed by the command string.
type fakeRunner struct {
	results map[string]runner.Result
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, cmd runner.Command) runner.Result {
	f.calls = append(f.calls, cmd.String())
	if res, ok := f.results[cmd.String()]; ok {
		res.Command = cmd.String()
		return res
	}
	return runner.Result{Command: cmd.String(), ExitCode: runner.ExitNotFound}
}

// fakeResolver returns canned answers keyed by hostname.
type fakeResolver map[string][]string

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

// rotatingResolver answers each lookup of host with a new address.
type rotatingResolver struct {
	host  string
	calls int
}

func (r *rotatingResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if host != r.host {
		return nil, errors.New("no such host")
	}
	r.calls++
	return []string{fmt.Sprintf("142.250.80.%d", r.calls)}, nil
}

type fakeASN struct{}

func (fakeASN) LookupASN(addr netip.Addr) (uint, string, bool) {
	if addr.String() == "203.0.113.1" {
		return 64500, "EXAMPLE-TRANSIT", true
	}
	return 0, "", false
}

// fakeTLS answers every handshake from the probed address.
type fakeTLS struct{}

func (fakeTLS) Probe(_ context.Context, ip, _ string) (collector.TLSInfo, error) {
	return collector.TLSInfo{RemoteAddr: ip + ":443", Version: "TLS 1.3"}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(r runner.Runner, res collector.Resolver) Deps {
	return Deps{
		Runner:   r,
		Resolver: res,
		Interfaces: func() ([]collector.InterfaceInfo, error) {
			return []collector.InterfaceInfo{
				{Name: "eth0", Up: true},
				{Name: "tun0", Up: true, Addrs: []string{"10.8.0.6/24"}},
			}, nil
		},
		TLS: fakeTLS{},
	}
}

func testConfigOpts(t *testing.T) []DefaultPipelineOption {
	t.Helper()
	dir := t.TempDir()
	return []DefaultPipelineOption{
		WithPipelineNameConfigFiles(filepath.Join(dir, "hosts"), filepath.Join(dir, "resolv.conf")),
		WithPipelineCollectorLogger(quietLogger()),
	}
}

func TestDefaultPipelineSteps(t *testing.T) {
	t.Parallel()

	t.Run("full pipeline", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(testDeps(&fakeRunner{}, fakeResolver{}), nil)

		want := []string{"dns", "route", "hops", "vpn", "interfaces", "name_config", "firewall", "tls"}
		got := p.StepNames()
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("StepNames() = %v, want %v", got, want)
		}
		if !p.continueOnError {
			t.Error("default pipeline should continue on error")
		}
	})

	t.Run("core only", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(testDeps(&fakeRunner{}, fakeResolver{}), nil, WithPipelineSkipSupplemental(true))
		if p.StepCount() != 4 {
			t.Errorf("expected 4 steps, got %d", p.StepCount())
		}
	})

	t.Run("pipeline options override continue on error", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(testDeps(&fakeRunner{}, fakeResolver{}), []Option{WithContinueOnError(false)})
		if p.continueOnError {
			t.Error("explicit option should win")
		}
	})
}

func TestDefaultPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("private path end to end", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{results: map[string]runner.Result{
			"ip route get 199.36.153.8":            {Stdout: "199.36.153.8 dev tun0 src 10.8.0.6 uid 1000\n"},
			"traceroute -n -m 5 -w 2 199.36.153.8": {Stdout: " 1  10.8.0.1  1.0 ms\n 2  203.0.113.1  5.0 ms\n 3  199.36.153.8  9.0 ms\n"},
			"ipsec status":                         {Stdout: "Security Associations (1 up, 0 connecting):\n gcp[1]: ESTABLISHED 5 minutes ago\n"},
			"iptables -L -n -v":                    {Stdout: "  0 0 ACCEPT tcp -- * tun0 0.0.0.0/0 199.36.153.8/30 tcp dpt:443\n"},
		}}
		res := fakeResolver{"aiplatform.googleapis.com": {"199.36.153.8"}}

		deps := testDeps(r, res)
		deps.ASN = fakeASN{}
		opts := append(testConfigOpts(t), WithPipelineMaxHops(5))
		p := DefaultPipeline(deps, []Option{WithLogger(quietLogger())}, opts...)

		ev := model.NewEvidence("aiplatform.googleapis.com", []string{"aiplatform.googleapis.com"})
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ev.Route.Verdict != model.PathPrivate {
			t.Errorf("expected private route, got %+v", ev.Route)
		}
		if ev.Hops.PrivateHopCount() != 1 || ev.Hops.TotalHopCount() != 3 {
			t.Errorf("expected 1/3 private hops, got %d/%d", ev.Hops.PrivateHopCount(), ev.Hops.TotalHopCount())
		}
		if ev.VPN.Mechanism != model.VPNIPsec {
			t.Errorf("expected IPSEC, got %s", ev.VPN.Mechanism)
		}
		if len(ev.PerformedSteps) != 8 {
			t.Errorf("expected 8 performed steps, got %v", ev.PerformedSteps)
		}

		sources := make(map[string]bool)
		for _, o := range ev.Observations {
			sources[o.Source] = true
		}
		for _, s := range []string{"asn", "interfaces", "hosts", "resolv.conf", "firewall", "tls"} {
			if !sources[s] {
				t.Errorf("missing observation from %q", s)
			}
		}

		report := verdict.AggregateEvidence(ev)
		if report.Verdict != model.VerdictPrivateConfirmed {
			t.Errorf("expected PRIVATE_CONFIRMED, got %s", report.Verdict)
		}
	})

	t.Run("target outside hostname list is resolved directly", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{results: map[string]runner.Result{
			"ip route get 142.250.80.10": {Stdout: "142.250.80.10 via 8.8.8.8 dev eth0\n"},
		}}
		res := fakeResolver{
			"generativelanguage.googleapis.com": {"142.250.80.11"},
			"aiplatform.googleapis.com":         {"142.250.80.10"},
		}
		p := DefaultPipeline(testDeps(r, res), []Option{WithLogger(quietLogger())},
			append(testConfigOpts(t), WithPipelineSkipSupplemental(true))...)

		ev := model.NewEvidence("aiplatform.googleapis.com", []string{"generativelanguage.googleapis.com"})
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ev.Route.TargetIP != "142.250.80.10" || ev.Route.Verdict != model.PathPublic {
			t.Errorf("unexpected route: %+v", ev.Route)
		}
		if verdict.AggregateEvidence(ev).Verdict != model.VerdictPublicSuspected {
			t.Error("expected PUBLIC_SUSPECTED")
		}
	})

	t.Run("target outside hostname list is resolved once", func(t *testing.T) {
		t.Parallel()

		res := &rotatingResolver{host: "aiplatform.googleapis.com"}
		p := DefaultPipeline(testDeps(&fakeRunner{}, res), []Option{WithLogger(quietLogger())}, testConfigOpts(t)...)

		ev := model.NewEvidence("aiplatform.googleapis.com", []string{"generativelanguage.googleapis.com"})
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.calls != 1 {
			t.Errorf("expected one target lookup, got %d", res.calls)
		}
		if ev.Route.TargetIP != "142.250.80.1" || ev.Hops.TargetIP != "142.250.80.1" {
			t.Errorf("expected route and hops on the same address, got %q and %q", ev.Route.TargetIP, ev.Hops.TargetIP)
		}
		if ev.TargetIP() != "142.250.80.1" {
			t.Errorf("expected cached target IP, got %q", ev.TargetIP())
		}
		found := false
		for _, o := range ev.Observations {
			if o.Source == "tls" {
				found = true
				if !strings.Contains(o.Summary, "142.250.80.1:443") {
					t.Errorf("expected handshake with the cached address, got %q", o.Summary)
				}
			}
		}
		if !found {
			t.Error("expected tls observation")
		}
	})

	t.Run("failed target lookup is not retried", func(t *testing.T) {
		t.Parallel()

		res := &rotatingResolver{host: "other.example"}
		p := DefaultPipeline(testDeps(&fakeRunner{}, res), []Option{WithLogger(quietLogger())}, testConfigOpts(t)...)

		ev := model.NewEvidence("aiplatform.googleapis.com", []string{"generativelanguage.googleapis.com"})
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ev.TargetLookup == nil || ev.TargetLookup.Error == "" {
			t.Fatalf("expected recorded lookup failure, got %+v", ev.TargetLookup)
		}
		if ev.Route.Error != ev.Hops.Error {
			t.Errorf("expected the same error for route and hops, got %q and %q", ev.Route.Error, ev.Hops.Error)
		}
	})

	t.Run("unresolvable target degrades to unknown", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{}
		p := DefaultPipeline(testDeps(r, fakeResolver{}), []Option{WithLogger(quietLogger())},
			append(testConfigOpts(t), WithPipelineSkipSupplemental(true))...)

		ev := model.NewEvidence("aiplatform.googleapis.com", []string{"aiplatform.googleapis.com"})
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ev.Route.Verdict != model.PathUnknown || !strings.Contains(ev.Route.Error, "did not resolve") {
			t.Errorf("unexpected route: %+v", ev.Route)
		}
		if ev.Hops.Error == "" {
			t.Error("expected hop error")
		}
		for _, c := range r.calls {
			if strings.HasPrefix(c, "ip ") || strings.HasPrefix(c, "traceroute") {
				t.Errorf("no route or trace command expected, got %q", c)
			}
		}
		if verdict.AggregateEvidence(ev).Verdict != model.VerdictIndeterminate {
			t.Error("expected INDETERMINATE")
		}
	})
}

func TestASNObservation(t *testing.T) {
	t.Parallel()

	hops := model.HopEvidence{Hops: []model.Hop{
		{Number: 1, IP: "10.0.0.1", IsPrivate: true},
		{Number: 2, IP: "142.250.1.1", ASN: 15169, ASNOrg: "GOOGLE"},
		{Number: 3, IP: "203.0.113.1", ASN: 64500, ASNOrg: "EXAMPLE"},
		{Number: 4, IP: "142.250.1.2", ASN: 15169, ASNOrg: "GOOGLE"},
	}}

	obs, ok := asnObservation(hops)
	if !ok {
		t.Fatal("expected an observation")
	}
	if len(obs.Details) != 2 || obs.Details[0] != "AS15169 GOOGLE" {
		t.Errorf("unexpected details: %v", obs.Details)
	}

	if _, ok := asnObservation(model.HopEvidence{}); ok {
		t.Error("no observation expected without ASN data")
	}
}
