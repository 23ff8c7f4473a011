package verdict

import (
	"reflect"
	"strings"
	"testing"

	"github.com/nao1215/privpath/internal/collector"
	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
)

func host(name string, addrs ...string) model.HostnameEvidence {
	h := model.HostnameEvidence{Hostname: name, QueriedName: name, Addresses: addrs}
	for _, a := range addrs {
		c, err := netclass.Classify(a)
		if err != nil {
			panic(err)
		}
		h.Classifications = append(h.Classifications, c)
	}
	return h
}

func failedHost(name string) model.HostnameEvidence {
	return model.HostnameEvidence{Hostname: name, QueriedName: name, Error: "resolve " + name + ": no such host"}
}

var (
	established = model.VPNStatus{
		Mechanism:   model.VPNIPsec,
		Established: true,
		Probes:      []model.VPNProbe{{Mechanism: model.VPNIPsec, Detected: true, Established: true}},
	}
	noVPN = model.VPNStatus{
		Mechanism: model.VPNNone,
		Probes: []model.VPNProbe{
			{Mechanism: model.VPNIPsec, Error: "not found"},
			{Mechanism: model.VPNOpenVPN, Error: "not found"},
			{Mechanism: model.VPNWireGuard, Error: "not found"},
		},
	}
)

func TestAggregateScenarios(t *testing.T) {
	t.Parallel()

	t.Run("tunnel route with private access is PRIVATE_CONFIRMED", func(t *testing.T) {
		t.Parallel()

		dns := []model.HostnameEvidence{host("aiplatform.googleapis.com", "199.36.153.8")}
		route := collector.ParseRoute("199.36.153.8", "199.36.153.8 dev tun0 src 10.8.0.6 uid 1000")

		r := Aggregate(dns, route, model.HopEvidence{}, established)

		if r.Verdict != model.VerdictPrivateConfirmed {
			t.Errorf("expected PRIVATE_CONFIRMED, got %s", r.Verdict)
		}
		if r.HasRemediation() {
			t.Errorf("expected no remediation, got %+v", r.Remediation)
		}
	})

	t.Run("public DNS, public gateway and no VPN is PUBLIC_SUSPECTED", func(t *testing.T) {
		t.Parallel()

		dns := []model.HostnameEvidence{host("aiplatform.googleapis.com", "142.250.80.10")}
		route := collector.ParseRoute("142.250.80.10", "142.250.80.10 via 8.8.8.8 dev eth0 src 203.0.113.5")

		r := Aggregate(dns, route, model.HopEvidence{}, noVPN)

		if r.Verdict != model.VerdictPublicSuspected {
			t.Errorf("expected PUBLIC_SUSPECTED, got %s", r.Verdict)
		}
		if !r.HasRemediation() {
			t.Error("expected remediation items")
		}
	})

	t.Run("route timeout with mixed DNS is INDETERMINATE", func(t *testing.T) {
		t.Parallel()

		dns := []model.HostnameEvidence{
			host("aiplatform.googleapis.com", "199.36.153.8"),
			host("generativelanguage.googleapis.com", "142.250.72.10"),
		}
		route := model.RouteEvidence{
			TargetIP: "199.36.153.8",
			Verdict:  model.PathUnknown,
			Error:    `command "ip route get 199.36.153.8" timed out`,
		}

		r := Aggregate(dns, route, model.HopEvidence{}, noVPN)

		if r.Verdict != model.VerdictIndeterminate {
			t.Fatalf("expected INDETERMINATE, got %s", r.Verdict)
		}
		var routeItem *model.Remediation
		for i := range r.Remediation {
			if r.Remediation[i].Category == CategoryRoute {
				routeItem = &r.Remediation[i]
			}
		}
		if routeItem == nil {
			t.Fatalf("expected a route remediation item, got %+v", r.Remediation)
		}
		if !strings.Contains(routeItem.Detail, "timed out") {
			t.Errorf("expected route detail to name the failed check, got %q", routeItem.Detail)
		}
	})
}

func TestDecide(t *testing.T) {
	t.Parallel()

	publicRoute := model.RouteEvidence{Verdict: model.PathPublic}
	privateRoute := model.RouteEvidence{Verdict: model.PathPrivate}
	unknownRoute := model.RouteEvidence{Verdict: model.PathUnknown}

	publicDNS := []model.HostnameEvidence{host("a", "8.8.4.4")}
	gpaDNS := []model.HostnameEvidence{host("a", "199.36.154.10")}
	rfcDNS := []model.HostnameEvidence{host("a", "10.1.1.1")}
	failedDNS := []model.HostnameEvidence{failedHost("a")}

	tests := []struct {
		name  string
		dns   []model.HostnameEvidence
		route model.RouteEvidence
		vpn   model.VPNStatus
		want  model.Verdict
	}{
		{"public all around", publicDNS, publicRoute, noVPN, model.VerdictPublicSuspected},
		{"public but tunnel up", publicDNS, publicRoute, established, model.VerdictIndeterminate},
		{"tunnel and private route", publicDNS, privateRoute, established, model.VerdictPrivateConfirmed},
		{"tunnel and private access DNS", gpaDNS, unknownRoute, established, model.VerdictPrivateConfirmed},
		{"tunnel with RFC1918 DNS only", rfcDNS, unknownRoute, established, model.VerdictIndeterminate},
		{"private route without tunnel", gpaDNS, privateRoute, noVPN, model.VerdictIndeterminate},
		{"no DNS answers", failedDNS, publicRoute, noVPN, model.VerdictIndeterminate},
		{"no DNS evidence at all", nil, publicRoute, noVPN, model.VerdictIndeterminate},
		{"public answers with one failed lookup", []model.HostnameEvidence{host("a", "142.250.80.10"), failedHost("b")}, publicRoute, noVPN, model.VerdictIndeterminate},
		{"unknown route", publicDNS, unknownRoute, noVPN, model.VerdictIndeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Decide(tt.dns, tt.route, tt.vpn); got != tt.want {
				t.Errorf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()

	dns := []model.HostnameEvidence{
		host("aiplatform.googleapis.com", "199.36.153.8"),
		failedHost("*.googleapis.com"),
	}
	route := collector.ParseRoute("199.36.153.8", "199.36.153.8 via 192.168.1.1 dev eth0")
	hops := model.HopEvidence{
		TargetIP: "199.36.153.8",
		MaxHops:  10,
		Hops:     collector.ParseTraceroute(" 1  192.168.1.1  0.3 ms\n 2  203.0.113.1  4.0 ms\n", 10),
	}

	first := Aggregate(dns, route, hops, noVPN)
	second := Aggregate(dns, route, hops, noVPN)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ:\n%+v\n%+v", first, second)
	}
	if first.EvidenceDigest() != second.EvidenceDigest() {
		t.Error("digests differ for identical evidence")
	}
}

func TestRemediationCategories(t *testing.T) {
	t.Parallel()

	dns := []model.HostnameEvidence{failedHost("aiplatform.googleapis.com")}
	route := model.RouteEvidence{Verdict: model.PathUnknown}
	hops := model.HopEvidence{Error: `command "traceroute" not found`}

	r := Aggregate(dns, route, hops, noVPN)

	want := []string{CategoryDNS, CategoryRoute, CategoryHops, CategoryVPN}
	if len(r.Remediation) != len(want) {
		t.Fatalf("expected %d items, got %d: %+v", len(want), len(r.Remediation), r.Remediation)
	}
	for i, item := range r.Remediation {
		if item.Category != want[i] {
			t.Errorf("item %d: category %q, want %q", i, item.Category, want[i])
		}
		if item.Status != model.PathUnknown {
			t.Errorf("item %d: status %s, want UNKNOWN", i, item.Status)
		}
		if item.Title == "" || item.Action == "" {
			t.Errorf("item %d: missing guidance: %+v", i, item)
		}
	}
	if !strings.Contains(r.Remediation[2].Detail, "traceroute failed") {
		t.Errorf("unexpected hops detail: %q", r.Remediation[2].Detail)
	}
}

func TestAggregateEvidence(t *testing.T) {
	t.Parallel()

	ev := model.NewEvidence("aiplatform.googleapis.com", []string{"aiplatform.googleapis.com"})
	ev.DNS = []model.HostnameEvidence{host("aiplatform.googleapis.com", "199.36.153.8")}
	ev.Route = model.RouteEvidence{Verdict: model.PathPrivate, Interface: "tun0"}
	ev.VPN = established
	ev.AddObservation(model.Observation{Source: "interfaces", Status: model.PathPrivate, Summary: "1 tunnel interface(s) up"})
	ev.StepErrors = []string{"firewall: boom"}

	r := AggregateEvidence(ev)

	if r.TargetHost != "aiplatform.googleapis.com" {
		t.Errorf("unexpected target host %q", r.TargetHost)
	}
	if len(r.Observations) != 1 || len(r.StepErrors) != 1 {
		t.Errorf("observations or step errors not carried over: %+v", r)
	}
	if r.Verdict != model.VerdictPrivateConfirmed {
		t.Errorf("expected PRIVATE_CONFIRMED, got %s", r.Verdict)
	}
}
