package collector

import (
	"context"
	"net/netip"
	"testing"

	"github.com/nao1215/privpath/internal/netclass"
	"github.com/nao1215/privpath/internal/runner"
)

// tenHopTrace has ten responding hops, three of them in 10.0.0.0/8.
const tenHopTrace = `traceroute to 142.250.72.10 (142.250.72.10), 10 hops max, 60 byte packets
 1  10.0.0.1  0.412 ms
 2  10.20.0.1  1.020 ms
 3  10.254.3.9  1.880 ms
 4  203.0.113.1  3.551 ms
 5  142.250.160.1  5.002 ms
 6  72.14.233.20  5.630 ms
 7  108.170.250.33  6.118 ms
 8  216.239.48.1  6.770 ms
 9  209.85.252.77  7.310 ms
10  142.250.72.10  7.902 ms
`

func TestParseTraceroute(t *testing.T) {
	t.Parallel()

	t.Run("counts private hops", func(t *testing.T) {
		t.Parallel()

		hops := ParseTraceroute(tenHopTrace, 10)

		if len(hops) != 10 {
			t.Fatalf("expected 10 hops, got %d", len(hops))
		}
		private := 0
		for _, h := range hops {
			if h.IsPrivate {
				private++
			}
		}
		if private != 3 {
			t.Errorf("expected 3 private hops, got %d", private)
		}
		if hops[9].Classification != netclass.Public {
			t.Errorf("expected last hop PUBLIC, got %s", hops[9].Classification)
		}
		if hops[0].Number != 1 || hops[9].Number != 10 {
			t.Errorf("unexpected hop numbers: %d..%d", hops[0].Number, hops[9].Number)
		}
	})

	t.Run("private access frontend is not a private hop", func(t *testing.T) {
		t.Parallel()

		hops := ParseTraceroute(" 1  203.0.113.1  1.0 ms\n 2  199.36.153.8  2.0 ms\n", 10)

		if len(hops) != 2 {
			t.Fatalf("expected 2 hops, got %d", len(hops))
		}
		if hops[0].IsPrivate || hops[1].IsPrivate {
			t.Errorf("expected no private hops, got %+v", hops)
		}
		if hops[1].Classification != netclass.GooglePrivateAccess {
			t.Errorf("expected GOOGLE_PRIVATE_ACCESS, got %s", hops[1].Classification)
		}
	})

	t.Run("skips silent hops and takes first responder", func(t *testing.T) {
		t.Parallel()

		text := ` 1  10.0.0.1  0.4 ms
 2  * * *
 3  198.51.100.1  2.0 ms 198.51.100.2  2.1 ms *
 4  *  192.0.2.9  3.3 ms  *
`
		hops := ParseTraceroute(text, 10)

		if len(hops) != 3 {
			t.Fatalf("expected 3 hops, got %d: %+v", len(hops), hops)
		}
		if hops[1].Number != 3 || hops[1].IP != "198.51.100.1" {
			t.Errorf("unexpected hop: %+v", hops[1])
		}
		if hops[2].IP != "192.0.2.9" {
			t.Errorf("expected first answering address, got %q", hops[2].IP)
		}
	})

	t.Run("accepts non-numeric output with parenthesized addresses", func(t *testing.T) {
		t.Parallel()

		hops := ParseTraceroute(" 1  gw.corp.example (10.1.0.1)  0.5 ms\n", 10)

		if len(hops) != 1 || hops[0].IP != "10.1.0.1" {
			t.Fatalf("unexpected hops: %+v", hops)
		}
	})

	t.Run("stops at max hops", func(t *testing.T) {
		t.Parallel()

		hops := ParseTraceroute(tenHopTrace, 4)
		if len(hops) != 4 {
			t.Errorf("expected 4 hops, got %d", len(hops))
		}
	})

	t.Run("empty output", func(t *testing.T) {
		t.Parallel()

		if hops := ParseTraceroute("", 10); len(hops) != 0 {
			t.Errorf("expected no hops, got %d", len(hops))
		}
	})
}

// staticASN answers every lookup with one AS.
type staticASN struct{}

func (staticASN) LookupASN(addr netip.Addr) (uint, string, bool) {
	if addr.String() == "142.250.160.1" {
		return 15169, "GOOGLE", true
	}
	return 0, "", false
}

func TestHopCollectorCollect(t *testing.T) {
	t.Parallel()

	cmd := "traceroute -n -m 10 -w 2 199.36.153.8"

	t.Run("derives counters and annotates ASN", func(t *testing.T) {
		t.Parallel()

		r := newFakeRunner(map[string]runner.Result{cmd: {Stdout: tenHopTrace}})
		c := NewHopCollector(r, WithASNLookup(staticASN{}), WithHopLogger(discardLogger()))

		ev := c.Collect(context.Background(), "199.36.153.8", 10)

		if ev.PrivateHopCount() != 3 || ev.TotalHopCount() != 10 {
			t.Errorf("expected 3/10, got %d/%d", ev.PrivateHopCount(), ev.TotalHopCount())
		}
		if ev.PrivacyRatio() != 0.3 {
			t.Errorf("expected ratio 0.3, got %v", ev.PrivacyRatio())
		}
		if ev.Hops[4].ASN != 15169 || ev.Hops[4].ASNOrg != "GOOGLE" {
			t.Errorf("expected hop 5 annotated, got %+v", ev.Hops[4])
		}
		if ev.Hops[0].ASN != 0 {
			t.Errorf("private hop must not be annotated: %+v", ev.Hops[0])
		}
	})

	t.Run("timeout keeps partial hops", func(t *testing.T) {
		t.Parallel()

		r := newFakeRunner(map[string]runner.Result{cmd: {
			Stdout:   " 1  10.0.0.1  0.4 ms\n 2  203.0.113.1  2.0 ms\n",
			ExitCode: runner.ExitTimeout,
			TimedOut: true,
		}})
		c := NewHopCollector(r, WithHopLogger(discardLogger()))

		ev := c.Collect(context.Background(), "199.36.153.8", 10)

		if !ev.TimedOut {
			t.Error("expected TimedOut")
		}
		if ev.TotalHopCount() != 2 {
			t.Errorf("expected 2 partial hops, got %d", ev.TotalHopCount())
		}
		if ev.Error == "" {
			t.Error("expected error to be recorded")
		}
	})

	t.Run("missing traceroute yields no hops", func(t *testing.T) {
		t.Parallel()

		c := NewHopCollector(newFakeRunner(nil), WithHopLogger(discardLogger()))

		ev := c.Collect(context.Background(), "199.36.153.8", 10)

		if ev.TotalHopCount() != 0 || ev.PrivacyRatio() != 0 {
			t.Errorf("expected empty evidence, got %+v", ev)
		}
		if ev.Error == "" {
			t.Error("expected error to be recorded")
		}
	})

	t.Run("defaults max hops", func(t *testing.T) {
		t.Parallel()

		r := newFakeRunner(map[string]runner.Result{cmd: {Stdout: tenHopTrace}})
		c := NewHopCollector(r, WithHopLogger(discardLogger()))

		ev := c.Collect(context.Background(), "199.36.153.8", 0)
		if ev.MaxHops != DefaultMaxHops {
			t.Errorf("expected max hops %d, got %d", DefaultMaxHops, ev.MaxHops)
		}
	})
}
