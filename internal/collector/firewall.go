package collector

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/runner"
)

// googleRangeMarkers identify rules about the Private Google Access ranges.
var googleRangeMarkers = []string{"199.36.153.", "199.36.154.", "199.36.155."}

// FilterFirewallRules returns the rule lines that mention the Private
// Google Access ranges or HTTPS.
func FilterFirewallRules(text string) []string {
	var rules []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if mentionsGoogleRange(line) || strings.Contains(line, "dpt:443") {
			rules = append(rules, line)
		}
	}
	return rules
}

func mentionsGoogleRange(line string) bool {
	for _, m := range googleRangeMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// FirewallCollector lists iptables rules relevant to API traffic.
type FirewallCollector struct {
	runner  runner.Runner
	timeout time.Duration
}

// NewFirewallCollector creates a FirewallCollector.
func NewFirewallCollector(r runner.Runner, timeout time.Duration) *FirewallCollector {
	if timeout <= 0 {
		timeout = runner.DefaultTimeout
	}
	return &FirewallCollector{runner: r, timeout: timeout}
}

// Collect returns a PRIVATE observation when rules reference the Private
// Google Access ranges and UNKNOWN otherwise.
func (c *FirewallCollector) Collect(ctx context.Context) model.Observation {
	obs := model.Observation{Source: "firewall", Status: model.PathUnknown}

	res := c.runner.Run(ctx, runner.Command{
		Name:       "iptables",
		Args:       []string{"-L", "-n", "-v"},
		Timeout:    c.timeout,
		Privileged: true,
	})
	if err := res.Err(); err != nil {
		obs.Summary = "cannot list firewall rules: " + err.Error()
		return obs
	}

	rules := FilterFirewallRules(res.Stdout)
	obs.Details = rules
	if len(rules) == 0 {
		obs.Summary = "no rules mention the Private Google Access ranges or port 443"
		return obs
	}

	ranged := 0
	for _, r := range rules {
		if mentionsGoogleRange(r) {
			ranged++
		}
	}
	if ranged > 0 {
		obs.Status = model.PathPrivate
	}
	obs.Summary = fmt.Sprintf("%d relevant rule(s), %d for the Private Google Access ranges", len(rules), ranged)
	return obs
}
