package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/netclass"
)

const (
	// DefaultHostsFile is the static host table.
	DefaultHostsFile = "/etc/hosts"

	// DefaultResolvConf is the resolver configuration.
	DefaultResolvConf = "/etc/resolv.conf"

	// apiDomain is the domain whose overrides are reported.
	apiDomain = "googleapis.com"
)

// HostsEntry is one hosts-file line that maps API names to an address.
type HostsEntry struct {
	IP             string
	Names          []string
	Classification netclass.Classification
}

// ParseHostsOverrides returns hosts-file entries naming a host in domain.
// Comments and lines with an invalid address are skipped.
func ParseHostsOverrides(text, domain string) []HostsEntry {
	var entries []HostsEntry
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		var names []string
		for _, name := range fields[1:] {
			name = strings.ToLower(name)
			if name == domain || strings.HasSuffix(name, "."+domain) {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			continue
		}
		class, err := netclass.Classify(fields[0])
		if err != nil {
			continue
		}
		entries = append(entries, HostsEntry{
			IP:             fields[0],
			Names:          names,
			Classification: class,
		})
	}
	return entries
}

// ResolvConf is the part of resolv.conf that matters for API lookups.
type ResolvConf struct {
	Nameservers []string
	Search      []string
}

// ParseResolvConf extracts nameserver and search lines.
func ParseResolvConf(text string) ResolvConf {
	var rc ResolvConf
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") || strings.HasPrefix(fields[0], ";") {
			continue
		}
		switch fields[0] {
		case "nameserver":
			rc.Nameservers = append(rc.Nameservers, fields[1])
		case "search", "domain":
			rc.Search = append(rc.Search, fields[1:]...)
		}
	}
	return rc
}

// ConfigFileCollector inspects the local name-service configuration.
type ConfigFileCollector struct {
	hostsPath  string
	resolvPath string
	readFile   func(string) ([]byte, error)
}

// NewConfigFileCollector creates a ConfigFileCollector. Empty paths fall
// back to the system defaults.
func NewConfigFileCollector(hostsPath, resolvPath string) *ConfigFileCollector {
	if hostsPath == "" {
		hostsPath = DefaultHostsFile
	}
	if resolvPath == "" {
		resolvPath = DefaultResolvConf
	}
	return &ConfigFileCollector{
		hostsPath:  hostsPath,
		resolvPath: resolvPath,
		readFile:   os.ReadFile,
	}
}

// Collect returns one observation for the hosts file and one for
// resolv.conf.
func (c *ConfigFileCollector) Collect(_ context.Context) []model.Observation {
	return []model.Observation{c.hostsObservation(), c.resolvObservation()}
}

// hostsObservation is PRIVATE when API names are pinned to private-path
// addresses, PUBLIC when they are pinned only to public ones, and UNKNOWN
// when the file has no API entries.
func (c *ConfigFileCollector) hostsObservation() model.Observation {
	obs := model.Observation{Source: "hosts", Status: model.PathUnknown}

	data, err := c.readFile(c.hostsPath)
	if err != nil {
		obs.Summary = fmt.Sprintf("cannot read %s: %v", c.hostsPath, err)
		return obs
	}

	entries := ParseHostsOverrides(string(data), apiDomain)
	if len(entries) == 0 {
		obs.Summary = fmt.Sprintf("no %s overrides in %s", apiDomain, c.hostsPath)
		return obs
	}

	private := 0
	for _, e := range entries {
		if netclass.IsPrivatePath(e.Classification) {
			private++
		}
		obs.Details = append(obs.Details,
			fmt.Sprintf("%s %s (%s)", e.IP, strings.Join(e.Names, " "), e.Classification))
	}
	if private > 0 {
		obs.Status = model.PathPrivate
	} else {
		obs.Status = model.PathPublic
	}
	obs.Summary = fmt.Sprintf("%d %s override(s), %d to private-path addresses", len(entries), apiDomain, private)
	return obs
}

// resolvObservation is PRIVATE when every nameserver is a private address
// (an on-premises forwarder can serve the private zone), PUBLIC when any
// nameserver is public, and UNKNOWN otherwise.
func (c *ConfigFileCollector) resolvObservation() model.Observation {
	obs := model.Observation{Source: "resolv.conf", Status: model.PathUnknown}

	data, err := c.readFile(c.resolvPath)
	if err != nil {
		obs.Summary = fmt.Sprintf("cannot read %s: %v", c.resolvPath, err)
		return obs
	}

	rc := ParseResolvConf(string(data))
	if len(rc.Nameservers) == 0 {
		obs.Summary = "no nameserver configured"
		return obs
	}

	public, private := 0, 0
	for _, ns := range rc.Nameservers {
		addr, err := netclass.Parse(ns)
		if err != nil {
			obs.Details = append(obs.Details, "nameserver "+ns+" (invalid)")
			continue
		}
		// Loopback stub resolvers (systemd-resolved) say nothing about the
		// upstream, so they count as neither.
		if addr.IsLoopback() {
			obs.Details = append(obs.Details, "nameserver "+ns+" (local stub)")
			continue
		}
		class := netclass.ClassifyAddr(addr)
		if netclass.IsPrivatePath(class) {
			private++
		} else {
			public++
		}
		obs.Details = append(obs.Details, fmt.Sprintf("nameserver %s (%s)", ns, class))
	}
	if len(rc.Search) > 0 {
		obs.Details = append(obs.Details, "search "+strings.Join(rc.Search, " "))
	}

	switch {
	case public > 0:
		obs.Status = model.PathPublic
		obs.Summary = fmt.Sprintf("%d public nameserver(s); a private %s zone will not be visible", public, apiDomain)
	case private > 0:
		obs.Status = model.PathPrivate
		obs.Summary = "all nameservers are private addresses"
	default:
		obs.Summary = "only local stub resolvers configured"
	}
	return obs
}
