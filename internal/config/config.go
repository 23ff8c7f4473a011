package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/net/idna"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "privpath"

	// DefaultRegion is the Vertex AI region used when LOCATION is unset.
	DefaultRegion = "us-central1"

	// DefaultTargetHost is the hostname whose address is routed and traced.
	DefaultTargetHost = "aiplatform.googleapis.com"

	// DefaultMaxHops bounds the trace. Ten hops reach the Google edge from
	// most on-premises networks.
	DefaultMaxHops = 10

	// MaxHopsLimit is the largest accepted hop limit.
	MaxHopsLimit = 64

	// DefaultCommandTimeout bounds each diagnostic command.
	DefaultCommandTimeout = 10 * time.Second

	// DefaultTraceTimeout bounds the whole trace. traceroute waits for every
	// silent hop, so it needs more room than the other commands.
	DefaultTraceTimeout = 30 * time.Second

	// DefaultLookupTimeout bounds a single DNS lookup.
	DefaultLookupTimeout = 5 * time.Second
)

// DefaultHostnames returns the API hostnames checked for a region.
func DefaultHostnames(region string) []string {
	if region == "" {
		region = DefaultRegion
	}
	return []string{
		"aiplatform.googleapis.com",
		region + "-aiplatform.googleapis.com",
		"generativelanguage.googleapis.com",
		"*.googleapis.com",
	}
}

// Config holds all configuration options for privpath.
// This struct is populated from defaults, the config file, the environment
// and CLI flags, and passed through the application rather than kept in
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., TraceConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without benefit.
type Config struct {
	// Hostnames are the API names to resolve. When empty,
	// DefaultHostnames(Region) is used.
	Hostnames []string

	// TargetHost is the hostname whose address is routed and traced.
	TargetHost string

	// MaxHops bounds the trace depth.
	MaxHops int

	// CommandTimeout bounds each diagnostic command except traceroute.
	CommandTimeout time.Duration

	// TraceTimeout bounds the whole trace.
	TraceTimeout time.Duration

	// LookupTimeout bounds each DNS lookup.
	LookupTimeout time.Duration

	// UseSudo runs the privileged probes (ipsec, wg, iptables) through
	// "sudo -n".
	UseSudo bool

	// ASNDatabase is the path of a GeoLite2-ASN MMDB file. Optional.
	ASNDatabase string

	// HostsFile and ResolvConf override the name-service file paths.
	HostsFile  string
	ResolvConf string

	// SkipSupplemental runs only the DNS, route, hop and VPN collectors.
	SkipSupplemental bool

	// ProjectID is the Google Cloud project being verified. It is shown in
	// the report only.
	ProjectID string

	// Region is the Vertex AI region.
	Region string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .privpath in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// EnvFile is the dotenv file read for PROD_PROJECT_ID and LOCATION.
	EnvFile string

	// JSONReport enables JSON report output instead of the text format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of the text
	// format. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// SaveToDB stores the report in the run history database.
	SaveToDB bool

	// DBDir is the directory of the history database.
	// Defaults to the XDG data directory (~/.local/share/privpath on Linux).
	DBDir string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		TargetHost:     DefaultTargetHost,
		MaxHops:        DefaultMaxHops,
		CommandTimeout: DefaultCommandTimeout,
		TraceTimeout:   DefaultTraceTimeout,
		LookupTimeout:  DefaultLookupTimeout,
		Region:         DefaultRegion,
		EnvFile:        DefaultEnvFile,
		DBDir:          XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for privpath.
// On Linux: ~/.local/share/privpath
// On macOS: ~/Library/Application Support/privpath
// On Windows: %LOCALAPPDATA%\privpath
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for privpath.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EffectiveHostnames returns Hostnames, or the region defaults when empty.
func (c *Config) EffectiveHostnames() []string {
	if len(c.Hostnames) > 0 {
		return c.Hostnames
	}
	return DefaultHostnames(c.Region)
}

// Normalize resolves the hostname defaults and converts every hostname to
// its lower-case ASCII form. A leading "*." wildcard label is preserved.
func (c *Config) Normalize() error {
	hosts := c.EffectiveHostnames()
	normalized := make([]string, 0, len(hosts))
	seen := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		n, err := normalizeHostname(h)
		if err != nil {
			return err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	c.Hostnames = normalized

	if c.TargetHost != "" {
		n, err := normalizeHostname(c.TargetHost)
		if err != nil {
			return err
		}
		c.TargetHost = n
	}
	return nil
}

// normalizeHostname converts one hostname with IDNA lookup rules.
func normalizeHostname(h string) (string, error) {
	h = strings.TrimSuffix(strings.TrimSpace(h), ".")
	if h == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidHostname)
	}

	prefix := ""
	if strings.HasPrefix(h, "*.") {
		prefix, h = "*.", h[2:]
	}

	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidHostname, h, err)
	}
	return prefix + ascii, nil
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after all layers have been applied, before any
// command runs.
func (c *Config) Validate() error {
	if len(c.EffectiveHostnames()) == 0 {
		return ErrNoHostnames
	}

	if c.TargetHost == "" {
		return ErrNoTargetHost
	}
	if strings.Contains(c.TargetHost, "*") {
		return ErrWildcardTarget
	}

	if c.CommandTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.TraceTimeout <= 0 {
		return ErrInvalidTraceTimeout
	}

	if c.MaxHops < 1 || c.MaxHops > MaxHopsLimit {
		return ErrInvalidMaxHops
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}
