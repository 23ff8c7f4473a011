package config

import "time"

// File represents the structure of the .privpath configuration file.
// Zero values mean "not set" and leave the current configuration alone.
type File struct {
	// Hostnames replaces the default hostname list.
	Hostnames []string `yaml:"hostnames,omitempty"`

	// TargetHost is the hostname to route and trace.
	TargetHost string `yaml:"targetHost,omitempty"`

	// MaxHops bounds the trace.
	MaxHops int `yaml:"maxHops,omitempty"`

	// Timeout and TraceTimeout use Go duration syntax ("10s", "1m").
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	TraceTimeout time.Duration `yaml:"traceTimeout,omitempty"`

	// Sudo runs privileged probes through "sudo -n".
	Sudo bool `yaml:"sudo,omitempty"`

	// ASNDatabase is the path of a GeoLite2-ASN MMDB file.
	ASNDatabase string `yaml:"asnDatabase,omitempty"`

	// HostsFile and ResolvConf override the name-service file paths.
	HostsFile  string `yaml:"hostsFile,omitempty"`
	ResolvConf string `yaml:"resolvConf,omitempty"`

	// ProjectID and Region are overridden by PROD_PROJECT_ID and LOCATION.
	ProjectID string `yaml:"projectID,omitempty"`
	Region    string `yaml:"region,omitempty"`

	// Save stores every report in the history database.
	Save bool `yaml:"save,omitempty"`

	// DBDir overrides the history database directory.
	DBDir string `yaml:"dbDir,omitempty"`
}

// Apply overlays the values set in the file onto c.
func (f *File) Apply(c *Config) {
	if len(f.Hostnames) > 0 {
		c.Hostnames = append([]string(nil), f.Hostnames...)
	}
	if f.TargetHost != "" {
		c.TargetHost = f.TargetHost
	}
	if f.MaxHops != 0 {
		c.MaxHops = f.MaxHops
	}
	if f.Timeout != 0 {
		c.CommandTimeout = f.Timeout
	}
	if f.TraceTimeout != 0 {
		c.TraceTimeout = f.TraceTimeout
	}
	if f.Sudo {
		c.UseSudo = true
	}
	if f.ASNDatabase != "" {
		c.ASNDatabase = f.ASNDatabase
	}
	if f.HostsFile != "" {
		c.HostsFile = f.HostsFile
	}
	if f.ResolvConf != "" {
		c.ResolvConf = f.ResolvConf
	}
	if f.ProjectID != "" {
		c.ProjectID = f.ProjectID
	}
	if f.Region != "" {
		c.Region = f.Region
	}
	if f.Save {
		c.SaveToDB = true
	}
	if f.DBDir != "" {
		c.DBDir = f.DBDir
	}
}
