// Package config provides configuration structures and utilities for privpath.
// It defines which API hostnames are checked, how the diagnostic commands
// are bounded, and how the report is written and stored.
//
// Values are layered in this order, later layers winning: built-in
// defaults, the YAML config file (.privpath), a .env file, the process
// environment, and finally command-line flags.
package config
