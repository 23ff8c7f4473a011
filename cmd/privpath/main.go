// Package main provides the entry point for the privpath CLI.
//
// privpath verifies that traffic from this host to Vertex AI and the other
// googleapis.com endpoints takes a private network path (VPN tunnel plus
// Private Google Access) instead of the public internet.
//
// Usage:
//
//	privpath
//	privpath verify --json --save
//	privpath history --compare
//
// See --help for all available options.
package main

// main is the entry point for privpath.
func main() {
	Execute()
}
