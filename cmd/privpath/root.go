package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for privpath.
// Without a subcommand it runs verify with the same flags.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privpath",
		Short: "Verify the private network path to Vertex AI",
		Long: `privpath checks whether this host reaches Vertex AI and the other
googleapis.com endpoints over a private path: an established VPN tunnel and
Private Google Access addresses, rather than the public internet.

It collects DNS, route, traceroute and VPN evidence, prints a verdict
(PRIVATE_CONFIRMED, PUBLIC_SUSPECTED or INDETERMINATE) and a remediation
checklist. Running privpath without a subcommand is the same as
"privpath verify".`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runVerifyCmd,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	addVerifyFlags(cmd)

	// Add subcommands
	cmd.AddCommand(NewVerifyCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
