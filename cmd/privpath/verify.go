package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/privpath/internal/asn"
	"github.com/nao1215/privpath/internal/collector"
	"github.com/nao1215/privpath/internal/config"
	"github.com/nao1215/privpath/internal/database"
	"github.com/nao1215/privpath/internal/log"
	"github.com/nao1215/privpath/internal/model"
	"github.com/nao1215/privpath/internal/pipeline"
	"github.com/nao1215/privpath/internal/report"
	"github.com/nao1215/privpath/internal/runner"
	"github.com/nao1215/privpath/internal/verdict"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the verify command.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Collect path evidence and print a verdict",
		Long: `Verify resolves the googleapis.com hostnames, inspects the route and
traceroute to the target host, probes IPsec, OpenVPN and WireGuard, and
prints a verdict with a remediation checklist.

The verdict never changes the exit status. privpath exits non-zero only when
the host has no usable network interface or the configuration is invalid.

Configuration is layered: defaults, then the .privpath file, then the
environment (PROD_PROJECT_ID, LOCATION, also read from .env), then flags.

Examples:
  # Verify with defaults and print a text report
  privpath verify

  # Trace a regional endpoint and save the run
  privpath verify -H us-central1-aiplatform.googleapis.com --save

  # Probe privileged tools through sudo and annotate hops with ASNs
  privpath verify --sudo --asn-db ./GeoLite2-ASN.mmdb

  # Markdown report for a change ticket
  privpath verify -M -o reports/path.md`,
		Args: cobra.NoArgs,
		RunE: runVerifyCmd,
	}

	addVerifyFlags(cmd)

	return cmd
}

// addVerifyFlags registers the verify flags on cmd. The root command
// carries them too so that a bare "privpath" accepts them.
func addVerifyFlags(cmd *cobra.Command) {
	// Configuration sources
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .privpath in current or home directory)")
	cmd.Flags().String("env-file", config.DefaultEnvFile,
		"dotenv file read for PROD_PROJECT_ID and LOCATION")

	// Evidence collection flags
	cmd.Flags().StringP("target", "H", config.DefaultTargetHost,
		"Hostname whose address is routed and traced")
	cmd.Flags().StringSlice("host", nil,
		"Hostname to resolve (repeatable; default: the Vertex AI hostnames for the region)")
	cmd.Flags().IntP("max-hops", "m", config.DefaultMaxHops,
		"Maximum traceroute hops")
	cmd.Flags().DurationP("timeout", "t", config.DefaultCommandTimeout,
		"Timeout for each diagnostic command")
	cmd.Flags().Duration("trace-timeout", config.DefaultTraceTimeout,
		"Timeout for the whole traceroute")
	cmd.Flags().Bool("sudo", false,
		"Run ipsec, wg and iptables through sudo -n")
	cmd.Flags().String("asn-db", "",
		"GeoLite2-ASN MMDB file used to annotate public hops")
	cmd.Flags().Bool("skip-supplemental", false,
		"Skip the interface, hosts/resolv.conf, firewall and TLS observations")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "M", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().BoolP("save", "s", false,
		"Store the report in the run history database")
}

// runVerifyCmd executes the verify command.
func runVerifyCmd(cmd *cobra.Command, _ []string) error {
	// Build config from defaults, file, environment and flags
	cfg, err := buildConfig(cmd, os.LookupEnv)
	if err != nil {
		return err
	}

	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	cfg.Verbose = getVerboseFlag(cmd)
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	deps, cleanup := newDeps(cfg, logger)
	defer cleanup()

	verificationReport, err := runVerify(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}

	if err := outputReport(cfg, verificationReport, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.SaveToDB {
		if err := saveReport(ctx, cfg.DBDir, verificationReport, logger); err != nil {
			// The report is already printed; a history failure is not fatal.
			logger.Error("failed to save report", "error", err)
		}
	}

	return nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from defaults, the configuration file, the
// environment and the flags the user changed, in that order.
func buildConfig(cmd *cobra.Command, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use defaults if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	cfg.EnvFile, err = flags.GetString("env-file")
	if err != nil {
		return nil, err
	}
	envValues, err := config.ReadEnvFile(cfg.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", cfg.EnvFile, err)
	}
	cfg.ApplyEnv(lookup, envValues)

	// Flags override the file and the environment only when given.
	if flags.Changed("target") {
		if cfg.TargetHost, err = flags.GetString("target"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("host") {
		if cfg.Hostnames, err = flags.GetStringSlice("host"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-hops") {
		if cfg.MaxHops, err = flags.GetInt("max-hops"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.CommandTimeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("trace-timeout") {
		if cfg.TraceTimeout, err = flags.GetDuration("trace-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("sudo") {
		if cfg.UseSudo, err = flags.GetBool("sudo"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("asn-db") {
		if cfg.ASNDatabase, err = flags.GetString("asn-db"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("save") {
		if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
			return nil, err
		}
	}

	cfg.SkipSupplemental, err = flags.GetBool("skip-supplemental")
	if err != nil {
		return nil, err
	}

	cfg.JSONReport, err = flags.GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = flags.GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = flags.GetString("output")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDeps builds the command runner, the resolver and the optional ASN
// database. The returned cleanup closes whatever was opened.
func newDeps(cfg *config.Config, logger *slog.Logger) (pipeline.Deps, func()) {
	deps := pipeline.Deps{
		Runner: runner.NewExecRunner(
			runner.WithSudo(cfg.UseSudo),
			runner.WithLogger(logger),
		),
		Resolver:   collector.NewNetResolver(cfg.LookupTimeout),
		Interfaces: collector.SystemInterfaces,
	}

	cleanup := func() {}
	if cfg.ASNDatabase != "" {
		db, err := asn.Open(cfg.ASNDatabase)
		if err != nil {
			// Hops are still reported, only without ASN annotations.
			logger.Warn("ASN database unavailable", "path", cfg.ASNDatabase, "error", err)
		} else {
			deps.ASN = db
			cleanup = func() {
				if err := db.Close(); err != nil {
					logger.Debug("failed to close ASN database", "error", err)
				}
			}
		}
	}

	return deps, cleanup
}

// runVerify checks the network stack, runs the collection pipeline and
// aggregates the evidence into a report with run metadata.
// Only a missing network stack is returned as an error; everything else
// ends up in the report.
func runVerify(ctx context.Context, cfg *config.Config, deps pipeline.Deps, logger *slog.Logger) (*model.VerificationReport, error) {
	interfaces := deps.Interfaces
	if interfaces == nil {
		interfaces = collector.SystemInterfaces
	}
	if err := collector.CheckNetworkStack(interfaces); err != nil {
		return nil, err
	}

	hostnames := cfg.EffectiveHostnames()
	logger.Info("starting verification",
		"target", cfg.TargetHost,
		"hostnames", hostnames,
		"maxHops", cfg.MaxHops,
		"sudo", cfg.UseSudo,
	)

	p := pipeline.DefaultPipeline(deps,
		[]pipeline.Option{pipeline.WithLogger(logger)},
		pipeline.WithPipelineMaxHops(cfg.MaxHops),
		pipeline.WithPipelineCommandTimeout(cfg.CommandTimeout),
		pipeline.WithPipelineTraceTimeout(cfg.TraceTimeout),
		pipeline.WithPipelineNameConfigFiles(cfg.HostsFile, cfg.ResolvConf),
		pipeline.WithPipelineSkipSupplemental(cfg.SkipSupplemental),
		pipeline.WithPipelineCollectorLogger(logger),
	)
	logger.Debug("pipeline ready", "steps", p.StepNames(), "step_count", p.StepCount())

	ev := model.NewEvidence(cfg.TargetHost, hostnames)
	startedAt := time.Now()

	if err := p.Execute(ctx, ev); err != nil {
		// Cancellation leaves a partial evidence set that is still reported.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("pipeline stopped", "error", err)
		}
	}

	if len(ev.PerformedSteps) < p.StepCount() {
		logger.Warn("not every step ran",
			"performed", len(ev.PerformedSteps),
			"planned", p.StepCount(),
		)
	}

	duration := time.Since(startedAt)
	logger.Info("verification finished",
		"steps", pipeline.StepSummary(ev),
		"duration", duration.Round(time.Millisecond),
	)

	r := verdict.AggregateEvidence(ev)
	r.Meta = model.RunMeta{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Duration:  duration,
		ProjectID: cfg.ProjectID,
		Region:    cfg.Region,
		Version:   getVersion(),
	}
	if host, err := os.Hostname(); err == nil {
		r.Meta.Host = host
	}

	return r, nil
}

// outputReport writes the report in the requested format to the report
// file, or to stdout when no file is configured.
func outputReport(cfg *config.Config, r *model.VerificationReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports name internal gateways and addresses, so only the owner
		// may read them.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := w.Write(r)
	return err
}

// saveReport stores the report in the history database under dbDir.
func saveReport(ctx context.Context, dbDir string, r *model.VerificationReport, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// The run context may already be cancelled; the partial report is
	// still worth keeping.
	id, err := db.SaveReport(context.WithoutCancel(ctx), r)
	if err != nil {
		return err
	}

	logger.Info("report saved to database",
		"id", id,
		"runID", r.Meta.RunID,
		"path", db.Path(),
	)
	return nil
}
