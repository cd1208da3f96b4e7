// Package cmd implements the rabbitlog command-line interface.
// It uses the Cobra library to handle commands, flags, and execution.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/Alain-L/rabbitlog/config"
	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/metrics"
	"github.com/Alain-L/rabbitlog/output"
)

// Version information (passed from main)
var (
	version string
	commit  string
	date    string
)

// Flag variables shared by every command.
var (
	configPath string // --config: YAML configuration file
	dbPath     string // --db: SQLite database, overrides database.path
	logLevel   string // --log-level: overrides logging.level
	logFile    string // --log-file: overrides logging.path

	jsonFlag    bool // --json: JSON output
	mdFlag      bool // --md: Markdown output
	metricsFlag bool // --metrics: dump counters to stderr on exit
)

// cfg is the effective configuration once flags are applied.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "rabbitlog",
	Short: "RabbitMQ log parser, annotator and query tool",
	Long: `rabbitlog parses RabbitMQ server logs into structured entries, tags each
entry with the broker subsystem it came from and a set of labels, and stores
them in SQLite where they can be searched with RQL:

  rabbitlog ingest /var/log/rabbitmq/
  rabbitlog query '@1h :errors #raft | sort timestamp desc | limit 20'
  rabbitlog query 'severity >= "warning" | count_by subsystem'

Run "rabbitlog presets" or "rabbitlog labels" for the query vocabulary.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if metricsFlag {
			dumpMetrics(os.Stderr)
		}
		logging.Sync()
	},
}

// Execute runs the root command.
// This is called by main.go to start the CLI application.
func Execute(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rabbitlog.yaml",
		"Configuration file (ignored when missing)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "",
		"SQLite database file (default from config: rabbitlog.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Write logs to this file with rotation instead of stderr")

	rootCmd.PersistentFlags().BoolVarP(&jsonFlag, "json", "J", false,
		"Export results in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&mdFlag, "md", "", false,
		"Export results in Markdown format")
	rootCmd.PersistentFlags().BoolVar(&metricsFlag, "metrics", false,
		"Print ingestion and query counters to stderr when done")
}

// loadConfig reads the configuration file and applies flag overrides.
// The default config path is optional; an explicit one must exist.
func loadConfig(cmd *cobra.Command, args []string) error {
	optional := !cmd.Flags().Changed("config")
	loaded, err := config.Load(configPath, optional)
	if err != nil {
		return err
	}

	if dbPath != "" {
		loaded.Database.Path = dbPath
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFile != "" {
		loaded.Logging.Path = logFile
	}

	cfg = loaded
	logging.Init(cfg.Logging)
	return nil
}

// outputFormat maps --json and --md to a renderer.
func outputFormat() (output.Format, error) {
	if jsonFlag && mdFlag {
		return 0, fmt.Errorf("--json and --md cannot be used together")
	}
	switch {
	case jsonFlag:
		return output.FormatJSON, nil
	case mdFlag:
		return output.FormatMarkdown, nil
	}
	return output.FormatText, nil
}

func dumpMetrics(w io.Writer) {
	families, err := metrics.Registry.Gather()
	if err != nil {
		logging.L().Warnf("[WARN] Failed to gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return
		}
	}
}
