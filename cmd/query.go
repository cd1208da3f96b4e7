package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/metrics"
	"github.com/Alain-L/rabbitlog/output"
	"github.com/Alain-L/rabbitlog/rql"
	"github.com/Alain-L/rabbitlog/storage"
)

var (
	histogramFlag bool // --histogram: per-interval severity histogram instead of rows
	bucketsFlag   int  // --buckets: number of histogram intervals
	summaryFlag   bool // --summary: row count and elapsed time on stderr
)

var queryCmd = &cobra.Command{
	Use:   "query <rql>",
	Short: "Run an RQL query against the database",
	Long: `Run an RQL query against the stored entries.

  rabbitlog query ':errors'
  rabbitlog query '@24h #raft or #elections | sort timestamp desc | limit 50'
  rabbitlog query 'message contains "timeout" | count_by node'

Several arguments are joined with spaces.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var (
	beginFlag, endFlag, windowFlag, lastFlag string
	severityFlag, pidFlag, rowsNodeFlag      string
	subsystemFlag                            string
	labelFlags                               []string
	allLabelsFlag                            bool
	limitFlag                                int
	hasDocFlag, hasResolutionFlag            bool
)

var rowsCmd = &cobra.Command{
	Use:   "rows",
	Short: "List entries matching filter flags",
	Long: `List stored entries with flags instead of an RQL query. Filters combine
with AND; --label may be repeated and matches any of the labels unless
--all-labels is set.

  rabbitlog rows --last 1h --severity error
  rabbitlog rows --begin "2025-10-27 10:00" --window 30m --label raft --label elections`,
	Args: cobra.NoArgs,
	RunE: runRows,
}

func init() {
	queryCmd.Flags().BoolVar(&histogramFlag, "histogram", false,
		"Print a severity histogram of the matching entries")
	queryCmd.Flags().IntVar(&bucketsFlag, "buckets", 12, "Histogram intervals")
	queryCmd.Flags().BoolVarP(&summaryFlag, "summary", "s", false,
		"Print row count and elapsed time to stderr")
	rootCmd.AddCommand(queryCmd)

	rowsCmd.Flags().StringVarP(&beginFlag, "begin", "b", "", "Entries at or after this datetime")
	rowsCmd.Flags().StringVarP(&endFlag, "end", "e", "", "Entries at or before this datetime")
	rowsCmd.Flags().StringVarP(&windowFlag, "window", "W", "", "Duration completing --begin or --end (e.g. 30m)")
	rowsCmd.Flags().StringVarP(&lastFlag, "last", "L", "", "Entries from the last duration (e.g. 1h)")
	rowsCmd.Flags().StringVar(&severityFlag, "severity", "", "Exact severity")
	rowsCmd.Flags().StringVar(&pidFlag, "pid", "", "Erlang process id, e.g. <0.208.0>")
	rowsCmd.Flags().StringVar(&rowsNodeFlag, "node", "", "Node name")
	rowsCmd.Flags().StringVar(&subsystemFlag, "subsystem", "", "Subsystem name")
	rowsCmd.Flags().StringSliceVarP(&labelFlags, "label", "l", nil, "Label (repeatable)")
	rowsCmd.Flags().BoolVar(&allLabelsFlag, "all-labels", false, "Require every --label instead of any")
	rowsCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum rows")
	rowsCmd.Flags().BoolVar(&hasDocFlag, "has-doc-url", false, "Only entries linked to documentation")
	rowsCmd.Flags().BoolVar(&hasResolutionFlag, "has-resolution-url", false, "Only entries linked to a known issue")
	rootCmd.AddCommand(rowsCmd)
}

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	store, err := storage.Open(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	store.DefaultLimit = cfg.Query.DefaultLimit
	return store, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")
	format, err := outputFormat()
	if err != nil {
		return err
	}
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	startTime := time.Now()
	res, err := store.QueryString(cmd.Context(), input)
	if err != nil {
		return reportQueryError(cmd.ErrOrStderr(), input, err)
	}
	return writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, format, time.Since(startTime))
}

func runRows(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	since, to, err := timeBounds(beginFlag, endFlag, windowFlag, lastFlag, time.Now())
	if err != nil {
		return err
	}
	qc := storage.QueryContext{
		Since:            since,
		To:               to,
		Severity:         severityFlag,
		ErlangPid:        pidFlag,
		Node:             rowsNodeFlag,
		Subsystem:        subsystemFlag,
		Labels:           labelFlags,
		MatchAllLabels:   allLabelsFlag,
		Limit:            limitFlag,
		HasDocURL:        hasDocFlag,
		HasResolutionURL: hasResolutionFlag,
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	startTime := time.Now()
	res, err := store.QueryResult(cmd.Context(), qc)
	if err != nil {
		input := qc.Query().String()
		return reportQueryError(cmd.ErrOrStderr(), input, err)
	}
	return writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, format, time.Since(startTime))
}

// writeResult renders res, or its histogram with --histogram, and the
// optional summary line.
func writeResult(stdout, stderr io.Writer, res *rql.Result, format output.Format, elapsed time.Duration) error {
	var err error
	if histogramFlag {
		if res.Shaped() {
			return fmt.Errorf("--histogram needs entry rows, not a projected or counted result")
		}
		err = output.WriteHistogram(stdout, output.ComputeHistogram(res.Rows, bucketsFlag))
	} else {
		width := 0
		if format == output.FormatText {
			width = output.TerminalWidth()
		}
		err = output.Write(stdout, res, format, width)
	}
	if err != nil {
		return err
	}
	if summaryFlag || res.Truncated {
		return output.WriteSummary(stderr, res, elapsed)
	}
	return nil
}

// errQueryRejected is returned once the diagnostic has been printed, so
// Execute only adds a short line.
var errQueryRejected = errors.New("query rejected")

// reportQueryError prints a positioned diagnostic for parse and compile
// errors and counts the failure. Other errors are returned unchanged.
func reportQueryError(w io.Writer, input string, err error) error {
	var pe *rql.ParseError
	var ce *rql.CompileError
	switch {
	case errors.As(err, &pe):
		metrics.QueryFailures.WithLabelValues("parse", pe.Kind.String()).Inc()
	case errors.As(err, &ce):
		metrics.QueryFailures.WithLabelValues("compile", ce.Kind.String()).Inc()
	default:
		metrics.QueryFailures.WithLabelValues("execute", "error").Inc()
		return err
	}
	logging.L().Debugf("[DEBUG] Rejected query %q: %v", input, err)
	diags := rql.Diagnose(input)
	if len(diags) == 0 {
		return err
	}
	for _, d := range diags {
		fmt.Fprint(w, d.Render(input))
	}
	return errQueryRejected
}
