package cmd

import (
	"cmp"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alain-L/rabbitlog/ingest"
	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/parser"
	"github.com/Alain-L/rabbitlog/rql"
)

var minSeverityFlag string // --min-severity: drop entries below this level before annotation

var grepCmd = &cobra.Command{
	Use:   "grep <rql> <files or dirs>...",
	Short: "Query log files directly, without a database",
	Long: `Parse and annotate log files in memory and run an RQL query over them.
Nothing is stored. --begin, --end, --window, --last and --min-severity drop
entries before annotation, which is cheaper on large files than the same
conditions in the query.

  rabbitlog grep ':errors | count_by subsystem' /var/log/rabbitmq/
  rabbitlog grep --last 2h '#raft' rabbit@node1.log`,
	Args: cobra.MinimumNArgs(2),
	RunE: runGrep,
}

func init() {
	grepCmd.Flags().StringVarP(&beginFlag, "begin", "b", "", "Entries at or after this datetime")
	grepCmd.Flags().StringVarP(&endFlag, "end", "e", "", "Entries at or before this datetime")
	grepCmd.Flags().StringVarP(&windowFlag, "window", "W", "", "Duration completing --begin or --end (e.g. 30m)")
	grepCmd.Flags().StringVarP(&lastFlag, "last", "L", "", "Entries from the last duration (e.g. 1h)")
	grepCmd.Flags().StringVar(&minSeverityFlag, "min-severity", "", "Drop entries below this severity")
	grepCmd.Flags().BoolVar(&histogramFlag, "histogram", false, "Print a severity histogram of the matching entries")
	grepCmd.Flags().IntVar(&bucketsFlag, "buckets", 12, "Histogram intervals")
	grepCmd.Flags().BoolVarP(&summaryFlag, "summary", "s", false, "Print row count and elapsed time to stderr")
	grepCmd.Flags().BoolVar(&syslogFlag, "syslog", false, syslogUsage)
	rootCmd.AddCommand(grepCmd)
}

func runGrep(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	input := args[0]
	format, err := outputFormat()
	if err != nil {
		return err
	}
	keep, err := entryFilter(startTime)
	if err != nil {
		return err
	}

	q, err := rql.Parse(input)
	if err != nil {
		return reportQueryError(cmd.ErrOrStderr(), input, err)
	}
	compiler := rql.Compiler{DefaultLimit: cfg.Query.DefaultLimit}
	cq, err := compiler.Compile(q)
	if err != nil {
		return reportQueryError(cmd.ErrOrStderr(), input, err)
	}

	files := collectFiles(args[1:])
	if len(files) == 0 {
		logging.L().Infof("[INFO] No log files found. Exiting.")
		return nil
	}
	rows := loadRows(files, keep)
	res := cq.Execute(rows)
	return writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, format, time.Since(startTime))
}

// entryFilter builds the pre-annotation filter from the time and severity
// flags. It returns nil when no flag is set.
func entryFilter(now time.Time) (parser.EntryFilter, error) {
	since, to, err := timeBounds(beginFlag, endFlag, windowFlag, lastFlag, now)
	if err != nil {
		return nil, err
	}
	var filters []parser.EntryFilter
	if since != nil || to != nil {
		var begin, end time.Time
		if since != nil {
			begin = *since
		}
		if to != nil {
			end = *to
		}
		filters = append(filters, parser.TimeWindow(begin, end))
	}
	if minSeverityFlag != "" {
		sev, err := parser.ParseSeverity(minSeverityFlag)
		if err != nil {
			return nil, err
		}
		filters = append(filters, parser.MinSeverity(sev))
	}
	if len(filters) == 0 {
		return nil, nil
	}
	return parser.AllOf(filters...), nil
}

// loadRows parses, filters and annotates every file. Ids continue across
// files and rows come back in timestamp order, as the store returns them.
func loadRows(files []string, keep parser.EntryFilter) []rql.Row {
	log := logging.L()
	var rows []rql.Row
	var next int64

	for _, path := range files {
		err := forEachSource(path, func(node string, r io.Reader) error {
			entries, err := parser.ParseReader(r, parserOptions(next)...)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			next = entries[len(entries)-1].ID() + 1

			if keep != nil {
				entries = filterEntries(entries, keep)
			}
			entries = ingest.AnnotateParallel(entries, 0)
			for i := range entries {
				rows = append(rows, rql.RowFromEntry(node, &entries[i]))
			}
			log.Debugf("[DEBUG] %s: %d entries kept", node, len(entries))
			return nil
		})
		if err != nil {
			log.Warnf("[WARN] Skipping %s: %v", path, err)
		}
	}

	slices.SortStableFunc(rows, func(a, b rql.Row) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rows
}

func filterEntries(entries []parser.ParsedEntry, keep parser.EntryFilter) []parser.ParsedEntry {
	in := make(chan parser.ParsedEntry, 256)
	out := make(chan parser.ParsedEntry, 256)

	go func() {
		defer close(in)
		for _, e := range entries {
			in <- e
		}
	}()
	go parser.FilterStream(in, out, keep)

	kept := make([]parser.ParsedEntry, 0, len(entries))
	for e := range out {
		kept = append(kept, e)
	}
	return kept
}
