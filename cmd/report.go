package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/ingest"
	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/output"
	"github.com/Alain-L/rabbitlog/parser"
)

var topFlag int // --top: message signatures kept in the report

var reportCmd = &cobra.Command{
	Use:   "report <files or dirs>...",
	Short: "Summarize log files: severities, subsystems, labels and top errors",
	Long: `Stream log files through the parser and annotation engine and print a
summary: time range, entries per severity, node, subsystem and label, the
most frequent warning and error messages with their variable parts masked,
and the documentation and known-issue links that matched.

Nothing is stored. The time and severity flags of grep apply here too.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&beginFlag, "begin", "b", "", "Entries at or after this datetime")
	reportCmd.Flags().StringVarP(&endFlag, "end", "e", "", "Entries at or before this datetime")
	reportCmd.Flags().StringVarP(&windowFlag, "window", "W", "", "Duration completing --begin or --end (e.g. 30m)")
	reportCmd.Flags().StringVarP(&lastFlag, "last", "L", "", "Entries from the last duration (e.g. 1h)")
	reportCmd.Flags().StringVar(&minSeverityFlag, "min-severity", "", "Drop entries below this severity")
	reportCmd.Flags().IntVar(&topFlag, "top", analysis.DefaultTopMessages, "Message signatures to show")
	reportCmd.Flags().BoolVar(&syslogFlag, "syslog", false, syslogUsage)
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	keep, err := entryFilter(time.Now())
	if err != nil {
		return err
	}
	files := collectFiles(args)
	if len(files) == 0 {
		logging.L().Infof("[INFO] No log files found. Exiting.")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	analyzer := analysis.NewStreamingAnalyzer(topFlag)
	for _, path := range files {
		if err := analyzeFile(ctx, path, keep, analyzer); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.L().Warnf("[WARN] Skipping %s: %v", path, err)
		}
	}
	return output.WriteReport(cmd.OutOrStdout(), analyzer.Finalize(), format)
}

// analyzeFile streams one file, or each member of an archive, in chunks:
// parse, filter, annotate, aggregate.
func analyzeFile(ctx context.Context, path string, keep parser.EntryFilter, analyzer *analysis.StreamingAnalyzer) error {
	return forEachSource(path, func(node string, r io.Reader) error {
		chunks := make(chan []parser.ParsedEntry, 2)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(chunks)
			_, err := parser.StreamChunks(gctx, r, cfg.Ingest.ChunkSize, chunks, parserOptions(0)...)
			return err
		})
		g.Go(func() error {
			for chunk := range chunks {
				if keep != nil {
					chunk = filterEntries(chunk, keep)
				}
				chunk = ingest.AnnotateParallel(chunk, cfg.Ingest.Workers)
				for i := range chunk {
					analyzer.Process(node, &chunk[i])
				}
			}
			return nil
		})
		return g.Wait()
	})
}
