package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alain-L/rabbitlog/ingest"
	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/output"
	"github.com/Alain-L/rabbitlog/storage"
)

// stdinNode is the node name used for "-" when none is configured.
const stdinNode = "rabbit@localhost"

var (
	nodeFlag      string // --node: node name stored with every entry
	chunkSizeFlag int    // --chunk-size: entries per pipeline batch
	workersFlag   int    // --workers: annotation goroutines
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files or dirs | -]",
	Short: "Parse, annotate and store log files",
	Long: `Parse RabbitMQ log files, annotate every entry and store them in the
database. Directories are scanned for *.log and rotated *.log.N files,
compressed with gzip, zstd or xz or not. "-" reads standard input.

Entries are appended: ids continue from the largest one already stored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&nodeFlag, "node", "n", "",
		"Node name stored with the entries (default: derived from each file name)")
	ingestCmd.Flags().IntVar(&chunkSizeFlag, "chunk-size", 0,
		"Entries per pipeline batch (default from config)")
	ingestCmd.Flags().IntVarP(&workersFlag, "workers", "w", 0,
		"Annotation goroutines (default from config)")
	ingestCmd.Flags().BoolVar(&syslogFlag, "syslog", false, syslogUsage)
	rootCmd.AddCommand(ingestCmd)
}

// runIngest orchestrates the ingestion:
//  1. Collect input files
//  2. Open the store
//  3. Stream every file through parse, annotate and persist
//  4. Print a summary
func runIngest(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := ingest.Options{
		Node:      cfg.Ingest.Node,
		ChunkSize: cfg.Ingest.ChunkSize,
		Workers:   cfg.Ingest.Workers,
		Syslog:    syslogFlag || cfg.Ingest.Syslog,
	}
	if nodeFlag != "" {
		opts.Node = nodeFlag
	}
	if chunkSizeFlag > 0 {
		opts.ChunkSize = chunkSizeFlag
	}
	if workersFlag > 0 {
		opts.Workers = workersFlag
	}

	store, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 && args[0] == "-" {
		return ingestStdin(ctx, cmd, store, opts, startTime)
	}

	files := collectFiles(args)
	if len(files) == 0 {
		logging.L().Infof("[INFO] No log files found. Exiting.")
		return nil
	}
	totalSize := calculateTotalFileSize(files)

	stats, err := ingest.Files(ctx, files, store, opts)
	if err != nil {
		return err
	}
	if err := output.WriteIngestSummary(cmd.OutOrStdout(), stats.Persisted, stats.Files, time.Since(startTime), totalSize); err != nil {
		return err
	}
	if len(stats.Failed) > 0 {
		return fmt.Errorf("%d of %d files could not be ingested", len(stats.Failed), len(files))
	}
	return nil
}

func ingestStdin(ctx context.Context, cmd *cobra.Command, store *storage.Store, opts ingest.Options, startTime time.Time) error {
	if opts.Node == "" {
		opts.Node = stdinNode
	}
	next, err := store.NextID(ctx)
	if err != nil {
		return err
	}
	opts.StartID = next

	stats, err := ingest.Run(ctx, cmd.InOrStdin(), store, opts)
	if err != nil {
		return err
	}
	return output.WriteIngestSummary(cmd.OutOrStdout(), stats.Persisted, 1, time.Since(startTime), 0)
}

// calculateTotalFileSize computes the total size of all input files.
func calculateTotalFileSize(files []string) int64 {
	var total int64
	for _, file := range files {
		if fi, err := os.Stat(file); err == nil {
			total += fi.Size()
		}
	}
	return total
}
