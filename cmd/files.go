package cmd

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Alain-L/rabbitlog/ingest"
	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/parser"
)

var syslogFlag bool // --syslog: lines carry a syslog header

const syslogUsage = "Strip syslog headers (BSD, ISO or RFC 5424) before parsing"

// parserOptions returns the parser options shared by the commands that read files.
func parserOptions(start int64) []parser.Option {
	opts := []parser.Option{parser.WithStartSequence(start)}
	if syslogFlag || cfg.Ingest.Syslog {
		opts = append(opts, parser.WithSyslog())
	}
	return opts
}

// collectFiles gathers all log files from the provided arguments.
// Arguments can be:
//   - Individual files
//   - Glob patterns (e.g., "rabbit@*.log")
//   - Directories (scans for RabbitMQ log files and archives, non-recursive)
func collectFiles(args []string) []string {
	var files []string
	log := logging.L()

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			dirFiles, err := gatherLogFiles(arg)
			if err != nil {
				log.Warnf("[WARN] Failed to read directory %s: %v", arg, err)
				continue
			}
			files = append(files, dirFiles...)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			log.Warnf("[WARN] Invalid pattern %s: %v", arg, err)
			continue
		}
		if len(matches) == 0 {
			log.Warnf("[WARN] No files match pattern: %s", arg)
			continue
		}
		files = append(files, matches...)
	}

	return files
}

// gatherLogFiles scans a directory for log files (non-recursive), oldest
// rotation first so ids follow time.
func gatherLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var logFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isSupportedLogFile(entry.Name()) {
			logFiles = append(logFiles, filepath.Join(dir, entry.Name()))
		}
	}
	sort.SliceStable(logFiles, func(i, j int) bool {
		return parser.RotationIndex(logFiles[i]) > parser.RotationIndex(logFiles[j])
	})
	return logFiles, nil
}

// isSupportedLogFile reports whether a directory entry should be read: RabbitMQ
// logs, rotated or compressed, and tar archives of them.
func isSupportedLogFile(name string) bool {
	return parser.IsLogFileName(name) || parser.IsArchive(name)
}

// forEachSource calls fn with the node name and text of a log file, or of
// every log member when path is a tar archive.
func forEachSource(path string, fn func(node string, r io.Reader) error) error {
	if parser.IsArchive(path) {
		return parser.WalkArchive(path, func(name string, r io.Reader) error {
			return fn(ingest.NodeFromPath(name), r)
		})
	}
	rc, err := parser.OpenLogFile(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return fn(ingest.NodeFromPath(path), rc)
}
