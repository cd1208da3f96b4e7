package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alain-L/rabbitlog/output"
)

const nodeALog = "2025-10-27 11:00:00.000000+00:00 [info] <0.100.0> Server startup complete; 3 plugins started.\n" +
	"2025-10-27 11:00:01.000000+00:00 [error] <0.200.0> Ranch listener stopped\n" +
	"  reason: eaddrinuse\n" +
	"2025-10-27 11:00:02.000000+00:00 [warning] <0.300.0> closing AMQP connection <0.301.0> (10.0.0.7:50142 -> 10.0.0.2:5672, vhost: '/')\n"

const nodeBLog = "2025-10-27 11:00:03.000000+00:00 [error] <0.400.0> Ranch listener stopped\n"

// resetFlags restores every flag to its default so commands run in one
// process do not see each other's values.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// logDir writes the two sample node logs and returns their directory.
func logDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rabbit@a.log"), []byte(nodeALog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rabbit@b.log"), []byte(nodeBLog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rabbitmq.conf"), []byte("loopback_users = none\n"), 0o644))
	return dir
}

// ingested returns a database holding both sample logs.
func ingested(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "logs.db")
	out, _, err := execute(t, "ingest", "--db", db, logDir(t))
	require.NoError(t, err)
	require.Contains(t, out, "4 entries from 2 files")
	return db
}

func decodeResult(t *testing.T, s string) output.ResultJSON {
	t.Helper()
	var res output.ResultJSON
	require.NoError(t, json.Unmarshal([]byte(s), &res))
	return res
}

func TestIngestThenQuery(t *testing.T) {
	db := ingested(t)

	out, _, err := execute(t, "query", "--db", db, ":errors | count_by node")
	require.NoError(t, err)
	assert.Contains(t, out, "rabbit@a")
	assert.Contains(t, out, "rabbit@b")

	out, _, err = execute(t, "query", "--db", db, "--json", `severity == "error"`, "|", "sort", "node", "desc")
	require.NoError(t, err)
	res := decodeResult(t, out)
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "rabbit@b", res.Rows[0].Node)
	assert.Equal(t, "Ranch listener stopped\n  reason: eaddrinuse", res.Rows[1].Message)
}

func TestIngestStdin(t *testing.T) {
	db := filepath.Join(t.TempDir(), "logs.db")

	resetFlags(rootCmd)
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(nodeBLog))
	rootCmd.SetArgs([]string{"ingest", "--db", db, "-"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stdout.String(), "1 entries from 1 files")

	out, _, err := execute(t, "query", "--db", db, "--json", ":errors")
	require.NoError(t, err)
	res := decodeResult(t, out)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "rabbit@localhost", res.Rows[0].Node)
}

func TestIngestReportsFailedFiles(t *testing.T) {
	db := filepath.Join(t.TempDir(), "logs.db")
	dir := t.TempDir()
	good := filepath.Join(dir, "rabbit@a.log")
	require.NoError(t, os.WriteFile(good, []byte(nodeALog), 0o644))
	corrupt := filepath.Join(dir, "rabbit@b.log.gz")
	require.NoError(t, os.WriteFile(corrupt, []byte("not gzip"), 0o644))

	_, _, err := execute(t, "ingest", "--db", db, good, corrupt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files could not be ingested")
}

func TestQueryRejected(t *testing.T) {
	db := filepath.Join(t.TempDir(), "logs.db")

	_, stderr, err := execute(t, "query", "--db", db, `labels all ["raft", "electons"]`)
	require.ErrorIs(t, err, errQueryRejected)
	assert.Contains(t, stderr, "error[unknown_label]")
	assert.Contains(t, stderr, "did you mean 'elections'?")
}

func TestRows(t *testing.T) {
	db := ingested(t)

	out, _, err := execute(t, "rows", "--db", db, "--json", "--severity", "error")
	require.NoError(t, err)
	res := decodeResult(t, out)
	assert.Len(t, res.Rows, 2)

	out, _, err = execute(t, "rows", "--db", db, "--json", "--node", "rabbit@a", "--limit", "1")
	require.NoError(t, err)
	res = decodeResult(t, out)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "info", res.Rows[0].Severity)

	out, _, err = execute(t, "rows", "--db", db, "--json", "--begin", "2025-10-27 11:00:02")
	require.NoError(t, err)
	assert.Len(t, decodeResult(t, out).Rows, 2)
}

func TestRowsReportsTruncation(t *testing.T) {
	db := ingested(t)
	conf := filepath.Join(t.TempDir(), "rabbitlog.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("query:\n  default_limit: 2\n"), 0o644))

	out, stderr, err := execute(t, "rows", "--config", conf, "--db", db, "--json")
	require.NoError(t, err)
	assert.Len(t, decodeResult(t, out).Rows, 2)
	assert.Contains(t, stderr, "truncated")

	_, stderr, err = execute(t, "rows", "--config", conf, "--db", db, "--json", "--limit", "3")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "truncated")
}

func TestRowsRejectsConflictingTimeFlags(t *testing.T) {
	db := filepath.Join(t.TempDir(), "logs.db")
	_, _, err := execute(t, "rows", "--db", db, "--last", "1h", "--begin", "2025-10-27")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--last cannot be combined")
}

func TestHistogramNeedsRows(t *testing.T) {
	db := ingested(t)

	out, _, err := execute(t, "query", "--db", db, "--histogram", "--buckets", "3", ":errors")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, _, err = execute(t, "query", "--db", db, "--histogram", ":errors | count_by node")
	require.Error(t, err)
}

func TestJSONAndMarkdownExclusive(t *testing.T) {
	_, _, err := execute(t, "grep", "--json", "--md", ":errors", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used together")
}

func TestCheck(t *testing.T) {
	out, _, err := execute(t, "check", "#raft | sort timestamp desc | limit 5")
	require.NoError(t, err)
	assert.Contains(t, out, "sql:         SELECT * FROM entries WHERE ((labels & ?) != 0) ORDER BY timestamp DESC, id ASC LIMIT ?")
	assert.Contains(t, out, "post-filter: false")
	assert.Contains(t, out, "pushed:      2 of 2 stages")

	_, stderr, err := execute(t, "check", `severity == "fatal"`)
	require.ErrorIs(t, err, errQueryRejected)
	assert.Contains(t, stderr, "error[")
	assert.Contains(t, stderr, "^")
}

func TestComplete(t *testing.T) {
	out, _, err := execute(t, "complete", ":err")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, ":errors\tpreset\tEntries logged at error severity", lines[0])

	out, _, err = execute(t, "complete", "--cursor", "4", "#raf or #elec")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "#raft\tlabel"), out)
}

func TestVocabularyCommands(t *testing.T) {
	out, _, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, ":errors")
	assert.Contains(t, out, `severity == "error"`)

	out, _, err = execute(t, "labels")
	require.NoError(t, err)
	assert.Contains(t, strings.Split(out, "\n"), "raft")

	out, _, err = execute(t, "subsystems")
	require.NoError(t, err)
	assert.Contains(t, strings.Split(out, "\n"), "quorum_queues")
}

func TestGrep(t *testing.T) {
	dir := logDir(t)

	out, _, err := execute(t, "grep", "--json", `severity == "error"`, dir)
	require.NoError(t, err)
	res := decodeResult(t, out)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "rabbit@a", res.Rows[0].Node)
	assert.Equal(t, "rabbit@b", res.Rows[1].Node)
	assert.NotEqual(t, res.Rows[0].ID, res.Rows[1].ID)

	out, _, err = execute(t, "grep", "--json", "--min-severity", "warning", "--end", "2025-10-27 11:00:02", `severity >= "debug"`, dir)
	require.NoError(t, err)
	res = decodeResult(t, out)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "error", res.Rows[0].Severity)
	assert.Equal(t, "warning", res.Rows[1].Severity)
}

func TestGrepRejectedQuery(t *testing.T) {
	_, stderr, err := execute(t, "grep", "#", logDir(t))
	require.ErrorIs(t, err, errQueryRejected)
	assert.Contains(t, stderr, "error[")
}

func TestGrepSyslog(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for _, line := range strings.SplitAfter(nodeALog, "\n") {
		if line != "" {
			b.WriteString("Oct 27 11:00:00 mq1 rabbitmq-server[42]: " + line)
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rabbit@mq1.log"), []byte(b.String()), 0o644))

	out, _, err := execute(t, "grep", "--json", ":errors", dir)
	require.NoError(t, err)
	assert.Empty(t, decodeResult(t, out).Rows)

	out, _, err = execute(t, "grep", "--json", "--syslog", ":errors", dir)
	require.NoError(t, err)
	res := decodeResult(t, out)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "rabbit@mq1", res.Rows[0].Node)
}

func TestReport(t *testing.T) {
	out, _, err := execute(t, "report", "--json", logDir(t))
	require.NoError(t, err)

	var rep output.ReportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 4, rep.Entries)
	assert.Equal(t, 1, rep.Multiline)
	assert.Equal(t, 2, rep.Severities["error"])
	assert.Equal(t, "2025-10-27T11:00:00.000000Z", rep.Start)
	require.Len(t, rep.Nodes, 2)
	assert.Equal(t, "rabbit@a", rep.Nodes[0].Name)
	require.NotEmpty(t, rep.TopMessages)
	assert.Equal(t, "Ranch listener stopped", rep.TopMessages[0].Signature)
	assert.Equal(t, 2, rep.TopMessages[0].Count)

	out, _, err = execute(t, "report", logDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "TOP WARNINGS AND ERRORS")
	assert.Contains(t, out, "closing AMQP connection <PID> (ADDR -> ADDR, vhost: ?)")
}
