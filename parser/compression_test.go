package parser

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const sampleLog = "2025-10-27 11:23:27.566558-07:00 [notice] <0.208.0> Logging: configured log handlers are now ACTIVE\n" +
	"2025-10-27 11:23:28.000000-07:00 [error] <0.209.0> Ranch listener stopped\n" +
	"  reason: eaddrinuse\n"

func writeCompressed(t *testing.T, name string, wrap func(io.Writer) (io.WriteCloser, error)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := wrap(f)
	require.NoError(t, err)
	_, err = io.WriteString(w, sampleLog)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func TestParseFileCompressed(t *testing.T) {
	tests := []struct {
		name string
		wrap func(io.Writer) (io.WriteCloser, error)
	}{
		{"rabbit.log", func(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil }},
		{"rabbit.log.gz", func(w io.Writer) (io.WriteCloser, error) { return pgzip.NewWriter(w), nil }},
		{"rabbit.log.zst", func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) }},
		{"rabbit.log.xz", func(w io.Writer) (io.WriteCloser, error) { return xz.NewWriter(w) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCompressed(t, tt.name, tt.wrap)

			entries, err := ParseFile(path)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, SeverityNotice, entries[0].Severity)
			assert.Equal(t, "Ranch listener stopped\n  reason: eaddrinuse", entries[1].Message)
		})
	}
}

func TestOpenLogFileRejectsBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.dump")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x00, 0x01, 0x02}, 100), 0o600))

	_, err := OpenLogFile(path)
	assert.ErrorIs(t, err, ErrBinaryFile)
}

func TestOpenLogFileCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.log.gz")
	require.NoError(t, os.WriteFile(path, []byte("definitely not gzip"), 0o600))

	_, err := OpenLogFile(path)
	assert.ErrorIs(t, err, ErrCompressionFailed)
}

func TestSupportedSuffixes(t *testing.T) {
	assert.ElementsMatch(t, []string{".gz", ".zst", ".zstd", ".xz"}, SupportedSuffixes())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
