package parser

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarMember struct {
	name string
	body []byte
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	_, err := io.WriteString(w, s)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeTarGz(t *testing.T, members []tarMember) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagnostics.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "logs/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     m.name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(m.body)),
		}))
		_, err := tw.Write(m.body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func TestWalkArchive(t *testing.T) {
	path := writeTarGz(t, []tarMember{
		{"logs/rabbit@a.log", []byte(sampleLog)},
		{"logs/rabbitmq.conf", []byte("listeners.tcp.default = 5672\n")},
		{"logs/rabbit@b.log.1.gz", gzipped(t, sampleLog)},
		{"logs/core.log", []byte{0x7f, 'E', 'L', 'F', 0, 0, 0, 0, 1, 2, 3}},
	})

	var names []string
	counts := map[string]int{}
	err := WalkArchive(path, func(name string, r io.Reader) error {
		names = append(names, name)
		entries, err := ParseReader(r)
		if err != nil {
			return err
		}
		counts[name] = len(entries)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/rabbit@a.log", "logs/rabbit@b.log.1.gz"}, names)
	assert.Equal(t, 2, counts["logs/rabbit@a.log"])
	assert.Equal(t, 2, counts["logs/rabbit@b.log.1.gz"])
}

func TestWalkArchiveCallbackErrorStops(t *testing.T) {
	path := writeTarGz(t, []tarMember{
		{"rabbit@a.log", []byte(sampleLog)},
		{"rabbit@b.log", []byte(sampleLog)},
	})

	calls := 0
	err := WalkArchive(path, func(string, io.Reader) error {
		calls++
		return io.ErrUnexpectedEOF
	})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "rabbit@a.log")
	assert.Equal(t, 1, calls)
}

func TestWalkArchiveCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tgz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip at all"), 0o644))

	err := WalkArchive(path, func(string, io.Reader) error { return nil })
	require.ErrorIs(t, err, ErrCompressionFailed)
}

func TestWalkArchiveCorruptSevenZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.7z")
	require.NoError(t, os.WriteFile(path, []byte("7z? no"), 0o644))

	err := WalkArchive(path, func(string, io.Reader) error { return nil })
	require.ErrorIs(t, err, ErrCompressionFailed)
}

func TestLogFileNames(t *testing.T) {
	tests := []struct {
		name     string
		isLog    bool
		rotation int
	}{
		{"rabbit@node1.log", true, 0},
		{"/var/log/rabbitmq/rabbit@node1.log.3", true, 3},
		{"rabbit@node1.log.12.gz", true, 12},
		{"RABBIT@NODE1.LOG.ZST", true, 0},
		{"rabbit@node1_upgrade.log", true, 0},
		{"rabbitmq.conf", false, 0},
		{"rabbit.log.old", false, 0},
		{"erl_crash.dump", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isLog, IsLogFileName(tt.name))
			assert.Equal(t, tt.rotation, RotationIndex(tt.name))
		})
	}
}

func TestIsArchive(t *testing.T) {
	for _, name := range []string{"a.tar", "a.tar.gz", "a.TGZ", "a.tar.zst", "a.tzst", "a.tar.xz", "a.txz", "bundle.7z"} {
		assert.True(t, IsArchive(name), name)
	}
	for _, name := range []string{"a.log", "a.log.gz", "a.gz", "tarball"} {
		assert.False(t, IsArchive(name), name)
	}
}
