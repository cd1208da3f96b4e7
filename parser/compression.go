package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

var (
	// ErrCompressionFailed indicates a failure reading compressed content.
	ErrCompressionFailed = errors.New("failed to read compressed file")

	// ErrBinaryFile indicates the (decompressed) content is not text.
	ErrBinaryFile = errors.New("binary content is not a log file")
)

// sampleBufferSize is how much decompressed content is inspected for binary data.
const sampleBufferSize = 8 * 1024

// compressionCodec defines how to create a streaming reader for a compressed format.
type compressionCodec struct {
	name     string
	suffixes []string
	opener   func(io.Reader) (io.ReadCloser, error)
}

var codecs = []compressionCodec{
	{
		name:     "gzip",
		suffixes: []string{".gz"},
		opener: func(r io.Reader) (io.ReadCloser, error) {
			return newParallelGzipReader(r)
		},
	},
	{
		name:     "zstd",
		suffixes: []string{".zst", ".zstd"},
		opener:   newZstdDecoder,
	},
	{
		name:     "xz",
		suffixes: []string{".xz"},
		opener: func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		},
	},
}

// codecFor returns the codec matching the file name suffix, if any.
func codecFor(filename string) (compressionCodec, bool) {
	lower := strings.ToLower(filename)
	for _, c := range codecs {
		for _, suffix := range c.suffixes {
			if strings.HasSuffix(lower, suffix) {
				return c, true
			}
		}
	}
	return compressionCodec{}, false
}

// SupportedSuffixes lists the file suffixes that are transparently decompressed.
func SupportedSuffixes() []string {
	var out []string
	for _, c := range codecs {
		out = append(out, c.suffixes...)
	}
	return out
}

// OpenLogFile opens a log file, decompressing .gz, .zst/.zstd and .xz files on the fly.
// The first bytes are checked so that binary files are rejected early.
func OpenLogFile(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}

	var rc io.ReadCloser = file
	if codec, ok := codecFor(filename); ok {
		dec, err := codec.opener(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: %s reader for %s: %v", ErrCompressionFailed, codec.name, filename, err)
		}
		rc = &stackedReadCloser{Reader: dec, closers: []io.Closer{dec, file}}
	}

	br, err := sniffText(rc, filename)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &stackedReadCloser{Reader: br, closers: []io.Closer{rc}}, nil
}

// sniffText buffers r and rejects it when its first bytes are not text.
func sniffText(r io.Reader, name string) (*bufio.Reader, error) {
	br := bufio.NewReaderSize(r, sampleBufferSize)
	sample, err := br.Peek(sampleBufferSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompressionFailed, name, err)
	}
	if isBinaryContent(sample) {
		return nil, fmt.Errorf("%w: %s", ErrBinaryFile, name)
	}
	return br, nil
}

// isBinaryContent reports whether a sample contains NUL bytes or too many control characters.
func isBinaryContent(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	control := 0
	for _, c := range sample {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' && c != 0x1b {
			control++
		}
	}
	return control*10 > len(sample)
}

type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newParallelGzipReader returns a pgzip reader configured for parallel decompression.
func newParallelGzipReader(r io.Reader) (*pgzip.Reader, error) {
	threads := runtime.GOMAXPROCS(0)
	if threads < 1 {
		threads = 1
	}
	if threads > 8 {
		threads = 8 // cap to avoid excessive goroutine churn on large hosts
	}

	const blockSize = 1 << 20 // 1 MiB blocks balance throughput and memory usage
	return pgzip.NewReaderN(r, blockSize, threads)
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// newZstdDecoder returns a zstd decoder configured for streaming decompression.
func newZstdDecoder(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{Decoder: dec}, nil
}
