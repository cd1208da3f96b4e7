package parser

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/bodgit/sevenzip"
)

// archiveSuffixes maps archive suffixes to the codec wrapping the tar stream.
// An empty codec name means a plain tar; "7z" is a 7-Zip archive, not a tar.
var archiveSuffixes = []struct {
	suffix string
	codec  string
}{
	{".tar", ""},
	{".tar.gz", "gzip"},
	{".tgz", "gzip"},
	{".tar.zst", "zstd"},
	{".tar.zstd", "zstd"},
	{".tzst", "zstd"},
	{".tar.xz", "xz"},
	{".txz", "xz"},
	{".7z", "7z"},
}

// IsArchive reports whether filename names a tar archive, compressed or not,
// or a 7-Zip archive.
func IsArchive(filename string) bool {
	_, ok := archiveCodec(filename)
	return ok
}

func archiveCodec(filename string) (string, bool) {
	lower := strings.ToLower(filename)
	for _, a := range archiveSuffixes {
		if strings.HasSuffix(lower, a.suffix) {
			return a.codec, true
		}
	}
	return "", false
}

func codecByName(name string) compressionCodec {
	for _, c := range codecs {
		if c.name == name {
			return c
		}
	}
	return compressionCodec{}
}

// IsLogFileName reports whether name looks like a RabbitMQ log: "*.log",
// rotated "*.log.N", and either of those compressed.
func IsLogFileName(name string) bool {
	lower := strings.ToLower(path.Base(name))
	for _, suffix := range SupportedSuffixes() {
		lower = strings.TrimSuffix(lower, suffix)
	}
	return strings.HasSuffix(lower, ".log") || RotationIndex(lower) > 0
}

// RotationIndex returns N for "x.log.N" (possibly compressed) and 0 otherwise.
func RotationIndex(name string) int {
	lower := strings.ToLower(path.Base(name))
	for _, suffix := range SupportedSuffixes() {
		lower = strings.TrimSuffix(lower, suffix)
	}
	i := strings.LastIndex(lower, ".log.")
	if i < 0 {
		return 0
	}
	digits := lower[i+len(".log."):]
	if digits == "" {
		return 0
	}
	n := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// WalkArchive calls fn for every log member of an archive, in archive order.
// Members are decompressed by suffix. Members that are not log files, or
// whose content is binary, are skipped. An error from fn stops the walk.
func WalkArchive(filename string, fn func(name string, r io.Reader) error) error {
	codec, _ := archiveCodec(filename)
	if codec == "7z" {
		return walkSevenZip(filename, fn)
	}

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open tar archive %s: %w", filename, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if codec != "" {
		dec, err := codecByName(codec).opener(file)
		if err != nil {
			return fmt.Errorf("%w: %s reader for tar archive %s: %v", ErrCompressionFailed, codec, filename, err)
		}
		defer dec.Close()
		reader = dec
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", filename, err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Size == 0 || !IsLogFileName(hdr.Name) {
			continue
		}
		if err := visitMember(filename, hdr.Name, tr, fn); err != nil {
			return err
		}
	}
}

func walkSevenZip(filename string, fn func(string, io.Reader) error) error {
	r, err := sevenzip.OpenReader(filename)
	if err != nil {
		return fmt.Errorf("%w: 7z archive %s: %v", ErrCompressionFailed, filename, err)
	}
	defer r.Close()

	for _, f := range r.File {
		info := f.FileInfo()
		if info.IsDir() || info.Size() == 0 || !IsLogFileName(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%s in %s: %w", f.Name, filename, err)
		}
		err = visitMember(filename, f.Name, rc, fn)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// visitMember hands one archive member to fn. Binary members are skipped.
func visitMember(archive, name string, r io.Reader, fn func(string, io.Reader) error) error {
	err := walkMember(name, r, fn)
	if err == nil || errors.Is(err, ErrBinaryFile) {
		return nil
	}
	return fmt.Errorf("%s in %s: %w", name, archive, err)
}

func walkMember(name string, r io.Reader, fn func(string, io.Reader) error) error {
	var rc io.ReadCloser = io.NopCloser(r)
	if codec, ok := codecFor(name); ok {
		dec, err := codec.opener(r)
		if err != nil {
			return fmt.Errorf("%w: %s reader: %v", ErrCompressionFailed, codec.name, err)
		}
		rc = dec
	}
	defer rc.Close()

	text, err := sniffText(rc, name)
	if err != nil {
		return err
	}
	return fn(name, text)
}
