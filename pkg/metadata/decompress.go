package metadata

import (
	"compress/bzip2"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies the compression applied to a metadata stream.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionXz   Compression = "xz"
	CompressionZstd Compression = "zstd"
	CompressionBz2  Compression = "bz2"
)

// ParseCompression converts a string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(s)) {
	case CompressionNone, "":
		return CompressionNone, nil
	case CompressionGzip, "gz":
		return CompressionGzip, nil
	case CompressionXz:
		return CompressionXz, nil
	case CompressionZstd, "zst":
		return CompressionZstd, nil
	case CompressionBz2, "bzip2":
		return CompressionBz2, nil
	}
	return "", fmt.Errorf("unknown compression: %s", s)
}

// CompressionForPath infers compression from a file extension, the way
// repomd location hrefs encode it.
func CompressionForPath(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(path, ".xz"):
		return CompressionXz
	case strings.HasSuffix(path, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(path, ".bz2"):
		return CompressionBz2
	default:
		return CompressionNone
	}
}

// Ext returns the filename extension for the compression, including the
// leading dot, or "" for none.
func (c Compression) Ext() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionXz:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	case CompressionBz2:
		return ".bz2"
	default:
		return ""
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// Decompress wraps r with a decompressing reader for the given compression.
// A failure to initialize the decoder means the stream is not in the
// declared format.
func Decompress(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, nil
	case CompressionXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		return io.NopCloser(xzr), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return zstdReadCloser{zr}, nil
	case CompressionBz2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression: %s", c)
	}
}

// Compress wraps w with a compressing writer. The returned WriteCloser must
// be closed to flush the stream; closing it does not close w.
func Compress(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionXz:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz writer: %w", err)
		}
		return xzw, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd writer: %w", err)
		}
		return zw, nil
	default:
		// bz2 is read-only in this codebase; no library in use writes it.
		return nil, fmt.Errorf("unsupported output compression: %s", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
