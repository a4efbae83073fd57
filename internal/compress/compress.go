// Package compress wraps byte streams in the codecs frame files may be stored
// with. Method names follow the command line: none, gzip, zlib, zstd, br,
// snappy, xz and bzip2.
package compress

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Supported method names.
const (
	None   = "none"
	Gzip   = "gzip"
	Zlib   = "zlib"
	Zstd   = "zstd"
	Brotli = "br"
	Snappy = "snappy"
	Xz     = "xz"
	Bzip2  = "bzip2"
)

// ErrUnknownMethod reports a method name no codec is registered for.
var ErrUnknownMethod = errors.New("unknown compression method")

var aliases = map[string]string{
	"":       None,
	"brotli": Brotli,
	"zst":    Zstd,
	"gz":     Gzip,
	"bz2":    Bzip2,
	"lzma":   Xz,
}

// Normalize maps aliases to the canonical method name.
func Normalize(method string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	if canon, ok := aliases[m]; ok {
		return canon
	}
	return m
}

// Methods lists the canonical names accepted by NewReader.
func Methods() []string {
	out := []string{None, Gzip, Zlib, Zstd, Brotli, Snappy, Xz, Bzip2}
	sort.Strings(out)
	return out
}

// Extension returns the conventional file suffix for method, including the dot.
func Extension(method string) string {
	switch Normalize(method) {
	case Gzip:
		return ".gz"
	case Zlib:
		return ".zz"
	case Zstd:
		return ".zst"
	case Brotli:
		return ".br"
	case Snappy:
		return ".sz"
	case Xz:
		return ".xz"
	case Bzip2:
		return ".bz2"
	default:
		return ""
	}
}

// NewWriter returns a WriteCloser that compresses into w. Closing it flushes
// the codec but leaves w open.
func NewWriter(method string, w io.Writer) (io.WriteCloser, error) {
	switch m := Normalize(method); m {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zlib:
		return zlib.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case Brotli:
		return brotli.NewWriter(w), nil
	case Snappy:
		return s2.NewWriter(w, s2.WriterSnappyCompat()), nil
	case Xz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xw, nil
	case Bzip2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, fmt.Errorf("bzip2 writer: %w", err)
		}
		return bw, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// NewReader returns a ReadCloser that decompresses r. Closing it releases
// codec resources but leaves r open.
func NewReader(method string, r io.Reader) (io.ReadCloser, error) {
	switch m := Normalize(method); m {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	case Zlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
		return zr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zstdReadCloser{dec}, nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case Snappy:
		return io.NopCloser(s2.NewReader(r)), nil
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case Bzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("bzip2 reader: %w", err)
		}
		return br, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// zstd.Decoder.Close has no error result.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
