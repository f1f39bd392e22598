package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := Compress(&buf, CompressionGzip)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("repository metadata ", 100))

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionXz, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := Compress(&buf, c)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := Decompress(bytes.NewReader(buf.Bytes()), c)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, payload, got)
		})
	}
}

func TestCompressionForPath(t *testing.T) {
	assert.Equal(t, CompressionGzip, CompressionForPath("repodata/aaaa-primary.xml.gz"))
	assert.Equal(t, CompressionXz, CompressionForPath("repodata/bbbb-filelists.xml.xz"))
	assert.Equal(t, CompressionZstd, CompressionForPath("repodata/cccc-other.xml.zst"))
	assert.Equal(t, CompressionBz2, CompressionForPath("repodata/dddd-comps.xml.bz2"))
	assert.Equal(t, CompressionNone, CompressionForPath("repodata/eeee-comps.xml"))
}

func TestSourceChecksumVerified(t *testing.T) {
	payload := []byte("<metadata/>")
	compressed := gzipBytes(t, payload)
	sum := sha256.Sum256(compressed)

	src := Source{
		Format:       FilePrimary,
		Reader:       bytes.NewReader(compressed),
		Compression:  CompressionGzip,
		ChecksumType: "sha256",
		Checksum:     hex.EncodeToString(sum[:]),
	}

	r, err := src.Open()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.NoError(t, r.Close())
}

func TestSourceChecksumMismatch(t *testing.T) {
	compressed := gzipBytes(t, []byte("<metadata/>"))

	src := Source{
		Format:       FilePrimary,
		Reader:       bytes.NewReader(compressed),
		Compression:  CompressionGzip,
		ChecksumType: "sha256",
		Checksum:     strings.Repeat("00", 32),
	}

	r, err := src.Open()
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.NoError(t, err)

	err = r.Close()
	var malformedErr *MalformedError
	require.ErrorAs(t, err, &malformedErr)
	assert.Contains(t, malformedErr.Error(), "checksum mismatch")
}

func TestSourceUnsupportedChecksumAlgorithm(t *testing.T) {
	src := Source{
		Format:       FilePrimary,
		Reader:       strings.NewReader("x"),
		Compression:  CompressionNone,
		ChecksumType: "md5",
		Checksum:     "abcd",
	}

	_, err := src.Open()
	var malformedErr *MalformedError
	require.ErrorAs(t, err, &malformedErr)
}

func TestSourceCorruptCompressedStream(t *testing.T) {
	src := Source{
		Format:      FilePrimary,
		Reader:      strings.NewReader("not gzip at all"),
		Compression: CompressionGzip,
	}

	_, err := src.Open()
	var malformedErr *MalformedError
	require.ErrorAs(t, err, &malformedErr)
}

func TestParseCompression(t *testing.T) {
	for input, want := range map[string]Compression{
		"gzip": CompressionGzip,
		"gz":   CompressionGzip,
		"xz":   CompressionXz,
		"zstd": CompressionZstd,
		"zst":  CompressionZstd,
		"bz2":  CompressionBz2,
		"":     CompressionNone,
		"none": CompressionNone,
	} {
		got, err := ParseCompression(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("lz77")
	assert.Error(t, err)
}
