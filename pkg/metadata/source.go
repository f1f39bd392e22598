package metadata

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// HashForAlgorithm returns a hash constructor for a repomd checksum
// algorithm name. sha1 is accepted on the read side for legacy
// repositories; publishing is restricted to the sha2 family.
func HashForAlgorithm(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("unsupported checksum algorithm: %s", algo)
}

// Source is one metadata input stream handed to the sync entry point: raw
// bytes plus the declared compression and, when the caller trusts a repomd
// manifest, the expected checksum over the raw (compressed) bytes.
type Source struct {
	Format       string
	Reader       io.Reader
	Compression  Compression
	ChecksumType string
	Checksum     string
}

// SourceForEntry builds a Source from a repomd index entry and the reader
// for its raw bytes.
func SourceForEntry(entry FileEntry, r io.Reader) Source {
	return Source{
		Format:       entry.Type,
		Reader:       r,
		Compression:  entry.Compression(),
		ChecksumType: entry.ChecksumType,
		Checksum:     entry.Checksum,
	}
}

// Open returns the decompressed stream for the source. When an expected
// checksum is present, the raw bytes are hashed as they are consumed and
// Close verifies the digest, draining any unread remainder first; a
// mismatch is reported as MalformedError.
func (s Source) Open() (io.ReadCloser, error) {
	raw := s.Reader
	var verifier *verifyingReader
	if s.Checksum != "" {
		h, err := HashForAlgorithm(s.ChecksumType)
		if err != nil {
			return nil, malformed(s.Format, 0, err)
		}
		verifier = &verifyingReader{
			format:   s.Format,
			r:        io.TeeReader(s.Reader, h),
			h:        h,
			expected: strings.ToLower(s.Checksum),
		}
		raw = verifier
	}

	dec, err := Decompress(raw, s.Compression)
	if err != nil {
		return nil, malformed(s.Format, 0, err)
	}
	return &sourceReader{dec: dec, verifier: verifier}, nil
}

type verifyingReader struct {
	format   string
	r        io.Reader
	h        hash.Hash
	expected string
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	return v.r.Read(p)
}

func (v *verifyingReader) verify() error {
	// Hash whatever the decompressor left unread. The manifest checksum
	// covers the whole file, not just the consumed prefix.
	if _, err := io.Copy(io.Discard, v.r); err != nil {
		return malformed(v.format, 0, err)
	}
	got := hex.EncodeToString(v.h.Sum(nil))
	if got != v.expected {
		return malformed(v.format, 0,
			fmt.Errorf("checksum mismatch: expected %s, got %s", v.expected, got))
	}
	return nil
}

type sourceReader struct {
	dec      io.ReadCloser
	verifier *verifyingReader
}

func (s *sourceReader) Read(p []byte) (int, error) {
	return s.dec.Read(p)
}

func (s *sourceReader) Close() error {
	if err := s.dec.Close(); err != nil {
		return err
	}
	if s.verifier != nil {
		return s.verifier.verify()
	}
	return nil
}
