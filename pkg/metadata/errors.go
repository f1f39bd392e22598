package metadata

import "fmt"

// MalformedError reports unparseable or checksum-mismatched metadata input.
// Offset is the byte position in the decompressed stream where parsing
// stopped, when known. Parse failures after successful decompression are
// always MalformedError, never a transport error.
type MalformedError struct {
	Format string
	Offset int64
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("malformed %s metadata at byte %d: %v", e.Format, e.Offset, e.Err)
	}
	return fmt.Sprintf("malformed %s metadata: %v", e.Format, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(format string, offset int64, err error) *MalformedError {
	return &MalformedError{Format: format, Offset: offset, Err: err}
}
