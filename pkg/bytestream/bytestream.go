// Package bytestream is the byte-level boundary of the refstream core: a
// pull `Source` and a push `Sink`, polymorphic over concrete transports,
// each carrying a sticky end-of-stream flag and a sticky `Status`.
//
// The core never performs I/O itself; blocking, if any, lives inside the
// `io.Reader`/`io.Writer` a transport wraps.
package bytestream

// Status carries the sticky error state of a Source or Sink. Once an error
// is recorded, later ones are dropped: the first failure is the one that
// explains everything after it.
type Status struct {
	err error
}

// Set records err unless one is already recorded.
func (s *Status) Set(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Err returns the recorded error, nil if none.
func (s *Status) Err() error {
	return s.err
}

// OK reports whether no error is recorded.
func (s *Status) OK() bool {
	return s.err == nil
}

// CopyFrom overwrites s with the state of other.
func (s *Status) CopyFrom(other *Status) {
	s.err = other.err
}

// Source is the pull side of the boundary.
type Source interface {
	// Read places up to len(p) bytes into p and returns how many were
	// placed, which may be less than requested (including zero before
	// end-of-stream). A negative return signals an error carried by
	// Status.
	Read(p []byte) int

	// GetString returns up to n bytes without copying when the source can
	// alias its backing storage, and advances past them. ok is false when
	// the source cannot alias; that is not an error.
	GetString(n int) (data []byte, ok bool)

	// EOF reports whether the stream is exhausted. Sticky.
	EOF() bool

	// Status returns the source's sticky error state.
	Status() *Status
}

// Sink is the push side of the boundary.
type Sink interface {
	// Write consumes p and returns how many bytes were accepted. A
	// negative return signals an error carried by Status.
	Write(p []byte) int

	// PutString is Write for an immutable byte string; sinks that can
	// retain a reference instead of copying are free to do so.
	PutString(data []byte) int

	// Status returns the sink's sticky error state.
	Status() *Status
}

// chunkSize trades allocation overhead against read-call count when
// accumulating a whole stream.
const chunkSize = 4096

// maxStringLen is the largest prefix GetFullString asks the zero-copy path
// for: effectively "everything you have".
const maxStringLen = int(^uint(0) >> 1)

// GetFullString accumulates the remainder of src into one buffer. It first
// tries the zero-copy GetString fast path, then falls into a chunked
// growth loop reading directly into the tail and shrinking back to the
// exact final size. Any read error aborts and propagates src's status;
// retry policy, if any, belongs to the caller.
func GetFullString(src Source) ([]byte, error) {
	buf, ok := src.GetString(maxStringLen)
	if !ok {
		if err := src.Status().Err(); err != nil {
			return nil, err
		}
		buf = nil
	}
	for !src.EOF() {
		l := len(buf)
		if cap(buf) < l+chunkSize {
			grown := make([]byte, l, l+chunkSize)
			copy(grown, buf)
			buf = grown
		}
		buf = buf[:l+chunkSize]
		n := src.Read(buf[l:])
		if n < 0 {
			return nil, src.Status().Err()
		}
		// Resize to proper size.
		buf = buf[:l+n]
	}
	return buf, nil
}
