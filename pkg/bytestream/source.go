package bytestream

import (
	"io"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricBytestreamInBytes       = []string{"bytestream", "in", "bytes"}
	MetricBytestreamInErrorCount  = []string{"bytestream", "in", "error", "count"}
	MetricBytestreamOutBytes      = []string{"bytestream", "out", "bytes"}
	MetricBytestreamOutErrorCount = []string{"bytestream", "out", "error", "count"}
)

type transportConfig struct {
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
}

// TransportOption to pass to `NewReaderSource` / `NewWriterSink`.
type TransportOption func(*transportConfig) error

// WithMetricSink allows you to chose how to collect byte-in/byte-out
// telemetry for a transport.
func WithMetricSink(ms metrics.MetricSink) TransportOption {
	return func(c *transportConfig) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.metricSink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by a
// transport.
func WithMetricLabels(labels []metrics.Label) TransportOption {
	return func(c *transportConfig) error {
		c.metricLabels = labels
		return nil
	}
}

// BufferSource is a memory-backed Source. Its GetString aliases the
// backing buffer instead of copying.
type BufferSource struct {
	status Status
	buf    []byte
	off    int
	eof    bool
}

var _ Source = (*BufferSource)(nil)

// NewBufferSource wraps b. The source aliases b; the caller must not
// mutate it while the source is in use.
func NewBufferSource(b []byte) *BufferSource {
	return &BufferSource{buf: b, eof: len(b) == 0}
}

func (s *BufferSource) Read(p []byte) int {
	n := copy(p, s.buf[s.off:])
	s.off += n
	if s.off == len(s.buf) {
		s.eof = true
	}
	return n
}

func (s *BufferSource) GetString(n int) ([]byte, bool) {
	rest := len(s.buf) - s.off
	if n > rest {
		n = rest
	}
	// Full slice expression: the alias must not expose capacity beyond
	// what was handed out, or an appending caller would scribble over
	// bytes this source has not delivered yet.
	data := s.buf[s.off : s.off+n : s.off+n]
	s.off += n
	if s.off == len(s.buf) {
		s.eof = true
	}
	return data, true
}

func (s *BufferSource) EOF() bool {
	return s.eof
}

func (s *BufferSource) Status() *Status {
	return &s.status
}

// ReaderSource adapts any io.Reader (file, socket, network stream) to the
// Source contract. It cannot alias, so GetString always declines.
type ReaderSource struct {
	status Status
	r      io.Reader
	eof    bool

	// pending holds an error observed on a Read that also delivered
	// bytes; io.Reader permits that, the Source contract does not, so the
	// error surfaces on the next call.
	pending error

	msink  metrics.MetricSink
	labels []metrics.Label
}

var _ Source = (*ReaderSource)(nil)

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader, opts ...TransportOption) (*ReaderSource, error) {
	cfg := transportConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	src := &ReaderSource{r: r, labels: cfg.metricLabels}
	if cfg.metricSink != nil {
		src.msink = cfg.metricSink
	} else {
		src.msink = &metrics.BlackholeSink{}
	}
	return src, nil
}

func (s *ReaderSource) Read(p []byte) int {
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		s.fail(err)
		return -1
	}
	if s.eof || !s.status.OK() {
		if !s.status.OK() {
			return -1
		}
		return 0
	}

	n, err := s.r.Read(p)
	if n > 0 {
		s.msink.IncrCounterWithLabels(MetricBytestreamInBytes, float32(n), s.labels)
	}
	switch {
	case err == io.EOF:
		s.eof = true
	case err != nil && n > 0:
		s.pending = err
	case err != nil:
		s.fail(err)
		return -1
	}
	return n
}

func (s *ReaderSource) GetString(int) ([]byte, bool) {
	return nil, false
}

func (s *ReaderSource) EOF() bool {
	return s.eof
}

func (s *ReaderSource) Status() *Status {
	return &s.status
}

func (s *ReaderSource) fail(err error) {
	s.status.Set(err)
	s.msink.IncrCounterWithLabels(MetricBytestreamInErrorCount, 1, s.labels)
}
