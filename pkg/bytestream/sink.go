package bytestream

import (
	"io"

	"github.com/hashicorp/go-metrics"
)

// BufferSink is a memory-backed Sink accumulating everything written.
type BufferSink struct {
	status Status
	buf    []byte
}

var _ Sink = (*BufferSink)(nil)

// NewBufferSink builds an empty BufferSink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (s *BufferSink) Write(p []byte) int {
	s.buf = append(s.buf, p...)
	return len(p)
}

func (s *BufferSink) PutString(data []byte) int {
	return s.Write(data)
}

func (s *BufferSink) Status() *Status {
	return &s.status
}

// Bytes returns everything written so far. The returned slice aliases the
// sink's storage.
func (s *BufferSink) Bytes() []byte {
	return s.buf
}

// WriterSink adapts any io.Writer to the Sink contract.
type WriterSink struct {
	status Status
	w      io.Writer

	msink  metrics.MetricSink
	labels []metrics.Label
}

var _ Sink = (*WriterSink)(nil)

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer, opts ...TransportOption) (*WriterSink, error) {
	cfg := transportConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	sink := &WriterSink{w: w, labels: cfg.metricLabels}
	if cfg.metricSink != nil {
		sink.msink = cfg.metricSink
	} else {
		sink.msink = &metrics.BlackholeSink{}
	}
	return sink, nil
}

func (s *WriterSink) Write(p []byte) int {
	if !s.status.OK() {
		return -1
	}
	n, err := s.w.Write(p)
	if n > 0 {
		s.msink.IncrCounterWithLabels(MetricBytestreamOutBytes, float32(n), s.labels)
	}
	if err != nil {
		s.status.Set(err)
		s.msink.IncrCounterWithLabels(MetricBytestreamOutErrorCount, 1, s.labels)
		return -1
	}
	return n
}

func (s *WriterSink) PutString(data []byte) int {
	return s.Write(data)
}

func (s *WriterSink) Status() *Status {
	return &s.status
}
