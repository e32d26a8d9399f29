package refstream

import (
	"github.com/hashicorp/go-metrics"
)

// MaxNesting is the hard bound on submessage nesting one dispatcher can
// track. It must be chosen as an upper bound on legal input nesting;
// exceeding it is a contract violation, not a recoverable error.
const MaxNesting = 64

// frame is one active handler-set binding. depth counts the enters seen at
// this level not yet matched by an exit; when it hits zero the frame pops.
type frame struct {
	handlers Handlers
	depth    int
}

// Dispatcher routes decode events to a stack of handler-set frames,
// supporting per-submessage delegation. One dispatcher drives one decode
// pass on one thread; it has no built-in thread-safety.
type Dispatcher struct {
	stack [MaxNesting]frame
	top   int

	msink   metrics.MetricSink
	labels  []metrics.Label
	maxSeen int
}

// NewDispatcher builds a Dispatcher. Reset must be called before any
// dispatch method.
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	cfg := dispatcherConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	d := &Dispatcher{}
	if cfg.metricSink != nil {
		d.msink = cfg.metricSink
	} else {
		d.msink = metrics.Default()
	}
	d.labels = cfg.metricLabels
	return d, nil
}

// Reset installs h as the base frame and discards any previous state. The
// base frame's depth starts at 1 as a sentinel: a balanced event sequence
// can never bring it to zero, so the base is never popped.
func (d *Dispatcher) Reset(h Handlers) {
	d.top = 0
	d.stack[0] = frame{handlers: h, depth: 1}
	d.maxSeen = 0
}

// StartMessage begins the top-level message. Valid only on the base frame.
func (d *Dispatcher) StartMessage() {
	if d.top != 0 {
		panic(panicOffBaseStart)
	}
	f := &d.stack[0]
	f.handlers.set.StartMessage(f.handlers.closure)
}

// EndMessage ends the top-level message. Valid only on the base frame.
func (d *Dispatcher) EndMessage() {
	if d.top != 0 {
		panic(panicOffBaseEnd)
	}
	f := &d.stack[0]
	f.handlers.set.EndMessage(f.handlers.closure)
}

// StartSubmessage enters a submessage under field f. The current frame's
// StartSubmessage callback decides whether to keep handling the contents
// itself or delegate them to a different binding; either way the caller
// only ever observes the callback's non-delegate flow.
func (d *Dispatcher) StartSubmessage(f Field) FlowStatus {
	var sub Handlers
	sub.Reset()

	top := &d.stack[d.top]
	ret := top.handlers.set.StartSubmessage(top.handlers.closure, f, &sub)
	if (ret == FlowDelegate) != !sub.IsEmpty() {
		panic(panicDelegateMismatch)
	}

	if ret == FlowDelegate {
		if d.top+1 >= MaxNesting {
			panic(panicNestingOverflow)
		}
		d.top++
		d.stack[d.top] = frame{handlers: sub, depth: 0}
		sub.set.StartMessage(sub.closure)
		ret = FlowContinue

		d.msink.IncrCounterWithLabels(MetricRefstreamDispatchDelegations, 1, d.labels)
		if d.top > d.maxSeen {
			d.maxSeen = d.top
			d.msink.SetGaugeWithLabels(MetricRefstreamDispatchDepth, float32(d.maxSeen), d.labels)
		}
	}

	d.stack[d.top].depth++
	return ret
}

// EndSubmessage leaves the innermost open submessage. If that closes out a
// delegated frame, the delegate's EndMessage fires and the frame pops
// first; the (possibly restored) current frame's EndSubmessage callback
// then fires regardless, so a parent always learns about the close of the
// submessage that contained the delegation.
func (d *Dispatcher) EndSubmessage() FlowStatus {
	top := &d.stack[d.top]
	top.depth--
	if top.depth == 0 {
		if d.top == 0 {
			panic(panicUnbalancedEnd)
		}
		top.handlers.set.EndMessage(top.handlers.closure)
		d.top--
		d.msink.IncrCounterWithLabels(MetricRefstreamDispatchPops, 1, d.labels)
	}
	cur := &d.stack[d.top]
	return cur.handlers.set.EndSubmessage(cur.handlers.closure)
}

// Value dispatches a decoded field value to the current frame.
func (d *Dispatcher) Value(f Field, val Value) FlowStatus {
	cur := &d.stack[d.top]
	return cur.handlers.set.Value(cur.handlers.closure, f, val)
}

// UnknownValue dispatches a value whose field has no descriptor.
func (d *Dispatcher) UnknownValue(num FieldNumber, val Value) FlowStatus {
	cur := &d.stack[d.top]
	return cur.handlers.set.UnknownValue(cur.handlers.closure, num, val)
}
