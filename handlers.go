package refstream

// FieldNumber identifies a field on the wire.
type FieldNumber uint32

// Field is the minimal contract the dispatcher requires of a field
// descriptor. Full descriptors are an external collaborator; the
// dispatcher only ever forwards them.
type Field interface {
	Number() FieldNumber
	Name() string
}

// Value is an already-decoded field value. Its concrete type is a contract
// between decoder and handler set; the dispatcher never inspects it.
type Value = any

// FlowStatus is what handler callbacks return to steer dispatch.
type FlowStatus int

const (
	// FlowContinue keeps dispatching with the current handler set.
	FlowContinue FlowStatus = iota
	// FlowDelegate is only meaningful as a StartSubmessage return: the
	// callback populated the out binding and the submessage's contents go
	// to it. FlowDelegate never escapes the dispatcher.
	FlowDelegate
	// FlowStop asks the surrounding decoder to stop early. The dispatcher
	// forwards it untouched; interpretation belongs to the decoder.
	FlowStop
)

func (fs FlowStatus) String() string {
	switch fs {
	case FlowContinue:
		return "continue"
	case FlowDelegate:
		return "delegate"
	case FlowStop:
		return "stop"
	}
	return "unknown"
}

// HandlerSet receives decode events for one (sub)message scope. Closures
// are opaque to the dispatcher: whatever was bound alongside the set is
// passed back on every callback.
type HandlerSet interface {
	StartMessage(closure any)
	EndMessage(closure any)

	// StartSubmessage may leave out empty (the current set keeps handling
	// the submessage's contents) or populate it and return FlowDelegate
	// (the populated binding handles everything nested underneath). The
	// return value must be FlowDelegate exactly when out is non-empty.
	StartSubmessage(closure any, f Field, out *Handlers) FlowStatus

	EndSubmessage(closure any) FlowStatus
	Value(closure any, f Field, val Value) FlowStatus
	UnknownValue(closure any, num FieldNumber, val Value) FlowStatus
}

// Handlers binds a HandlerSet to a closure. The zero value is empty.
type Handlers struct {
	set     HandlerSet
	closure any
}

// Reset empties the binding.
func (h *Handlers) Reset() {
	h.set = nil
	h.closure = nil
}

// IsEmpty reports whether nothing is bound.
func (h *Handlers) IsEmpty() bool {
	return h.set == nil && h.closure == nil
}

// Register binds the handler set.
func (h *Handlers) Register(set HandlerSet) {
	h.set = set
}

// SetClosure binds the opaque closure passed back on every callback.
func (h *Handlers) SetClosure(closure any) {
	h.closure = closure
}
