package refstream

import (
	"errors"
)

var (
	ErrInvalidCfg = errors.New("refstream: invalid options")

	ErrFreezeDepthExceeded  = errors.New("freeze: graph depth exceeds the configured maximum")
	ErrFreezeTooManyObjects = errors.New("freeze: more than 2^31-1 mutable objects reachable from roots")
)

// Panic messages for contract violations. These indicate a caller bug or
// input beyond a configured bound, never an environmental failure, so they
// are assertion-grade rather than recoverable errors.
const (
	panicOffBaseStart     = "dispatch: StartMessage is only valid on the base frame"
	panicOffBaseEnd       = "dispatch: EndMessage is only valid on the base frame"
	panicNestingOverflow  = "dispatch: submessage nesting exceeds MaxNesting"
	panicUnbalancedEnd    = "dispatch: EndSubmessage without a matching StartSubmessage"
	panicDelegateMismatch = "dispatch: StartSubmessage must return FlowDelegate exactly when it populates the handler binding"

	panicNilDonateOwner = "refcount: DonateRef target owner must not be nil"
	panicFrozenTarget   = "refcount: graph edges may not target a frozen object"
	panicFrozenSource   = "refcount: graph edges may not originate from a frozen object"
	panicDoubleRef      = "refcount: owner already holds a tracked ref to this object"
	panicUnknownOwner   = "refcount: owner does not hold a tracked ref to this object"
)
