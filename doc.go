// `refstream` is the memory-management and event-dispatch core beneath a
// protocol-buffer style serialization stack.
//
// It solves two problems that every descriptor-graph based serializer runs
// into sooner or later:
//
// 1. Descriptor graphs are *cyclic* (a message may contain itself, two
// messages may reference each other) but we still want deterministic
// reclamation without a tracing garbage collector. `RefCounted` partitions
// objects into *groups* such that no cycle spans groups, and counts refs
// per group. While objects are mutable the grouping is conservative: any
// two objects that ever shared an edge are grouped together. A one-way
// `Freezer.Freeze` then recomputes the *precise* strongly-connected
// components, after which counting is exact, atomic, and safe for
// concurrent use.
//
// 2. Decoders emit a flat stream of events (message start/end, field
// values, submessage boundaries) but consumers want *per-submessage*
// handler substitution. The `Dispatcher` keeps a bounded stack of
// (handler set, closure, pending-enter count) frames and lets the
// `StartSubmessage` callback *delegate* the entire subtree to a different
// handler set, transparently matching the eventual close against the
// correct enclosing frame.
//
// The byte-level boundary lives in `pkg/bytestream`: a pull/push pair of
// interfaces (`Source`, `Sink`) with a sticky EOF flag and a sticky
// `Status`, plus whole-stream accumulation that prefers zero-copy aliasing
// when the source supports it.
//
// ## Design Principles
//
// `refstream` is a *synchronous, single-call-path* library. It spawns no
// goroutines, takes no locks of its own (except the optional debug
// `Tracker`, which carries an explicit mutex), and never blocks on I/O:
// blocking, if any, happens inside whatever `io.Reader`/`io.Writer` you
// wrap in a `bytestream` transport.
//
// Concurrency is therefore a contract, not a mechanism: mutable objects
// require external serialization; frozen objects are lock-free and
// thread-safe. Contract violations (dispatching `StartMessage` off the
// base frame, overflowing the nesting bound, returning `FlowDelegate`
// without populating the handler binding) indicate caller bugs or
// malformed input beyond configured limits, and panic rather than return.
//
// Dependencies are *kept* minimal, actually, I can enumerate them:
//
// * [`hashicorp/go-metrics`][dep-met], so you chose where freeze and
//   dispatch telemetry goes.
// * [`log/slog`][dep-slog], to let you chose how to treat *structured logs*.
//
// [dep-met]: https://pkg.go.dev/github.com/hashicorp/go-metrics
// [dep-slog]: https://pkg.go.dev/log/slog
package refstream
