package refstream

import (
	"sync/atomic"
)

// Owner is an opaque identity used only to label simple references for
// bookkeeping and debug validation. It must be comparable (it is used as a
// map key by the Tracker) and it is never dereferenced. Any stable token
// works: a pointer, a string, an integer handle.
type Owner = any

// UntrackedRef is a distinguished owner exempt from debug tracking. Prefer
// real owners when you have a stable token; fall back to UntrackedRef when
// you don't.
var UntrackedRef Owner = untrackedRef{}

type untrackedRef struct{}

// VisitFunc is invoked by Vtbl.Visit once per outgoing graph edge.
type VisitFunc func(r, subobj *RefCounted, closure any)

// Vtbl is the per-type descriptor every participant in the cyclic graph
// must supply.
type Vtbl interface {
	// Visit must invoke visit for every subobject r currently references
	// via Ref2. It must be safe to call during a collection pass.
	Visit(r *RefCounted, visit VisitFunc, closure any)

	// Free must release the object and drop any non-edge references it
	// owns. Edges recorded via Ref2 must NOT be dropped here; the group
	// machinery accounts for them.
	Free(r *RefCounted)
}

// RefCounted is one participant in a cycle-tolerant refcounted graph.
// Embed it in any type that wants precise, GC-free reclamation.
//
// While mutable, none of its operations are thread-safe: the caller must
// serialize access to the whole group. Once frozen (see Freezer), Ref,
// Unref and CheckRef are lock-free and safe for concurrent use.
type RefCounted struct {
	// group is a single reference count shared by all objects currently
	// merged into the same group.
	group *atomic.Int32

	// next chains every member of the group into a circular ring, so a
	// collection pass can enumerate the group from any member.
	next *RefCounted

	vtbl Vtbl

	// individualCount is maintained only while mutable: the number of
	// simple refs (not edges) terminating at this specific object. The
	// shared group count is the sum of individualCount over the ring.
	individualCount uint32

	frozen bool

	// tracker is nil unless this object participates in debug reference
	// tracking.
	tracker *Tracker
}

// Init establishes r as a new singleton group holding one simple ref. The
// owner argument names who holds that initial ref; it is consumed only
// when debug tracking is enabled (InitTracked) and is accepted here for
// call-site symmetry between the two init paths.
func (r *RefCounted) Init(vtbl Vtbl, _ Owner) {
	r.group = new(atomic.Int32)
	r.group.Store(1)
	r.next = r
	r.vtbl = vtbl
	r.individualCount = 1
	r.frozen = false
	r.tracker = nil
}

// InitTracked is Init plus debug reference tracking through tr. Every
// Ref/Unref/DonateRef on r is then validated against tr's tables.
func (r *RefCounted) InitTracked(vtbl Vtbl, owner Owner, tr *Tracker) {
	r.Init(vtbl, owner)
	r.tracker = tr
	tr.track(r, owner)
}

// IsFrozen reports whether r belongs to a frozen (immutable, precisely
// grouped) closure.
func (r *RefCounted) IsFrozen() bool {
	return r.frozen
}

// Ref adds a simple ref owned by owner. owner must not already hold a
// tracked ref to r (validated only when tracking is enabled).
// Thread-safe iff r is frozen.
func (r *RefCounted) Ref(owner Owner) {
	if r.tracker != nil {
		r.tracker.track(r, owner)
	}
	if !r.frozen {
		r.individualCount++
	}
	r.group.Add(1)
}

// Unref releases a simple ref owned by owner. If the group's shared count
// reaches zero the entire group is collected: every member's Free runs
// exactly once and the group disappears atomically.
// Thread-safe iff r is frozen.
func (r *RefCounted) Unref(owner Owner) {
	if r.tracker != nil {
		r.tracker.untrack(r, owner)
	}
	if !r.frozen {
		r.individualCount--
	}
	if r.group.Add(-1) == 0 {
		collect(r)
	}
}

// DonateRef re-labels an existing ref from owner "from" to owner "to"
// without any transient count change, so it can never trigger a spurious
// collection the way Ref-then-Unref could.
func (r *RefCounted) DonateRef(from, to Owner) {
	if to == nil {
		panic(panicNilDonateOwner)
	}
	if r.tracker != nil {
		r.tracker.untrack(r, from)
		r.tracker.track(r, to)
	}
}

// CheckRef asserts that owner currently holds a tracked ref to r. It is a
// no-op unless r was initialized with InitTracked.
func (r *RefCounted) CheckRef(owner Owner) {
	if r.tracker != nil {
		r.tracker.check(r, owner)
	}
}

// Ref2 records a graph edge from "from" to r. Edges are not individually
// counted while mutable and may form cycles; if r and from belong to
// distinct mutable groups, the groups merge in O(1) (counts summed,
// membership rings spliced). Both ends must be mutable.
//
// Edges do not need to be dropped from from's Free: the group owns them.
func (r *RefCounted) Ref2(from *RefCounted) {
	if r.frozen {
		panic(panicFrozenTarget)
	}
	if from.frozen {
		panic(panicFrozenSource)
	}
	if r.tracker != nil {
		r.tracker.trackEdge(r, from)
	}
	merge(r, from)
}

// Unref2 removes an edge recorded with Ref2. This is only necessary when
// "from" stops pointing at r while still alive, never from from's Free.
//
// If r froze after the edge was added, the edge was converted into a
// counted ref by the freeze, so dropping it decrements r's precise group
// and may collect it.
func (r *RefCounted) Unref2(from *RefCounted) {
	if r.frozen {
		if r.group.Add(-1) == 0 {
			collect(r)
		}
		return
	}
	if r.tracker != nil {
		r.tracker.untrackEdge(r, from)
	}
	// Mutable groups are conservative: they stay merged even after the
	// last edge between two members disappears. Nothing to update.
}

// merge folds from's group into r's. No-op when they already share a group.
func merge(r, from *RefCounted) {
	if r.group == from.group {
		return
	}
	r.group.Add(from.group.Load())
	o := from
	for {
		o.group = r.group
		o = o.next
		if o == from {
			break
		}
	}
	// Splicing two rings is one pointer swap.
	r.next, from.next = from.next, r.next
}

// collect frees every member of r's group in one pass. The shared count
// already reached zero, so exactly one caller ever gets here per group.
func collect(r *RefCounted) {
	o := r
	for {
		next := o.next
		freeObj(o)
		if next == r {
			break
		}
		o = next
	}
}

// freeObj releases one object. Outgoing edges whose target sits in a
// different group are counted refs (seeded when the target froze), so
// they are dropped first, which may cascade collection into downstream
// groups. Intra-group edges need no teardown: the group dies as a unit,
// and among mutable objects every edge is intra-group (merging
// guarantees it).
func freeObj(o *RefCounted) {
	o.vtbl.Visit(o, releaseExternalEdge, nil)
	if o.tracker != nil {
		o.tracker.forget(o)
	}
	o.vtbl.Free(o)
}

func releaseExternalEdge(r, subobj *RefCounted, _ any) {
	if subobj.group == r.group {
		return
	}
	if subobj.group.Add(-1) == 0 {
		collect(subobj)
	}
}
