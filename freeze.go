package refstream

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"
)

// DefaultMaxDepth bounds freeze traversal when no explicit bound is given.
// Descriptor graphs are shallow in practice; anything deeper is either a
// pathological schema or hostile input.
const DefaultMaxDepth = 64

// Freezer converts reachable mutable subgraphs into immutable, precisely
// grouped, thread-safe ones. The conversion is one-way.
type Freezer struct {
	logger   *slog.Logger
	msink    metrics.MetricSink
	labels   []metrics.Label
	maxDepth int
}

// NewFreezer builds a Freezer.
func NewFreezer(opts ...FreezerOption) (*Freezer, error) {
	cfg := freezerConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	fz := &Freezer{maxDepth: cfg.maxDepth}
	if fz.maxDepth == 0 {
		fz.maxDepth = DefaultMaxDepth
	}
	if cfg.logHandler != nil {
		fz.logger = slog.New(cfg.logHandler)
	} else {
		fz.logger = slog.Default()
	}
	if cfg.metricSink != nil {
		fz.msink = cfg.metricSink
	} else {
		fz.msink = metrics.Default()
	}
	fz.labels = cfg.metricLabels
	return fz, nil
}

// Freeze computes the set of mutable objects reachable from roots via
// graph edges, partitions it into strongly connected components, replaces
// the conservative groups with one precise group per component, and marks
// every involved object frozen.
//
// The caller must own a ref on each root and must guarantee exclusive
// access to the reachable subgraph for the duration of the call.
//
// On failure (traversal deeper than the configured maximum, or more than
// 2^31-1 reachable objects) every object is left completely unchanged.
// On success all reachable objects are immutable and thread-safe for
// Ref/Unref/CheckRef, and no new edges may target them. Edges held by
// mutable objects left outside the closure are converted into counted
// refs on their targets' new groups, released when the holder drops the
// edge or is itself collected.
func (fz *Freezer) Freeze(roots ...*RefCounted) error {
	start := time.Now()

	plan, err := fz.plan(roots)
	if err != nil {
		// Clone before appending: fz.labels may alias a caller slice
		// with spare capacity.
		errLabels := make([]metrics.Label, 0, len(fz.labels)+1)
		errLabels = append(errLabels, fz.labels...)
		errLabels = append(errLabels, LabelError.M(err.Error()))
		fz.msink.IncrCounterWithLabels(MetricRefstreamFreezeErrorCount, 1, errLabels)
		return err
	}
	if len(plan.order) == 0 {
		// Every root was already frozen; trivially done.
		return nil
	}

	plan.commit()

	fz.msink.IncrCounterWithLabels(
		MetricRefstreamFreezeObjects, float32(len(plan.order)), fz.labels)
	fz.msink.IncrCounterWithLabels(
		MetricRefstreamFreezeGroups, float32(len(plan.sccs)), fz.labels)
	fz.msink.AddSampleWithLabels(
		MetricRefstreamFreezeDurationMs,
		float32(time.Since(start).Milliseconds()),
		fz.labels,
	)
	fz.logger.Debug(
		"froze object graph",
		LabelRootCount.L(len(roots)),
		LabelObjectCount.L(len(plan.order)),
		LabelGroupCount.L(len(plan.sccs)),
	)
	return nil
}

// freezePlan is the outcome of the analysis phase. Nothing in it touches
// the live objects; commit applies it all at once, which is what gives
// Freeze its leave-unchanged-on-failure guarantee.
type freezePlan struct {
	order  []*RefCounted                 // every reachable mutable object, visit order
	adj    map[*RefCounted][]*RefCounted // materialized mutable-to-mutable edges
	comp   map[*RefCounted]int32         // object -> component id
	sccs   [][]*RefCounted               // component id -> members
	counts []int32                       // component id -> seeded refcount
}

// tarjanFrame is one explicit-stack DFS record. The native call stack is
// deliberately not used: traversal depth is data-dependent on input, and
// the depth bound must be enforceable, not incidental.
type tarjanFrame struct {
	node  *RefCounted
	edges []*RefCounted
	next  int
}

func (fz *Freezer) plan(roots []*RefCounted) (*freezePlan, error) {
	plan := &freezePlan{
		adj:  make(map[*RefCounted][]*RefCounted),
		comp: make(map[*RefCounted]int32),
	}

	index := make(map[*RefCounted]int32)
	lowlink := make(map[*RefCounted]int32)
	onStack := make(map[*RefCounted]bool)
	var sccStack []*RefCounted
	var work []tarjanFrame
	var counter int32

	push := func(v *RefCounted) error {
		if len(work) >= fz.maxDepth {
			return ErrFreezeDepthExceeded
		}
		if counter == math.MaxInt32 {
			return ErrFreezeTooManyObjects
		}
		index[v] = counter
		lowlink[v] = counter
		counter++
		sccStack = append(sccStack, v)
		onStack[v] = true
		plan.order = append(plan.order, v)
		work = append(work, tarjanFrame{node: v, edges: plan.outEdges(v)})
		return nil
	}

	for _, root := range roots {
		if root.frozen {
			continue
		}
		if _, seen := index[root]; seen {
			continue
		}
		if err := push(root); err != nil {
			return nil, err
		}

		for len(work) > 0 {
			f := &work[len(work)-1]
			if f.next < len(f.edges) {
				w := f.edges[f.next]
				f.next++
				if _, seen := index[w]; !seen {
					if err := push(w); err != nil {
						return nil, err
					}
				} else if onStack[w] {
					if index[w] < lowlink[f.node] {
						lowlink[f.node] = index[w]
					}
				}
				continue
			}

			// All edges of f.node explored; close it out.
			v := f.node
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
			if lowlink[v] == index[v] {
				id := int32(len(plan.sccs))
				var members []*RefCounted
				for {
					w := sccStack[len(sccStack)-1]
					sccStack = sccStack[:len(sccStack)-1]
					onStack[w] = false
					plan.comp[w] = id
					members = append(members, w)
					if w == v {
						break
					}
				}
				plan.sccs = append(plan.sccs, members)
			}
		}
	}

	// Seed each component with the number of refs entering it from
	// outside: simple refs on members, plus cross-component edges.
	plan.counts = make([]int32, len(plan.sccs))
	for _, v := range plan.order {
		plan.counts[plan.comp[v]] += int32(v.individualCount)
		for _, w := range plan.adj[v] {
			if plan.comp[v] != plan.comp[w] {
				plan.counts[plan.comp[w]]++
			}
		}
	}
	return plan, nil
}

// outEdges materializes v's outgoing edges, restricted to still-mutable
// targets, and caches them for the counting pass.
func (plan *freezePlan) outEdges(v *RefCounted) []*RefCounted {
	if edges, ok := plan.adj[v]; ok {
		return edges
	}
	var edges []*RefCounted
	v.vtbl.Visit(v, func(_, subobj *RefCounted, _ any) {
		if !subobj.frozen {
			edges = append(edges, subobj)
		}
	}, nil)
	plan.adj[v] = edges
	return edges
}

// commit applies the plan: precise groups replace conservative ones, the
// survivors of partially-frozen conservative groups keep a consistent
// remainder with their in-edges seeded into the new precise groups, and
// every reachable object flips to frozen.
func (plan *freezePlan) commit() {
	frozen := make(map[*RefCounted]bool, len(plan.order))
	for _, v := range plan.order {
		frozen[v] = true
	}

	// Fix up each touched conservative group: unlink the members being
	// frozen and subtract their simple refs from the shared cell, so the
	// unvisited remainder still satisfies the group-sum invariant.
	done := make(map[*atomic.Int32]bool)
	for _, v := range plan.order {
		if done[v.group] {
			continue
		}
		done[v.group] = true

		var remainder []*RefCounted
		var moved int32
		o := v
		for {
			if frozen[o] {
				moved += int32(o.individualCount)
			} else {
				remainder = append(remainder, o)
			}
			o = o.next
			if o == v {
				break
			}
		}
		if len(remainder) == 0 {
			continue
		}
		// Remainder members keep their edges into the members being
		// frozen. Each such edge becomes a counted ref on the target's
		// new precise group, same as in-closure cross-component edges,
		// so the holder's later Unref2 or death balances out.
		for _, o := range remainder {
			o.vtbl.Visit(o, func(_, subobj *RefCounted, _ any) {
				if frozen[subobj] {
					plan.counts[plan.comp[subobj]]++
				}
			}, nil)
		}
		v.group.Add(-moved)
		for i, o := range remainder {
			o.next = remainder[(i+1)%len(remainder)]
		}
	}

	for id, members := range plan.sccs {
		cell := new(atomic.Int32)
		cell.Store(plan.counts[id])
		for i, o := range members {
			o.group = cell
			o.next = members[(i+1)%len(members)]
			o.frozen = true
		}
	}
}
