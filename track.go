package refstream

import (
	"log/slog"
	"sync"
)

// Tracker validates Ref/Unref/DonateRef ownership for the objects that opt
// in via InitTracked. It is the debug companion of the refcount machinery:
// a double Ref by the same owner, or an Unref by an owner that holds
// nothing, panics at the faulty call site instead of corrupting counts.
//
// The tracker carries its own mutex, so tracked objects may be used from
// multiple threads once frozen, same as untracked ones. Tracking is a
// per-object opt-in precisely so release builds can skip it entirely.
type Tracker struct {
	mu     sync.Mutex
	logger *slog.Logger

	// refs maps object -> set of owners holding a simple ref.
	refs map[*RefCounted]map[Owner]struct{}

	// edges maps target -> source -> number of edges, since one source may
	// legitimately hold several edges to the same target.
	edges map[*RefCounted]map[*RefCounted]int
}

// NewTracker builds a debug reference tracker.
func NewTracker(opts ...TrackerOption) (*Tracker, error) {
	cfg := trackerConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	tr := &Tracker{
		refs:  make(map[*RefCounted]map[Owner]struct{}),
		edges: make(map[*RefCounted]map[*RefCounted]int),
	}
	if cfg.logHandler != nil {
		tr.logger = slog.New(cfg.logHandler)
	} else {
		tr.logger = slog.Default()
	}
	return tr, nil
}

// Leak describes one outstanding tracked ref, for shutdown checks.
type Leak struct {
	Object *RefCounted
	Owner  Owner
}

// Leaks returns every tracked ref still outstanding. An empty result after
// teardown means every owner released what it took.
func (tr *Tracker) Leaks() []Leak {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	var leaks []Leak
	for obj, owners := range tr.refs {
		for owner := range owners {
			leaks = append(leaks, Leak{Object: obj, Owner: owner})
		}
	}
	return leaks
}

func (tr *Tracker) track(r *RefCounted, owner Owner) {
	if owner == UntrackedRef {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	owners, ok := tr.refs[r]
	if !ok {
		owners = make(map[Owner]struct{})
		tr.refs[r] = owners
	}
	if _, dup := owners[owner]; dup {
		tr.logger.Error("double ref detected", LabelOwner.L(owner))
		panic(panicDoubleRef)
	}
	owners[owner] = struct{}{}
}

func (tr *Tracker) untrack(r *RefCounted, owner Owner) {
	if owner == UntrackedRef {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	owners := tr.refs[r]
	if _, ok := owners[owner]; !ok {
		tr.logger.Error("unref by non-owner detected", LabelOwner.L(owner))
		panic(panicUnknownOwner)
	}
	delete(owners, owner)
	if len(owners) == 0 {
		delete(tr.refs, r)
	}
}

func (tr *Tracker) check(r *RefCounted, owner Owner) {
	if owner == UntrackedRef {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.refs[r][owner]; !ok {
		panic(panicUnknownOwner)
	}
}

func (tr *Tracker) trackEdge(r, from *RefCounted) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	sources, ok := tr.edges[r]
	if !ok {
		sources = make(map[*RefCounted]int)
		tr.edges[r] = sources
	}
	sources[from]++
}

func (tr *Tracker) untrackEdge(r, from *RefCounted) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	sources := tr.edges[r]
	if sources[from] == 0 {
		panic(panicUnknownOwner)
	}
	sources[from]--
	if sources[from] == 0 {
		delete(sources, from)
		if len(sources) == 0 {
			delete(tr.edges, r)
		}
	}
}

// forget drops all bookkeeping for an object being collected.
func (tr *Tracker) forget(r *RefCounted) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.refs, r)
	delete(tr.edges, r)
}
