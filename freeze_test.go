package refstream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"
)

func TestFreeze_ChainPrecision(t *testing.T) {
	h := &harness{}
	a := h.newNode("A", "owner")
	b := h.newNode("B", "owner")
	c := h.newNode("C", "owner")
	h.link(a, b)
	h.link(b, c)

	// Conservative phase: one merged group.
	require.Same(t, a.node.group, c.node.group)
	require.Equal(t, int32(3), a.node.group.Load())

	fz, err := NewFreezer()
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&a.node))

	// Precise phase: the chain is acyclic, so three singleton groups.
	require.True(t, a.node.IsFrozen())
	require.True(t, b.node.IsFrozen())
	require.True(t, c.node.IsFrozen())
	require.NotSame(t, a.node.group, b.node.group)
	require.NotSame(t, b.node.group, c.node.group)

	// Seeds: A holds only its owner ref; B and C each add one in-edge.
	require.Equal(t, int32(1), a.node.group.Load())
	require.Equal(t, int32(2), b.node.group.Load())
	require.Equal(t, int32(2), c.node.group.Load())

	// Dropping the owner refs bottom-up leaves each object held by its
	// in-edge; dropping A then cascades the whole chain.
	c.node.Unref("owner")
	b.node.Unref("owner")
	require.Empty(t, h.freed)
	a.node.Unref("owner")
	// Edges are released before the holder itself, so the cascade frees
	// the deepest object first.
	require.Equal(t, []string{"C", "B", "A"}, h.freed)
}

func TestFreeze_CyclePrecision(t *testing.T) {
	h := &harness{}
	a := h.newNode("A", "owner")
	b := h.newNode("B", "owner")
	c := h.newNode("C", "owner")
	h.link(a, b)
	h.link(b, a)
	h.link(a, c)

	fz, err := NewFreezer()
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&a.node))

	// A and B are mutually reachable: one group. C is not: its own group.
	require.Same(t, a.node.group, b.node.group)
	require.NotSame(t, a.node.group, c.node.group)

	// {A,B}: two owner refs, intra-group edges uncounted.
	require.Equal(t, int32(2), a.node.group.Load())
	// {C}: owner ref plus the edge from A.
	require.Equal(t, int32(2), c.node.group.Load())

	a.node.Unref("owner")
	require.Empty(t, h.freed)
	b.node.Unref("owner")
	h.freedOnce(t, "A", "B")
	c.node.Unref("owner")
	h.freedOnce(t, "A", "B", "C")
}

type nodeSnapshot struct {
	group           *atomic.Int32
	count           int32
	next            *RefCounted
	individualCount uint32
	frozen          bool
}

func snapshot(nodes []*testNode) []nodeSnapshot {
	snaps := make([]nodeSnapshot, len(nodes))
	for i, n := range nodes {
		snaps[i] = nodeSnapshot{
			group:           n.node.group,
			count:           n.node.group.Load(),
			next:            n.node.next,
			individualCount: n.node.individualCount,
			frozen:          n.node.frozen,
		}
	}
	return snaps
}

func TestFreeze_FailureLeavesObjectsUnchanged(t *testing.T) {
	h := &harness{}
	const depth = 10
	nodes := make([]*testNode, depth)
	for i := range nodes {
		nodes[i] = h.newNode(fmt.Sprintf("n%d", i), "owner")
		if i > 0 {
			h.link(nodes[i-1], nodes[i])
		}
	}

	fz, err := NewFreezer(WithMaxDepth(3))
	require.NoError(t, err)

	before := snapshot(nodes)
	require.ErrorIs(t, fz.Freeze(&nodes[0].node), ErrFreezeDepthExceeded)

	// Pointer identity matters here: a failed freeze must not even swap
	// in an equivalent group cell or relink a ring.
	for i, n := range nodes {
		require.Same(t, before[i].group, n.node.group)
		require.Equal(t, before[i].count, n.node.group.Load())
		require.Same(t, before[i].next, n.node.next)
		require.Equal(t, before[i].individualCount, n.node.individualCount)
		require.Equal(t, before[i].frozen, n.node.frozen)
	}

	for _, n := range nodes {
		require.False(t, n.node.IsFrozen())
		n.node.Unref("owner")
	}
	require.Len(t, h.freed, depth)
}

func TestFreeze_DeepChainWithinBound(t *testing.T) {
	h := &harness{}
	const depth = 1000
	nodes := make([]*testNode, depth)
	for i := range nodes {
		nodes[i] = h.newNode(fmt.Sprintf("n%d", i), "owner")
		if i > 0 {
			h.link(nodes[i-1], nodes[i])
		}
	}

	// The traversal uses an explicit work list, so a generous depth bound
	// costs heap, not native stack.
	fz, err := NewFreezer(WithMaxDepth(depth + 1))
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&nodes[0].node))

	for _, n := range nodes {
		require.True(t, n.node.IsFrozen())
	}
	for _, n := range nodes {
		n.node.Unref("owner")
	}
	require.Len(t, h.freed, depth)
}

func TestFreeze_AlreadyFrozenRootsIsNoop(t *testing.T) {
	h := &harness{}
	a := h.newNode("A", "owner")

	fz, err := NewFreezer()
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&a.node))
	group := a.node.group
	require.NoError(t, fz.Freeze(&a.node), "re-freezing frozen roots is trivially fine")
	require.Same(t, group, a.node.group)

	a.node.Unref("owner")
	h.freedOnce(t, "A")
}

func TestFreeze_PartialGroupFixup(t *testing.T) {
	h := &harness{}
	a := h.newNode("A", "owner")
	x := h.newNode("X", "owner")

	// X points at A: conservative merge puts both in one group, but only
	// A is reachable *from* A, so freezing A must leave X behind with a
	// consistent remainder group.
	h.link(x, a)
	require.Same(t, a.node.group, x.node.group)
	require.Equal(t, int32(2), a.node.group.Load())

	fz, err := NewFreezer()
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&a.node))

	require.True(t, a.node.IsFrozen())
	require.False(t, x.node.IsFrozen())
	require.NotSame(t, a.node.group, x.node.group)
	// A's seed: its owner ref plus X's in-edge, which the fixup converted
	// into a counted ref.
	require.Equal(t, int32(2), a.node.group.Load())
	require.Equal(t, int32(1), x.node.group.Load())
	require.Same(t, &x.node, x.node.next, "remainder ring must be relinked")
	requireGroupSum(t, x)

	x.node.Unref("owner")
	h.freedOnce(t, "X")
	require.Equal(t, int32(1), a.node.group.Load(), "X's death released its counted edge")
	a.node.Unref("owner")
	h.freedOnce(t, "X", "A")
}

func TestFreeze_SequentialFreezesKeepInEdgeCounted(t *testing.T) {
	h := &harness{}
	f := h.newNode("F", "ownerF")
	a := h.newNode("A", "ownerA")
	h.link(a, f)

	fz, err := NewFreezer()
	require.NoError(t, err)

	// The first freeze reaches only F; A stays mutable, but its edge into
	// F is seeded into F's precise count by the remainder fixup.
	require.NoError(t, fz.Freeze(&f.node))
	require.True(t, f.node.IsFrozen())
	require.False(t, a.node.IsFrozen())
	require.Equal(t, int32(2), f.node.group.Load())

	// Freezing A afterwards must not recount the edge.
	require.NoError(t, fz.Freeze(&a.node))
	require.Equal(t, int32(2), f.node.group.Load())

	a.node.Unref("ownerA")
	require.Equal(t, []string{"A"}, h.freed, "F's owner still holds a ref")
	require.Equal(t, int32(1), f.node.group.Load())

	f.node.Unref("ownerF")
	h.freedOnce(t, "A", "F")
}

func TestFreeze_MutableHolderDeathReleasesEdge(t *testing.T) {
	h := &harness{}
	f := h.newNode("F", "ownerF")
	a := h.newNode("A", "ownerA")
	h.link(a, f)

	fz, err := NewFreezer()
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&f.node))
	require.Equal(t, int32(2), f.node.group.Load())

	// A dies while still mutable; its counted edge into F must come back.
	a.node.Unref("ownerA")
	require.Equal(t, []string{"A"}, h.freed)
	require.Equal(t, int32(1), f.node.group.Load())

	f.node.Unref("ownerF")
	h.freedOnce(t, "A", "F")
}

func TestFreeze_ErrorLabelsDoNotClobberCallerSlice(t *testing.T) {
	h := &harness{}
	a := h.newNode("A", "owner")
	b := h.newNode("B", "owner")
	h.link(a, b)

	backing := []metrics.Label{
		LabelOwner.M("fz"),
		LabelOwner.M("sentinel"),
	}
	fz, err := NewFreezer(
		WithMaxDepth(1),
		WithFreezeMetricLabels(backing[:1]),
	)
	require.NoError(t, err)

	require.ErrorIs(t, fz.Freeze(&a.node), ErrFreezeDepthExceeded)
	require.Equal(t, LabelOwner.M("sentinel"), backing[1],
		"the failure counter must not append into the caller's slice")

	a.node.Unref("owner")
	b.node.Unref("owner")
	h.freedOnce(t, "A", "B")
}

func TestFreeze_FrozenConcurrentUnref(t *testing.T) {
	h := &harness{}
	a := h.newNode("A", "owner")

	const extra = 64
	for i := 0; i < extra; i++ {
		a.node.Ref(fmt.Sprintf("g%d", i))
	}

	fz, err := NewFreezer()
	require.NoError(t, err)
	require.NoError(t, fz.Freeze(&a.node))
	require.Equal(t, int32(extra+1), a.node.group.Load())

	var wg sync.WaitGroup
	for i := 0; i < extra; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.node.Unref(fmt.Sprintf("g%d", i))
		}(i)
	}
	wg.Wait()

	require.Empty(t, h.freed, "the owner ref must keep A alive")
	a.node.Unref("owner")
	h.freedOnce(t, "A")
}
