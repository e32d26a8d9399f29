package refstream

import "sync/atomic"

// staticGroup is shared by every compiled-in object. It is seeded with one
// ref owned by the package itself so it can never reach zero, which is what
// makes statics immortal.
var staticGroup = func() *atomic.Int32 {
	g := new(atomic.Int32)
	g.Store(1)
	return g
}()

// InitStatic declares r as a compiled-in, permanently frozen object.
// Statics accept Ref/Unref like any frozen object but are never collected.
func (r *RefCounted) InitStatic(vtbl Vtbl) {
	r.group = staticGroup
	r.next = r
	r.vtbl = vtbl
	r.individualCount = 0
	r.frozen = true
	r.tracker = nil
}
