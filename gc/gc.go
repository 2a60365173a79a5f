// Package gc implements the mark-sweep cycle detector layered on top of
// reference counting described in spec §4.8. Acyclic data is freed as soon
// as its reference count reaches zero; the sweep only concerns itself with
// values whose only surviving references are each other.
package gc

import (
	"sync"

	"github.com/naab-lang/naab/value"
	"go.uber.org/zap"
)

// Root is anything the mark phase can start a walk from. The evaluator
// passes the global environment and every module's root environment
// (spec §9); active call frames are not passed as roots.
type Root interface {
	Traverse(visit func(value.Value))
}

// DefaultThreshold is the default allocation count that triggers an
// automatic collection (spec §4.8).
const DefaultThreshold = 1000

// Heap is the process-wide store of Heapable objects. It is safe for
// concurrent use; in practice only the single evaluator goroutine mutates
// it, but the audit log and polyglot pool run on other goroutines and may
// read LiveCount for diagnostics.
type Heap struct {
	mu        sync.Mutex
	objects   map[uint64]value.Heapable
	allocated int
	threshold int
	disabled  bool
	log       *zap.Logger
}

func NewHeap(log *zap.Logger) *Heap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Heap{objects: map[uint64]value.Heapable{}, threshold: DefaultThreshold, log: log}
}

// SetThreshold overrides the allocation-count trigger (0 disables automatic
// triggering; Collect can still be called explicitly).
func (h *Heap) SetThreshold(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threshold = n
}

// Disable turns off automatic triggering entirely (spec §4.8: "may be
// disabled by configuration but is on by default").
func (h *Heap) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disabled = true
}

// Track registers a newly allocated Heapable object with the heap. It does
// not itself adjust the reference count; the first reference a caller stores
// (an environment binding, a container slot) is expected to call Retain.
func (h *Heap) Track(obj value.Heapable) {
	h.mu.Lock()
	h.objects[obj.ID()] = obj
	h.allocated++
	h.mu.Unlock()
}

// Retain increments the reference count of v if it is Heapable; a no-op for
// primitives, functions and block handles.
func (h *Heap) Retain(v value.Value) {
	if hv, ok := v.(value.Heapable); ok {
		hv.IncRef()
	}
}

// Release decrements the reference count of v if it is Heapable. When the
// count reaches zero the object is acyclic-freed immediately: it is removed
// from the heap and Release cascades to its former children. This is the
// ordinary reference-counting path; cycles never reach zero this way and
// are left for Collect.
func (h *Heap) Release(v value.Value) {
	hv, ok := v.(value.Heapable)
	if !ok {
		return
	}
	if hv.DecRef() > 0 {
		return
	}
	h.mu.Lock()
	delete(h.objects, hv.ID())
	h.mu.Unlock()
	hv.Clear(func(child value.Value) { h.Release(child) })
}

// MaybeCollect runs Collect if the allocation counter has crossed the
// configured threshold since the last collection.
func (h *Heap) MaybeCollect(roots ...Root) {
	h.mu.Lock()
	trigger := !h.disabled && h.threshold > 0 && h.allocated >= h.threshold
	h.mu.Unlock()
	if trigger {
		h.Collect(roots...)
	}
}

// Collect runs one mark-sweep pass (spec §4.8):
//  1. Mark: walk every root, accumulating reachable object ids.
//  2. Sweep: any tracked object not reached, whose ref count exceeds 1 (its
//     only remaining references are from other unreached objects), is a
//     cycle member.
//  3. Break: clear each cycle member's internal references; this drops the
//     ref counts of its children, which free normally through Release if
//     that brings them to zero.
func (h *Heap) Collect(roots ...Root) {
	reachable := map[uint64]bool{}
	var mark func(v value.Value)
	mark = func(v value.Value) {
		if v == nil {
			return
		}
		if hv, ok := v.(value.Heapable); ok {
			if reachable[hv.ID()] {
				return
			}
			reachable[hv.ID()] = true
		}
		v.Traverse(mark)
	}
	for _, r := range roots {
		r.Traverse(mark)
	}

	h.mu.Lock()
	var suspects []value.Heapable
	for id, obj := range h.objects {
		if reachable[id] {
			continue
		}
		if obj.RefCount() > 1 {
			suspects = append(suspects, obj)
		}
	}
	h.allocated = 0
	h.mu.Unlock()

	for _, obj := range suspects {
		h.mu.Lock()
		_, stillTracked := h.objects[obj.ID()]
		if stillTracked {
			delete(h.objects, obj.ID())
		}
		h.mu.Unlock()
		if !stillTracked {
			continue // freed by a sibling's Clear cascade already
		}
		obj.Clear(func(child value.Value) { h.Release(child) })
	}

	h.log.Debug("gc cycle collection complete",
		zap.Int("cycle_members_collected", len(suspects)),
		zap.Int("live_after", h.LiveCount()))
}

// LiveCount returns the number of objects currently tracked, exposed for
// tests exercising testable property 9 ("an exposed live-count counter").
func (h *Heap) LiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}
