// Package reflist implements an append-only ordered collection with
// shared-ownership handles to its entries, the substrate the graph package
// builds its reference-tracking module representation on.
package reflist

import "sort"

// origin is either "attached at index i" or "detached" (removed by a
// deletion transaction). Detached handles remain readable but carry no
// order.
type origin struct {
	index    int
	detached bool
}

// entry is the shared cell a Ref points to. Multiple Refs may point to the
// same entry; mutating through one is visible through all of them.
type entry[T any] struct {
	val T
	pos origin
}

// Ref is a shared handle to one entry of a List. It is comparable by
// identity (two Refs obtained from the same Push/Get share the same
// pointer) and stays valid after deletions elsewhere in the list: its Order
// updates in place, or reports Detached if its own entry was removed.
type Ref[T any] struct {
	e *entry[T]
}

// Get reads the current value.
func (r Ref[T]) Get() T { return r.e.val }

// Set overwrites the current value in place; every other Ref sharing this
// entry observes the new value.
func (r Ref[T]) Set(v T) { r.e.val = v }

// Order returns the entry's current position and whether it is still
// attached. A detached handle (ok == false) must not be used to produce an
// index: doing so is the "programming error" case the graph package's
// emission step guards against.
func (r Ref[T]) Order() (index int, ok bool) {
	if r.e.pos.detached {
		return 0, false
	}
	return r.e.pos.index, true
}

// List is a reference list: push-only except for batched, order-preserving
// deletion.
type List[T any] struct {
	items []*entry[T]
}

// New returns an empty list.
func New[T any]() *List[T] { return &List[T]{} }

// FromSlice builds a list whose entries are the given values, in order.
func FromSlice[T any](vals []T) *List[T] {
	l := &List[T]{}
	for _, v := range vals {
		l.Push(v)
	}
	return l
}

// Push appends v and returns a handle to it.
func (l *List[T]) Push(v T) Ref[T] {
	e := &entry[T]{val: v, pos: origin{index: len(l.items)}}
	l.items = append(l.items, e)
	return Ref[T]{e: e}
}

// Get returns a handle to the entry currently at index i, or the zero Ref
// and false if i is out of range.
func (l *List[T]) Get(i int) (Ref[T], bool) {
	if i < 0 || i >= len(l.items) {
		return Ref[T]{}, false
	}
	return Ref[T]{e: l.items[i]}, true
}

// Len returns the number of attached entries.
func (l *List[T]) Len() int { return len(l.items) }

// Values returns the attached entries' values in order. The returned slice
// is a fresh copy.
func (l *List[T]) Values() []T {
	out := make([]T, len(l.items))
	for i, e := range l.items {
		out[i] = e.val
	}
	return out
}

// Refs returns a handle to every attached entry, in order.
func (l *List[T]) Refs() []Ref[T] {
	out := make([]Ref[T], len(l.items))
	for i, e := range l.items {
		out[i] = Ref[T]{e: e}
	}
	return out
}

// Delete removes the entries at the given indices in one transaction.
// Indices must be distinct; they need not be pre-sorted. Every surviving
// entry's stored index is decremented by the number of deletion indices
// strictly less than its current position, so the survivors remain densely
// packed in [0, Len()). Handles to deleted entries become detached: Order
// reports ok == false from this point on, but Get still returns their last
// value.
func (l *List[T]) Delete(indices []int) {
	if len(indices) == 0 {
		return
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	toDelete := make(map[int]bool, len(sorted))
	for _, idx := range sorted {
		toDelete[idx] = true
	}

	kept := make([]*entry[T], 0, len(l.items)-len(sorted))
	for i, e := range l.items {
		if toDelete[i] {
			e.pos = origin{detached: true}
			continue
		}
		dec := 0
		for _, d := range sorted {
			if d < i {
				dec++
			} else {
				break
			}
		}
		e.pos = origin{index: i - dec}
		kept = append(kept, e)
	}
	l.items = kept
}

// DeleteOne removes a single index; a convenience wrapper over Delete.
func (l *List[T]) DeleteOne(i int) { l.Delete([]int{i}) }
