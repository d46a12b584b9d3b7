package arena

import (
	"fmt"
	"unsafe"
)

// Slice is a growable, arena-accounted array of T. The element storage lives
// in ordinary Go memory, but its capacity is registered with the owning
// arena under the slice's category, so leak accounting and the high-water
// mark cover typed storage the same way they cover raw byte allocations.
//
// Growth is geometric (3/2), matching the arena's byte allocations.
type Slice[T any] struct {
	arena    *Arena
	handle   Handle
	category Category
	items    []T
}

// NewSlice creates an arena-accounted slice with the given initial capacity.
func NewSlice[T any](a *Arena, capacity int, category Category) *Slice[T] {
	if capacity < 0 {
		panic(fmt.Sprintf("arena: negative slice capacity %d (%s)", capacity, category))
	}

	s := &Slice[T]{
		arena:    a,
		category: category,
		items:    make([]T, 0, capacity),
	}

	alloc := &allocation{category: category, size: s.footprint()}
	s.handle = a.track(alloc)

	return s
}

// Len returns the number of elements.
func (s *Slice[T]) Len() int {
	return len(s.items)
}

// Cap returns the current capacity.
func (s *Slice[T]) Cap() int {
	return cap(s.items)
}

// Items returns the live element window. The slice is invalidated by the
// next Append that grows capacity; callers must not retain it across growth.
func (s *Slice[T]) Items() []T {
	return s.items
}

// At returns a pointer to the i-th element. The pointer is invalidated by
// capacity growth, same as Items.
func (s *Slice[T]) At(i int) *T {
	return &s.items[i]
}

// Append adds one element and returns its index.
func (s *Slice[T]) Append(value T) int {
	if len(s.items) == cap(s.items) {
		s.grow(len(s.items) + 1)
	}

	s.items = append(s.items, value)

	return len(s.items) - 1
}

// Extend appends all given elements.
func (s *Slice[T]) Extend(values []T) {
	if needed := len(s.items) + len(values); needed > cap(s.items) {
		s.grow(needed)
	}

	s.items = append(s.items, values...)
}

// Truncate shrinks the element count to n without releasing capacity.
func (s *Slice[T]) Truncate(n int) {
	if n < 0 || n > len(s.items) {
		panic(fmt.Sprintf("arena: truncate %d out of range [0,%d]", n, len(s.items)))
	}

	s.items = s.items[:n]
}

// Reset empties the slice, keeping its capacity for reuse.
func (s *Slice[T]) Reset() {
	s.items = s.items[:0]
}

// Release returns the slice's accounted bytes to the arena. The slice must
// not be used afterwards.
func (s *Slice[T]) Release() {
	s.arena.Release(s.handle)
	s.items = nil
}

func (s *Slice[T]) grow(needed int) {
	capSize := cap(s.items) * growNumerator / growDenominator
	if capSize < needed {
		capSize = needed
	}

	grown := make([]T, len(s.items), capSize)
	copy(grown, s.items)
	s.items = grown

	alloc := s.arena.lookup(s.handle)
	s.arena.account(s.category, s.footprint()-alloc.size, 0)
	alloc.size = s.footprint()
}

func (s *Slice[T]) footprint() int64 {
	var probe T

	return int64(cap(s.items)) * int64(unsafe.Sizeof(probe))
}

// AllocSlice reserves a fixed-length typed allocation, accounted under the
// given category, and returns both the tracking handle and the storage. The
// storage stays valid until the handle is released.
func AllocSlice[T any](a *Arena, n int, category Category) (Handle, []T) {
	if n < 0 {
		panic(fmt.Sprintf("arena: negative typed allocation length %d (%s)", n, category))
	}

	a.checkCategory(category)

	var probe T

	items := make([]T, n)
	alloc := &allocation{category: category, size: int64(n) * int64(unsafe.Sizeof(probe))}

	return a.track(alloc), items
}
