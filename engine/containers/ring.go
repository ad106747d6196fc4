package containers

import "errors"

// Ring is a fixed number of slots visited in a circle. Unlike a queue it never
// fills up: advancing past the last slot wraps around to the first one.
type Ring[T any] struct {
	data  []T
	index int
}

// Create a new Ring with size zero-valued slots
func NewRing[T any](size int) (*Ring[T], error) {
	if size <= 0 {
		return nil, errors.New("ring size must be positive")
	}
	return &Ring[T]{
		data: make([]T, size),
	}, nil
}

// Current returns a pointer to the slot under the cursor
func (r *Ring[T]) Current() *T {
	return &r.data[r.index]
}

// At returns a pointer to slot i
func (r *Ring[T]) At(i int) *T {
	return &r.data[i]
}

// Index returns the position of the cursor
func (r *Ring[T]) Index() int {
	return r.index
}

// Advance moves the cursor to the next slot and returns its position
func (r *Ring[T]) Advance() int {
	r.index = (r.index + 1) % len(r.data)
	return r.index
}

func (r *Ring[T]) Len() int {
	return len(r.data)
}

// Each calls fn for every slot in storage order
func (r *Ring[T]) Each(fn func(i int, slot *T)) {
	for i := range r.data {
		fn(i, &r.data[i])
	}
}
