package memory

// Ring is a bounded, append-only list. Once full, each Push evicts the oldest item.
type Ring[T any] struct {
	items    []T
	capacity int
}

// NewRing creates a ring seeded with items, keeping only the last capacity of them.
func NewRing[T any](capacity int, items ...T) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{capacity: capacity, items: make([]T, 0, capacity)}
	for _, item := range items {
		r.Push(item)
	}
	return r
}

// Push appends item, evicting from the front when over capacity.
func (r *Ring[T]) Push(item T) {
	r.items = append(r.items, item)
	if over := len(r.items) - r.capacity; over > 0 {
		r.items = append(r.items[:0:0], r.items[over:]...)
	}
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int { return len(r.items) }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return r.capacity }
