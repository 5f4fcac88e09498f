package hub

// ring is a bounded FIFO. Pushing onto a full ring evicts the oldest item.
// Not safe for concurrent use; the hub guards it.
type ring[T any] struct {
	items []T
	head  int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

// push appends v and reports whether an older item was evicted
func (r *ring[T]) push(v T) bool {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.head+r.size)%capacity] = v
		r.size++
		return false
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % capacity
	return true
}

// slice returns the retained items, oldest first
func (r *ring[T]) slice() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

func (r *ring[T]) len() int {
	return r.size
}
