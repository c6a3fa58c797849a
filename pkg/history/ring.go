package history

// Ring is a fixed-capacity buffer that keeps the most recent values.
// It is a plain data structure; callers own synchronization.
type Ring[T any] struct {
	buf   []T
	start int
	count int
}

// NewRing creates a ring holding at most capacity values.
// A non-positive capacity is treated as 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append records a value, evicting the oldest when full
func (r *Ring[T]) Append(value T) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = value
		r.count++
		return
	}
	r.buf[r.start] = value
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored values
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Items returns stored values oldest-first as a fresh slice
func (r *Ring[T]) Items() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Last returns up to n most recent values, oldest-first
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]T, n)
	offset := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// Latest returns the most recently appended value, if any
func (r *Ring[T]) Latest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}
