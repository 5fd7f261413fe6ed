package backtest

// rolling keeps the last size values pushed, oldest first.
type rolling[T any] struct {
	size int
	vals []T
}

func newRolling[T any](size int) *rolling[T] {
	return &rolling[T]{size: size, vals: make([]T, 0, size)}
}

func (r *rolling[T]) push(v T) {
	if len(r.vals) == r.size {
		copy(r.vals, r.vals[1:])
		r.vals = r.vals[:r.size-1]
	}
	r.vals = append(r.vals, v)
}

func (r *rolling[T]) full() bool { return len(r.vals) == r.size }

// values returns a copy safe to keep after the next push.
func (r *rolling[T]) values() []T {
	out := make([]T, len(r.vals))
	copy(out, r.vals)
	return out
}
