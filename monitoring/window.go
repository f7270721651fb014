package monitoring

// window keeps the last cap values appended to it.
type window[T any] struct {
	buf   []T
	start int
	n     int
}

func newWindow[T any](capacity int) *window[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &window[T]{buf: make([]T, capacity)}
}

func (w *window[T]) push(v T) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

func (w *window[T]) len() int {
	return w.n
}

// values returns the contents oldest first.
func (w *window[T]) values() []T {
	out := make([]T, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
