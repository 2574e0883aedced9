package stats

import "math"

// Window is a fixed-capacity FIFO of observations. Once full, each Push
// evicts the oldest value.
type Window struct {
	buf   []float64
	start int
	size  int
}

// NewWindow allocates a window holding at most capacity values.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends x, evicting the oldest value when the window is full.
func (w *Window) Push(x float64) {
	c := len(w.buf)
	if w.size < c {
		w.buf[(w.start+w.size)%c] = x
		w.size++
		return
	}
	w.buf[w.start] = x
	w.start = (w.start + 1) % c
}

// Len is the number of values currently held.
func (w *Window) Len() int { return w.size }

// Cap is the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Full reports whether the window holds Cap values.
func (w *Window) Full() bool { return w.size == len(w.buf) }

// Values returns the held values oldest first. The slice is a copy.
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Ago returns the value k steps back (0 is the latest), or NaN when the
// window does not reach that far.
func (w *Window) Ago(k int) float64 {
	if k < 0 || k >= w.size {
		return math.NaN()
	}
	return w.buf[(w.start+w.size-1-k)%len(w.buf)]
}

// Std is the rolling standard deviation, NaN unless the window is full and
// free of NaN. This mirrors a rolling window whose minimum period count
// equals its length.
func (w *Window) Std(ddof int) float64 {
	if !w.Full() {
		return math.NaN()
	}
	vals := w.Values()
	if AnyNaN(vals) {
		return math.NaN()
	}
	return Std(vals, ddof)
}

// Reset empties the window.
func (w *Window) Reset() {
	w.start, w.size = 0, 0
}
