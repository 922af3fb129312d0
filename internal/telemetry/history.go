package telemetry

import "sync"

// HistorySize is the number of CPU load samples kept for the graph.
const HistorySize = 60

// History is a fixed-size window of the most recent samples.
// It starts filled with zeros so the graph always spans the full width.
type History struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

// NewHistory returns a zero-filled history of size samples.
func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{samples: make([]float64, size)}
}

// Push appends v, evicting the oldest sample when full.
func (h *History) Push(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = v
	h.next = (h.next + 1) % len(h.samples)
}

// Values returns the samples oldest first.
func (h *History) Values() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]float64, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	out = append(out, h.samples[:h.next]...)
	return out
}

// Cap returns the window size.
func (h *History) Cap() int {
	return len(h.samples)
}
