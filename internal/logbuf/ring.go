// Package logbuf holds a bounded, concurrency-safe buffer of output lines.
package logbuf

import "sync"

// Capacities used by the panel. Full is the retained history, the others are the
// recent views served to API and overview consumers.
const (
	DefaultCapacity = 500
	APIView         = 100
	OverviewView    = 50
)

// Ring keeps the most recent lines up to a fixed capacity, evicting the oldest first.
// The zero value is not usable; create one with New.
type Ring struct {
	mu    sync.Mutex
	lines []string
	start int // index of the oldest line
	count int
}

// New returns a ring holding at most capacity lines. Non-positive capacities fall back
// to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest one when the ring is full.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	c := len(r.lines)
	if r.count < c {
		r.lines[(r.start+r.count)%c] = line
		r.count++
	} else {
		r.lines[r.start] = line
		r.start = (r.start + 1) % c
	}
	r.mu.Unlock()
}

// Tail returns up to n of the most recent lines, oldest first.
func (r *Ring) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return []string{}
	}
	c := len(r.lines)
	out := make([]string, n)
	first := r.start + r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.lines[(first+i)%c]
	}
	return out
}

// Lines returns a copy of every buffered line, oldest first.
func (r *Ring) Lines() []string { return r.Tail(r.Cap()) }

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Ring) Cap() int { return len(r.lines) }
