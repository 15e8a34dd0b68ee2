package buffer

// Ring is a fixed capacity ring of float64 samples.
// Once full, new samples overwrite the oldest ones.
type Ring struct {
	values []float64
	next   int
	full   bool
}

// NewRing creates a new ring with the given capacity.
func NewRing(capacity int) *Ring {
	return &Ring{
		values: make([]float64, capacity),
	}
}

// Push adds a sample to the ring.
func (r *Ring) Push(v float64) {
	if len(r.values) == 0 {
		return
	}
	r.values[r.next] = v
	r.next++
	if r.next == len(r.values) {
		r.next = 0
		r.full = true
	}
}

// Size returns the number of samples currently held.
func (r *Ring) Size() int {
	if r.full {
		return len(r.values)
	}
	return r.next
}

// Get returns the held samples ordered oldest to newest.
func (r *Ring) Get() []float64 {
	out := make([]float64, 0, r.Size())
	if r.full {
		out = append(out, r.values[r.next:]...)
	}
	out = append(out, r.values[:r.next]...)
	return out
}
