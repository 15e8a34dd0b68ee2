package buffer

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const tradingDays = 252

// History keeps bounded per-symbol log return series and derives
// volatility and correlation estimates from them.
// All estimates are annualised assuming daily sampling.
type History struct {
	lock     sync.RWMutex
	capacity int
	returns  map[string]*Ring
	last     map[string]float64
}

// NewHistory creates a new history with the given per-symbol capacity.
func NewHistory(capacity int) *History {
	return &History{
		capacity: capacity,
		returns:  make(map[string]*Ring),
		last:     make(map[string]float64),
	}
}

// Push records the latest price for the symbol, converting consecutive
// prices to log returns.
func (h *History) Push(symbol string, price float64) {
	if price <= 0 {
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if prev, ok := h.last[symbol]; ok && prev > 0 {
		ring, ok := h.returns[symbol]
		if !ok {
			ring = NewRing(h.capacity)
			h.returns[symbol] = ring
		}
		ring.Push(math.Log(price / prev))
	}
	h.last[symbol] = price
}

// Volatility returns the annualised volatility estimate for the symbol
// and whether enough samples were available to compute one.
func (h *History) Volatility(symbol string) (float64, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	ring, ok := h.returns[symbol]
	if !ok || ring.Size() < 2 {
		return 0, false
	}
	rr := ring.Get()
	return stat.StdDev(rr, nil) * math.Sqrt(tradingDays), true
}

// Correlation returns the return correlation of the two symbols and
// whether enough overlapping samples were available.
func (h *History) Correlation(a, b string) (float64, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	ra, ok := h.returns[a]
	if !ok {
		return 0, false
	}
	rb, ok := h.returns[b]
	if !ok {
		return 0, false
	}
	va, vb := ra.Get(), rb.Get()
	n := len(va)
	if len(vb) < n {
		n = len(vb)
	}
	if n < 2 {
		return 0, false
	}
	// align on the most recent n samples
	va = va[len(va)-n:]
	vb = vb[len(vb)-n:]
	c := stat.Correlation(va, vb, nil)
	if math.IsNaN(c) {
		return 0, false
	}
	return c, true
}

// Symbols returns the symbols with at least one recorded return.
func (h *History) Symbols() []string {
	h.lock.RLock()
	defer h.lock.RUnlock()
	out := make([]string, 0, len(h.returns))
	for s := range h.returns {
		out = append(out, s)
	}
	return out
}
