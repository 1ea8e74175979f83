package analysis

import "sync"

// History keeps the reports produced during this session, oldest first.
type History struct {
	mu      sync.RWMutex
	reports []Report
}

// Add appends r.
func (h *History) Add(r Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
}

// Latest returns the most recent report.
func (h *History) Latest() (Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.reports) == 0 {
		return Report{}, false
	}
	return h.reports[len(h.reports)-1], true
}

// All returns a copy of every report in insertion order.
func (h *History) All() []Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Report, len(h.reports))
	copy(out, h.reports)
	return out
}

// Len returns the number of stored reports.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.reports)
}
