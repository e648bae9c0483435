// ABOUTME: Bounded in-memory error tracker for server diagnostics.
// ABOUTME: Counts errors by code and keeps a ring of the most recent failures.

package mcperr

import (
	"sync"
	"time"
)

// recentCapacity bounds the ring of recent errors kept for diagnostics.
const recentCapacity = 50

// RecordedError is one entry in the tracker's recent-error ring.
type RecordedError struct {
	Time    time.Time `json:"time"`
	Code    int       `json:"code"`
	Name    string    `json:"name"`
	Message string    `json:"message"`
	Tool    string    `json:"tool,omitempty"`
}

// Tracker records error occurrences for the stats://server resource and the
// error_analysis tool. All methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	total  int64
	byCode map[int]int64
	recent []RecordedError
	next   int
	filled bool
	now    func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byCode: make(map[int]int64),
		recent: make([]RecordedError, recentCapacity),
		now:    time.Now,
	}
}

// Record registers an error occurrence. The tool name may be empty for
// failures outside tool execution.
func (t *Tracker) Record(code int, message, tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.byCode[code]++

	t.recent[t.next] = RecordedError{
		Time:    t.now().UTC(),
		Code:    code,
		Name:    CodeName(code),
		Message: message,
		Tool:    tool,
	}
	t.next++
	if t.next == len(t.recent) {
		t.next = 0
		t.filled = true
	}
}

// Total returns the number of errors recorded since startup.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// CountsByCode returns a copy of the per-code error counts.
func (t *Tracker) CountsByCode() map[int]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int]int64, len(t.byCode))
	for code, n := range t.byCode {
		out[code] = n
	}
	return out
}

// Recent returns recorded errors newest first, up to the ring capacity.
func (t *Tracker) Recent() []RecordedError {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.next
	if t.filled {
		size = len(t.recent)
	}

	out := make([]RecordedError, 0, size)
	for i := 0; i < size; i++ {
		idx := t.next - 1 - i
		if idx < 0 {
			idx += len(t.recent)
		}
		out = append(out, t.recent[idx])
	}
	return out
}

// Summary is the tracker snapshot surfaced in stats://server.
type Summary struct {
	Total   int64            `json:"total"`
	ByCode  map[string]int64 `json:"by_code"`
	Recent  int              `json:"recent_kept"`
	LastErr *RecordedError   `json:"last_error,omitempty"`
}

// Snapshot builds a Summary of the tracker state.
func (t *Tracker) Snapshot() Summary {
	recent := t.Recent()

	t.mu.Lock()
	defer t.mu.Unlock()

	byCode := make(map[string]int64, len(t.byCode))
	for code, n := range t.byCode {
		byCode[CodeName(code)] = n
	}

	s := Summary{
		Total:  t.total,
		ByCode: byCode,
		Recent: len(recent),
	}
	if len(recent) > 0 {
		s.LastErr = &recent[0]
	}
	return s
}
