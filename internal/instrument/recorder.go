package instrument

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op is one recorded engine operation.
type Op struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Action   string        `json:"action"`
	RecordID int64         `json:"record_id,omitempty"`
	Changed  []string      `json:"changed,omitempty"`
	Took     time.Duration `json:"took_ns"`
	Err      string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

// Recorder keeps the most recent operations in a fixed-size ring. A nil
// Recorder is valid and records nothing, so callers never need to branch on
// whether instrumentation is enabled.
type Recorder struct {
	mu   sync.Mutex
	ops  []Op
	next int
	full bool
}

// NewRecorder creates a recorder holding up to size operations.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 256
	}
	return &Recorder{ops: make([]Op, size)}
}

// Record stores one operation, evicting the oldest once the ring is full.
// Ops without an ID are assigned one.
func (r *Recorder) Record(op Op) {
	if r == nil {
		return
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.At.IsZero() {
		op.At = time.Now()
	}
	r.mu.Lock()
	r.ops[r.next] = op
	r.next++
	if r.next == len(r.ops) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Recent returns up to n operations, newest first.
func (r *Recorder) Recent(n int) []Op {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.ops)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Op, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.ops)) % len(r.ops)
		out = append(out, r.ops[idx])
	}
	return out
}

// Len reports how many operations the ring currently holds.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.ops)
	}
	return r.next
}
