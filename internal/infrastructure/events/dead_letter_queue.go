package events

import (
	"sync"
	"time"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
)

const defaultDeadLetterCap = 256

// DeadLetter is an envelope whose handler failed or panicked. The bus never
// redelivers; dead letters exist for inspection only.
type DeadLetter struct {
	Subscriber string          `json:"subscriber"`
	Envelope   stream.Envelope `json:"envelope"`
	Reason     string          `json:"reason"`
	Panicked   bool            `json:"panicked"`
	FailedAt   time.Time       `json:"failed_at"`
}

// deadLetterQueue keeps the most recent failures, oldest evicted first
type deadLetterQueue struct {
	mu         sync.Mutex
	maxSize    int
	items      []DeadLetter
	totalAdded int64
}

func newDeadLetterQueue(maxSize int) *deadLetterQueue {
	if maxSize <= 0 {
		maxSize = defaultDeadLetterCap
	}
	return &deadLetterQueue{maxSize: maxSize}
}

func (q *deadLetterQueue) add(dl DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, dl)
	q.totalAdded++
}

// recent returns up to limit entries, newest last. limit <= 0 returns all.
func (q *deadLetterQueue) recent(limit int) []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	if limit > 0 && limit < len(items) {
		items = items[len(items)-limit:]
	}
	return append([]DeadLetter(nil), items...)
}

func (q *deadLetterQueue) total() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalAdded
}
