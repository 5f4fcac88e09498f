package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeadLetterQueue_EvictsOldest(t *testing.T) {
	q := newDeadLetterQueue(3)
	for i := 0; i < 5; i++ {
		q.add(DeadLetter{Reason: fmt.Sprintf("r%d", i)})
	}

	got := q.recent(0)
	reasons := make([]string, len(got))
	for i, dl := range got {
		reasons[i] = dl.Reason
	}
	assert.Equal(t, []string{"r2", "r3", "r4"}, reasons)
	assert.Equal(t, int64(5), q.total())

	last := q.recent(2)
	assert.Equal(t, "r3", last[0].Reason)
	assert.Equal(t, "r4", last[1].Reason)
}

func TestDeadLetterQueue_DefaultCap(t *testing.T) {
	q := newDeadLetterQueue(0)
	assert.Equal(t, defaultDeadLetterCap, q.maxSize)
	assert.Empty(t, q.recent(10))
}
