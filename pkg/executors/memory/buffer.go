package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultBufferCapacity = 50

// ConversationBuffer is an in-process ring of conversation turns per
// scope. Suited to single-worker deployments and tests; multi-worker
// deployments should use the Redis buffer instead.
type ConversationBuffer struct {
	mu       sync.RWMutex
	capacity int
	turns    map[string][]bufferedTurn
	now      func() time.Time
}

type bufferedTurn struct {
	record map[string]any
	at     time.Time
}

func NewConversationBuffer(capacity int) *ConversationBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}

	return &ConversationBuffer{
		capacity: capacity,
		turns:    make(map[string][]bufferedTurn),
		now:      time.Now,
	}
}

func (b *ConversationBuffer) Name() string { return "conversation_buffer" }

func (b *ConversationBuffer) Store(_ context.Context, scope string, record map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	turns := append(b.turns[scope], bufferedTurn{record: record, at: b.now()})
	if len(turns) > b.capacity {
		turns = turns[len(turns)-b.capacity:]
	}

	b.turns[scope] = turns

	return nil
}

func (b *ConversationBuffer) Retrieve(_ context.Context, scope string, limit int) ([]map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	turns := b.turns[scope]

	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}

	// Most recent first.
	records := make([]map[string]any, 0, limit)
	for i := len(turns) - 1; i >= len(turns)-limit; i-- {
		records = append(records, turns[i].record)
	}

	return records, nil
}

func (b *ConversationBuffer) GetContext(_ context.Context, scope string, limit int) ([]ContextItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	turns := b.turns[scope]

	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}

	items := make([]ContextItem, 0, limit)

	for i := len(turns) - 1; i >= len(turns)-limit; i-- {
		turn := turns[i]

		role, _ := turn.record["role"].(string)
		content, _ := turn.record["content"].(string)

		items = append(items, ContextItem{
			Source:         b.Name(),
			Kind:           "conversation",
			Content:        fmt.Sprintf("%s: %s", role, content),
			RelevanceScore: 0.5,
			Priority:       5,
			Timestamp:      turn.at,
		})
	}

	return items, nil
}
