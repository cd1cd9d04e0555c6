package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBufferTTL = 24 * time.Hour

// RedisConversationBuffer keeps conversation turns in a Redis list per
// scope so multiple workers share the same memory. Turns expire with
// the scope key after a day of inactivity.
type RedisConversationBuffer struct {
	client   *redis.Client
	capacity int
}

func NewRedisConversationBuffer(client *redis.Client, capacity int) *RedisConversationBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}

	return &RedisConversationBuffer{client: client, capacity: capacity}
}

func (b *RedisConversationBuffer) Name() string { return "redis_conversation_buffer" }

func (b *RedisConversationBuffer) key(scope string) string {
	return "strand:memory:conversation:" + scope
}

func (b *RedisConversationBuffer) Store(ctx context.Context, scope string, record map[string]any) error {
	payload := map[string]any{
		"record":    record,
		"stored_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode conversation turn: %w", err)
	}

	key := b.key(scope)

	pipe := b.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(b.capacity-1))
	pipe.Expire(ctx, key, redisBufferTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store conversation turn: %w", err)
	}

	return nil
}

func (b *RedisConversationBuffer) Retrieve(ctx context.Context, scope string, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > b.capacity {
		limit = b.capacity
	}

	raw, err := b.client.LRange(ctx, b.key(scope), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation turns: %w", err)
	}

	records := make([]map[string]any, 0, len(raw))

	for _, entry := range raw {
		record, _, err := decodeTurn(entry)
		if err != nil {
			continue // skip corrupt entries rather than failing the read
		}

		records = append(records, record)
	}

	return records, nil
}

func (b *RedisConversationBuffer) GetContext(ctx context.Context, scope string, limit int) ([]ContextItem, error) {
	if limit <= 0 || limit > b.capacity {
		limit = b.capacity
	}

	raw, err := b.client.LRange(ctx, b.key(scope), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation turns: %w", err)
	}

	items := make([]ContextItem, 0, len(raw))

	for _, entry := range raw {
		record, storedAt, err := decodeTurn(entry)
		if err != nil {
			continue
		}

		role, _ := record["role"].(string)
		content, _ := record["content"].(string)

		items = append(items, ContextItem{
			Source:         b.Name(),
			Kind:           "conversation",
			Content:        fmt.Sprintf("%s: %s", role, content),
			RelevanceScore: 0.5,
			Priority:       5,
			Timestamp:      storedAt,
		})
	}

	return items, nil
}

func decodeTurn(entry string) (map[string]any, time.Time, error) {
	var payload struct {
		Record   map[string]any `json:"record"`
		StoredAt string         `json:"stored_at"`
	}

	if err := json.Unmarshal([]byte(entry), &payload); err != nil {
		return nil, time.Time{}, err
	}

	storedAt, _ := time.Parse(time.RFC3339Nano, payload.StoredAt)

	return payload.Record, storedAt, nil
}
