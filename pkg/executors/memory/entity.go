package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EntityStore keeps keyed facts about entities (users, accounts,
// preferences) per scope. Records carry their own name; storing a
// record with an existing name replaces it.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[string]map[string]entityRecord
	now      func() time.Time
}

type entityRecord struct {
	record map[string]any
	at     time.Time
}

func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities: make(map[string]map[string]entityRecord),
		now:      time.Now,
	}
}

func (s *EntityStore) Name() string { return "entity_store" }

func (s *EntityStore) Store(_ context.Context, scope string, record map[string]any) error {
	name, ok := record["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("entity record requires a 'name' field")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entities[scope] == nil {
		s.entities[scope] = make(map[string]entityRecord)
	}

	s.entities[scope][name] = entityRecord{record: record, at: s.now()}

	return nil
}

func (s *EntityStore) Retrieve(_ context.Context, scope string, limit int) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]map[string]any, 0, len(s.entities[scope]))
	for _, entity := range s.entities[scope] {
		records = append(records, entity.record)

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func (s *EntityStore) GetContext(_ context.Context, scope string, limit int) ([]ContextItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ContextItem, 0, len(s.entities[scope]))

	for name, entity := range s.entities[scope] {
		value, _ := entity.record["value"].(string)

		score := 0.6
		if raw, ok := entity.record["relevance_score"].(float64); ok {
			score = raw
		}

		items = append(items, ContextItem{
			Source:         s.Name(),
			Kind:           "entity",
			Content:        fmt.Sprintf("%s: %s", name, value),
			RelevanceScore: score,
			Priority:       6,
			Timestamp:      entity.at,
		})

		if limit > 0 && len(items) >= limit {
			break
		}
	}

	return items, nil
}
