package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(source, kind, content string, score float64, priority int, age time.Duration) ContextItem {
	return ContextItem{
		Source:         source,
		Kind:           kind,
		Content:        content,
		RelevanceScore: score,
		Priority:       priority,
		Timestamp:      time.Now().Add(-age),
	}
}

func TestMergeContexts_PriorityStrategy(t *testing.T) {
	items := []ContextItem{
		item("kb", "knowledge", "low priority fact", 0.9, 2, time.Hour),
		item("entities", "entity", "high priority fact", 0.1, 9, time.Hour),
	}

	merged := MergeContexts(items, MergeConfig{Strategy: StrategyPriority, TokenBudget: 1000})

	require.Len(t, merged.Sources, 2)
	assert.Equal(t, "entities", merged.Sources[0])
	assert.True(t, strings.Index(merged.Content, "high priority fact") < strings.Index(merged.Content, "low priority fact"))
}

func TestMergeContexts_BalancedStrategy(t *testing.T) {
	items := []ContextItem{
		item("a", "knowledge", "barely relevant", 0.1, 1, time.Hour),
		item("b", "knowledge", "highly relevant", 0.95, 5, time.Hour),
	}

	merged := MergeContexts(items, MergeConfig{Strategy: StrategyBalanced, TokenBudget: 1000})

	require.Len(t, merged.Sources, 2)
	assert.Equal(t, "b", merged.Sources[0])
}

func TestMergeContexts_ConversationFirst(t *testing.T) {
	items := []ContextItem{
		item("kb", "knowledge", "a very relevant document", 0.99, 9, time.Hour),
		item("buffer", "conversation", "user: older turn", 0.3, 5, 10*time.Minute),
		item("buffer", "conversation", "user: newest turn", 0.3, 5, time.Minute),
	}

	merged := MergeContexts(items, MergeConfig{Strategy: StrategyConversationFirst, TokenBudget: 1000})

	require.Len(t, merged.Sources, 3)
	assert.True(t, strings.Index(merged.Content, "newest turn") < strings.Index(merged.Content, "older turn"))
	assert.True(t, strings.Index(merged.Content, "older turn") < strings.Index(merged.Content, "relevant document"))
}

func TestMergeContexts_RespectsTokenBudget(t *testing.T) {
	big := strings.Repeat("x", 400) // ~101 tokens

	items := []ContextItem{
		item("a", "knowledge", big, 0.9, 5, time.Hour),
		item("b", "knowledge", big, 0.8, 5, time.Hour),
		item("c", "knowledge", big, 0.7, 5, time.Hour),
		item("d", "knowledge", "tiny", 0.1, 5, time.Hour),
	}

	budget := 220
	merged := MergeContexts(items, MergeConfig{Strategy: StrategyBalanced, TokenBudget: budget})

	assert.LessOrEqual(t, merged.EstimatedTokens, int(float64(budget)*1.1))

	// Two large items fit; the third is skipped but the tiny one after
	// it still fits.
	assert.Contains(t, merged.Sources, "a")
	assert.Contains(t, merged.Sources, "b")
	assert.NotContains(t, merged.Sources, "c")
	assert.Contains(t, merged.Sources, "d")
}

func TestMergeContexts_OversizedTopItemIsTruncated(t *testing.T) {
	huge := strings.Repeat("y", 4000)
	budget := 100

	for _, strategy := range []string{StrategyPriority, StrategyBalanced, StrategyConversationFirst} {
		t.Run(strategy, func(t *testing.T) {
			merged := MergeContexts(
				[]ContextItem{item("kb", "knowledge", huge, 0.9, 5, time.Hour)},
				MergeConfig{Strategy: strategy, TokenBudget: budget},
			)

			require.Len(t, merged.Sources, 1)
			assert.Equal(t, "kb", merged.Sources[0])
			assert.LessOrEqual(t, merged.EstimatedTokens, int(float64(budget)*1.1))
			assert.Contains(t, merged.Content, "[kb]")
		})
	}
}

func TestMergeContexts_RecordsAuditFields(t *testing.T) {
	items := []ContextItem{
		item("buffer", "conversation", "user: hello", 0.5, 5, time.Minute),
	}

	merged := MergeContexts(items, MergeConfig{Strategy: StrategyPriority, TokenBudget: 100})

	assert.Equal(t, StrategyPriority, merged.Strategy)
	assert.Equal(t, []string{"buffer"}, merged.Sources)
	assert.Positive(t, merged.EstimatedTokens)
	assert.Contains(t, merged.Content, "[buffer]")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 26, EstimateTokens(strings.Repeat("a", 100)))
}

func TestItemsFromOutput_RoundTrip(t *testing.T) {
	output := map[string]any{
		"context_items": []any{
			map[string]any{
				"source":          "entity_store",
				"kind":            "entity",
				"content":         "plan: enterprise",
				"relevance_score": 0.8,
				"priority":        float64(7), // json numbers decode as float64
				"timestamp":       "2026-08-01T10:00:00Z",
			},
		},
	}

	items := ItemsFromOutput(output)

	require.Len(t, items, 1)
	assert.Equal(t, "entity_store", items[0].Source)
	assert.Equal(t, 7, items[0].Priority)
	assert.InDelta(t, 0.8, items[0].RelevanceScore, 0.001)
	assert.Equal(t, 2026, items[0].Timestamp.Year())
}

func TestItemsFromOutput_NoItems(t *testing.T) {
	assert.Nil(t, ItemsFromOutput(map[string]any{"records": []any{}}))
}
