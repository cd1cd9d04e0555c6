package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Merge strategies for combining context from multiple memory sources.
const (
	StrategyPriority          = "priority"
	StrategyBalanced          = "balanced"
	StrategyConversationFirst = "conversation_first"
)

const defaultTokenBudget = 2000

// ContextItem is one scored piece of retrievable context.
type ContextItem struct {
	Source         string    `json:"source"`
	Kind           string    `json:"kind"` // conversation, entity, knowledge
	Content        string    `json:"content"`
	RelevanceScore float64   `json:"relevance_score"`
	Priority       int       `json:"priority"`
	Timestamp      time.Time `json:"timestamp"`
}

// MergedContext is the merger output handed to AI agent nodes. Sources
// and token estimate are recorded for auditability.
type MergedContext struct {
	Content         string   `json:"content"`
	Sources         []string `json:"sources"`
	EstimatedTokens int      `json:"estimated_tokens"`
	Strategy        string   `json:"strategy"`
}

// MergeConfig controls strategy selection and the token budget.
type MergeConfig struct {
	Strategy    string
	TokenBudget int
}

// EstimateTokens approximates token count at four characters per token,
// the standard heuristic for budget enforcement without a tokenizer.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}

	return len(content)/4 + 1
}

// MergeContexts orders items by the configured strategy and greedily
// includes them until the token budget is exhausted. An item that does
// not fit is skipped so later smaller items may still be included, with
// one floor: when nothing fits at all, the top-ranked item is truncated
// to the budget so the merge never returns empty context while input
// context exists.
func MergeContexts(items []ContextItem, cfg MergeConfig) MergedContext {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyBalanced
	}

	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = defaultTokenBudget
	}

	ordered := orderByStrategy(items, strategy)

	var (
		parts   []string
		sources []string
		used    int
	)

	for _, item := range ordered {
		tokens := EstimateTokens(item.Content)
		if used+tokens > budget {
			continue
		}

		parts = append(parts, fmt.Sprintf("[%s] %s", item.Source, item.Content))
		sources = append(sources, item.Source)
		used += tokens
	}

	if len(parts) == 0 && len(ordered) > 0 {
		top := ordered[0]
		content := truncateToBudget(top.Content, budget)

		parts = append(parts, fmt.Sprintf("[%s] %s", top.Source, content))
		sources = append(sources, top.Source)
		used = EstimateTokens(content)
	}

	return MergedContext{
		Content:         strings.Join(parts, "\n\n"),
		Sources:         sources,
		EstimatedTokens: used,
		Strategy:        strategy,
	}
}

// truncateToBudget cuts content so its token estimate stays within the
// budget, using the inverse of the four-characters-per-token heuristic.
func truncateToBudget(content string, budget int) string {
	limit := budget*4 - 4
	if limit < 1 {
		limit = 1
	}

	if len(content) <= limit {
		return content
	}

	return content[:limit]
}

// ItemsFromOutput decodes context items from a memory node's output map.
// Handles both in-process item maps and JSON round-tripped copies loaded
// from persisted run data.
func ItemsFromOutput(output map[string]any) []ContextItem {
	raw, ok := output["context_items"].([]any)
	if !ok {
		return nil
	}

	items := make([]ContextItem, 0, len(raw))

	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		item := ContextItem{}
		item.Source, _ = m["source"].(string)
		item.Kind, _ = m["kind"].(string)
		item.Content, _ = m["content"].(string)

		if score, ok := m["relevance_score"].(float64); ok {
			item.RelevanceScore = score
		}

		switch p := m["priority"].(type) {
		case int:
			item.Priority = p
		case float64:
			item.Priority = int(p)
		}

		switch ts := m["timestamp"].(type) {
		case time.Time:
			item.Timestamp = ts
		case string:
			item.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		}

		items = append(items, item)
	}

	return items
}

func orderByStrategy(items []ContextItem, strategy string) []ContextItem {
	ordered := make([]ContextItem, len(items))
	copy(ordered, items)

	switch strategy {
	case StrategyPriority:
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Priority != ordered[j].Priority {
				return ordered[i].Priority > ordered[j].Priority
			}

			return ordered[i].RelevanceScore > ordered[j].RelevanceScore
		})

	case StrategyConversationFirst:
		sort.SliceStable(ordered, func(i, j int) bool {
			iConv := ordered[i].Kind == "conversation"
			jConv := ordered[j].Kind == "conversation"

			if iConv != jConv {
				return iConv
			}

			if iConv {
				// Most recent turns first.
				return ordered[i].Timestamp.After(ordered[j].Timestamp)
			}

			return weightedScore(ordered[i]) > weightedScore(ordered[j])
		})

	default: // balanced
		sort.SliceStable(ordered, func(i, j int) bool {
			return weightedScore(ordered[i]) > weightedScore(ordered[j])
		})
	}

	return ordered
}

// weightedScore blends relevance with priority. Priority is normalized
// assuming the conventional 0-10 range.
func weightedScore(item ContextItem) float64 {
	priority := float64(item.Priority) / 10.0
	if priority > 1 {
		priority = 1
	}

	return item.RelevanceScore*0.7 + priority*0.3
}
