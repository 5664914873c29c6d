package analyze

import (
	"fmt"
	"sort"
	"strings"

	"github.com/redhist/redhist/pkg/model"
)

const (
	maxTitleRunes       = 80
	maxPostBodyRunes    = 150
	maxCommentBodyRunes = 200

	// Rough approximation: 1 token is about 4 bytes of text.
	bytesPerToken = 4

	// headerTokens is reserved per chunk for the corpus header line.
	headerTokens = 50

	// singleRequestTokenBudget is the estimated-token bound under which the
	// whole corpus is sent in one request.
	singleRequestTokenBudget = 80000

	// chunkTokenBudget bounds each chunk when the corpus must be split.
	chunkTokenBudget = 70000
)

// formatItem renders an item in the compact corpus line format:
// posts as "P|r/sub|title|body", comments as "C|r/sub|body". Bodies are
// truncated aggressively to keep the corpus within model input bounds.
func formatItem(item *model.HistoryItem) string {
	sub := "r/" + item.Subreddit
	if item.Type == model.ItemTypePost {
		return "P|" + sub + "|" + truncateRunes(item.Title, maxTitleRunes) +
			"|" + truncateRunes(flatten(item.Body), maxPostBodyRunes)
	}
	return "C|" + sub + "|" + truncateRunes(flatten(item.Body), maxCommentBodyRunes)
}

// formatCorpus renders the full compact corpus: a count header followed by
// one line per item.
func formatCorpus(items []*model.HistoryItem) string {
	posts := 0
	for _, item := range items {
		if item.Type == model.ItemTypePost {
			posts++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Posts:%d Comments:%d\n", posts, len(items)-posts)
	for _, item := range items {
		b.WriteString("\n")
		b.WriteString(formatItem(item))
	}
	return b.String()
}

// estimateTokens approximates the token count of a text.
func estimateTokens(text string) int {
	return len(text) / bytesPerToken
}

// sortNewestFirst orders items by creation time descending. The input is
// not modified.
func sortNewestFirst(items []*model.HistoryItem) []*model.HistoryItem {
	sorted := append([]*model.HistoryItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

// chunkItems splits items into chunks whose formatted size stays within the
// token budget. A single oversized item still forms its own chunk.
func chunkItems(items []*model.HistoryItem, budget int) [][]*model.HistoryItem {
	var chunks [][]*model.HistoryItem
	var current []*model.HistoryItem
	tokens := headerTokens

	for _, item := range items {
		itemTokens := estimateTokens(formatItem(item))
		if tokens+itemTokens > budget && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			tokens = headerTokens
		}
		current = append(current, item)
		tokens += itemTokens
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// flatten collapses newlines so each item occupies a single corpus line.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
