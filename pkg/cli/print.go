package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/redhist/redhist/pkg/model"
)

const excerptRunes = 80

// printItems writes one line per history item: type marker, date, score,
// subreddit, and a short excerpt.
func printItems(w io.Writer, items []*model.HistoryItem) {
	for _, item := range items {
		marker := "P"
		text := item.Title
		if item.Type == model.ItemTypeComment {
			marker = "C"
			text = item.Body
		}
		fmt.Fprintf(w, "[%s] %s %6d r/%-20s %s\n",
			marker,
			item.CreatedAt.Format("2006-01-02"),
			item.Score,
			item.Subreddit,
			excerpt(text),
		)
	}
}

func printFetchSummary(w io.Writer, result *model.FetchResult) {
	status := ""
	if result.Fetch.Incomplete {
		status = " (incomplete)"
	}
	fmt.Fprintf(w, "fetch %s: %d items%s\n", result.Fetch.ID, len(result.Items), status)
}

// excerpt collapses whitespace and bounds the text to a single short line.
func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= excerptRunes {
		return s
	}
	return string(runes[:excerptRunes]) + "..."
}
