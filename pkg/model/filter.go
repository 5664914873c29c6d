package model

import (
	"strings"
	"time"
)

// FilterCriteria is a stateless set of predicates applied to fetched items.
// All active predicates must match (logical AND). The zero value matches
// everything.
type FilterCriteria struct {
	MinScore   *int
	MaxScore   *int
	Keywords   []string
	Since      time.Time
	Until      time.Time
	Subreddits []string
	Type       ItemType
}

// IsEmpty reports whether no predicate is active.
func (c FilterCriteria) IsEmpty() bool {
	return c.MinScore == nil && c.MaxScore == nil &&
		len(c.Keywords) == 0 && len(c.Subreddits) == 0 &&
		c.Since.IsZero() && c.Until.IsZero() && c.Type == ""
}

// Match reports whether a single item satisfies all active predicates.
func (c FilterCriteria) Match(item *HistoryItem) bool {
	if c.Type != "" && item.Type != c.Type {
		return false
	}
	if c.MinScore != nil && item.Score < *c.MinScore {
		return false
	}
	if c.MaxScore != nil && item.Score > *c.MaxScore {
		return false
	}
	if !c.Since.IsZero() && item.CreatedAt.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && item.CreatedAt.After(c.Until) {
		return false
	}
	if len(c.Subreddits) > 0 && !containsFold(c.Subreddits, item.Subreddit) {
		return false
	}
	if len(c.Keywords) > 0 && !c.matchKeyword(item) {
		return false
	}
	return true
}

// matchKeyword checks case-insensitive substring match of any keyword
// against the item text.
func (c FilterCriteria) matchKeyword(item *HistoryItem) bool {
	text := strings.ToLower(item.Text())
	for _, kw := range c.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Apply returns the ordered subsequence of items satisfying all active
// predicates. The input slice is never modified.
func (c FilterCriteria) Apply(items []*HistoryItem) []*HistoryItem {
	if c.IsEmpty() {
		return items
	}

	matched := make([]*HistoryItem, 0, len(items))
	for _, item := range items {
		if c.Match(item) {
			matched = append(matched, item)
		}
	}
	return matched
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
