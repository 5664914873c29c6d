package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type FetchID string

// NewFetchID generates a new unique FetchID
func NewFetchID() FetchID {
	return FetchID(uuid.New().String())
}

type ItemType string

const (
	ItemTypePost    ItemType = "post"
	ItemTypeComment ItemType = "comment"
)

// Validate checks if the item type is valid
func (t ItemType) Validate() error {
	switch t {
	case ItemTypePost, ItemTypeComment:
		return nil
	default:
		return goerr.New("invalid item type", goerr.V("type", t))
	}
}

type TargetKind string

const (
	TargetUser      TargetKind = "user"
	TargetSubreddit TargetKind = "subreddit"
)

// HistoryItem is a single post or comment retrieved from Reddit.
// ID is the Reddit fullname (t3_xxx for posts, t1_xxx for comments), which
// is unique per source. Items are immutable once fetched.
type HistoryItem struct {
	ID        string          `json:"id"`
	Type      ItemType        `json:"type"`
	Author    string          `json:"author"`
	Subreddit string          `json:"subreddit"`
	Score     int             `json:"score"`
	CreatedAt time.Time       `json:"created_at"`
	Title     string          `json:"title,omitempty"`
	Body      string          `json:"body,omitempty"`
	Permalink string          `json:"permalink,omitempty"`
	URL       string          `json:"url,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Text returns the searchable text of the item. For posts this is the
// title plus self text, for comments the body.
func (x *HistoryItem) Text() string {
	if x.Type == ItemTypePost && x.Title != "" {
		if x.Body == "" {
			return x.Title
		}
		return x.Title + "\n" + x.Body
	}
	return x.Body
}

// Fetch records one fetch operation against a single target.
type Fetch struct {
	ID         FetchID    `json:"id"`
	Kind       TargetKind `json:"kind"`
	Target     string     `json:"target"`
	Sort       string     `json:"sort,omitempty"`
	Incomplete bool       `json:"incomplete"`
	ItemCount  int        `json:"item_count"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FetchResult carries the retrieved items back to the caller. Incomplete is
// set when pagination stopped before the limit due to a recoverable failure
// or cancellation; the items gathered so far are still valid.
type FetchResult struct {
	Fetch *Fetch
	Items []*HistoryItem
}
