package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL = "https://oauth.reddit.com"
	defaultTokenURL   = "https://www.reddit.com/api/v1/access_token"

	// Reddit listings return at most 100 children per page.
	pageSize = 100

	maxRetries = 3
)

var retryBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Page is one page of a Reddit listing.
type Page struct {
	Items []*model.HistoryItem
	After string
}

// Reddit is the interface for paginated history retrieval from the Reddit API.
type Reddit interface {
	UserPosts(ctx context.Context, username, after string) (*Page, error)
	UserComments(ctx context.Context, username, after string) (*Page, error)
	SubredditPosts(ctx context.Context, subreddit, sort, after string) (*Page, error)

	// PostComments returns the top-level comments of a post.
	PostComments(ctx context.Context, postID string) ([]*model.HistoryItem, error)

	// Validate performs a token exchange to confirm the credentials work.
	Validate(ctx context.Context) error
}

// RedditClient implements Reddit against the OAuth API with client
// credentials, a client-side rate limiter, and bounded retries.
type RedditClient struct {
	clientID     string
	clientSecret string
	userAgent    string

	baseURL  string
	tokenURL string
	client   *http.Client
	limiter  *rate.Limiter

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

type RedditOption func(*RedditClient)

// WithRedditBaseURL overrides the API endpoint. Used in tests.
func WithRedditBaseURL(apiURL, tokenURL string) RedditOption {
	return func(r *RedditClient) {
		r.baseURL = apiURL
		r.tokenURL = tokenURL
	}
}

// WithRedditHTTPClient overrides the HTTP client.
func WithRedditHTTPClient(c *http.Client) RedditOption {
	return func(r *RedditClient) {
		r.client = c
	}
}

// WithRedditRateLimit overrides the request rate limiter.
func WithRedditRateLimit(l *rate.Limiter) RedditOption {
	return func(r *RedditClient) {
		r.limiter = l
	}
}

// NewReddit creates a Reddit API client. The token is fetched lazily on the
// first request and refreshed before expiry.
func NewReddit(clientID, clientSecret, userAgent string, opts ...RedditOption) *RedditClient {
	r := &RedditClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		baseURL:      defaultAPIBaseURL,
		tokenURL:     defaultTokenURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedditClient) UserPosts(ctx context.Context, username, after string) (*Page, error) {
	return r.listing(ctx, "/user/"+url.PathEscape(username)+"/submitted", after)
}

func (r *RedditClient) UserComments(ctx context.Context, username, after string) (*Page, error) {
	return r.listing(ctx, "/user/"+url.PathEscape(username)+"/comments", after)
}

func (r *RedditClient) SubredditPosts(ctx context.Context, subreddit, sort, after string) (*Page, error) {
	return r.listing(ctx, "/r/"+url.PathEscape(subreddit)+"/"+url.PathEscape(sort), after)
}

func (r *RedditClient) Validate(ctx context.Context) error {
	_, err := r.accessToken(ctx, true)
	return err
}

// accessToken returns a valid bearer token, exchanging client credentials
// when the cached one is missing or about to expire.
func (r *RedditClient) accessToken(ctx context.Context, force bool) (string, error) {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()

	if !force && r.token != "" && time.Now().Before(r.tokenExpiry) {
		return r.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create token request")
	}
	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", goerr.Wrap(model.ErrNetwork, "token request failed", goerr.V("cause", err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", goerr.Wrap(model.ErrNetwork, "failed to read token response", goerr.V("cause", err.Error()))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", goerr.Wrap(model.ErrAuth, "reddit rejected client credentials",
			goerr.V("status", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", goerr.New("unexpected token response",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var tok struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
		Error       string  `json:"error"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", goerr.Wrap(err, "failed to parse token response")
	}
	// Reddit reports bad credentials with 200 + an error field.
	if tok.Error != "" || tok.AccessToken == "" {
		return "", goerr.Wrap(model.ErrAuth, "reddit rejected client credentials",
			goerr.V("error", tok.Error))
	}

	r.token = tok.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return r.token, nil
}

// listing fetches one page of a listing endpoint.
func (r *RedditClient) listing(ctx context.Context, path, after string) (*Page, error) {
	q := url.Values{"limit": {strconv.Itoa(pageSize)}, "raw_json": {"1"}}
	if after != "" {
		q.Set("after", after)
	}

	body, err := r.doWithRetry(ctx, path, q)
	if err != nil {
		return nil, err
	}

	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, goerr.Wrap(err, "failed to parse listing", goerr.V("path", path))
	}

	page := &Page{After: env.Data.After}
	for _, child := range env.Data.Children {
		item, err := child.toItem()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode listing child", goerr.V("path", path))
		}
		if item == nil {
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (r *RedditClient) PostComments(ctx context.Context, postID string) ([]*model.HistoryItem, error) {
	q := url.Values{"limit": {strconv.Itoa(pageSize)}, "depth": {"1"}, "raw_json": {"1"}}

	body, err := r.doWithRetry(ctx, "/comments/"+url.PathEscape(postID), q)
	if err != nil {
		return nil, err
	}

	// The comments endpoint returns a two-element array: the post listing
	// followed by the comment tree.
	var envs []listingEnvelope
	if err := json.Unmarshal(body, &envs); err != nil {
		return nil, goerr.Wrap(err, "failed to parse comments response", goerr.V("post", postID))
	}
	if len(envs) < 2 {
		return nil, nil
	}

	var items []*model.HistoryItem
	for _, child := range envs[1].Data.Children {
		if child.Kind != "t1" {
			continue // trailing "more" stubs
		}
		item, err := child.toItem()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode comment", goerr.V("post", postID))
		}
		if item == nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// doWithRetry performs an authenticated GET with rate limiting and bounded
// retries. 429 and 5xx responses are retried with exponential backoff,
// honoring Retry-After; 401/403 is terminal and never retried.
func (r *RedditClient) doWithRetry(ctx context.Context, path string, q url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		token, err := r.accessToken(ctx, false)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create request", goerr.V("path", path))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", r.userAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = goerr.Wrap(model.ErrNetwork, "request failed",
				goerr.V("path", path), goerr.V("cause", err.Error()))
			if attempt < maxRetries {
				if err := sleepCtx(ctx, retryBackoffs[attempt]); err != nil {
					return nil, err
				}
			}
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()
		if err != nil {
			return nil, goerr.Wrap(model.ErrNetwork, "failed to read response",
				goerr.V("path", path), goerr.V("cause", err.Error()))
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, goerr.Wrap(model.ErrAuth, "reddit api rejected request",
				goerr.V("path", path), goerr.V("status", resp.StatusCode))

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = goerr.Wrap(model.ErrRateLimit, "reddit api throttled request",
				goerr.V("path", path))
			if attempt < maxRetries {
				if err := sleepCtx(ctx, retryDelay(resp, retryBackoffs[attempt])); err != nil {
					return nil, err
				}
			}

		case resp.StatusCode >= 500:
			lastErr = goerr.Wrap(model.ErrNetwork, "reddit api server error",
				goerr.V("path", path), goerr.V("status", resp.StatusCode))
			if attempt < maxRetries {
				if err := sleepCtx(ctx, retryBackoffs[attempt]); err != nil {
					return nil, err
				}
			}

		default:
			return nil, goerr.New("unexpected reddit api response",
				goerr.V("path", path), goerr.V("status", resp.StatusCode),
				goerr.V("body", string(body)))
		}
	}

	return nil, lastErr
}

// retryDelay picks the backoff for a throttled response, honoring the
// Retry-After header capped at 30 seconds.
func retryDelay(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			d := time.Duration(seconds) * time.Second
			if d > 30*time.Second {
				d = 30 * time.Second
			}
			return d
		}
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

type listingEnvelope struct {
	Kind string `json:"kind"`
	Data struct {
		After    string         `json:"after"`
		Children []listingChild `json:"children"`
	} `json:"data"`
}

type listingChild struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type thingData struct {
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Body       string  `json:"body"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
}

// toItem converts a listing child into a HistoryItem. Removed comments
// (deleted author with "[removed]" body) are dropped by returning nil.
func (c listingChild) toItem() (*model.HistoryItem, error) {
	var itemType model.ItemType
	switch c.Kind {
	case "t3":
		itemType = model.ItemTypePost
	case "t1":
		itemType = model.ItemTypeComment
	default:
		return nil, nil
	}

	var d thingData
	if err := json.Unmarshal(c.Data, &d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode thing data")
	}

	if itemType == model.ItemTypeComment && (d.Author == "" || d.Author == "[deleted]") && d.Body == "[removed]" {
		return nil, nil
	}

	item := &model.HistoryItem{
		ID:        d.Name,
		Type:      itemType,
		Author:    d.Author,
		Subreddit: d.Subreddit,
		Score:     d.Score,
		CreatedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Permalink: d.Permalink,
		Raw:       c.Data,
	}
	if itemType == model.ItemTypePost {
		item.Title = d.Title
		item.Body = d.SelfText
		item.URL = d.URL
	} else {
		item.Body = d.Body
	}
	return item, nil
}
