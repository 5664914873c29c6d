package fetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/adapter"
	"github.com/redhist/redhist/pkg/model"
	"github.com/redhist/redhist/pkg/repository"
	"github.com/redhist/redhist/pkg/utils/logging"
)

const commentWorkers = 8

// UseCase retrieves history from Reddit, filters it, and persists the
// result. At most one fetch per target may be in flight at a time.
type UseCase struct {
	client adapter.Reddit
	repo   repository.Repository

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(client adapter.Reddit, repo repository.Repository) *UseCase {
	return &UseCase{
		client:   client,
		repo:     repo,
		inFlight: make(map[string]struct{}),
	}
}

type UserInput struct {
	Username string
	// Limit bounds the number of raw items per listing (posts and comments
	// are separate listings). 0 means fetch everything available.
	Limit    int
	Criteria model.FilterCriteria
}

type SubredditInput struct {
	Subreddit string
	// Sort is new, hot, top, or all. "all" fetches top, hot, and new with
	// cross-listing dedup.
	Sort string
	// Limit bounds the number of matched posts. 0 means no bound.
	Limit           int
	Criteria        model.FilterCriteria
	IncludeComments bool
}

// User retrieves a user's posts and comments concurrently, applies the
// filter criteria, and persists the result. On a recoverable failure the
// partial result is returned together with the error, flagged incomplete.
func (u *UseCase) User(ctx context.Context, input UserInput) (*model.FetchResult, error) {
	if input.Username == "" {
		return nil, goerr.New("username is required")
	}

	release, err := u.acquire("user/" + strings.ToLower(input.Username))
	if err != nil {
		return nil, err
	}
	defer release()

	logger := logging.From(ctx)
	logger.Info("starting user fetch", "user", input.Username, "limit", input.Limit)

	var (
		buf      resultBuffer
		wg       sync.WaitGroup
		errMu    sync.Mutex
		fetchErr error
	)

	// Posts and comments are independent listings; fetch them in parallel.
	// An auth failure on either side aborts the other.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, next := range []func(context.Context, string, string) (*adapter.Page, error){
		u.client.UserPosts,
		u.client.UserComments,
	} {
		wg.Add(1)
		go func(next func(context.Context, string, string) (*adapter.Page, error)) {
			defer wg.Done()
			if err := paginate(runCtx, input.Limit, &buf, func(after string) (*adapter.Page, error) {
				return next(runCtx, input.Username, after)
			}); err != nil {
				errMu.Lock()
				if fetchErr == nil || errors.Is(err, model.ErrAuth) {
					fetchErr = err
				}
				errMu.Unlock()
				if errors.Is(err, model.ErrAuth) {
					cancel()
				}
			}
		}(next)
	}
	wg.Wait()

	if fetchErr != nil && errors.Is(fetchErr, model.ErrAuth) {
		return nil, goerr.Wrap(fetchErr, "user fetch failed", goerr.V("user", input.Username))
	}

	return u.finish(ctx, &model.Fetch{
		ID:        model.NewFetchID(),
		Kind:      model.TargetUser,
		Target:    input.Username,
		CreatedAt: time.Now().UTC(),
	}, buf.snapshot(), input.Criteria, fetchErr)
}

// Subreddit retrieves posts from a subreddit listing, keeping posts that
// match the criteria until the limit is reached. With IncludeComments the
// top-level comments of each matched post are fetched by a worker pool.
func (u *UseCase) Subreddit(ctx context.Context, input SubredditInput) (*model.FetchResult, error) {
	if input.Subreddit == "" {
		return nil, goerr.New("subreddit is required")
	}
	sorts, err := expandSort(input.Sort)
	if err != nil {
		return nil, err
	}

	release, err := u.acquire("subreddit/" + strings.ToLower(input.Subreddit))
	if err != nil {
		return nil, err
	}
	defer release()

	logger := logging.From(ctx)
	logger.Info("starting subreddit fetch",
		"subreddit", input.Subreddit, "sorts", sorts, "limit", input.Limit)

	var (
		posts      []*model.HistoryItem
		seen       = make(map[string]struct{})
		incomplete error
	)

collect:
	for _, sort := range sorts {
		after := ""
		for {
			page, err := u.client.SubredditPosts(ctx, input.Subreddit, sort, after)
			if err != nil {
				if errors.Is(err, model.ErrAuth) {
					return nil, goerr.Wrap(err, "subreddit fetch failed",
						goerr.V("subreddit", input.Subreddit))
				}
				incomplete = err
				break collect
			}

			for _, item := range page.Items {
				if _, ok := seen[item.ID]; ok {
					continue
				}
				seen[item.ID] = struct{}{}
				if !input.Criteria.Match(item) {
					continue
				}
				posts = append(posts, item)
				if input.Limit > 0 && len(posts) >= input.Limit {
					break collect
				}
			}

			if page.After == "" {
				break
			}
			after = page.After
			if ctx.Err() != nil {
				incomplete = ctx.Err()
				break collect
			}
		}
	}

	items := posts
	if input.IncludeComments && incomplete == nil {
		items, incomplete = u.collectComments(ctx, posts, input.Criteria)
	}

	fetch := &model.Fetch{
		ID:        model.NewFetchID(),
		Kind:      model.TargetSubreddit,
		Target:    input.Subreddit,
		Sort:      input.Sort,
		CreatedAt: time.Now().UTC(),
	}

	// Posts are already filtered during collection; comments are filtered
	// by collectComments. No second pass needed.
	return u.finish(ctx, fetch, items, model.FilterCriteria{}, incomplete)
}

// collectComments fetches top-level comments for each post with a bounded
// worker pool and interleaves them after their post, preserving post order.
func (u *UseCase) collectComments(ctx context.Context, posts []*model.HistoryItem, criteria model.FilterCriteria) ([]*model.HistoryItem, error) {
	logger := logging.From(ctx)

	commentCriteria := model.FilterCriteria{
		MinScore: criteria.MinScore,
		MaxScore: criteria.MaxScore,
		Keywords: criteria.Keywords,
	}

	type job struct {
		index int
		post  *model.HistoryItem
	}

	jobs := make(chan job)
	comments := make([][]*model.HistoryItem, len(posts))

	var wg sync.WaitGroup
	for w := 0; w < commentWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				articleID := strings.TrimPrefix(j.post.ID, "t3_")
				found, err := u.client.PostComments(ctx, articleID)
				if err != nil {
					// A single thread failing does not abort the fetch.
					logger.Warn("failed to fetch comments",
						"post", j.post.ID, "error", err)
					continue
				}
				comments[j.index] = commentCriteria.Apply(found)
			}
		}()
	}

	var cancelled error
	for i, post := range posts {
		if ctx.Err() != nil {
			cancelled = ctx.Err()
			break
		}
		jobs <- job{index: i, post: post}
	}
	close(jobs)
	wg.Wait()

	items := make([]*model.HistoryItem, 0, len(posts))
	for i, post := range posts {
		items = append(items, post)
		items = append(items, comments[i]...)
	}
	return items, cancelled
}

// finish filters, persists, and packages the fetched items. cause is the
// recoverable failure that interrupted pagination, nil when complete.
func (u *UseCase) finish(ctx context.Context, fetch *model.Fetch, items []*model.HistoryItem, criteria model.FilterCriteria, cause error) (*model.FetchResult, error) {
	logger := logging.From(ctx)

	filtered := criteria.Apply(items)
	fetch.ItemCount = len(filtered)
	fetch.Incomplete = cause != nil

	// Persist with a fresh context: a cancelled fetch still keeps what it
	// already received.
	saveCtx := context.WithoutCancel(ctx)
	if err := u.repo.PutFetch(saveCtx, fetch); err != nil {
		return nil, err
	}
	if err := u.repo.PutItems(saveCtx, fetch.ID, filtered); err != nil {
		return nil, err
	}

	result := &model.FetchResult{Fetch: fetch, Items: filtered}
	if cause != nil {
		logger.Warn("fetch incomplete",
			"target", fetch.Target, "items", len(filtered), "cause", cause)
		return result, goerr.Wrap(cause, "fetch incomplete",
			goerr.V("target", fetch.Target), goerr.V("items", len(filtered)))
	}

	logger.Info("fetch complete", "target", fetch.Target, "items", len(filtered))
	return result, nil
}

// acquire registers an in-flight fetch for the key, rejecting concurrent
// fetches of the same target.
func (u *UseCase) acquire(key string) (func(), error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.inFlight[key]; ok {
		return nil, goerr.Wrap(model.ErrFetchInProgress, "target is being fetched",
			goerr.V("target", key))
	}
	u.inFlight[key] = struct{}{}

	return func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		delete(u.inFlight, key)
	}, nil
}

// paginate walks a listing until the limit is reached or pages run out,
// appending items to the shared buffer. Recoverable failures and
// cancellation return an error while keeping everything fetched so far.
func paginate(ctx context.Context, limit int, buf *resultBuffer, next func(after string) (*adapter.Page, error)) error {
	after := ""
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := next(after)
		if err != nil {
			return err
		}

		for _, item := range page.Items {
			buf.append(item)
			count++
			if limit > 0 && count >= limit {
				return nil
			}
		}

		if page.After == "" {
			return nil
		}
		after = page.After
	}
}

func expandSort(sort string) ([]string, error) {
	switch sort {
	case "", "new":
		return []string{"new"}, nil
	case "hot", "top":
		return []string{sort}, nil
	case "all":
		return []string{"top", "hot", "new"}, nil
	default:
		return nil, goerr.New("invalid sort", goerr.V("sort", sort))
	}
}

// resultBuffer is an append-only item buffer shared by concurrent listing
// walkers.
type resultBuffer struct {
	mu    sync.Mutex
	items []*model.HistoryItem
}

func (b *resultBuffer) append(item *model.HistoryItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
}

func (b *resultBuffer) snapshot() []*model.HistoryItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*model.HistoryItem(nil), b.items...)
}
