package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/redhist/redhist/pkg/adapter"
	"github.com/redhist/redhist/pkg/model"
	"github.com/redhist/redhist/pkg/repository"
	"github.com/redhist/redhist/pkg/usecase/fetch"
)

// mockReddit is a mock implementation of adapter.Reddit for testing
type mockReddit struct {
	userPosts      func(ctx context.Context, username, after string) (*adapter.Page, error)
	userComments   func(ctx context.Context, username, after string) (*adapter.Page, error)
	subredditPosts func(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error)
	postComments   func(ctx context.Context, postID string) ([]*model.HistoryItem, error)
}

func (m *mockReddit) UserPosts(ctx context.Context, username, after string) (*adapter.Page, error) {
	if m.userPosts != nil {
		return m.userPosts(ctx, username, after)
	}
	return &adapter.Page{}, nil
}

func (m *mockReddit) UserComments(ctx context.Context, username, after string) (*adapter.Page, error) {
	if m.userComments != nil {
		return m.userComments(ctx, username, after)
	}
	return &adapter.Page{}, nil
}

func (m *mockReddit) SubredditPosts(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error) {
	if m.subredditPosts != nil {
		return m.subredditPosts(ctx, subreddit, sort, after)
	}
	return &adapter.Page{}, nil
}

func (m *mockReddit) PostComments(ctx context.Context, postID string) ([]*model.HistoryItem, error) {
	if m.postComments != nil {
		return m.postComments(ctx, postID)
	}
	return nil, nil
}

func (m *mockReddit) Validate(ctx context.Context) error { return nil }

func newRepo(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.New(filepath.Join(t.TempDir(), "test.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func post(id string, score int) *model.HistoryItem {
	return &model.HistoryItem{
		ID: id, Type: model.ItemTypePost, Author: "alice",
		Subreddit: "golang", Score: score,
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Title:     "post " + id,
	}
}

// pagedPosts serves n posts in pages of pageSize through the after cursor.
func pagedPosts(n, pageSize int) func(ctx context.Context, username, after string) (*adapter.Page, error) {
	return func(ctx context.Context, username, after string) (*adapter.Page, error) {
		start := 0
		if after != "" {
			fmt.Sscanf(after, "cursor-%d", &start)
		}

		page := &adapter.Page{}
		for i := start; i < n && i < start+pageSize; i++ {
			page.Items = append(page.Items, post(fmt.Sprintf("t3_p%03d", i), i))
		}
		if start+pageSize < n {
			page.After = fmt.Sprintf("cursor-%d", start+pageSize)
		}
		return page, nil
	}
}

func TestUserFetchPagination(t *testing.T) {
	t.Run("limit equal to available items returns all", func(t *testing.T) {
		uc := fetch.New(&mockReddit{userPosts: pagedPosts(25, 10)}, newRepo(t))

		res, err := uc.User(context.Background(), fetch.UserInput{
			Username: "alice",
			Limit:    25,
		})
		gt.NoError(t, err)
		gt.V(t, len(res.Items)).Equal(25)
		gt.V(t, res.Fetch.Incomplete).Equal(false)
	})

	t.Run("limit below available items stops early", func(t *testing.T) {
		uc := fetch.New(&mockReddit{userPosts: pagedPosts(25, 10)}, newRepo(t))

		res, err := uc.User(context.Background(), fetch.UserInput{
			Username: "alice",
			Limit:    12,
		})
		gt.NoError(t, err)
		gt.V(t, len(res.Items)).Equal(12)
	})

	t.Run("no limit drains all pages", func(t *testing.T) {
		uc := fetch.New(&mockReddit{userPosts: pagedPosts(25, 10)}, newRepo(t))

		res, err := uc.User(context.Background(), fetch.UserInput{Username: "alice"})
		gt.NoError(t, err)
		gt.V(t, len(res.Items)).Equal(25)
	})
}

func TestUserFetchPersistsResult(t *testing.T) {
	repo := newRepo(t)
	uc := fetch.New(&mockReddit{userPosts: pagedPosts(5, 10)}, repo)

	minScore := 2
	res, err := uc.User(context.Background(), fetch.UserInput{
		Username: "alice",
		Criteria: model.FilterCriteria{MinScore: &minScore},
	})
	gt.NoError(t, err)
	gt.V(t, len(res.Items)).Equal(3) // scores 2, 3, 4
	gt.V(t, res.Fetch.ItemCount).Equal(3)

	stored, err := repo.GetItems(context.Background(), res.Fetch.ID)
	gt.NoError(t, err)
	gt.V(t, len(stored)).Equal(3)
	gt.V(t, stored[0].ID).Equal("t3_p002")
}

func TestUserFetchAuthError(t *testing.T) {
	uc := fetch.New(&mockReddit{
		userPosts: func(ctx context.Context, username, after string) (*adapter.Page, error) {
			return nil, goerr.Wrap(model.ErrAuth, "rejected")
		},
	}, newRepo(t))

	res, err := uc.User(context.Background(), fetch.UserInput{Username: "alice"})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrAuth)).Equal(true)
	gt.V(t, res == nil).Equal(true)
}

func TestUserFetchPartialOnRecoverableFailure(t *testing.T) {
	repo := newRepo(t)
	uc := fetch.New(&mockReddit{
		userPosts: func(ctx context.Context, username, after string) (*adapter.Page, error) {
			if after == "" {
				return &adapter.Page{
					Items: []*model.HistoryItem{post("t3_p1", 1), post("t3_p2", 2)},
					After: "cursor-2",
				}, nil
			}
			return nil, goerr.Wrap(model.ErrNetwork, "connection lost")
		},
	}, repo)

	res, err := uc.User(context.Background(), fetch.UserInput{Username: "alice"})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrNetwork)).Equal(true)
	gt.V(t, res != nil).Equal(true)
	gt.V(t, len(res.Items)).Equal(2)
	gt.V(t, res.Fetch.Incomplete).Equal(true)

	// Partial results are persisted too.
	stored, repoErr := repo.GetFetch(context.Background(), res.Fetch.ID)
	gt.NoError(t, repoErr)
	gt.V(t, stored.Incomplete).Equal(true)
}

func TestUserFetchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	uc := fetch.New(&mockReddit{
		userPosts: func(ctx context.Context, username, after string) (*adapter.Page, error) {
			// Simulate a user abort after the first page arrives.
			cancel()
			return &adapter.Page{
				Items: []*model.HistoryItem{post("t3_p1", 1)},
				After: "cursor-1",
			}, nil
		},
	}, newRepo(t))

	res, err := uc.User(ctx, fetch.UserInput{Username: "alice"})
	gt.Error(t, err)
	gt.V(t, res != nil).Equal(true)
	gt.V(t, len(res.Items)).Equal(1)
	gt.V(t, res.Fetch.Incomplete).Equal(true)
}

func TestSingleFlightPerTarget(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	uc := fetch.New(&mockReddit{
		userPosts: func(ctx context.Context, username, after string) (*adapter.Page, error) {
			if username == "alice" {
				once.Do(func() { close(started) })
				<-release
			}
			return &adapter.Page{}, nil
		},
	}, newRepo(t))

	var (
		wg       sync.WaitGroup
		aliceErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, aliceErr = uc.User(context.Background(), fetch.UserInput{Username: "alice"})
	}()

	<-started
	_, err := uc.User(context.Background(), fetch.UserInput{Username: "Alice"})
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrFetchInProgress)).Equal(true)

	// A different target is not blocked.
	_, err = uc.User(context.Background(), fetch.UserInput{Username: "bob"})
	gt.NoError(t, err)

	close(release)
	wg.Wait()
	gt.NoError(t, aliceErr)

	// After completion the target is free again.
	_, err = uc.User(context.Background(), fetch.UserInput{Username: "alice"})
	gt.NoError(t, err)
}

func TestSubredditFetchDedupAcrossSorts(t *testing.T) {
	var sortsSeen []string
	uc := fetch.New(&mockReddit{
		subredditPosts: func(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error) {
			sortsSeen = append(sortsSeen, sort)
			// Every sort returns the same two posts plus one unique one.
			return &adapter.Page{Items: []*model.HistoryItem{
				post("t3_shared1", 10),
				post("t3_shared2", 20),
				post("t3_"+sort, 5),
			}}, nil
		},
	}, newRepo(t))

	res, err := uc.Subreddit(context.Background(), fetch.SubredditInput{
		Subreddit: "golang",
		Sort:      "all",
	})
	gt.NoError(t, err)
	gt.V(t, sortsSeen).Equal([]string{"top", "hot", "new"})
	gt.V(t, len(res.Items)).Equal(5) // 2 shared + 3 unique
}

func TestSubredditFetchLimitCountsMatches(t *testing.T) {
	uc := fetch.New(&mockReddit{
		subredditPosts: pagedPosts25BySort(),
	}, newRepo(t))

	minScore := 10
	res, err := uc.Subreddit(context.Background(), fetch.SubredditInput{
		Subreddit: "golang",
		Sort:      "new",
		Limit:     5,
		Criteria:  model.FilterCriteria{MinScore: &minScore},
	})
	gt.NoError(t, err)
	gt.V(t, len(res.Items)).Equal(5)
	for _, item := range res.Items {
		gt.V(t, item.Score >= 10).Equal(true)
	}
}

// pagedPosts25BySort adapts pagedPosts to the subreddit listing signature.
func pagedPosts25BySort() func(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error) {
	pages := pagedPosts(25, 10)
	return func(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error) {
		return pages(ctx, "", after)
	}
}

func TestSubredditFetchWithComments(t *testing.T) {
	uc := fetch.New(&mockReddit{
		subredditPosts: func(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error) {
			return &adapter.Page{Items: []*model.HistoryItem{
				post("t3_a", 10),
				post("t3_b", 20),
			}}, nil
		},
		postComments: func(ctx context.Context, postID string) ([]*model.HistoryItem, error) {
			return []*model.HistoryItem{
				{
					ID: "t1_" + postID + "_c", Type: model.ItemTypeComment,
					Author: "bob", Subreddit: "golang", Score: 3,
					Body:      "reply on " + postID,
					CreatedAt: time.Now().UTC(),
				},
			}, nil
		},
	}, newRepo(t))

	res, err := uc.Subreddit(context.Background(), fetch.SubredditInput{
		Subreddit:       "golang",
		Sort:            "new",
		IncludeComments: true,
	})
	gt.NoError(t, err)
	gt.V(t, len(res.Items)).Equal(4)
	// Comments follow their post.
	gt.V(t, res.Items[0].ID).Equal("t3_a")
	gt.V(t, res.Items[1].ID).Equal("t1_a_c")
	gt.V(t, res.Items[2].ID).Equal("t3_b")
	gt.V(t, res.Items[3].ID).Equal("t1_b_c")
}

func TestSubredditFetchCommentFailureDoesNotAbort(t *testing.T) {
	uc := fetch.New(&mockReddit{
		subredditPosts: func(ctx context.Context, subreddit, sort, after string) (*adapter.Page, error) {
			return &adapter.Page{Items: []*model.HistoryItem{post("t3_a", 1)}}, nil
		},
		postComments: func(ctx context.Context, postID string) ([]*model.HistoryItem, error) {
			return nil, goerr.Wrap(model.ErrNetwork, "thread unavailable")
		},
	}, newRepo(t))

	res, err := uc.Subreddit(context.Background(), fetch.SubredditInput{
		Subreddit:       "golang",
		Sort:            "new",
		IncludeComments: true,
	})
	gt.NoError(t, err)
	gt.V(t, len(res.Items)).Equal(1)
}

func TestSubredditInvalidSort(t *testing.T) {
	uc := fetch.New(&mockReddit{}, newRepo(t))

	_, err := uc.Subreddit(context.Background(), fetch.SubredditInput{
		Subreddit: "golang",
		Sort:      "controversial",
	})
	gt.Error(t, err)
}
