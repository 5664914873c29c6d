package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/redhist/redhist/pkg/model"
	"github.com/redhist/redhist/pkg/repository"
)

func newRepo(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.New(filepath.Join(t.TempDir(), "redhist.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	fetch := &model.Fetch{
		ID:        model.NewFetchID(),
		Kind:      model.TargetUser,
		Target:    "alice",
		ItemCount: 2,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	items := []*model.HistoryItem{
		{
			ID: "t3_p1", Type: model.ItemTypePost, Author: "alice",
			Subreddit: "golang", Score: 10,
			CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			Title:     "hello", Body: "world", Raw: []byte(`{"score":10}`),
		},
		{
			ID: "t1_c1", Type: model.ItemTypeComment, Author: "alice",
			Subreddit: "programming", Score: -2,
			CreatedAt: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
			Body:      "a comment",
		},
	}

	gt.NoError(t, repo.PutFetch(ctx, fetch))
	gt.NoError(t, repo.PutItems(ctx, fetch.ID, items))

	got, err := repo.GetFetch(ctx, fetch.ID)
	gt.NoError(t, err)
	gt.V(t, got.Target).Equal("alice")
	gt.V(t, got.Kind).Equal(model.TargetUser)
	gt.V(t, got.ItemCount).Equal(2)

	gotItems, err := repo.GetItems(ctx, fetch.ID)
	gt.NoError(t, err)
	gt.V(t, len(gotItems)).Equal(2)
	gt.V(t, gotItems[0].ID).Equal("t3_p1")
	gt.V(t, gotItems[0].Title).Equal("hello")
	gt.V(t, gotItems[0].CreatedAt).Equal(items[0].CreatedAt)
	gt.V(t, string(gotItems[0].Raw)).Equal(`{"score":10}`)
	gt.V(t, gotItems[1].ID).Equal("t1_c1")
	gt.V(t, gotItems[1].Score).Equal(-2)
}

func TestPutFetchUpdatesCompleteness(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	fetch := &model.Fetch{
		ID: model.NewFetchID(), Kind: model.TargetSubreddit,
		Target: "golang", Sort: "new", Incomplete: true,
		CreatedAt: time.Now().UTC(),
	}
	gt.NoError(t, repo.PutFetch(ctx, fetch))

	fetch.Incomplete = false
	fetch.ItemCount = 50
	gt.NoError(t, repo.PutFetch(ctx, fetch))

	got, err := repo.GetFetch(ctx, fetch.ID)
	gt.NoError(t, err)
	gt.V(t, got.Incomplete).Equal(false)
	gt.V(t, got.ItemCount).Equal(50)
}

func TestListFetchesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		gt.NoError(t, repo.PutFetch(ctx, &model.Fetch{
			ID:        model.FetchID(string(rune('a' + i))),
			Kind:      model.TargetUser,
			Target:    "alice",
			CreatedAt: base.AddDate(0, 0, i),
		}))
	}

	fetches, err := repo.ListFetches(ctx, 0, 10)
	gt.NoError(t, err)
	gt.V(t, len(fetches)).Equal(3)
	gt.V(t, fetches[0].ID).Equal(model.FetchID("c"))
	gt.V(t, fetches[2].ID).Equal(model.FetchID("a"))

	page, err := repo.ListFetches(ctx, 1, 1)
	gt.NoError(t, err)
	gt.V(t, len(page)).Equal(1)
	gt.V(t, page[0].ID).Equal(model.FetchID("b"))
}

func TestFetchNotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetFetch(context.Background(), "no-such-id")
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrNotFound)).Equal(true)
}

func TestAnalysisRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	analysis := &model.AnalysisResult{
		ID:            model.NewAnalysisID(),
		Username:      "alice",
		Question:      "What topics does this user care about?",
		Answer:        "Mostly Go and sourdough.",
		SourceItemIDs: []string{"t3_p1", "t1_c1"},
		CreatedAt:     time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
	}

	gt.NoError(t, repo.PutAnalysis(ctx, analysis))

	got, err := repo.GetAnalysis(ctx, analysis.ID)
	gt.NoError(t, err)
	gt.V(t, got.Question).Equal(analysis.Question)
	gt.V(t, got.Answer).Equal(analysis.Answer)
	gt.V(t, len(got.SourceItemIDs)).Equal(2)
	gt.V(t, got.SourceItemIDs[0]).Equal("t3_p1")

	list, err := repo.ListAnalyses(ctx, 0, 10)
	gt.NoError(t, err)
	gt.V(t, len(list)).Equal(1)

	_, err = repo.GetAnalysis(ctx, "missing")
	gt.Error(t, err)
	gt.V(t, errors.Is(err, model.ErrNotFound)).Equal(true)
}
