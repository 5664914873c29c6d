package analyze

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/adapter"
	"github.com/redhist/redhist/pkg/model"
	"github.com/redhist/redhist/pkg/repository"
	"github.com/redhist/redhist/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/analyze.md
var analyzePromptRaw string

//go:embed prompt/chunk.md
var chunkPromptRaw string

//go:embed prompt/synthesize.md
var synthesizePromptRaw string

const (
	maxQuotaRetries = 3

	// chunkPause is the delay between chunk requests to stay under the
	// free-tier request rate.
	chunkPause = 5 * time.Second
)

var quotaBackoffs = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// UseCase answers a natural-language question about a user's Reddit
// history via the Gemini API.
type UseCase struct {
	client adapter.Reddit
	gemini adapter.Gemini
	repo   repository.Repository

	// sleep is replaced in tests to skip real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(client adapter.Reddit, gemini adapter.Gemini, repo repository.Repository) *UseCase {
	return &UseCase{
		client: client,
		gemini: gemini,
		repo:   repo,
		sleep:  sleepCtx,
	}
}

type Input struct {
	Username string
	Question string
	// Days limits the history window. 0 means the full history.
	Days int
}

// Analyze gathers the user's history, sends it to Gemini with the
// question, and persists the resulting answer. Histories beyond the model
// input budget are split into chunks and synthesized.
func (u *UseCase) Analyze(ctx context.Context, input Input) (*model.AnalysisResult, error) {
	if input.Username == "" {
		return nil, goerr.New("username is required")
	}
	if strings.TrimSpace(input.Question) == "" {
		return nil, goerr.New("question is required")
	}

	logger := logging.From(ctx)

	var cutoff time.Time
	if input.Days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -input.Days)
	}

	items, err := u.gatherHistory(ctx, input.Username, cutoff)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, goerr.New("no history found for user in the selected period",
			goerr.V("user", input.Username), goerr.V("days", input.Days))
	}

	items = sortNewestFirst(items)
	logger.Info("history gathered", "user", input.Username, "items", len(items))

	answer, err := u.answer(ctx, input.Question, items)
	if err != nil {
		return nil, err
	}

	sourceIDs := make([]string, len(items))
	for i, item := range items {
		sourceIDs[i] = item.ID
	}

	result := &model.AnalysisResult{
		ID:            model.NewAnalysisID(),
		Username:      input.Username,
		Question:      input.Question,
		Answer:        answer,
		SourceItemIDs: sourceIDs,
		CreatedAt:     time.Now().UTC(),
	}

	if err := u.repo.PutAnalysis(context.WithoutCancel(ctx), result); err != nil {
		return nil, err
	}
	return result, nil
}

// gatherHistory walks the user's post and comment listings newest-first,
// stopping each listing at the cutoff time.
func (u *UseCase) gatherHistory(ctx context.Context, username string, cutoff time.Time) ([]*model.HistoryItem, error) {
	var items []*model.HistoryItem

	for _, next := range []func(context.Context, string, string) (*adapter.Page, error){
		u.client.UserPosts,
		u.client.UserComments,
	} {
		after := ""
	listing:
		for {
			page, err := next(ctx, username, after)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to gather history",
					goerr.V("user", username))
			}
			for _, item := range page.Items {
				// Listings are newest-first, so the first item past the
				// cutoff ends this listing.
				if !cutoff.IsZero() && item.CreatedAt.Before(cutoff) {
					break listing
				}
				items = append(items, item)
			}
			if page.After == "" {
				break
			}
			after = page.After
		}
	}

	return items, nil
}

// answer runs the single-shot or chunked analysis depending on corpus size.
func (u *UseCase) answer(ctx context.Context, question string, items []*model.HistoryItem) (string, error) {
	logger := logging.From(ctx)

	corpus := formatCorpus(items)
	total := estimateTokens(corpus)
	logger.Info("estimated corpus size", "tokens", total)

	if total < singleRequestTokenBudget {
		prompt := strings.NewReplacer(
			"{{question}}", question,
			"{{history}}", corpus,
		).Replace(analyzePromptRaw)
		return u.generateWithRetry(ctx, prompt)
	}

	chunks := chunkItems(items, chunkTokenBudget)
	logger.Info("corpus exceeds single-request budget, chunking", "chunks", len(chunks))

	var partials []string
	for i, chunk := range chunks {
		logger.Info("analyzing chunk", "chunk", i+1, "total", len(chunks), "items", len(chunk))

		prompt := strings.NewReplacer(
			"{{index}}", strconv.Itoa(i+1),
			"{{total}}", strconv.Itoa(len(chunks)),
			"{{question}}", question,
			"{{history}}", formatCorpus(chunk),
		).Replace(chunkPromptRaw)

		partial, err := u.generateWithRetry(ctx, prompt)
		if err != nil {
			if errors.Is(err, model.ErrAuth) || errors.Is(err, model.ErrQuota) {
				return "", err
			}
			// A failed chunk degrades the answer but does not abort it.
			logger.Warn("chunk analysis failed", "chunk", i+1, "error", err)
			continue
		}
		partials = append(partials,
			fmt.Sprintf("## Chunk %d/%d Analysis:\n%s", i+1, len(chunks), partial))

		if i < len(chunks)-1 {
			if err := u.sleep(ctx, chunkPause); err != nil {
				return "", err
			}
		}
	}

	if len(partials) == 0 {
		return "", goerr.New("all chunks failed to analyze")
	}

	if err := u.sleep(ctx, chunkPause); err != nil {
		return "", err
	}

	prompt := strings.NewReplacer(
		"{{total}}", strconv.Itoa(len(chunks)),
		"{{question}}", question,
		"{{partials}}", strings.Join(partials, "\n\n"),
	).Replace(synthesizePromptRaw)
	return u.generateWithRetry(ctx, prompt)
}

// generateWithRetry sends one prompt to Gemini. Quota errors are retried
// with exponential backoff up to the bound; auth errors are never retried.
func (u *UseCase) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	var lastErr error
	for attempt := 0; attempt <= maxQuotaRetries; attempt++ {
		resp, err := u.gemini.GenerateContent(ctx, contents, &genai.GenerateContentConfig{})
		if err == nil {
			return responseText(resp)
		}

		if !errors.Is(err, model.ErrQuota) {
			return "", err
		}
		lastErr = err

		if attempt < maxQuotaRetries {
			logging.From(ctx).Warn("gemini quota hit, backing off",
				"attempt", attempt+1, "wait", quotaBackoffs[attempt])
			if err := u.sleep(ctx, quotaBackoffs[attempt]); err != nil {
				return "", err
			}
		}
	}

	return "", lastErr
}

// responseText extracts the concatenated text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no answer generated")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", goerr.New("empty answer generated")
	}
	return text.String(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// FormatCorpusForTest exposes formatCorpus
func FormatCorpusForTest(items []*model.HistoryItem) string {
	return formatCorpus(items)
}

// ChunkItemsForTest exposes chunkItems
func ChunkItemsForTest(items []*model.HistoryItem, budget int) [][]*model.HistoryItem {
	return chunkItems(items, budget)
}

// WithSleepForTest replaces the backoff sleeper
func (u *UseCase) WithSleepForTest(sleep func(ctx context.Context, d time.Duration) error) {
	u.sleep = sleep
}
