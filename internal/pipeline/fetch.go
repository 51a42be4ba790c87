package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/pkg/reader"
)

// fetchSources runs the fetch stage: the top depth-scaled slice of search
// results is fetched concurrently through the reader. Individual fetch
// failures are tolerated; the stage fails only when nothing could be
// retrieved. Returns the extracted contents and the reader token usage.
func (o *Orchestrator) fetchSources(ctx context.Context, req model.ResearchRequest, results []model.SearchResult, use *usage) ([]model.FetchedContent, int, error) {
	log := zap.L().With(zap.String("topic", req.Topic))

	limit := fetchCountByDepth[req.Depth]
	if limit > len(results) {
		limit = len(results)
	}
	targets := results[:limit]

	breaker := o.breakers.Get("reader")

	var mu sync.Mutex
	var contents []model.FetchedContent
	var lastErr error
	var stageTokens int

	concurrency := o.cfg.Pipeline.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, target := range targets {
		result := target
		g.Go(func() error {
			if err := o.fetchLimiter.Wait(gCtx); err != nil {
				return err
			}

			page, err := resilience.ExecuteVal(gCtx, breaker, func(ctx context.Context) (*reader.Page, error) {
				p, readErr := o.reader.Read(ctx, result.URL)
				return p, classifyProviderError(readErr)
			})
			if err != nil {
				log.Warn("fetch failed, skipping source",
					zap.String("url", result.URL),
					zap.Error(err),
				)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}

			content := page.Content
			if max := o.cfg.Pipeline.MaxContentLength; max > 0 && len(content) > max {
				content = content[:max]
			}
			title := page.Title
			if title == "" {
				title = result.Title
			}

			mu.Lock()
			stageTokens += page.Tokens
			contents = append(contents, model.FetchedContent{
				URL:       result.URL,
				Title:     title,
				Content:   content,
				WordCount: len(strings.Fields(content)),
				FetchedAt: time.Now().UTC(),
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	use.addReader(stageTokens)

	if len(contents) == 0 {
		if lastErr != nil {
			return nil, stageTokens, eris.Wrap(lastErr, "fetch: no sources retrieved")
		}
		return nil, stageTokens, eris.New("fetch: no sources retrieved")
	}

	log.Debug("fetch complete",
		zap.Int("fetched", len(contents)),
		zap.Int("requested", limit),
	)
	return contents, stageTokens, nil
}
