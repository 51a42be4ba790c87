package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/pkg/tavily"
)

// Depth-keyed stage parameters. Depth 1 is a quick pass, 3 a deep one.
var (
	searchResultsByDepth = map[int]int{1: 5, 2: 10, 3: 15}
	queryCountByDepth    = map[int]int{1: 1, 2: 2, 3: 3}
	fetchCountByDepth    = map[int]int{1: 3, 2: 6, 3: 10}
)

// searchSources runs the search stage: depth-scaled query fan-out against the
// search provider, de-duplicated by URL and ranked by provider score. A fresh
// cache entry for the same topic and depth short-circuits the provider call.
func (o *Orchestrator) searchSources(ctx context.Context, req model.ResearchRequest, use *usage) ([]model.SearchResult, error) {
	log := zap.L().With(zap.String("topic", req.Topic), zap.Int("depth", req.Depth))

	if o.store != nil {
		cached, err := o.store.GetCachedSearch(ctx, req.Topic, req.Depth)
		if err != nil {
			log.Warn("search cache lookup failed", zap.Error(err))
		} else if len(cached) > 0 {
			log.Debug("search cache hit", zap.Int("results", len(cached)))
			return cached, nil
		}
	}

	maxResults := searchResultsByDepth[req.Depth]
	queries := queryVariations(req.Topic, queryCountByDepth[req.Depth])

	breaker := o.breakers.Get("search")
	seen := make(map[string]bool)
	var merged []model.SearchResult

	for _, q := range queries {
		query := q
		resp, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*tavily.SearchResponse, error) {
			r, searchErr := o.search.Search(ctx, tavily.SearchRequest{
				Query:      query,
				MaxResults: maxResults,
			})
			return r, classifyProviderError(searchErr)
		})
		use.addQueries(1)
		if err != nil {
			// A single variation failing fails the stage: partial fan-out
			// would skew ranking between retries.
			return nil, err
		}

		for _, r := range resp.Results {
			if r.URL == "" || seen[r.URL] || !model.ValidSourceURL(r.URL) {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, model.SearchResult{
				Title:          r.Title,
				URL:            r.URL,
				Snippet:        r.Content,
				Provider:       "tavily",
				RelevanceScore: r.Score,
			})
		}
	}

	if len(merged) == 0 {
		return nil, eris.Errorf("search: no results for topic %q", req.Topic)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	if o.store != nil {
		if err := o.store.SetCachedSearch(ctx, req.Topic, req.Depth, merged, o.cfg.Pipeline.CacheTTL()); err != nil {
			log.Warn("search cache write failed", zap.Error(err))
		}
	}

	log.Debug("search complete", zap.Int("results", len(merged)), zap.Int("queries", len(queries)))
	return merged, nil
}

// queryVariations expands the topic into up to n distinct queries so deeper
// runs cover more angles of the same topic.
func queryVariations(topic string, n int) []string {
	variations := []string{
		topic,
		topic + " overview",
		topic + " latest developments",
	}
	if n < 1 {
		n = 1
	}
	if n > len(variations) {
		n = len(variations)
	}
	out := make([]string, 0, n)
	for _, v := range variations[:n] {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
