package store

import (
	"context"
	"time"

	"github.com/sells-group/research-brief/internal/model"
)

// BriefFilter specifies criteria for listing stored briefs.
type BriefFilter struct {
	UserID string `json:"user_id,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// StoredBrief is a persisted brief with its request metadata.
type StoredBrief struct {
	RequestID string           `json:"request_id"`
	UserID    string           `json:"user_id"`
	Topic     string           `json:"topic"`
	Depth     int              `json:"depth"`
	Brief     model.FinalBrief `json:"brief"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store defines the persistence interface for the brief pipeline.
type Store interface {
	// Briefs
	SaveBrief(ctx context.Context, requestID, userID string, depth int, brief *model.FinalBrief) error
	GetBrief(ctx context.Context, requestID string) (*StoredBrief, error)
	ListBriefs(ctx context.Context, filter BriefFilter) ([]StoredBrief, error)

	// Follow-up context
	AppendContext(ctx context.Context, userID string, entry model.ContextEntry) error
	GetContext(ctx context.Context, userID string, limit int) ([]model.ContextEntry, error)

	// Search cache
	GetCachedSearch(ctx context.Context, topic string, depth int) ([]model.SearchResult, error)
	SetCachedSearch(ctx context.Context, topic string, depth int, results []model.SearchResult, ttl time.Duration) error
	DeleteExpiredSearches(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
