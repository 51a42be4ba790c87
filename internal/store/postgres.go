package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS briefs (
	request_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	topic      TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	brief      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS context_history (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	entry      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	topic      TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	results    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_briefs_user_id ON briefs(user_id);
CREATE INDEX IF NOT EXISTS idx_briefs_topic ON briefs(topic);
CREATE INDEX IF NOT EXISTS idx_context_history_user_id ON context_history(user_id);
CREATE INDEX IF NOT EXISTS idx_search_cache_topic_depth ON search_cache(topic, depth, expires_at DESC);
CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveBrief(ctx context.Context, requestID, userID string, depth int, brief *model.FinalBrief) error {
	briefJSON, err := json.Marshal(brief)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal brief")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO briefs (request_id, user_id, topic, depth, brief, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		requestID, userID, brief.Topic, depth, string(briefJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert brief %s", requestID)
}

func (s *PostgresStore) GetBrief(ctx context.Context, requestID string) (*StoredBrief, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT request_id, user_id, topic, depth, brief, created_at FROM briefs WHERE request_id = $1`,
		requestID,
	)

	var sb StoredBrief
	var briefJSON string
	err := row.Scan(&sb.RequestID, &sb.UserID, &sb.Topic, &sb.Depth, &briefJSON, &sb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "brief %s", requestID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get brief")
	}
	if err := json.Unmarshal([]byte(briefJSON), &sb.Brief); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal brief")
	}
	return &sb, nil
}

func (s *PostgresStore) ListBriefs(ctx context.Context, filter BriefFilter) ([]StoredBrief, error) {
	query := `SELECT request_id, user_id, topic, depth, brief, created_at FROM briefs WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += ` AND user_id = $1`
	}
	if filter.Topic != "" {
		args = append(args, filter.Topic)
		query += ` AND topic = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list briefs")
	}
	defer rows.Close()

	var briefs []StoredBrief
	for rows.Next() {
		var sb StoredBrief
		var briefJSON string
		if err := rows.Scan(&sb.RequestID, &sb.UserID, &sb.Topic, &sb.Depth, &briefJSON, &sb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan brief")
		}
		if err := json.Unmarshal([]byte(briefJSON), &sb.Brief); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal brief")
		}
		briefs = append(briefs, sb)
	}
	return briefs, eris.Wrap(rows.Err(), "postgres: list briefs iterate")
}

func (s *PostgresStore) AppendContext(ctx context.Context, userID string, entry model.ContextEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal context entry")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO context_history (id, user_id, entry, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, string(entryJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: append context for %s", userID)
}

func (s *PostgresStore) GetContext(ctx context.Context, userID string, limit int) ([]model.ContextEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT entry FROM context_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get context")
	}
	defer rows.Close()

	var entries []model.ContextEntry
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan context entry")
		}
		var entry model.ContextEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal context entry")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: get context iterate")
}

func (s *PostgresStore) GetCachedSearch(ctx context.Context, topic string, depth int) ([]model.SearchResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT results FROM search_cache
		 WHERE topic = $1 AND depth = $2 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		topic, depth,
	)

	var resultsJSON string
	err := row.Scan(&resultsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached search")
	}

	var results []model.SearchResult
	if err := json.Unmarshal([]byte(resultsJSON), &results); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached results")
	}
	return results, nil
}

func (s *PostgresStore) SetCachedSearch(ctx context.Context, topic string, depth int, results []model.SearchResult, ttl time.Duration) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_cache (id, topic, depth, results, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), topic, depth, string(resultsJSON), now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached search")
}

func (s *PostgresStore) DeleteExpiredSearches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired searches")
	}
	return int(tag.RowsAffected()), nil
}

