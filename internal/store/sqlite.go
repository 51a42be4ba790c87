package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/research-brief/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS briefs (
	request_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	topic      TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	brief      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS context_history (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	entry      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_cache (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	depth      INTEGER NOT NULL,
	results    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_briefs_user_id ON briefs(user_id);
CREATE INDEX IF NOT EXISTS idx_briefs_topic ON briefs(topic);
CREATE INDEX IF NOT EXISTS idx_context_history_user_id ON context_history(user_id);
CREATE INDEX IF NOT EXISTS idx_search_cache_topic_depth ON search_cache(topic, depth);
CREATE INDEX IF NOT EXISTS idx_search_cache_expires_at ON search_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveBrief(ctx context.Context, requestID, userID string, depth int, brief *model.FinalBrief) error {
	briefJSON, err := json.Marshal(brief)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal brief")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO briefs (request_id, user_id, topic, depth, brief, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		requestID, userID, brief.Topic, depth, string(briefJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert brief %s", requestID)
}

func (s *SQLiteStore) GetBrief(ctx context.Context, requestID string) (*StoredBrief, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT request_id, user_id, topic, depth, brief, created_at FROM briefs WHERE request_id = ?`,
		requestID,
	)

	var sb StoredBrief
	var briefJSON string
	err := row.Scan(&sb.RequestID, &sb.UserID, &sb.Topic, &sb.Depth, &briefJSON, &sb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "brief %s", requestID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get brief")
	}
	if err := json.Unmarshal([]byte(briefJSON), &sb.Brief); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal brief")
	}
	return &sb, nil
}

func (s *SQLiteStore) ListBriefs(ctx context.Context, filter BriefFilter) ([]StoredBrief, error) {
	query := `SELECT request_id, user_id, topic, depth, brief, created_at FROM briefs WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, filter.Topic)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list briefs")
	}
	defer rows.Close()

	var briefs []StoredBrief
	for rows.Next() {
		var sb StoredBrief
		var briefJSON string
		if err := rows.Scan(&sb.RequestID, &sb.UserID, &sb.Topic, &sb.Depth, &briefJSON, &sb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brief")
		}
		if err := json.Unmarshal([]byte(briefJSON), &sb.Brief); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal brief")
		}
		briefs = append(briefs, sb)
	}
	return briefs, eris.Wrap(rows.Err(), "sqlite: list briefs iterate")
}

func (s *SQLiteStore) AppendContext(ctx context.Context, userID string, entry model.ContextEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal context entry")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO context_history (id, user_id, entry, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), userID, string(entryJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: append context for %s", userID)
}

func (s *SQLiteStore) GetContext(ctx context.Context, userID string, limit int) ([]model.ContextEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM context_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get context")
	}
	defer rows.Close()

	var entries []model.ContextEntry
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan context entry")
		}
		var entry model.ContextEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal context entry")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: get context iterate")
}

func (s *SQLiteStore) GetCachedSearch(ctx context.Context, topic string, depth int) ([]model.SearchResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT results FROM search_cache
		 WHERE topic = ? AND depth = ? AND expires_at > datetime('now')
		 ORDER BY cached_at DESC LIMIT 1`,
		topic, depth,
	)

	var resultsJSON string
	err := row.Scan(&resultsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached search")
	}

	var results []model.SearchResult
	if err := json.Unmarshal([]byte(resultsJSON), &results); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached results")
	}
	return results, nil
}

func (s *SQLiteStore) SetCachedSearch(ctx context.Context, topic string, depth int, results []model.SearchResult, ttl time.Duration) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_cache (id, topic, depth, results, cached_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), topic, depth, string(resultsJSON), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached search")
}

func (s *SQLiteStore) DeleteExpiredSearches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired searches")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}
