package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"

	_ "modernc.org/sqlite"
)

// sqliteRepo implements Repository backed by a local SQLite database
type sqliteRepo struct {
	db *sql.DB
}

// New opens (and if needed creates) the SQLite database at dbPath.
func New(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", dbPath))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}

	r := &sqliteRepo{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return r, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}

func (r *sqliteRepo) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fetches (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		target TEXT NOT NULL,
		sort TEXT,
		incomplete BOOLEAN NOT NULL DEFAULT 0,
		item_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		fetch_id TEXT NOT NULL REFERENCES fetches(id),
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		author TEXT,
		subreddit TEXT,
		score INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		title TEXT,
		body TEXT,
		permalink TEXT,
		url TEXT,
		raw TEXT,
		PRIMARY KEY (fetch_id, id)
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		source_item_ids TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_created_at ON fetches(created_at);
	CREATE INDEX IF NOT EXISTS idx_items_fetch_seq ON items(fetch_id, seq);
	CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return goerr.Wrap(err, "failed to migrate schema")
	}
	return nil
}

func (r *sqliteRepo) PutFetch(ctx context.Context, fetch *model.Fetch) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fetches (id, kind, target, sort, incomplete, item_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			incomplete = excluded.incomplete,
			item_count = excluded.item_count
	`, string(fetch.ID), string(fetch.Kind), fetch.Target, fetch.Sort,
		fetch.Incomplete, fetch.ItemCount, fetch.CreatedAt.UTC())
	if err != nil {
		return goerr.Wrap(err, "failed to save fetch", goerr.V("id", fetch.ID))
	}
	return nil
}

func (r *sqliteRepo) PutItems(ctx context.Context, fetchID model.FetchID, items []*model.HistoryItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (fetch_id, seq, id, type, author, subreddit, score,
			created_at, title, body, permalink, url, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fetch_id, id) DO NOTHING
	`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare item insert")
	}
	defer stmt.Close()

	for seq, item := range items {
		_, err := stmt.ExecContext(ctx, string(fetchID), seq, item.ID, string(item.Type),
			item.Author, item.Subreddit, item.Score, item.CreatedAt.UTC(),
			item.Title, item.Body, item.Permalink, item.URL, string(item.Raw))
		if err != nil {
			return goerr.Wrap(err, "failed to save item",
				goerr.V("fetch", fetchID), goerr.V("item", item.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit items", goerr.V("fetch", fetchID))
	}
	return nil
}

func (r *sqliteRepo) GetFetch(ctx context.Context, id model.FetchID) (*model.Fetch, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, kind, target, sort, incomplete, item_count, created_at
		FROM fetches WHERE id = ?
	`, string(id))

	fetch, err := scanFetch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "fetch not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get fetch", goerr.V("id", id))
	}
	return fetch, nil
}

func (r *sqliteRepo) ListFetches(ctx context.Context, offset, limit int) ([]*model.Fetch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, target, sort, incomplete, item_count, created_at
		FROM fetches
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list fetches")
	}
	defer rows.Close()

	var fetches []*model.Fetch
	for rows.Next() {
		fetch, err := scanFetch(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan fetch")
		}
		fetches = append(fetches, fetch)
	}
	return fetches, rows.Err()
}

func (r *sqliteRepo) GetItems(ctx context.Context, fetchID model.FetchID) ([]*model.HistoryItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, author, subreddit, score, created_at,
			title, body, permalink, url, raw
		FROM items
		WHERE fetch_id = ?
		ORDER BY seq
	`, string(fetchID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query items", goerr.V("fetch", fetchID))
	}
	defer rows.Close()

	var items []*model.HistoryItem
	for rows.Next() {
		var item model.HistoryItem
		var itemType, raw string
		var createdAt time.Time

		err := rows.Scan(&item.ID, &itemType, &item.Author, &item.Subreddit,
			&item.Score, &createdAt, &item.Title, &item.Body,
			&item.Permalink, &item.URL, &raw)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan item", goerr.V("fetch", fetchID))
		}

		item.Type = model.ItemType(itemType)
		item.CreatedAt = createdAt.UTC()
		if raw != "" {
			item.Raw = json.RawMessage(raw)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *sqliteRepo) PutAnalysis(ctx context.Context, analysis *model.AnalysisResult) error {
	sourceIDs, err := json.Marshal(analysis.SourceItemIDs)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal source item ids")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses (id, username, question, answer, source_item_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(analysis.ID), analysis.Username, analysis.Question,
		analysis.Answer, string(sourceIDs), analysis.CreatedAt.UTC())
	if err != nil {
		return goerr.Wrap(err, "failed to save analysis", goerr.V("id", analysis.ID))
	}
	return nil
}

func (r *sqliteRepo) GetAnalysis(ctx context.Context, id model.AnalysisID) (*model.AnalysisResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, question, answer, source_item_ids, created_at
		FROM analyses WHERE id = ?
	`, string(id))

	analysis, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "analysis not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("id", id))
	}
	return analysis, nil
}

func (r *sqliteRepo) ListAnalyses(ctx context.Context, offset, limit int) ([]*model.AnalysisResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, question, answer, source_item_ids, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list analyses")
	}
	defer rows.Close()

	var analyses []*model.AnalysisResult
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan analysis")
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFetch(row rowScanner) (*model.Fetch, error) {
	var fetch model.Fetch
	var id, kind string
	var createdAt time.Time

	err := row.Scan(&id, &kind, &fetch.Target, &fetch.Sort,
		&fetch.Incomplete, &fetch.ItemCount, &createdAt)
	if err != nil {
		return nil, err
	}

	fetch.ID = model.FetchID(id)
	fetch.Kind = model.TargetKind(kind)
	fetch.CreatedAt = createdAt.UTC()
	return &fetch, nil
}

func scanAnalysis(row rowScanner) (*model.AnalysisResult, error) {
	var analysis model.AnalysisResult
	var id, sourceIDs string
	var createdAt time.Time

	err := row.Scan(&id, &analysis.Username, &analysis.Question,
		&analysis.Answer, &sourceIDs, &createdAt)
	if err != nil {
		return nil, err
	}

	analysis.ID = model.AnalysisID(id)
	analysis.CreatedAt = createdAt.UTC()
	if sourceIDs != "" {
		if err := json.Unmarshal([]byte(sourceIDs), &analysis.SourceItemIDs); err != nil {
			return nil, err
		}
	}
	return &analysis, nil
}
