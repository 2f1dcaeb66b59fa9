package persist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"storedesign/internal/conflict"
	"storedesign/internal/domain"
)

// sqlSaver implements compare-and-set layout persistence over any SQL
// database. Queries are written with ? placeholders and rebound for
// postgres.
type sqlSaver struct {
	db      *sql.DB
	dialect string
}

func newSQLSaver(dialect, dsn string) (*sqlSaver, error) {
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	s := &sqlSaver{db: db, dialect: dialect}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlSaver) Close() error {
	return s.db.Close()
}

func (s *sqlSaver) ensureSchema() error {
	// VARCHAR keys instead of TEXT so the same DDL works on MySQL,
	// which refuses unbounded primary keys.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS store_layouts (
			store_id VARCHAR(64) PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 0,
			layout_json TEXT NOT NULL,
			author VARCHAR(128) NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS editor_presence (
			store_id VARCHAR(64) NOT NULL,
			editor_id VARCHAR(128) NOT NULL,
			last_activity TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (store_id, editor_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(s.rebind(stmt)); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $N for postgres.
func (s *sqlSaver) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlSaver) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	layout, err := encodeLayout(req.Blocks)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	now := time.Now()

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE store_layouts
		 SET version = version + 1, layout_json = ?, author = ?, updated_at = ?
		 WHERE store_id = ? AND version = ?`),
		string(layout), req.Author, now, req.StoreID, req.ExpectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("save layout: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("save layout: %w", err)
	}
	if affected == 1 {
		return &SaveResult{NewVersion: req.ExpectedVersion + 1}, nil
	}

	// Zero rows: either the store has no row yet, or someone else
	// bumped the version first.
	var currentVersion int
	var currentLayout string
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT version, layout_json FROM store_layouts WHERE store_id = ?`), req.StoreID,
	).Scan(&currentVersion, &currentLayout)
	if err == sql.ErrNoRows {
		if req.ExpectedVersion != 0 {
			return nil, &ConflictError{Version: 0, Blocks: []domain.Block{}}
		}
		_, err = s.db.ExecContext(ctx, s.rebind(
			`INSERT INTO store_layouts (store_id, version, layout_json, author, updated_at)
			 VALUES (?, ?, ?, ?, ?)`),
			req.StoreID, 1, string(layout), req.Author, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert layout: %w", err)
		}
		return &SaveResult{NewVersion: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current layout: %w", err)
	}

	remote, err := decodeLayout([]byte(currentLayout))
	if err != nil {
		return nil, fmt.Errorf("decode current layout: %w", err)
	}
	return nil, &ConflictError{Version: currentVersion, Blocks: remote}
}

func (s *sqlSaver) Load(ctx context.Context, storeID string) (*domain.DocumentVersion, error) {
	var version int
	var layout, author string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT version, layout_json, author, updated_at FROM store_layouts WHERE store_id = ?`), storeID,
	).Scan(&version, &layout, &author, &updatedAt)
	if err == sql.ErrNoRows {
		return &domain.DocumentVersion{Blocks: []domain.Block{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}

	blocks, err := decodeLayout([]byte(layout))
	if err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return &domain.DocumentVersion{
		Version:    version,
		Timestamp:  updatedAt,
		Blocks:     blocks,
		Author:     author,
		ChangeHash: domain.ChangeHash(blocks),
	}, nil
}

// ── Presence ────────────────────────────────────────────────

func (s *sqlSaver) Heartbeat(storeID, editorID string) error {
	now := time.Now()
	var query string
	if s.dialect == "mysql" {
		query = `INSERT INTO editor_presence (store_id, editor_id, last_activity) VALUES (?, ?, ?)
			 ON DUPLICATE KEY UPDATE last_activity = VALUES(last_activity)`
	} else {
		query = s.rebind(`INSERT INTO editor_presence (store_id, editor_id, last_activity) VALUES (?, ?, ?)
			 ON CONFLICT (store_id, editor_id) DO UPDATE SET last_activity = excluded.last_activity`)
	}
	_, err := s.db.Exec(query, storeID, editorID, now)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *sqlSaver) ActiveEditors(storeID string, since time.Time) ([]conflict.EditorPresence, error) {
	rows, err := s.db.Query(s.rebind(
		`SELECT editor_id, last_activity FROM editor_presence
		 WHERE store_id = ? AND last_activity >= ? ORDER BY editor_id`), storeID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("active editors: %w", err)
	}
	defer rows.Close()

	var editors []conflict.EditorPresence
	for rows.Next() {
		var e conflict.EditorPresence
		if err := rows.Scan(&e.EditorID, &e.LastActivity); err != nil {
			return nil, fmt.Errorf("scan editor: %w", err)
		}
		editors = append(editors, e)
	}
	return editors, rows.Err()
}
