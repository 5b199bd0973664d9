// Package sqlite is the reference model.Repository implementation: one row
// per pattern in a seed_pattern table, with the pattern's blocks embedded as
// a JSON column. It follows the teacher's WAL-mode, single-writer-pool
// convention rather than introducing a second storage technology.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"patterngraph/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the repository's underlying SQLite connection.
type Config struct {
	DBPath string // path to the SQLite database file, e.g. "data/patterns.db"
}

// Repository is a single-writer SQLite-backed model.Repository.
type Repository struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (r *Repository) DB() *sql.DB { return r.db }

// New opens (or creates) the SQLite database at cfg.DBPath in WAL mode and
// ensures the schema exists.
func New(cfg Config) (*Repository, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under WAL; reads share
	// the same pool since pattern volume never justifies a second conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS seed_pattern (
			pattern_id     TEXT    PRIMARY KEY,
			ticker         TEXT    NOT NULL,
			mode           TEXT    NOT NULL,
			status         TEXT    NOT NULL,
			root_block_id  TEXT    NOT NULL,
			created_at     INTEGER NOT NULL,
			completed_at   INTEGER,
			block_features TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_seed_pattern_ticker_status
			ON seed_pattern (ticker, status);

		CREATE INDEX IF NOT EXISTS idx_seed_pattern_ticker_created
			ON seed_pattern (ticker, created_at);
	`)
	return err
}

// blockRow is the JSON shape stored in block_features.
type blockRow struct {
	BlockID        string        `json:"block_id"`
	BlockType      int           `json:"block_type"`
	Ticker         string        `json:"ticker"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	Status         string        `json:"status"`
	PeakPrice      float64       `json:"peak_price"`
	PeakVolume     int64         `json:"peak_volume"`
	PeakDate       time.Time     `json:"peak_date"`
	ParentBlockIDs []string      `json:"parent_block_ids,omitempty"`
	ExitReason     string        `json:"exit_reason,omitempty"`
}

func toBlockRows(blocks []model.Block) []blockRow {
	rows := make([]blockRow, len(blocks))
	for i, b := range blocks {
		rows[i] = blockRow{
			BlockID:        b.BlockID,
			BlockType:      b.BlockType,
			Ticker:         b.Ticker,
			StartedAt:      b.StartedAt,
			EndedAt:        b.EndedAt,
			Status:         string(b.Status),
			PeakPrice:      b.PeakPrice,
			PeakVolume:     b.PeakVolume,
			PeakDate:       b.PeakDate,
			ParentBlockIDs: b.ParentBlockIDs,
			ExitReason:     b.ExitReason,
		}
	}
	return rows
}

func fromBlockRows(rows []blockRow) []model.Block {
	blocks := make([]model.Block, len(rows))
	for i, r := range rows {
		blocks[i] = model.Block{
			BlockID:        r.BlockID,
			BlockType:      r.BlockType,
			Ticker:         r.Ticker,
			StartedAt:      r.StartedAt,
			EndedAt:        r.EndedAt,
			Status:         model.BlockStatus(r.Status),
			PeakPrice:      r.PeakPrice,
			PeakVolume:     r.PeakVolume,
			PeakDate:       r.PeakDate,
			ParentBlockIDs: r.ParentBlockIDs,
			ExitReason:     r.ExitReason,
		}
	}
	return blocks
}

// patternMode infers the SEED/HIGHLIGHT mode from a pattern id's prefix, for
// the informational mode column — the orchestrator that produced a pattern
// always stamps an id of that shape.
func patternMode(patternID string) string {
	for i, c := range patternID {
		if c == '_' {
			return patternID[:i]
		}
	}
	return ""
}

// Save upserts a single pattern.
func (r *Repository) Save(p *model.Pattern) error {
	rows := toBlockRows(p.Blocks())
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}

	var completedAt sql.NullInt64
	if p.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: p.CompletedAt.Unix(), Valid: true}
	}

	_, err = r.db.Exec(`
		INSERT INTO seed_pattern (pattern_id, ticker, mode, status, root_block_id, created_at, completed_at, block_features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			block_features = excluded.block_features
	`, p.PatternID, p.Ticker, patternMode(p.PatternID), string(p.Status), p.RootBlockID, p.CreatedAt.Unix(), completedAt, string(data))
	if err != nil {
		return fmt.Errorf("sqlite save pattern %s: %w", p.PatternID, err)
	}
	return nil
}

// SaveAll persists every pattern in a single transaction. Partial failure
// rolls the whole batch back — callers decide whether to retry or drop the
// completed patterns that failed to persist.
func (r *Repository) SaveAll(patterns []*model.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO seed_pattern (pattern_id, ticker, mode, status, root_block_id, created_at, completed_at, block_features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			block_features = excluded.block_features
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range patterns {
		rows := toBlockRows(p.Blocks())
		data, err := json.Marshal(rows)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal blocks for %s: %w", p.PatternID, err)
		}
		var completedAt sql.NullInt64
		if p.CompletedAt != nil {
			completedAt = sql.NullInt64{Int64: p.CompletedAt.Unix(), Valid: true}
		}
		if _, err := stmt.Exec(p.PatternID, p.Ticker, patternMode(p.PatternID), string(p.Status), p.RootBlockID, p.CreatedAt.Unix(), completedAt, string(data)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite save pattern %s: %w", p.PatternID, err)
		}
	}

	return tx.Commit()
}

// Delete removes a pattern by id, reporting whether a row existed.
func (r *Repository) Delete(patternID string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM seed_pattern WHERE pattern_id = ?`, patternID)
	if err != nil {
		return false, fmt.Errorf("sqlite delete pattern %s: %w", patternID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}
