package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"patterngraph/internal/model"
)

func scanPattern(rows interface {
	Scan(dest ...interface{}) error
}) (*model.Pattern, error) {
	var (
		patternID, ticker, status, rootBlockID, blockFeatures string
		createdAtUnix                                         int64
		completedAtUnix                                       sql.NullInt64
	)
	if err := rows.Scan(&patternID, &ticker, &status, &rootBlockID, &createdAtUnix, &completedAtUnix, &blockFeatures); err != nil {
		return nil, err
	}

	var blockRows []blockRow
	if err := json.Unmarshal([]byte(blockFeatures), &blockRows); err != nil {
		return nil, fmt.Errorf("unmarshal block_features for %s: %w", patternID, err)
	}

	var completedAt *time.Time
	if completedAtUnix.Valid {
		t := time.Unix(completedAtUnix.Int64, 0).UTC()
		completedAt = &t
	}

	return model.Rehydrate(
		patternID, ticker, rootBlockID,
		model.PatternStatus(status),
		time.Unix(createdAtUnix, 0).UTC(),
		completedAt,
		fromBlockRows(blockRows),
	), nil
}

// FindByID loads a single pattern by its id.
func (r *Repository) FindByID(patternID string) (*model.Pattern, bool, error) {
	row := r.db.QueryRow(`
		SELECT pattern_id, ticker, status, root_block_id, created_at, completed_at, block_features
		FROM seed_pattern WHERE pattern_id = ?
	`, patternID)

	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite find pattern %s: %w", patternID, err)
	}
	return p, true, nil
}

// FindByTicker loads every pattern for ticker, optionally filtered to one
// status, ordered by created_at ascending.
func (r *Repository) FindByTicker(ticker string, status *model.PatternStatus) ([]*model.Pattern, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = r.db.Query(`
			SELECT pattern_id, ticker, status, root_block_id, created_at, completed_at, block_features
			FROM seed_pattern WHERE ticker = ? AND status = ? ORDER BY created_at ASC
		`, ticker, string(*status))
	} else {
		rows, err = r.db.Query(`
			SELECT pattern_id, ticker, status, root_block_id, created_at, completed_at, block_features
			FROM seed_pattern WHERE ticker = ? ORDER BY created_at ASC
		`, ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query by ticker %s: %w", ticker, err)
	}
	defer rows.Close()
	return scanPatterns(rows)
}

// FindByDateRange loads every pattern for ticker whose created_at falls in
// [from, to] inclusive, ordered by created_at ascending.
func (r *Repository) FindByDateRange(ticker string, from, to time.Time) ([]*model.Pattern, error) {
	rows, err := r.db.Query(`
		SELECT pattern_id, ticker, status, root_block_id, created_at, completed_at, block_features
		FROM seed_pattern
		WHERE ticker = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC
	`, ticker, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query by date range: %w", err)
	}
	defer rows.Close()
	return scanPatterns(rows)
}

func scanPatterns(rows *sql.Rows) ([]*model.Pattern, error) {
	var out []*model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Exists reports whether a pattern id has a row.
func (r *Repository) Exists(patternID string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT 1 FROM seed_pattern WHERE pattern_id = ?`, patternID).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite exists %s: %w", patternID, err)
	}
	return true, nil
}
