// Package sqlite persists classification history and human corrections.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ticketclassifier/internal/domain"
)

var ErrNotFound = errors.New("classification not found")

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS classification_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id       TEXT NOT NULL DEFAULT '',
	ticket_text      TEXT NOT NULL,
	category         TEXT NOT NULL,
	confidence       REAL NOT NULL,
	matched_patterns TEXT NOT NULL DEFAULT '[]',
	method           TEXT NOT NULL DEFAULT 'rules',
	llm_provider     TEXT DEFAULT '',
	llm_model        TEXT DEFAULT '',
	classified_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ch_date ON classification_history(classified_at);
CREATE INDEX IF NOT EXISTS idx_ch_category ON classification_history(category);
CREATE INDEX IF NOT EXISTS idx_ch_request ON classification_history(request_id);

CREATE TABLE IF NOT EXISTS classification_corrections (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	classification_id  INTEGER NOT NULL,
	original_category  TEXT NOT NULL,
	corrected_category TEXT NOT NULL,
	ticket_text        TEXT DEFAULT '',
	corrected_by       TEXT DEFAULT '',
	corrected_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cc_date ON classification_corrections(corrected_at);
`

// Open creates or migrates the database at path. ":memory:" works for tests
// that do not need a file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Second)
}

// InsertClassification stores r and returns its row ID.
func (s *Store) InsertClassification(ctx context.Context, r domain.ClassificationRecord) (int64, error) {
	patterns, err := encodePatterns(r.MatchedPatterns)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO classification_history
		 (request_id, ticket_text, category, confidence, matched_patterns, method, llm_provider, llm_model, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.TicketText, r.Category, r.Confidence, patterns,
		string(r.Method), r.LLMProvider, r.LLMModel, timestamp(r.ClassifiedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertClassifications stores records in one transaction and returns
// their row IDs in input order. Nothing is stored if any insert fails.
func (s *Store) InsertClassifications(ctx context.Context, records []domain.ClassificationRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO classification_history
		 (request_id, ticket_text, category, confidence, matched_patterns, method, llm_provider, llm_model, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, len(records))
	for i, r := range records {
		patterns, err := encodePatterns(r.MatchedPatterns)
		if err != nil {
			return nil, err
		}
		res, err := stmt.ExecContext(ctx,
			r.RequestID, r.TicketText, r.Category, r.Confidence, patterns,
			string(r.Method), r.LLMProvider, r.LLMModel, timestamp(r.ClassifiedAt),
		)
		if err != nil {
			return nil, err
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) GetClassification(ctx context.Context, id int64) (domain.ClassificationRecord, error) {
	var (
		r        domain.ClassificationRecord
		patterns string
		method   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, ticket_text, category, confidence, matched_patterns,
		        method, llm_provider, llm_model, classified_at
		 FROM classification_history
		 WHERE id = ?`,
		id,
	).Scan(
		&r.ID, &r.RequestID, &r.TicketText, &r.Category, &r.Confidence, &patterns,
		&method, &r.LLMProvider, &r.LLMModel, &r.ClassifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return r, err
	}
	r.Method = domain.Method(method)
	r.MatchedPatterns, err = decodePatterns(patterns)
	return r, err
}

func (s *Store) InsertCorrection(ctx context.Context, c domain.ClassificationCorrection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classification_corrections
		 (classification_id, original_category, corrected_category, ticket_text, corrected_by, corrected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ClassificationID, c.OriginalCategory, c.CorrectedCategory,
		c.TicketText, c.CorrectedBy, timestamp(c.CorrectedAt),
	)
	return err
}

func (s *Store) GetRecentCorrections(ctx context.Context, since time.Time, limit int) ([]domain.ClassificationCorrection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, classification_id, original_category, corrected_category,
		        ticket_text, corrected_by, corrected_at
		 FROM classification_corrections
		 WHERE corrected_at >= ?
		 ORDER BY corrected_at DESC, id DESC
		 LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClassificationCorrection
	for rows.Next() {
		var c domain.ClassificationCorrection
		if err := rows.Scan(
			&c.ID, &c.ClassificationID, &c.OriginalCategory, &c.CorrectedCategory,
			&c.TicketText, &c.CorrectedBy, &c.CorrectedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Stats ---

func (s *Store) GetClassificationStats(ctx context.Context, since time.Time) (domain.ClassificationStats, error) {
	var st domain.ClassificationStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0),
		        COALESCE(SUM(CASE WHEN confidence < 0.50 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.50 AND confidence < 0.70 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.70 AND confidence < 0.90 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.90 THEN 1 ELSE 0 END), 0)
		 FROM classification_history WHERE classified_at >= ?`,
		since.UTC(),
	).Scan(&st.TotalClassifications, &st.AvgConfidence,
		&st.BucketBelow50, &st.Bucket50to70, &st.Bucket70to90, &st.Bucket90Plus)
	if err != nil {
		return st, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM classification_corrections WHERE corrected_at >= ?`,
		since.UTC(),
	).Scan(&st.TotalCorrections)
	return st, err
}

// GetCategoryCounts returns per-category volume, busiest first.
func (s *Store) GetCategoryCounts(ctx context.Context, since time.Time) ([]domain.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) AS cnt, COALESCE(AVG(confidence), 0)
		 FROM classification_history
		 WHERE classified_at >= ?
		 GROUP BY category
		 ORDER BY cnt DESC, category ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count, &c.AvgConfidence); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCorrectionsByCategory(ctx context.Context, since time.Time) ([]domain.CategoryCorrectionStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT original_category, COUNT(*) AS cnt
		 FROM classification_corrections
		 WHERE corrected_at >= ?
		 GROUP BY original_category
		 ORDER BY cnt DESC, original_category ASC
		 LIMIT 10`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryCorrectionStat
	for rows.Next() {
		var c domain.CategoryCorrectionStat
		if err := rows.Scan(&c.OriginalCategory, &c.CorrectionCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetWeeklyClassificationTrend(ctx context.Context, since time.Time) ([]domain.WeeklyTrend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT
		    strftime('%Y-%m-%d', classified_at, 'weekday 0', '-6 days') AS week_start,
		    COUNT(*) AS classifications,
		    COALESCE(AVG(confidence), 0) AS avg_confidence
		 FROM classification_history
		 WHERE classified_at >= ?
		 GROUP BY week_start
		 ORDER BY week_start DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []domain.WeeklyTrend
	for rows.Next() {
		var t domain.WeeklyTrend
		if err := rows.Scan(&t.WeekStart, &t.Classifications, &t.AvgConfidence); err != nil {
			return nil, err
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	corrRows, err := s.db.QueryContext(ctx,
		`SELECT
		    strftime('%Y-%m-%d', corrected_at, 'weekday 0', '-6 days') AS week_start,
		    COUNT(*) AS corrections
		 FROM classification_corrections
		 WHERE corrected_at >= ?
		 GROUP BY week_start`,
		since.UTC(),
	)
	if err != nil {
		return trends, nil // non-fatal
	}
	defer corrRows.Close()

	corrMap := make(map[string]int)
	for corrRows.Next() {
		var ws string
		var cnt int
		if err := corrRows.Scan(&ws, &cnt); err != nil {
			continue
		}
		corrMap[ws] = cnt
	}
	for i := range trends {
		trends[i].Corrections = corrMap[trends[i].WeekStart]
	}
	return trends, nil
}

func encodePatterns(p []string) (string, error) {
	if p == nil {
		p = []string{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding matched patterns: %w", err)
	}
	return string(b), nil
}

func decodePatterns(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decoding matched patterns: %w", err)
	}
	return out, nil
}
