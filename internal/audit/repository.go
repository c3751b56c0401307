// Package audit keeps the write journal: one row per parameter write
// requested from the CLI or the MQTT set topic, with its outcome.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Write outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped" // parameter name not in the catalog
	OutcomeFailed  = "failed"
)

const (
	// timeLayout is fixed width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	defaultLimit = 50
	maxLimit     = 200
)

// WriteEntry is one journal row.
type WriteEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Source    string    `json:"source"`
	ValueID   int64     `json:"value_id,omitempty"`
	BundleID  int64     `json:"bundle_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects journal rows. Empty fields match everything.
type Filter struct {
	Name    string
	Source  string
	Outcome string
	Limit   int // default 50, max 200
	Offset  int
}

// ListResult is a page of journal rows.
type ListResult struct {
	Entries []WriteEntry `json:"entries"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// Repository defines the interface for write journal operations.
type Repository interface {
	Create(ctx context.Context, entry *WriteEntry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the journal in the write_journal table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *WriteEntry) error {
	if entry.ID == "" {
		entry.ID = "wr-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeOK
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO write_journal (id, name, value, source, value_id, bundle_id, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Name, entry.Value, entry.Source,
		nullableInt(entry.ValueID), nullableInt(entry.BundleID),
		entry.Outcome, nullableString(entry.Error),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting write journal entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"name", filter.Name},
		{"source", filter.Source},
		{"outcome", filter.Outcome},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM write_journal " + where //nolint:gosec // WHERE built from fixed column names
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting write journal: %w", err)
	}

	query := "SELECT id, name, value, source, value_id, bundle_id, outcome, error, created_at FROM write_journal " + //nolint:gosec // WHERE built from fixed column names
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying write journal: %w", err)
	}
	defer rows.Close()

	entries := []WriteEntry{}
	for rows.Next() {
		var e WriteEntry
		var valueID, bundleID sql.NullInt64
		var errText sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Name, &e.Value, &e.Source,
			&valueID, &bundleID, &e.Outcome, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning write journal entry: %w", err)
		}
		e.ValueID = valueID.Int64
		e.BundleID = bundleID.Int64
		e.Error = errText.String

		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing write journal timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating write journal: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
