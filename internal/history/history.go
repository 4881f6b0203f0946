package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout sorts lexically in SQLite.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// ErrInvalidFilter is returned for queries that cannot be satisfied.
var ErrInvalidFilter = errors.New("history: invalid filter")

// Entry is one recorded parameter change.
type Entry struct {
	ID        int64        `json:"id"`
	DeviceID  string       `json:"device_id"`
	ChannelID string       `json:"channel_id"`
	Parameter string       `json:"parameter"`
	Value     any          `json:"value"`
	Source    mixer.Source `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
}

// Filter narrows a history query. Empty fields match everything.
type Filter struct {
	DeviceID  string
	ChannelID string
	Parameter string
	Since     time.Time
	Limit     int
}

// Repository stores and retrieves parameter change history.
//
// Implementations must be safe for concurrent use and store UTC timestamps.
type Repository interface {
	Record(ctx context.Context, changes []mixer.ParameterChange) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the parameter_changes table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts changes in one transaction.
func (r *SQLiteRepository) Record(ctx context.Context, changes []mixer.ParameterChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO parameter_changes (device_id, channel_id, parameter, value, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		if c.DeviceID == "" || c.ChannelID == "" {
			return fmt.Errorf("recording %s: device and channel are required", c.Parameter)
		}
		value, err := json.Marshal(c.Value)
		if err != nil {
			return fmt.Errorf("marshalling value of %s: %w", c.Parameter, err)
		}
		source := c.Source
		if source == "" {
			source = mixer.SourceAPI
		}
		ts := c.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			c.DeviceID, c.ChannelID, c.Parameter, string(value), string(source), ts.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("inserting parameter change: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first. Limit defaults to 50 and
// is capped at 500.
func (r *SQLiteRepository) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if f.ChannelID != "" && f.DeviceID == "" && strings.Contains(f.ChannelID, ":") {
		k := mixer.ParseChannelKey(f.ChannelID)
		f.DeviceID, f.ChannelID = k.DeviceID, k.ChannelID
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	limit := f.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	var where []string
	var args []any
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.DeviceID != "" {
		add("device_id = ?", f.DeviceID)
	}
	if f.ChannelID != "" {
		add("channel_id = ?", f.ChannelID)
	}
	if f.Parameter != "" {
		add("parameter = ?", f.Parameter)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC().Format(timeLayout))
	}

	query := "SELECT id, device_id, channel_id, parameter, value, source, created_at FROM parameter_changes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var value, source, createdAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.ChannelID, &e.Parameter, &value, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if err := json.Unmarshal([]byte(value), &e.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling value: %w", err)
		}
		e.Source = mixer.Source(source)
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given age.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: olderThan must be positive", ErrInvalidFilter)
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM parameter_changes WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
