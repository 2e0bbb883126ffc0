package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"token_sync/internal/event"
)

// Journal is an append-only SQLite log of the events the sequencer accepted.
// It exists for diagnostics and deterministic replay; the engine never
// recovers from it at startup.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) a journal at dbPath with WAL mode enabled.
// ":memory:" keeps the journal in process memory.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Append stores an event keyed by its sequence number.
func (j *Journal) Append(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (id, type, ts, payload) VALUES (?, ?, ?, ?)",
		ev.GetSeq(), ev.GetType(), ev.GetTs(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %d: %w", ev.GetSeq(), err)
	}
	return nil
}

// LastSeq returns the highest sequence number stored, or 0 when empty.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := j.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil
	}
	return uint64(lastSeq.Int64), nil
}

// Load returns all events starting from fromSeq (inclusive), in order.
func (j *Journal) Load(ctx context.Context, fromSeq uint64) ([]event.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, type, payload FROM events WHERE id >= ? ORDER BY id ASC",
		fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var id int64
		var evType int
		var payload []byte

		if err := rows.Scan(&id, &evType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev, err := event.Unmarshal(event.Type(evType), payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", id, err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return events, nil
}

// Truncate deletes every stored event. A new run starts its sequence at 1
// again, so the previous run's log is cleared first.
func (j *Journal) Truncate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("failed to truncate journal: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
