package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists logs to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS dispatch_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER NOT NULL,
        event TEXT NOT NULL,
        task_id TEXT,
        worker_id TEXT,
        zone TEXT,
        record TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS dispatch_events_ts ON dispatch_events(ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec LogRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatch_events (ts, event, task_id, worker_id, zone, record) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), string(rec.Event), rec.TaskID, rec.WorkerID, string(rec.Zone), string(b))
	return err
}

// Query returns records matching q in timestamp order.
func (s *SQLiteStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	var args []any
	query := `SELECT record FROM dispatch_events WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	for col, v := range map[string]string{"event": string(q.Event), "task_id": q.TaskID, "worker_id": q.WorkerID, "zone": string(q.Zone)} {
		if v != "" {
			query += ` AND ` + col + ` = ?`
			args = append(args, v)
		}
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []LogRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r LogRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
