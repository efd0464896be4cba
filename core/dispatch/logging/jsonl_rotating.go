package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingJSONLStore stores logs in a JSONL file with automatic rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingJSONLStore) Append(ctx context.Context, rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.NewEncoder(s.logger).Encode(rec)
}

// Query reads the active file and every rotated backup, oldest first.
func (s *RotatingJSONLStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ext := filepath.Ext(s.path)
	backups, err := filepath.Glob(s.path[:len(s.path)-len(ext)] + "-*" + ext)
	if err != nil {
		return nil, err
	}
	// lumberjack timestamps sort lexically.
	sort.Strings(backups)
	var res []LogRecord
	for _, f := range append(backups, s.path) {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		res, err = scanRecords(ctx, file, q, res)
		_ = file.Close()
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error {
	return s.logger.Close()
}
