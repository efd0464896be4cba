package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(base time.Time) []LogRecord {
	return []LogRecord{
		{Timestamp: base, Event: EventTaskCreated, TaskID: "t1", Zone: "lobby"},
		{Timestamp: base.Add(time.Second), Event: EventTaskAssigned, TaskID: "t1", WorkerID: "w1", Zone: "lobby", Score: 88.5},
		{Timestamp: base.Add(2 * time.Second), Event: EventTaskAck, TaskID: "t1", WorkerID: "w1", Data: map[string]any{"action": "seen"}},
		{Timestamp: base.Add(3 * time.Second), Event: EventWorkerZoneUpdate, WorkerID: "w2", Zone: "spa"},
	}
}

func exerciseStore(t *testing.T, s LogStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, r := range sampleRecords(base) {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, EventTaskCreated, all[0].Event)
	assert.Equal(t, "seen", all[2].Data["action"])

	byWorker, err := s.Query(ctx, LogQuery{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Len(t, byWorker, 2)

	byEvent, err := s.Query(ctx, LogQuery{Event: EventTaskAssigned, TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, byEvent, 1)
	assert.Equal(t, 88.5, byEvent[0].Score)

	window, err := s.Query(ctx, LogQuery{Start: base.Add(time.Second), End: base.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	byZone, err := s.Query(ctx, LogQuery{Zone: "spa"})
	require.NoError(t, err)
	assert.Len(t, byZone, 1)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "dispatch.log"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "dispatch.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	pad := make([]byte, 64*1024)
	for i := range pad {
		pad[i] = 'x'
	}
	rec := LogRecord{Timestamp: time.Now(), Event: EventWorkerSync, Data: map[string]any{"pad": string(pad)}}
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(context.Background(), rec))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "dispatch*.jsonl"))
	assert.Greater(t, len(files), 1, "expected rotated files")

	out, err := s.Query(context.Background(), LogQuery{Event: EventWorkerSync})
	require.NoError(t, err)
	assert.Len(t, out, 20)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore("file:dispatchlog?mode=memory&cache=shared")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: filepath.Join(dir, "a.log")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	s, err = Open(Config{Path: filepath.Join(dir, "b.log"), MaxSizeMB: 1})
	require.NoError(t, err)
	assert.IsType(t, &RotatingJSONLStore{}, s)
	_ = s.Close()

	s, err = Open(Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(Config{Backend: "kafka"})
	assert.Error(t, err)
}
