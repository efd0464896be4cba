package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/model"
)

func seededStore(t *testing.T) logging.LogStore {
	t.Helper()
	st, err := logging.NewJSONLStore(filepath.Join(t.TempDir(), "dispatch.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()
	for _, rec := range []logging.LogRecord{
		{Timestamp: now.Add(-3 * time.Minute), Event: logging.EventTaskCreated, TaskID: "t1", Zone: "L2-W"},
		{Timestamp: now.Add(-2 * time.Minute), Event: logging.EventTaskAssigned, TaskID: "t1", WorkerID: "ana", Zone: "L2-W", Score: 81},
		{Timestamp: now.Add(-time.Minute), Event: logging.EventTaskAck, TaskID: "t1", WorkerID: "ana", Zone: "L2-W"},
		{Timestamp: now, Event: logging.EventTaskAssigned, TaskID: "t2", WorkerID: "ben", Zone: "L1-LOBBY", Score: 64},
	} {
		require.NoError(t, st.Append(ctx, rec))
	}
	return st
}

func get(h http.Handler, url, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLogHandler_AuthAndFilters(t *testing.T) {
	h := NewLogHandler(seededStore(t), "tok")

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/dispatch/logs", "").Code)

	rr := get(h, "/api/dispatch/logs?worker_id=ana", "tok")
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []logging.LogRecord
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&recs))
	assert.Len(t, recs, 2)

	rr = get(h, "/api/dispatch/logs?event=task_assigned&zone=L1-LOBBY", "tok")
	require.Equal(t, http.StatusOK, rr.Code)
	recs = nil
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "t2", recs[0].TaskID)

	assert.Equal(t, http.StatusBadRequest, get(h, "/api/dispatch/logs?start=yesterday", "tok").Code)
}

func TestLogHandler_RejectsWrites(t *testing.T) {
	h := NewLogHandler(seededStore(t), "")
	req := httptest.NewRequest(http.MethodPost, "/api/dispatch/logs", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestZoneStatsHandler(t *testing.T) {
	zones := []model.Zone{{ID: "L1-LOBBY", Name: "Lobby"}, {ID: "L2-W", Name: "West wing"}, {ID: "POOL"}}
	h := NewZoneStatsHandler(seededStore(t), zones, "")

	rr := get(h, "/api/dispatch/zones", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats []logging.ZoneMetrics
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	require.Len(t, stats, 3)
	byZone := map[model.ZoneID]logging.ZoneMetrics{}
	for _, s := range stats {
		byZone[s.Zone] = s
	}
	assert.Zero(t, byZone["POOL"].Volume)
	require.NotNil(t, byZone["L2-W"].AvgResponseSeconds)
	assert.Equal(t, 60, *byZone["L2-W"].AvgResponseSeconds)
}
