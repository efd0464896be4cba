// Package dispatch serves the dispatch log over HTTP for supervisors and
// reporting jobs.
package dispatch

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/model"
)

// NewLogHandler returns an HTTP handler exposing dispatch logs via GET /api/dispatch/logs.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewLogHandler(store logging.LogStore, token string) http.Handler {
	return authorize(token, func(w http.ResponseWriter, r *http.Request) {
		q, ok := parseQuery(w, r)
		if !ok {
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
	})
}

// NewZoneStatsHandler returns a handler summarising the dispatch log per
// zone via GET /api/dispatch/zones. The window defaults to the last 24 hours.
func NewZoneStatsHandler(store logging.LogStore, zones []model.Zone, token string) http.Handler {
	return authorize(token, func(w http.ResponseWriter, r *http.Request) {
		q, ok := parseQuery(w, r)
		if !ok {
			return
		}
		if q.Start.IsZero() {
			q.Start = time.Now().Add(-24 * time.Hour)
		}
		records, err := store.Query(r.Context(), logging.LogQuery{Start: q.Start, End: q.End})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, logging.SummarizeZones(records, zones))
	})
}

func authorize(token string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func parseQuery(w http.ResponseWriter, r *http.Request) (logging.LogQuery, bool) {
	v := r.URL.Query()
	q := logging.LogQuery{
		Event:    logging.EventType(v.Get("event")),
		TaskID:   v.Get("task_id"),
		WorkerID: v.Get("worker_id"),
		Zone:     model.ZoneID(v.Get("zone")),
	}
	for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := v.Get(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid "+name+": "+err.Error(), http.StatusBadRequest)
			return q, false
		}
		*dst = t
	}
	return q, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
