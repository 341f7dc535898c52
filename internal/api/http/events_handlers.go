package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	syncx "github.com/gabicam/gabicam/internal/sync"
)

// EventLog is implemented by syncx.EventRepo.
type EventLog interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// GET /api/admin/eventos?after=<seq>&limit=<n>
func ListEventsHandler(events EventLog, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		evs, err := events.Since(r.Context(), after, limit)
		if err != nil {
			internalError(w, log, "list events", err, "after", after)
			return
		}
		if evs == nil {
			evs = []syncx.Event{}
		}
		next := after
		if len(evs) > 0 {
			next = evs[len(evs)-1].Seq
		}
		writeJSON(w, http.StatusOK, map[string]any{"eventos": evs, "next": next})
	}
}
