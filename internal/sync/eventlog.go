package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gabicam/gabicam/internal/db"
)

type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"tipo"`
	Ref       string `json:"ref"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

type EventRepo struct {
	db     *sql.DB
	driver db.Driver
	siteID string
	now    func() time.Time
}

func NewEventRepo(dbh *sql.DB, driver db.Driver, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: dbh, driver: driver, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	_, err := r.db.ExecContext(ctx,
		db.Rebind(r.driver, `INSERT INTO event_log (site_id, typ, ref, data, created_at) VALUES (?,?,?,?,?)`),
		e.SiteID, e.Type, e.Ref, e.DataJSON, r.now().Unix())
	return err
}

// AppendEvent encodes data as JSON and appends it under typ/ref.
func (r *EventRepo) AppendEvent(ctx context.Context, typ, ref string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return r.Append(ctx, Event{Type: typ, Ref: ref, DataJSON: string(b)})
}

// Since returns up to limit events with a sequence number greater than after.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		db.Rebind(r.driver, `SELECT seq, site_id, typ, ref, data, created_at FROM event_log WHERE seq > ? ORDER BY seq LIMIT ?`),
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Ref, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
