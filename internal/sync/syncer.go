package syncx

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gabicam/gabicam/internal/device"
	"github.com/gabicam/gabicam/internal/exam"
)

type Clock func() time.Time

// Store is the device-side view the syncer needs; device.Cache implements it.
type Store interface {
	Exam(ctx context.Context, id string) (device.Exam, error)
	PendingExams(ctx context.Context) ([]device.Exam, error)

	MarkSyncPending(ctx context.Context, id string) error
	RecordServerID(ctx context.Context, id string, serverID int64) error
	MarkSyncOK(ctx context.Context, id string, serverID int64) error
	MarkSyncFailed(ctx context.Context, id, lastErr string) error
}

// Remote is the server API; client.Client implements it.
type Remote interface {
	CreateExam(ctx context.Context, name string, key []string, points *float64) (exam.Exam, error)
	UpdateAnswerKey(ctx context.Context, examID int64, name string, key []string, points *float64) (exam.Exam, error)
}

type Syncer struct {
	Store  Store
	Remote Remote
	Now    Clock
	Log    *slog.Logger
}

func New(store Store, remote Remote, now Clock, log *slog.Logger) *Syncer {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{Store: store, Remote: remote, Now: now, Log: log}
}

// SyncExam pushes one local exam to the server. Exams without a server id are
// created; the others get their name, answer key and point value overwritten
// (last write wins). On success the local copy is re-keyed to the server id,
// which is returned as the exam's new cache id.
func (s *Syncer) SyncExam(ctx context.Context, id string) (string, error) {
	e, err := s.Store.Exam(ctx, id)
	if err != nil {
		return id, err
	}
	if err := s.Store.MarkSyncPending(ctx, id); err != nil {
		s.Log.Warn("mark exam pending failed", "exam_id", id, "err", err)
	}

	serverID := e.ServerID
	switch {
	case serverID == 0:
		created, err := s.Remote.CreateExam(ctx, e.Name, e.AnswerKey, e.PointsPerQuestion)
		if err != nil {
			s.markFailed(ctx, id, err)
			return id, err
		}
		serverID = created.ID
		if err := s.Store.RecordServerID(ctx, id, serverID); err != nil {
			s.Log.Error("exam created on server but its id was not stored locally", "exam_id", id, "server_id", serverID, "err", err)
			return id, err
		}
	case len(e.AnswerKey) == 0:
		// the server only accepts updates that carry an answer key
		s.Log.Debug("exam has no answer key, server copy left unchanged", "exam_id", id)
	default:
		if _, err := s.Remote.UpdateAnswerKey(ctx, serverID, e.Name, e.AnswerKey, e.PointsPerQuestion); err != nil {
			s.markFailed(ctx, id, err)
			return id, err
		}
	}
	if err := s.Store.MarkSyncOK(ctx, id, serverID); err != nil {
		s.Log.Warn("mark exam synced failed", "exam_id", id, "server_id", serverID, "err", err)
		return id, err
	}
	return strconv.FormatInt(serverID, 10), nil
}

func (s *Syncer) markFailed(ctx context.Context, id string, cause error) {
	if err := s.Store.MarkSyncFailed(ctx, id, cause.Error()); err != nil {
		s.Log.Warn("recording sync failure failed", "exam_id", id, "cause", cause, "err", err)
	}
}

// SyncPending pushes every exam whose last sync did not complete. It keeps
// going after a failure and returns the joined errors.
func (s *Syncer) SyncPending(ctx context.Context) (synced int, err error) {
	pending, err := s.Store.PendingExams(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, e := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.SyncExam(ctx, e.ID); err != nil {
			s.Log.Warn("exam sync failed", "exam_id", e.ID, "name", e.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		synced++
	}
	if synced > 0 || len(errs) > 0 {
		s.Log.Info("pending exams synced", "synced", synced, "failed", len(errs), "at", s.Now().Format(time.RFC3339))
	}
	return synced, errors.Join(errs...)
}
