package device

import (
	"context"
	"fmt"
	"strconv"
)

// PendingExams lists exams whose last push did not complete.
func (c *Cache) PendingExams(ctx context.Context) ([]Exam, error) {
	exams, err := c.Exams(ctx)
	if err != nil {
		return nil, err
	}
	var out []Exam
	for _, e := range exams {
		if e.SyncStatus == SyncPending || e.SyncStatus == SyncFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Cache) MarkSyncPending(ctx context.Context, id string) error {
	return c.setSync(ctx, id, SyncPending, "")
}

func (c *Cache) MarkSyncFailed(ctx context.Context, id, lastErr string) error {
	return c.setSync(ctx, id, SyncFailed, lastErr)
}

// RecordServerID stores the server id of a freshly created exam without
// changing its id or status, so a retry updates instead of creating again.
func (c *Cache) RecordServerID(ctx context.Context, id string, serverID int64) error {
	return c.UpdateExams(ctx, func(exams []Exam) ([]Exam, error) {
		for i := range exams {
			if exams[i].ID == id {
				exams[i].ServerID = serverID
				return exams, nil
			}
		}
		return nil, fmt.Errorf("exam %s: %w", id, ErrNotFound)
	})
}

// MarkSyncOK records the server id of a pushed exam. A local id is replaced
// by the server id, and captures that pointed at the local id follow it.
func (c *Cache) MarkSyncOK(ctx context.Context, id string, serverID int64) error {
	newID := strconv.FormatInt(serverID, 10)
	if err := c.UpdateExams(ctx, func(exams []Exam) ([]Exam, error) {
		for i := range exams {
			if exams[i].ID == id {
				exams[i].ID = newID
				exams[i].ServerID = serverID
				exams[i].SyncStatus = SyncOK
				exams[i].SyncError = ""
				return exams, nil
			}
		}
		return nil, fmt.Errorf("exam %s: %w", id, ErrNotFound)
	}); err != nil {
		return err
	}
	if newID == id {
		return nil
	}
	return c.UpdateCaptures(ctx, func(caps []Capture) ([]Capture, error) {
		for i := range caps {
			if caps[i].ExamID == id {
				caps[i].ExamID = newID
			}
		}
		return caps, nil
	})
}

func (c *Cache) setSync(ctx context.Context, id, status, lastErr string) error {
	return c.UpdateExams(ctx, func(exams []Exam) ([]Exam, error) {
		for i := range exams {
			if exams[i].ID == id {
				exams[i].SyncStatus = status
				exams[i].SyncError = lastErr
				return exams, nil
			}
		}
		return nil, fmt.Errorf("exam %s: %w", id, ErrNotFound)
	})
}
