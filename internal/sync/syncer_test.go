package syncx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gabicam/gabicam/internal/device"
	"github.com/gabicam/gabicam/internal/exam"
	syncx "github.com/gabicam/gabicam/internal/sync"
)

type fakeRemote struct {
	nextID  int64
	created []string
	updated []int64
	failOn  map[string]bool
}

func (f *fakeRemote) CreateExam(_ context.Context, name string, key []string, points *float64) (exam.Exam, error) {
	if f.failOn[name] {
		return exam.Exam{}, errors.New("server unavailable")
	}
	f.nextID++
	f.created = append(f.created, name)
	return exam.Exam{ID: f.nextID, Name: name, AnswerKey: key}, nil
}

func (f *fakeRemote) UpdateAnswerKey(_ context.Context, id int64, name string, key []string, _ *float64) (exam.Exam, error) {
	if f.failOn[name] {
		return exam.Exam{}, errors.New("server unavailable")
	}
	f.updated = append(f.updated, id)
	return exam.Exam{ID: id, Name: name, AnswerKey: key}, nil
}

func fixedClock() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

func TestSyncExam_CreatesAndRekeys(t *testing.T) {
	ctx := context.Background()
	cache := device.NewCache(device.NewMemoryKV())
	if err := cache.SaveExams(ctx, []device.Exam{{ID: "local-a", Name: "P1", SyncStatus: device.SyncPending}}); err != nil {
		t.Fatal(err)
	}
	remote := &fakeRemote{nextID: 40}
	s := syncx.New(cache, remote, fixedClock, nil)

	id, err := s.SyncExam(ctx, "local-a")
	if err != nil || id != "41" {
		t.Fatalf("SyncExam: id=%q err=%v", id, err)
	}
	e, err := cache.Exam(ctx, "41")
	if err != nil {
		t.Fatalf("exam not re-keyed: %v", err)
	}
	if e.ServerID != 41 || e.SyncStatus != device.SyncOK {
		t.Fatalf("unexpected exam: %+v", e)
	}
}

func TestSyncExam_UpdateAndSkipWithoutKey(t *testing.T) {
	ctx := context.Background()
	cache := device.NewCache(device.NewMemoryKV())
	if err := cache.SaveExams(ctx, []device.Exam{
		{ID: "7", ServerID: 7, Name: "Com gabarito", AnswerKey: []string{"A"}},
		{ID: "8", ServerID: 8, Name: "Sem gabarito"},
	}); err != nil {
		t.Fatal(err)
	}
	remote := &fakeRemote{}
	s := syncx.New(cache, remote, fixedClock, nil)
	if _, err := s.SyncExam(ctx, "7"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SyncExam(ctx, "8"); err != nil {
		t.Fatal(err)
	}
	if len(remote.updated) != 1 || remote.updated[0] != 7 {
		t.Fatalf("unexpected updates: %v", remote.updated)
	}
	if e, _ := cache.Exam(ctx, "8"); e.SyncStatus != device.SyncOK {
		t.Fatalf("exam without key should be marked ok: %+v", e)
	}
}

func TestSyncPending_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	cache := device.NewCache(device.NewMemoryKV())
	if err := cache.SaveExams(ctx, []device.Exam{
		{ID: "l1", Name: "falha", SyncStatus: device.SyncPending},
		{ID: "l2", Name: "ok", SyncStatus: device.SyncFailed},
		{ID: "3", ServerID: 3, Name: "já sincronizada", SyncStatus: device.SyncOK},
	}); err != nil {
		t.Fatal(err)
	}
	remote := &fakeRemote{nextID: 99, failOn: map[string]bool{"falha": true}}
	s := syncx.New(cache, remote, fixedClock, nil)

	n, err := s.SyncPending(ctx)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if n != 1 {
		t.Fatalf("expected 1 synced, got %d", n)
	}
	failed, err := cache.Exam(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if failed.SyncStatus != device.SyncFailed || failed.SyncError == "" {
		t.Fatalf("unexpected failed exam: %+v", failed)
	}
	if _, err := cache.Exam(ctx, "100"); err != nil {
		t.Fatalf("synced exam missing: %v", err)
	}
	if len(remote.created) != 1 {
		t.Fatalf("already synced exam was pushed again: %v", remote.created)
	}
}

// okFailing fails MarkSyncOK a set number of times.
type okFailing struct {
	*device.Cache
	fails int
}

func (s *okFailing) MarkSyncOK(ctx context.Context, id string, serverID int64) error {
	if s.fails > 0 {
		s.fails--
		return errors.New("kv write failed")
	}
	return s.Cache.MarkSyncOK(ctx, id, serverID)
}

func TestSyncExam_RetryAfterLocalFailureDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	cache := device.NewCache(device.NewMemoryKV())
	if err := cache.SaveExams(ctx, []device.Exam{{ID: "local-a", Name: "P1", AnswerKey: []string{"A"}, SyncStatus: device.SyncPending}}); err != nil {
		t.Fatal(err)
	}
	remote := &fakeRemote{nextID: 10}
	s := syncx.New(&okFailing{Cache: cache, fails: 1}, remote, fixedClock, nil)

	if _, err := s.SyncExam(ctx, "local-a"); err == nil {
		t.Fatal("expected error when the local commit fails")
	}
	e, err := cache.Exam(ctx, "local-a")
	if err != nil {
		t.Fatal(err)
	}
	if e.ServerID != 11 || e.SyncStatus != device.SyncPending {
		t.Fatalf("server id not kept after partial sync: %+v", e)
	}

	n, err := s.SyncPending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SyncPending: n=%d err=%v", n, err)
	}
	if len(remote.created) != 1 || len(remote.updated) != 1 || remote.updated[0] != 11 {
		t.Fatalf("retry should update, not create: created=%v updated=%v", remote.created, remote.updated)
	}
	if _, err := cache.Exam(ctx, "11"); err != nil {
		t.Fatalf("exam not re-keyed after retry: %v", err)
	}
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	s := syncx.New(device.NewCache(device.NewMemoryKV()), &fakeRemote{}, nil, nil)
	if _, err := syncx.NewScheduler(s, "not a spec", nil); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	sched, err := syncx.NewScheduler(s, "@every 1h", nil)
	if err != nil {
		t.Fatal(err)
	}
	sched.Start()
	sched.RunOnce()
	sched.Stop(context.Background())
}
