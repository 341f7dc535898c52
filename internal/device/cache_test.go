package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gabicam/gabicam/internal/device"
	"github.com/redis/go-redis/v9"
)

func newRedisKV(t *testing.T) (*device.RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return device.NewRedisKV(client, "dev1:"), mr
}

func backends(t *testing.T) map[string]device.KV {
	kv, _ := newRedisKV(t)
	return map[string]device.KV{
		"memory": device.NewMemoryKV(),
		"redis":  kv,
	}
}

func TestKV_Backends(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := kv.Get(ctx, "a"); err != nil || ok {
				t.Fatalf("missing key: ok=%v err=%v", ok, err)
			}
			if err := kv.Set(ctx, "a", "1"); err != nil {
				t.Fatal(err)
			}
			if err := kv.Set(ctx, "b", "2"); err != nil {
				t.Fatal(err)
			}
			v, ok, err := kv.Get(ctx, "a")
			if err != nil || !ok || v != "1" {
				t.Fatalf("Get a = %q %v %v", v, ok, err)
			}
			m, err := kv.MultiGet(ctx, "a", "b", "c")
			if err != nil {
				t.Fatal(err)
			}
			if len(m) != 2 || m["b"] != "2" {
				t.Fatalf("MultiGet = %v", m)
			}
			if err := kv.MultiRemove(ctx, "a", "b"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := kv.Get(ctx, "b"); ok {
				t.Fatal("b still present")
			}
		})
	}
}

func TestRedisKV_Prefix(t *testing.T) {
	ctx := context.Background()
	kv, mr := newRedisKV(t)
	if err := kv.Set(ctx, device.KeyExams, "[]"); err != nil {
		t.Fatal(err)
	}
	if got, err := mr.Get("dev1:" + device.KeyExams); err != nil || got != "[]" {
		t.Fatalf("raw key = %q err=%v", got, err)
	}
}

func TestCache_ExamsAndCaptures(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := device.NewCache(kv)
			exams, err := c.Exams(ctx)
			if err != nil || len(exams) != 0 {
				t.Fatalf("empty exams: %v %v", exams, err)
			}
			if err := c.SaveExams(ctx, []device.Exam{{ID: "1", Name: "P1"}}); err != nil {
				t.Fatal(err)
			}
			if err := c.SaveCaptures(ctx, []device.Capture{{ID: "c1", ExamID: "1", Status: device.StatusPending}}); err != nil {
				t.Fatal(err)
			}
			if _, err := c.Exam(ctx, "2"); !errors.Is(err, device.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			res := &device.Outcome{Correct: 8, Total: 10, Score: 8}
			if err := c.SetCaptureStatus(ctx, "c1", device.StatusGraded, res); err != nil {
				t.Fatal(err)
			}
			cp, err := c.Capture(ctx, "c1")
			if err != nil {
				t.Fatal(err)
			}
			if cp.Status != device.StatusGraded || cp.Result == nil || cp.Result.Score != 8 {
				t.Fatalf("unexpected capture: %+v", cp)
			}

			dump, err := c.Dump(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(dump) != 2 || dump[0].Key != device.KeyExams || string(dump[1].Value) == "null" {
				t.Fatalf("unexpected dump: %+v", dump)
			}

			if err := c.ClearCaptures(ctx); err != nil {
				t.Fatal(err)
			}
			caps, _ := c.Captures(ctx)
			exams, _ = c.Exams(ctx)
			if len(caps) != 0 || len(exams) != 1 {
				t.Fatalf("ClearCaptures: caps=%d exams=%d", len(caps), len(exams))
			}
			if err := c.ClearAll(ctx); err != nil {
				t.Fatal(err)
			}
			exams, _ = c.Exams(ctx)
			if len(exams) != 0 {
				t.Fatalf("ClearAll left %d exams", len(exams))
			}
		})
	}
}

func TestCache_Session(t *testing.T) {
	ctx := context.Background()
	c := device.NewCache(device.NewMemoryKV())
	s, err := c.Session(ctx)
	if err != nil || s.LoggedIn() {
		t.Fatalf("expected empty session, got %+v %v", s, err)
	}
	if err := c.SetSession(ctx, device.SessionUser{ID: 3, Registration: "123", Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveExams(ctx, []device.Exam{{ID: "1"}}); err != nil {
		t.Fatal(err)
	}
	// clearing data keeps the session
	if err := c.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	s, err = c.Session(ctx)
	if err != nil || !s.LoggedIn() || s.Registration != "123" || s.User.Name != "Ana" {
		t.Fatalf("unexpected session: %+v %v", s, err)
	}
	if err := c.ClearSession(ctx); err != nil {
		t.Fatal(err)
	}
	if s, _ = c.Session(ctx); s.LoggedIn() {
		t.Fatal("session survived ClearSession")
	}
}

func TestCache_MarkSyncOKRekeys(t *testing.T) {
	ctx := context.Background()
	c := device.NewCache(device.NewMemoryKV())
	if err := c.SaveExams(ctx, []device.Exam{
		{ID: "local-1", Name: "P1", SyncStatus: device.SyncPending},
		{ID: "9", Name: "P2", ServerID: 9, SyncStatus: device.SyncOK},
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveCaptures(ctx, []device.Capture{{ID: "c1", ExamID: "local-1"}}); err != nil {
		t.Fatal(err)
	}
	pending, err := c.PendingExams(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingExams = %v %v", pending, err)
	}
	if err := c.MarkSyncFailed(ctx, "local-1", "boom"); err != nil {
		t.Fatal(err)
	}
	if e, _ := c.Exam(ctx, "local-1"); e.SyncStatus != device.SyncFailed || e.SyncError != "boom" {
		t.Fatalf("unexpected failed exam: %+v", e)
	}
	if err := c.MarkSyncOK(ctx, "local-1", 42); err != nil {
		t.Fatal(err)
	}
	e, err := c.Exam(ctx, "42")
	if err != nil || e.ServerID != 42 || e.SyncStatus != device.SyncOK || e.SyncError != "" {
		t.Fatalf("unexpected synced exam: %+v %v", e, err)
	}
	cp, _ := c.Capture(ctx, "c1")
	if cp.ExamID != "42" {
		t.Fatalf("capture not re-keyed: %+v", cp)
	}
	if err := c.MarkSyncPending(ctx, "missing"); !errors.Is(err, device.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
