package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Cache is the typed view over the device KV store. Every mutation is a
// read-modify-write of the whole JSON list; mu serialises them within the
// process.
type Cache struct {
	kv KV
	mu sync.Mutex
}

func NewCache(kv KV) *Cache { return &Cache{kv: kv} }

func (c *Cache) Exams(ctx context.Context) ([]Exam, error) {
	var out []Exam
	if err := c.load(ctx, KeyExams, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) SaveExams(ctx context.Context, exams []Exam) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(ctx, KeyExams, exams)
}

func (c *Cache) Exam(ctx context.Context, id string) (Exam, error) {
	exams, err := c.Exams(ctx)
	if err != nil {
		return Exam{}, err
	}
	for _, e := range exams {
		if e.ID == id {
			return e, nil
		}
	}
	return Exam{}, fmt.Errorf("exam %s: %w", id, ErrNotFound)
}

// UpdateExams applies fn to the stored exam list and writes the result back.
func (c *Cache) UpdateExams(ctx context.Context, fn func([]Exam) ([]Exam, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cur []Exam
	if err := c.load(ctx, KeyExams, &cur); err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return c.store(ctx, KeyExams, next)
}

func (c *Cache) Captures(ctx context.Context) ([]Capture, error) {
	var out []Capture
	if err := c.load(ctx, KeyCaptures, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) SaveCaptures(ctx context.Context, caps []Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(ctx, KeyCaptures, caps)
}

func (c *Cache) Capture(ctx context.Context, id string) (Capture, error) {
	caps, err := c.Captures(ctx)
	if err != nil {
		return Capture{}, err
	}
	for _, cp := range caps {
		if cp.ID == id {
			return cp, nil
		}
	}
	return Capture{}, fmt.Errorf("capture %s: %w", id, ErrNotFound)
}

func (c *Cache) UpdateCaptures(ctx context.Context, fn func([]Capture) ([]Capture, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cur []Capture
	if err := c.load(ctx, KeyCaptures, &cur); err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return c.store(ctx, KeyCaptures, next)
}

// SetCaptureStatus moves one capture to status, replacing its result with res.
func (c *Cache) SetCaptureStatus(ctx context.Context, id, status string, res *Outcome) error {
	return c.UpdateCaptures(ctx, func(caps []Capture) ([]Capture, error) {
		for i := range caps {
			if caps[i].ID == id {
				caps[i].Status = status
				caps[i].Result = res
				return caps, nil
			}
		}
		return nil, fmt.Errorf("capture %s: %w", id, ErrNotFound)
	})
}

func (c *Cache) Session(ctx context.Context) (Session, error) {
	var s Session
	var u SessionUser
	raw, ok, err := c.kv.Get(ctx, KeyUser)
	if err != nil {
		return s, err
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return s, fmt.Errorf("decode %s: %w", KeyUser, err)
		}
		s.User = &u
	}
	reg, _, err := c.kv.Get(ctx, KeyRegistration)
	if err != nil {
		return s, err
	}
	s.Registration = reg
	return s, nil
}

func (c *Cache) SetSession(ctx context.Context, u SessionUser) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, KeyUser, string(b)); err != nil {
		return err
	}
	return c.kv.Set(ctx, KeyRegistration, u.Registration)
}

func (c *Cache) ClearSession(ctx context.Context) error {
	return c.kv.MultiRemove(ctx, KeyUser, KeyRegistration)
}

// ClearAll removes exams and captures. The session is left alone.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.MultiRemove(ctx, KeyExams, KeyCaptures)
}

func (c *Cache) ClearExams(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Remove(ctx, KeyExams)
}

func (c *Cache) ClearCaptures(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Remove(ctx, KeyCaptures)
}

type DumpEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Dump returns the raw value of every data key in a fixed order; absent keys
// are reported as null.
func (c *Cache) Dump(ctx context.Context) ([]DumpEntry, error) {
	keys := []string{KeyExams, KeyCaptures}
	vals, err := c.kv.MultiGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]DumpEntry, 0, len(keys))
	for _, k := range keys {
		v, ok := vals[k]
		if !ok || !json.Valid([]byte(v)) {
			out = append(out, DumpEntry{Key: k, Value: json.RawMessage("null")})
			continue
		}
		out = append(out, DumpEntry{Key: k, Value: json.RawMessage(v)})
	}
	return out, nil
}

func (c *Cache) load(ctx context.Context, key string, v any) error {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) store(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, string(b))
}
