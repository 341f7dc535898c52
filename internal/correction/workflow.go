// Package correction runs the device-side exam workflow: exams are kept in the
// local cache and pushed to the server, captured sheets are stored and graded
// one by one, and graded sheets of an exam are saved to the server.
package correction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gabicam/gabicam/internal/device"
	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/grading"
	"github.com/gabicam/gabicam/internal/imagenorm"
	"github.com/gabicam/gabicam/internal/storage"
	"github.com/google/uuid"
)

var (
	ErrNothingToSave = errors.New("no graded captures to save")
	ErrNotSynced     = errors.New("exam has not reached the server yet")
)

// Grader is implemented by grading.Client.
type Grader interface {
	Grade(ctx context.Context, image []byte, answerKey string) (grading.Result, error)
}

// Remote is the part of the server API the workflow calls; client.Client implements it.
type Remote interface {
	DeleteExam(ctx context.Context, examID int64) error
	SaveResults(ctx context.Context, examID int64, rs []exam.ResultInput) (int, error)
	LastSave(ctx context.Context, examID int64) (*time.Time, error)
}

// ExamSyncer pushes one cached exam to the server and returns its cache id
// afterwards; syncx.Syncer implements it.
type ExamSyncer interface {
	SyncExam(ctx context.Context, id string) (string, error)
}

type Config struct {
	// ExpectedQuestions is the number of answers a sheet must yield. Zero
	// means the length of the exam's answer key.
	ExpectedQuestions int
}

type Workflow struct {
	cache  *device.Cache
	blobs  storage.BlobStore
	grader Grader
	names  grading.NameReader
	remote Remote
	syncer ExamSyncer
	cfg    Config
	now    func() time.Time
	log    *slog.Logger
}

type Deps struct {
	Cache  *device.Cache
	Blobs  storage.BlobStore
	Grader Grader
	Names  grading.NameReader // optional
	Remote Remote
	Syncer ExamSyncer
	Config Config
	Log    *slog.Logger
}

func New(d Deps) *Workflow {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Workflow{
		cache:  d.Cache,
		blobs:  d.Blobs,
		grader: d.Grader,
		names:  d.Names,
		remote: d.Remote,
		syncer: d.Syncer,
		cfg:    d.Config,
		now:    time.Now,
		log:    d.Log,
	}
}

// ParseAnswerKey reads a typed key such as "a, b, C,d". Blank entries are dropped.
func ParseAnswerKey(text string) ([]string, error) {
	var key []string
	for _, p := range strings.Split(text, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			key = append(key, p)
		}
	}
	return exam.NormalizeAnswerKey(key)
}

// CreateExam stores the exam locally with a pending sync status, then pushes
// it. A failed push leaves the exam cached and marked failed; the error is
// returned along with the cached exam.
func (w *Workflow) CreateExam(ctx context.Context, name string, key []string, points *float64) (device.Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return device.Exam{}, exam.ErrNameRequired
	}
	if key != nil {
		k, err := exam.NormalizeAnswerKey(key)
		if err != nil {
			return device.Exam{}, err
		}
		key = k
	}
	if points != nil && !exam.ValidPoints(*points) {
		return device.Exam{}, exam.ErrInvalidPoints
	}
	e := device.Exam{
		ID:                "local-" + uuid.NewString(),
		Name:              name,
		CreatedAt:         w.now(),
		Photos:            []string{},
		AnswerKey:         key,
		PointsPerQuestion: points,
		SyncStatus:        device.SyncPending,
	}
	if err := w.cache.UpdateExams(ctx, func(exams []device.Exam) ([]device.Exam, error) {
		return append(exams, e), nil
	}); err != nil {
		return device.Exam{}, fmt.Errorf("cache exam: %w", err)
	}
	w.log.Info("exam created locally", "exam_id", e.ID, "name", name)
	return w.push(ctx, e.ID)
}

// EditExam changes name, answer key and point value locally, then pushes.
// A nil key keeps the current one; a nil points value keeps the current one.
func (w *Workflow) EditExam(ctx context.Context, id, name string, key []string, points *float64) (device.Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return device.Exam{}, exam.ErrNameRequired
	}
	if key != nil {
		k, err := exam.NormalizeAnswerKey(key)
		if err != nil {
			return device.Exam{}, err
		}
		key = k
	}
	if points != nil && !exam.ValidPoints(*points) {
		return device.Exam{}, exam.ErrInvalidPoints
	}
	if err := w.cache.UpdateExams(ctx, func(exams []device.Exam) ([]device.Exam, error) {
		for i := range exams {
			if exams[i].ID != id {
				continue
			}
			exams[i].Name = name
			if key != nil {
				exams[i].AnswerKey = key
			}
			if points != nil {
				p := *points
				exams[i].PointsPerQuestion = &p
			}
			exams[i].SyncStatus = device.SyncPending
			return exams, nil
		}
		return nil, fmt.Errorf("exam %s: %w", id, device.ErrNotFound)
	}); err != nil {
		return device.Exam{}, err
	}
	if err := w.renameCaptures(ctx, id, name); err != nil {
		return device.Exam{}, err
	}
	return w.push(ctx, id)
}

// push syncs one exam and returns its cached copy, which may have been
// re-keyed to the server id.
func (w *Workflow) push(ctx context.Context, id string) (device.Exam, error) {
	if w.syncer == nil {
		return w.cache.Exam(ctx, id)
	}
	newID, err := w.syncer.SyncExam(ctx, id)
	if err != nil {
		w.log.Warn("exam push failed, kept locally", "exam_id", id, "err", err)
		e, cerr := w.cache.Exam(ctx, id)
		if cerr != nil {
			return device.Exam{}, err
		}
		return e, err
	}
	return w.cache.Exam(ctx, newID)
}

func (w *Workflow) renameCaptures(ctx context.Context, examID, name string) error {
	return w.cache.UpdateCaptures(ctx, func(caps []device.Capture) ([]device.Capture, error) {
		for i := range caps {
			if caps[i].ExamID == examID {
				caps[i].ExamName = name
			}
		}
		return caps, nil
	})
}

// DeleteExam removes the exam from the server first (when it got there) and
// then from the cache together with its captures and their images.
func (w *Workflow) DeleteExam(ctx context.Context, id string) error {
	e, err := w.cache.Exam(ctx, id)
	if err != nil {
		return err
	}
	if e.ServerID != 0 && w.remote != nil {
		if err := w.remote.DeleteExam(ctx, e.ServerID); err != nil {
			return fmt.Errorf("delete exam on server: %w", err)
		}
	}
	if err := w.cache.UpdateExams(ctx, func(exams []device.Exam) ([]device.Exam, error) {
		out := exams[:0]
		for _, x := range exams {
			if x.ID != id {
				out = append(out, x)
			}
		}
		return out, nil
	}); err != nil {
		return err
	}
	var ids []string
	caps, err := w.cache.Captures(ctx)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if c.ExamID == id {
			ids = append(ids, c.ID)
		}
	}
	w.log.Info("exam deleted", "exam_id", id, "server_id", e.ServerID, "captures", len(ids))
	if len(ids) == 0 {
		return nil
	}
	_, err = w.DeleteCaptures(ctx, ids...)
	return err
}

type CaptureInput struct {
	ExamID      string
	StudentName string
	Image       io.Reader
}

// RegisterCapture normalises and stores a sheet image, records it as pending
// and appends it to the exam's photo list. When a name reader is configured
// and it detects a name, that name replaces the typed one.
func (w *Workflow) RegisterCapture(ctx context.Context, in CaptureInput) (device.Capture, error) {
	e, err := w.cache.Exam(ctx, in.ExamID)
	if err != nil {
		return device.Capture{}, err
	}
	img, err := imagenorm.NormalizeJPEG(in.Image, imagenorm.DefaultOptions)
	if err != nil {
		return device.Capture{}, fmt.Errorf("normalise image: %w", err)
	}
	key, err := w.blobs.Put(storage.CaptureKey(e.ID), bytes.NewReader(img))
	if err != nil {
		return device.Capture{}, fmt.Errorf("store image: %w", err)
	}
	c := device.Capture{
		ID:          uuid.NewString(),
		ExamID:      e.ID,
		StudentName: strings.TrimSpace(in.StudentName),
		ExamName:    e.Name,
		ImageURI:    key,
		CreatedAt:   w.now(),
		Status:      device.StatusPending,
	}
	if err := w.cache.UpdateCaptures(ctx, func(caps []device.Capture) ([]device.Capture, error) {
		return append(caps, c), nil
	}); err != nil {
		return device.Capture{}, err
	}
	if err := w.cache.UpdateExams(ctx, func(exams []device.Exam) ([]device.Exam, error) {
		for i := range exams {
			if exams[i].ID == e.ID {
				exams[i].Photos = append(exams[i].Photos, key)
			}
		}
		return exams, nil
	}); err != nil {
		return device.Capture{}, err
	}
	w.log.Info("capture registered", "capture_id", c.ID, "exam_id", e.ID, "image", key)

	if w.names == nil {
		return c, nil
	}
	name, err := w.names.ReadName(ctx, img)
	if err != nil {
		w.log.Warn("name detection failed", "capture_id", c.ID, "err", err)
		return c, nil
	}
	if name == "" {
		return c, nil
	}
	c.StudentName = name
	if err := w.cache.UpdateCaptures(ctx, func(caps []device.Capture) ([]device.Capture, error) {
		for i := range caps {
			if caps[i].ID == c.ID {
				caps[i].StudentName = name
			}
		}
		return caps, nil
	}); err != nil {
		return c, err
	}
	w.log.Info("student name detected", "capture_id", c.ID, "name", name)
	return c, nil
}

// Correct grades one pending capture. The capture is em_analise while the
// grading service runs and goes back to pendente on any failure.
func (w *Workflow) Correct(ctx context.Context, id string) (device.Outcome, error) {
	c, err := w.cache.Capture(ctx, id)
	if err != nil {
		return device.Outcome{}, err
	}
	if c.Status != device.StatusPending {
		return device.Outcome{}, fmt.Errorf("capture %s is %s: %w", id, c.Status, device.ErrInvalidStatus)
	}
	if err := w.cache.SetCaptureStatus(ctx, id, device.StatusAnalyzing, nil); err != nil {
		return device.Outcome{}, err
	}
	out, err := w.grade(ctx, c)
	if err != nil {
		if rerr := w.cache.SetCaptureStatus(ctx, id, device.StatusPending, nil); rerr != nil {
			w.log.Error("revert capture status", "capture_id", id, "err", rerr)
		}
		w.log.Warn("correction failed", "capture_id", id, "exam_id", c.ExamID, "err", err)
		return device.Outcome{}, err
	}
	if err := w.cache.SetCaptureStatus(ctx, id, device.StatusGraded, &out); err != nil {
		return device.Outcome{}, err
	}
	w.log.Info("capture graded", "capture_id", id, "student", c.StudentName, "acertos", out.Correct, "nota", out.Score)
	return out, nil
}

func (w *Workflow) grade(ctx context.Context, c device.Capture) (device.Outcome, error) {
	e, err := w.cache.Exam(ctx, c.ExamID)
	if err != nil {
		return device.Outcome{}, err
	}
	key, err := grading.AnswerKeyString(e.AnswerKey)
	if err != nil {
		return device.Outcome{}, err
	}
	rc, err := w.blobs.Get(c.ImageURI)
	if err != nil {
		return device.Outcome{}, fmt.Errorf("load image: %w", err)
	}
	img, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return device.Outcome{}, fmt.Errorf("load image: %w", err)
	}
	res, err := w.grader.Grade(ctx, img, key)
	if err != nil {
		return device.Outcome{}, err
	}
	expected := w.cfg.ExpectedQuestions
	if expected <= 0 {
		expected = len(e.AnswerKey)
	}
	if err := grading.CheckDetection(res, expected); err != nil {
		return device.Outcome{}, err
	}
	o, err := grading.Tally(res, e.Points())
	if err != nil {
		return device.Outcome{}, err
	}
	return device.Outcome{Correct: o.Correct, Total: o.Total, Score: o.Score}, nil
}

type BatchResult struct {
	Corrected int
	Failed    int
}

// CorrectAll grades the pending captures of one exam in order, one request at
// a time. Failures are counted, not returned; only a cache read error or a
// cancelled context stops the loop.
func (w *Workflow) CorrectAll(ctx context.Context, examID string) (BatchResult, error) {
	caps, err := w.cache.Captures(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	var br BatchResult
	for _, c := range caps {
		if c.ExamID != examID || c.Status != device.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return br, err
		}
		if _, err := w.Correct(ctx, c.ID); err != nil {
			br.Failed++
			continue
		}
		br.Corrected++
	}
	w.log.Info("batch correction finished", "exam_id", examID, "corrected", br.Corrected, "failed", br.Failed)
	return br, nil
}

// DeleteCaptures removes captures and their images, and rebuilds the photo
// list of every affected exam from the captures that remain.
func (w *Workflow) DeleteCaptures(ctx context.Context, ids ...string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var removed []device.Capture
	var remaining []device.Capture
	if err := w.cache.UpdateCaptures(ctx, func(caps []device.Capture) ([]device.Capture, error) {
		removed, remaining = nil, caps[:0]
		for _, c := range caps {
			if drop[c.ID] {
				removed = append(removed, c)
				continue
			}
			remaining = append(remaining, c)
		}
		return remaining, nil
	}); err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}
	touched := map[string]bool{}
	for _, c := range removed {
		touched[c.ExamID] = true
		if err := w.blobs.Delete(c.ImageURI); err != nil {
			w.log.Warn("delete capture image", "capture_id", c.ID, "image", c.ImageURI, "err", err)
		}
	}
	if err := w.cache.UpdateExams(ctx, func(exams []device.Exam) ([]device.Exam, error) {
		for i := range exams {
			if !touched[exams[i].ID] {
				continue
			}
			photos := []string{}
			for _, c := range remaining {
				if c.ExamID == exams[i].ID {
					photos = append(photos, c.ImageURI)
				}
			}
			exams[i].Photos = photos
		}
		return exams, nil
	}); err != nil {
		return len(removed), err
	}
	return len(removed), nil
}

// SaveResults sends every graded capture of the exam to the server, which
// replaces what it held before. An exam not yet on the server is pushed first.
func (w *Workflow) SaveResults(ctx context.Context, examID string) (int, error) {
	e, err := w.serverExam(ctx, examID)
	if err != nil {
		return 0, err
	}
	caps, err := w.cache.Captures(ctx)
	if err != nil {
		return 0, err
	}
	var rs []exam.ResultInput
	for _, c := range caps {
		if c.ExamID != e.ID || c.Status != device.StatusGraded || c.Result == nil {
			continue
		}
		rs = append(rs, exam.ResultInput{
			StudentName: c.StudentName,
			Correct:     c.Result.Correct,
			Total:       c.Result.Total,
			Score:       c.Result.Score,
		})
	}
	if len(rs) == 0 {
		return 0, ErrNothingToSave
	}
	n, err := w.remote.SaveResults(ctx, e.ServerID, rs)
	if err != nil {
		return 0, fmt.Errorf("save results: %w", err)
	}
	w.log.Info("results saved", "exam_id", e.ID, "count", n)
	return n, nil
}

// LastSave returns when results of the exam were last saved, or nil.
func (w *Workflow) LastSave(ctx context.Context, examID string) (*time.Time, error) {
	e, err := w.cache.Exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if e.ServerID == 0 {
		return nil, nil
	}
	return w.remote.LastSave(ctx, e.ServerID)
}

// serverExam returns the cached exam, pushing it first when it has no server id.
func (w *Workflow) serverExam(ctx context.Context, id string) (device.Exam, error) {
	e, err := w.cache.Exam(ctx, id)
	if err != nil {
		return device.Exam{}, err
	}
	if e.ServerID != 0 {
		return e, nil
	}
	e, err = w.push(ctx, id)
	if err != nil {
		return device.Exam{}, err
	}
	if e.ServerID == 0 {
		return device.Exam{}, fmt.Errorf("exam %s: %w", id, ErrNotSynced)
	}
	return e, nil
}

// Folder groups the captures of one exam with per-status counts.
type Folder struct {
	ExamID    string           `json:"id"`
	ExamName  string           `json:"nome"`
	Captures  []device.Capture `json:"provas"`
	Pending   int              `json:"pendentes"`
	Analyzing int              `json:"emAnalise"`
	Graded    int              `json:"corrigidas"`
}

// Folders lists one folder per cached exam, in cache order.
func (w *Workflow) Folders(ctx context.Context) ([]Folder, error) {
	exams, err := w.cache.Exams(ctx)
	if err != nil {
		return nil, err
	}
	caps, err := w.cache.Captures(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Folder, 0, len(exams))
	for _, e := range exams {
		f := Folder{ExamID: e.ID, ExamName: e.Name, Captures: []device.Capture{}}
		for _, c := range caps {
			if c.ExamID != e.ID {
				continue
			}
			f.Captures = append(f.Captures, c)
			switch c.Status {
			case device.StatusPending:
				f.Pending++
			case device.StatusAnalyzing:
				f.Analyzing++
			case device.StatusGraded:
				f.Graded++
			}
		}
		out = append(out, f)
	}
	return out, nil
}
