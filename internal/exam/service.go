package exam

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// EventAppender records domain events; the server wires syncx.EventRepo.
type EventAppender interface {
	AppendEvent(ctx context.Context, typ, ref string, data any) error
}

const (
	EventExamCreated  = "ExamCreated"
	EventExamUpdated  = "ExamUpdated"
	EventExamDeleted  = "ExamDeleted"
	EventResultsSaved = "ResultsSaved"
)

type Service struct {
	store  Store
	events EventAppender
	log    *slog.Logger
}

func NewService(store Store, events EventAppender, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, events: events, log: log}
}

// NormalizeAnswerKey upper-cases and trims each entry and checks it is one of A-E.
func NormalizeAnswerKey(key []string) ([]string, error) {
	if len(key) == 0 {
		return nil, ErrInvalidAnswerKey
	}
	out := make([]string, len(key))
	for i, k := range key {
		k = strings.ToUpper(strings.TrimSpace(k))
		if len(k) != 1 || k[0] < 'A' || k[0] > 'E' {
			return nil, ErrInvalidAnswerKey
		}
		out[i] = k
	}
	return out, nil
}

// ValidPoints reports whether v is usable as a per-question value: finite and
// greater than zero.
func ValidPoints(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ValidateAnswerKey reports whether key is a usable answer key.
func ValidateAnswerKey(key []string) error {
	_, err := NormalizeAnswerKey(key)
	return err
}

// Score is the sheet grade: correct answers times the per-question value.
func Score(correct int, pointsPerQuestion float64) float64 {
	if pointsPerQuestion <= 0 {
		pointsPerQuestion = DefaultPointsPerQuestion
	}
	return float64(correct) * pointsPerQuestion
}

// Create stores a new exam. The answer key is optional at creation time;
// a nil points value defaults to 1.
func (s *Service) Create(ctx context.Context, userID int64, name string, key []string, points *float64) (Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Exam{}, ErrNameRequired
	}
	if key != nil {
		k, err := NormalizeAnswerKey(key)
		if err != nil {
			return Exam{}, err
		}
		key = k
	}
	pts := DefaultPointsPerQuestion
	if points != nil {
		if !ValidPoints(*points) {
			return Exam{}, ErrInvalidPoints
		}
		pts = *points
	}
	e, err := s.store.CreateExam(ctx, Exam{UserID: userID, Name: name, AnswerKey: key, PointsPerQuestion: pts})
	if err != nil {
		return Exam{}, err
	}
	s.log.Info("exam created", "exam_id", e.ID, "user_id", userID, "has_answer_key", key != nil, "points_per_question", pts)
	s.emit(ctx, EventExamCreated, e.ID, e)
	return e, nil
}

// UpdateAnswerKey renames the exam and replaces its answer key. The key is required here.
func (s *Service) UpdateAnswerKey(ctx context.Context, userID, examID int64, name string, key []string, points *float64) (Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Exam{}, ErrNameRequired
	}
	if len(key) == 0 {
		return Exam{}, ErrKeyRequired
	}
	k, err := NormalizeAnswerKey(key)
	if err != nil {
		return Exam{}, err
	}
	if points != nil && !ValidPoints(*points) {
		return Exam{}, ErrInvalidPoints
	}
	e, err := s.store.UpdateExam(ctx, userID, examID, UpdateInput{Name: name, AnswerKey: k, PointsPerQuestion: points})
	if err != nil {
		return Exam{}, err
	}
	s.log.Info("answer key updated", "exam_id", examID, "user_id", userID, "questions", len(k))
	s.emit(ctx, EventExamUpdated, examID, e)
	return e, nil
}

func (s *Service) Delete(ctx context.Context, userID, examID int64) error {
	if err := s.store.DeleteExam(ctx, userID, examID); err != nil {
		return err
	}
	s.log.Info("exam deleted", "exam_id", examID, "user_id", userID)
	s.emit(ctx, EventExamDeleted, examID, map[string]int64{"id": examID, "usuario_id": userID})
	return nil
}

func (s *Service) Get(ctx context.Context, userID, examID int64) (Exam, error) {
	return s.store.GetExam(ctx, userID, examID)
}

func (s *Service) List(ctx context.Context, userID int64) ([]Exam, error) {
	return s.store.ListExams(ctx, userID)
}

// SaveResults replaces the saved results of an exam with rs.
func (s *Service) SaveResults(ctx context.Context, userID, examID int64, rs []ResultInput) (int, error) {
	n, err := s.store.ReplaceResults(ctx, userID, examID, rs)
	if err != nil {
		return 0, err
	}
	s.log.Info("results saved", "exam_id", examID, "user_id", userID, "count", n)
	s.emit(ctx, EventResultsSaved, examID, map[string]any{"prova_id": examID, "quantidade": n})
	return n, nil
}

func (s *Service) ListResults(ctx context.Context, userID int64) ([]Result, error) {
	return s.store.ListResults(ctx, userID)
}

func (s *Service) ExamResults(ctx context.Context, userID, examID int64) ([]Result, error) {
	return s.store.ExamResults(ctx, userID, examID)
}

func (s *Service) LastSave(ctx context.Context, userID, examID int64) (*time.Time, error) {
	return s.store.LastSave(ctx, userID, examID)
}

// Stats computes count, mean, extremes and score frequency for one exam.
func (s *Service) Stats(ctx context.Context, userID, examID int64) (Stats, error) {
	e, err := s.store.GetExam(ctx, userID, examID)
	if err != nil {
		return Stats{}, err
	}
	rs, err := s.store.ExamResults(ctx, userID, examID)
	if err != nil {
		return Stats{}, err
	}
	st := ComputeStats(rs)
	st.ExamID = e.ID
	st.ExamName = e.Name
	return st, nil
}

func ComputeStats(rs []Result) Stats {
	st := Stats{Frequency: map[string]int{}}
	if len(rs) == 0 {
		return st
	}
	st.Students = len(rs)
	st.TotalQuestions = rs[0].Total
	st.Max = math.Inf(-1)
	st.Min = math.Inf(1)
	sum := 0.0
	for _, r := range rs {
		sum += r.Score
		st.Max = math.Max(st.Max, r.Score)
		st.Min = math.Min(st.Min, r.Score)
		st.Frequency[strconv.FormatFloat(r.Score, 'f', -1, 64)]++
	}
	st.Mean = sum / float64(len(rs))
	return st
}

func (s *Service) emit(ctx context.Context, typ string, examID int64, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.AppendEvent(ctx, typ, strconv.FormatInt(examID, 10), data); err != nil {
		s.log.Warn("event log append failed", "type", typ, "exam_id", examID, "err", err)
	}
}
