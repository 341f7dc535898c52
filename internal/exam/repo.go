package exam

import (
	"context"
	"time"
)

// UpdateInput carries an answer-key update. A nil PointsPerQuestion keeps the stored value.
type UpdateInput struct {
	Name              string
	AnswerKey         []string
	PointsPerQuestion *float64
}

// Store persists exams and results. Every lookup is scoped to the owning user;
// rows of other users behave as missing.
type Store interface {
	CreateExam(ctx context.Context, e Exam) (Exam, error)
	UpdateExam(ctx context.Context, userID, examID int64, in UpdateInput) (Exam, error)
	DeleteExam(ctx context.Context, userID, examID int64) error
	GetExam(ctx context.Context, userID, examID int64) (Exam, error)
	ListExams(ctx context.Context, userID int64) ([]Exam, error)

	// ReplaceResults drops every saved result of the exam and inserts rs.
	ReplaceResults(ctx context.Context, userID, examID int64, rs []ResultInput) (int, error)
	ListResults(ctx context.Context, userID int64) ([]Result, error)
	ExamResults(ctx context.Context, userID, examID int64) ([]Result, error)
	LastSave(ctx context.Context, userID, examID int64) (*time.Time, error)
}
