package exam

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("exam not found")
	ErrNameRequired     = errors.New("exam name is required")
	ErrInvalidAnswerKey = errors.New("answer key must be a non-empty list of letters A-E")
	ErrInvalidPoints    = errors.New("points per question must be a finite number greater than zero")
	ErrKeyRequired      = errors.New("answer key is required")
)

// Capture status values, shared by the server rows and the device cache.
const (
	StatusPending   = "pendente"
	StatusAnalyzing = "em_analise"
	StatusGraded    = "corrigido"
)

const DefaultPointsPerQuestion = 1.0

type Exam struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"usuario_id"`
	Name              string    `json:"nome"`
	AnswerKey         []string  `json:"gabarito"`
	PointsPerQuestion float64   `json:"nota_por_questao"`
	AverageScore      *float64  `json:"media_geral,omitempty"`
	CreatedAt         time.Time `json:"data_criacao"`
}

// ResultInput is one graded sheet sent by the device.
type ResultInput struct {
	StudentName string  `json:"nomeAluno" validate:"required"`
	Correct     int     `json:"acertos" validate:"gte=0"`
	Total       int     `json:"total" validate:"gte=0"`
	Score       float64 `json:"nota" validate:"gte=0"`
}

type Result struct {
	ID          int64     `json:"id"`
	ExamID      int64     `json:"prova_id"`
	StudentName string    `json:"nome_aluno"`
	CreatedAt   time.Time `json:"data_criacao"`
	Status      string    `json:"status"`
	Correct     int       `json:"acertos"`
	Total       int       `json:"total_questoes"`
	Score       float64   `json:"nota"`
	ExamName    string    `json:"nome_prova"`
	ExamAverage *float64  `json:"media_geral"`
	TeacherName string    `json:"nome_usuario"`
}

// Stats summarises the saved results of one exam.
type Stats struct {
	ExamID         int64          `json:"prova_id"`
	ExamName       string         `json:"nome_prova"`
	Students       int            `json:"alunos"`
	Mean           float64        `json:"media"`
	Max            float64        `json:"maior"`
	Min            float64        `json:"menor"`
	TotalQuestions int            `json:"total_questoes"`
	Frequency      map[string]int `json:"freq_notas"`
}
