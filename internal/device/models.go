package device

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found in local storage")
	ErrNotLoggedIn   = errors.New("no user session on this device")
	ErrInvalidStatus = errors.New("capture is not in the expected status")
)

// Storage keys, kept identical to the mobile app so a dump can be compared.
const (
	KeyExams        = "@GabaritoApp:provas"
	KeyCaptures     = "@GabaritoApp:imagens"
	KeyUser         = "@GabiCam:user"
	KeyRegistration = "@GabiCam:matricula"
)

// Capture status values.
const (
	StatusPending   = "pendente"
	StatusAnalyzing = "em_analise"
	StatusGraded    = "corrigido"
)

// Sync status values of a locally held exam.
const (
	SyncPending = "pending"
	SyncOK      = "ok"
	SyncFailed  = "failed"
)

// Exam is a locally cached exam. ID is the server id once the exam has been
// pushed; before that it is a local id and ServerID is zero.
type Exam struct {
	ID                string    `json:"id"`
	Name              string    `json:"nome"`
	CreatedAt         time.Time `json:"dataCriacao"`
	Photos            []string  `json:"fotos"`
	AnswerKey         []string  `json:"gabarito,omitempty"`
	PointsPerQuestion *float64  `json:"nota_por_questao,omitempty"`
	ServerID          int64     `json:"serverId,omitempty"`
	SyncStatus        string    `json:"syncStatus,omitempty"`
	SyncError         string    `json:"syncError,omitempty"`
}

// Points returns the per-question value, defaulting to 1.
func (e Exam) Points() float64 {
	if e.PointsPerQuestion == nil || *e.PointsPerQuestion <= 0 {
		return 1
	}
	return *e.PointsPerQuestion
}

type Outcome struct {
	Correct int     `json:"acertos"`
	Total   int     `json:"total"`
	Score   float64 `json:"nota"`
}

type Capture struct {
	ID          string    `json:"id"`
	ExamID      string    `json:"provaId"`
	StudentName string    `json:"nomeAluno"`
	ExamName    string    `json:"nomeProva"`
	ImageURI    string    `json:"imageUri"`
	CroppedURI  string    `json:"imageCroppedUri,omitempty"`
	CreatedAt   time.Time `json:"dataCriacao"`
	Status      string    `json:"status"`
	Result      *Outcome  `json:"resultado,omitempty"`
}

type SessionUser struct {
	ID           int64  `json:"id"`
	Registration string `json:"matricula"`
	Name         string `json:"nome"`
	AccessToken  string `json:"access_token,omitempty"`
}

type Session struct {
	User         *SessionUser
	Registration string
}

func (s Session) LoggedIn() bool { return s.User != nil && s.Registration != "" }
