package exam_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gabicam/gabicam/internal/db"
	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/user"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	exams *exam.SQLStore
	users *user.SQLStore
	owner user.User
	other user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:exam_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	us := user.NewSQLStore(dbh, db.DriverSQLite, bcrypt.MinCost)
	owner, err := us.Register(ctx, user.NewUser{Registration: "100", Name: "Prof. Ana", Password: "pass"})
	if err != nil {
		t.Fatal(err)
	}
	other, err := us.Register(ctx, user.NewUser{Registration: "200", Name: "Prof. Beto", Password: "pass"})
	if err != nil {
		t.Fatal(err)
	}
	return fixture{exams: exam.NewSQLStore(dbh, db.DriverSQLite), users: us, owner: owner, other: other}
}

func TestCreateGetList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e, err := f.exams.CreateExam(ctx, exam.Exam{UserID: f.owner.ID, Name: "Matemática 1", AnswerKey: []string{"A", "B", "C"}, PointsPerQuestion: 1})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if e.ID == 0 {
		t.Fatal("expected id")
	}
	noKey, err := f.exams.CreateExam(ctx, exam.Exam{UserID: f.owner.ID, Name: "Sem gabarito", PointsPerQuestion: 1})
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.exams.GetExam(ctx, f.owner.ID, e.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if strings.Join(got.AnswerKey, "") != "ABC" || got.AverageScore != nil {
		t.Fatalf("unexpected exam: %+v", got)
	}
	got, err = f.exams.GetExam(ctx, f.owner.ID, noKey.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnswerKey != nil {
		t.Fatalf("expected nil answer key, got %v", got.AnswerKey)
	}

	if _, err := f.exams.GetExam(ctx, f.other.ID, e.ID); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("other user must not see exam, got %v", err)
	}
	list, err := f.exams.ListExams(ctx, f.owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 exams, got %d", len(list))
	}
	list, err = f.exams.ListExams(ctx, f.other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no exams for other user, got %d", len(list))
	}
}

func TestUpdateExam_KeepsPointsWhenNil(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, err := f.exams.CreateExam(ctx, exam.Exam{UserID: f.owner.ID, Name: "P1", PointsPerQuestion: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	up, err := f.exams.UpdateExam(ctx, f.owner.ID, e.ID, exam.UpdateInput{Name: "P1 final", AnswerKey: []string{"E", "D"}})
	if err != nil {
		t.Fatalf("UpdateExam: %v", err)
	}
	if up.PointsPerQuestion != 0.5 || up.Name != "P1 final" {
		t.Fatalf("unexpected update: %+v", up)
	}
	two := 2.0
	if _, err := f.exams.UpdateExam(ctx, f.owner.ID, e.ID, exam.UpdateInput{Name: "P1", AnswerKey: []string{"A"}, PointsPerQuestion: &two}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.exams.GetExam(ctx, f.owner.ID, e.ID)
	if got.PointsPerQuestion != 2 || len(got.AnswerKey) != 1 {
		t.Fatalf("unexpected stored exam: %+v", got)
	}
	if _, err := f.exams.UpdateExam(ctx, f.other.ID, e.ID, exam.UpdateInput{Name: "x", AnswerKey: []string{"A"}}); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, err := f.exams.CreateExam(ctx, exam.Exam{UserID: f.owner.ID, Name: "Física", AnswerKey: []string{"A", "B"}, PointsPerQuestion: 1})
	if err != nil {
		t.Fatal(err)
	}

	last, err := f.exams.LastSave(ctx, f.owner.ID, e.ID)
	if err != nil || last != nil {
		t.Fatalf("expected no last save, got %v err=%v", last, err)
	}

	n, err := f.exams.ReplaceResults(ctx, f.owner.ID, e.ID, []exam.ResultInput{
		{StudentName: "João", Correct: 2, Total: 2, Score: 2},
		{StudentName: "Maria", Correct: 1, Total: 2, Score: 1},
	})
	if err != nil || n != 2 {
		t.Fatalf("ReplaceResults: n=%d err=%v", n, err)
	}
	n, err = f.exams.ReplaceResults(ctx, f.owner.ID, e.ID, []exam.ResultInput{
		{StudentName: "Maria", Correct: 2, Total: 2, Score: 2},
	})
	if err != nil || n != 1 {
		t.Fatalf("ReplaceResults second: n=%d err=%v", n, err)
	}

	rs, err := f.exams.ExamResults(ctx, f.owner.ID, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].StudentName != "Maria" || rs[0].Status != exam.StatusGraded {
		t.Fatalf("unexpected results: %+v", rs)
	}
	if rs[0].ExamName != "Física" || rs[0].TeacherName != "Prof. Ana" {
		t.Fatalf("join columns missing: %+v", rs[0])
	}
	if rs[0].ExamAverage == nil || *rs[0].ExamAverage != 2 {
		t.Fatalf("expected average 2, got %v", rs[0].ExamAverage)
	}

	all, err := f.exams.ListResults(ctx, f.owner.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListResults: %d err=%v", len(all), err)
	}
	if other, _ := f.exams.ListResults(ctx, f.other.ID); len(other) != 0 {
		t.Fatalf("other user sees %d results", len(other))
	}

	last, err = f.exams.LastSave(ctx, f.owner.ID, e.ID)
	if err != nil || last == nil {
		t.Fatalf("expected last save, got %v err=%v", last, err)
	}

	if _, err := f.exams.ReplaceResults(ctx, f.other.ID, e.ID, nil); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign exam, got %v", err)
	}
}

func TestDeleteExam_RemovesResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, err := f.exams.CreateExam(ctx, exam.Exam{UserID: f.owner.ID, Name: "Química", PointsPerQuestion: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.exams.ReplaceResults(ctx, f.owner.ID, e.ID, []exam.ResultInput{{StudentName: "X", Score: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := f.exams.DeleteExam(ctx, f.other.ID, e.ID); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.exams.DeleteExam(ctx, f.owner.ID, e.ID); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if _, err := f.exams.GetExam(ctx, f.owner.ID, e.ID); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("exam still present: %v", err)
	}
	rs, err := f.exams.ListResults(ctx, f.owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 0 {
		t.Fatalf("expected results removed, got %d", len(rs))
	}
}
