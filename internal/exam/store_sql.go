package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/gabicam/gabicam/internal/db"
)

type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	now    func() time.Time
}

func NewSQLStore(dbh *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: dbh, driver: driver, now: time.Now}
}

func (s *SQLStore) q(query string) string { return db.Rebind(s.driver, query) }

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) (Exam, error) {
	key, err := encodeKey(e.AnswerKey)
	if err != nil {
		return Exam{}, err
	}
	created := s.now().Unix()
	id, err := db.InsertID(ctx, s.db, s.driver,
		s.q(`INSERT INTO exams (user_id, name, answer_key, points_per_question, created_at) VALUES (?,?,?,?,?)`),
		e.UserID, e.Name, key, e.PointsPerQuestion, created)
	if err != nil {
		return Exam{}, err
	}
	e.ID = id
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func (s *SQLStore) UpdateExam(ctx context.Context, userID, examID int64, in UpdateInput) (Exam, error) {
	cur, err := s.GetExam(ctx, userID, examID)
	if err != nil {
		return Exam{}, err
	}
	cur.Name = in.Name
	cur.AnswerKey = in.AnswerKey
	if in.PointsPerQuestion != nil {
		cur.PointsPerQuestion = *in.PointsPerQuestion
	}
	key, err := encodeKey(cur.AnswerKey)
	if err != nil {
		return Exam{}, err
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`UPDATE exams SET name=?, answer_key=?, points_per_question=? WHERE id=? AND user_id=?`),
		cur.Name, key, cur.PointsPerQuestion, examID, userID)
	if err != nil {
		return Exam{}, err
	}
	return cur, nil
}

func (s *SQLStore) DeleteExam(ctx context.Context, userID, examID int64) error {
	if _, err := s.GetExam(ctx, userID, examID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// results go first: mysql/sqlite builds without FK enforcement would otherwise keep orphans
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM exam_results WHERE exam_id=? AND user_id=?`), examID, userID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM exams WHERE id=? AND user_id=?`), examID, userID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetExam(ctx context.Context, userID, examID int64) (Exam, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, user_id, name, answer_key, points_per_question, average_score, created_at
		       FROM exams WHERE id=? AND user_id=?`), examID, userID)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrNotFound
	}
	return e, err
}

func (s *SQLStore) ListExams(ctx context.Context, userID int64) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, user_id, name, answer_key, points_per_question, average_score, created_at
		       FROM exams WHERE user_id=? ORDER BY created_at DESC, id DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReplaceResults(ctx context.Context, userID, examID int64, rs []ResultInput) (n int, err error) {
	if _, err := s.GetExam(ctx, userID, examID); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.q(`DELETE FROM exam_results WHERE exam_id=? AND user_id=?`), examID, userID); err != nil {
		return 0, err
	}
	now := s.now().Unix()
	sum := 0.0
	for _, r := range rs {
		if _, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO exam_results (exam_id, user_id, student_name, status, correct, total, score, created_at)
			     VALUES (?,?,?,?,?,?,?,?)`),
			examID, userID, r.StudentName, StatusGraded, r.Correct, r.Total, r.Score, now); err != nil {
			return 0, err
		}
		sum += r.Score
	}
	var avg any
	if len(rs) > 0 {
		avg = sum / float64(len(rs))
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE exams SET average_score=? WHERE id=? AND user_id=?`), avg, examID, userID); err != nil {
		return 0, err
	}
	return len(rs), nil
}

const resultsSelect = `SELECT r.id, r.exam_id, r.student_name, r.created_at, r.status, r.correct, r.total, r.score,
       e.name, e.average_score, u.name
  FROM exam_results r
  JOIN exams e ON r.exam_id = e.id
  JOIN users u ON e.user_id = u.id`

func (s *SQLStore) ListResults(ctx context.Context, userID int64) ([]Result, error) {
	return s.queryResults(ctx, resultsSelect+` WHERE r.user_id=? ORDER BY r.created_at DESC, r.id DESC`, userID)
}

func (s *SQLStore) ExamResults(ctx context.Context, userID, examID int64) ([]Result, error) {
	if _, err := s.GetExam(ctx, userID, examID); err != nil {
		return nil, err
	}
	return s.queryResults(ctx, resultsSelect+` WHERE r.user_id=? AND r.exam_id=? ORDER BY r.student_name, r.id`, userID, examID)
}

func (s *SQLStore) queryResults(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Result{}
	for rows.Next() {
		var r Result
		var created int64
		var avg sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.ExamID, &r.StudentName, &created, &r.Status, &r.Correct, &r.Total, &r.Score,
			&r.ExamName, &avg, &r.TeacherName); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		if avg.Valid {
			v := avg.Float64
			r.ExamAverage = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastSave returns the creation time of the newest saved result, or nil when
// the exam has none.
func (s *SQLStore) LastSave(ctx context.Context, userID, examID int64) (*time.Time, error) {
	if _, err := s.GetExam(ctx, userID, examID); err != nil {
		return nil, err
	}
	var created int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT created_at FROM exam_results WHERE exam_id=? AND user_id=? ORDER BY created_at DESC LIMIT 1`),
		examID, userID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.Unix(created, 0)
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (Exam, error) {
	var e Exam
	var key sql.NullString
	var avg sql.NullFloat64
	var created int64
	if err := row.Scan(&e.ID, &e.UserID, &e.Name, &key, &e.PointsPerQuestion, &avg, &created); err != nil {
		return Exam{}, err
	}
	if key.Valid && key.String != "" {
		if err := json.Unmarshal([]byte(key.String), &e.AnswerKey); err != nil {
			return Exam{}, err
		}
	}
	if avg.Valid {
		v := avg.Float64
		e.AverageScore = &v
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func encodeKey(key []string) (any, error) {
	if key == nil {
		return nil, nil
	}
	b, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
