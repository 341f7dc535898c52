package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrIncompleteDetection = errors.New("not every answer was detected on the sheet")
	ErrMalformedResult     = errors.New("grading service returned no correct-answer count")
	ErrNoAnswerKey         = errors.New("exam has no answer key")
)

// Result is the grading service reply for one sheet.
type Result struct {
	Correct        *int     `json:"acertos"`
	TotalQuestions int      `json:"total_questoes"`
	Detected       Detected `json:"respostas_detectadas"`
}

// Detected holds the answers the service read off the sheet. The service
// sends either a list or an object keyed by question number; both decode to
// a list ordered by question.
type Detected []string

func (d *Detected) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = nil
		return nil
	}
	if b[0] == '[' {
		var raw []any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(Detected, len(raw))
		for i, v := range raw {
			out[i] = answerString(v)
		}
		*d = out
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return questionLess(keys[i], keys[j]) })
	out := make(Detected, len(keys))
	for i, k := range keys {
		out[i] = answerString(raw[k])
	}
	*d = out
	return nil
}

func answerString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToUpper(strings.TrimSpace(t))
	default:
		return fmt.Sprint(t)
	}
}

func questionLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// CheckDetection fails unless the service detected exactly expected answers
// and reports the same question count.
func CheckDetection(r Result, expected int) error {
	if len(r.Detected) < expected || r.TotalQuestions != expected {
		return fmt.Errorf("%w: %d de %d questões", ErrIncompleteDetection, len(r.Detected), expected)
	}
	return nil
}

type Outcome struct {
	Correct int     `json:"acertos"`
	Total   int     `json:"total"`
	Score   float64 `json:"nota"`
}

// Tally turns a checked result into the stored outcome.
func Tally(r Result, pointsPerQuestion float64) (Outcome, error) {
	if r.Correct == nil {
		return Outcome{}, ErrMalformedResult
	}
	if pointsPerQuestion <= 0 {
		pointsPerQuestion = 1
	}
	return Outcome{
		Correct: *r.Correct,
		Total:   r.TotalQuestions,
		Score:   float64(*r.Correct) * pointsPerQuestion,
	}, nil
}

// AnswerKeyString joins the key the way the grading service expects ("ABCDE...").
func AnswerKeyString(key []string) (string, error) {
	if len(key) == 0 {
		return "", ErrNoAnswerKey
	}
	return strings.Join(key, ""), nil
}

// NameReader extracts the student name printed or encoded on a sheet.
type NameReader interface {
	ReadName(ctx context.Context, image []byte) (string, error)
}

// NameReaders tries each reader in order and returns the first non-empty name.
// An empty name with a nil error means nothing was detected.
type NameReaders []NameReader

func (rs NameReaders) ReadName(ctx context.Context, image []byte) (string, error) {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		name, err := r.ReadName(ctx, image)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	return "", errors.Join(errs...)
}
