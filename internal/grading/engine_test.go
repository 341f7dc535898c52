package grading

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDetected_ListAndObject(t *testing.T) {
	var r Result
	if err := json.Unmarshal([]byte(`{"acertos":2,"total_questoes":3,"respostas_detectadas":["a","B",null]}`), &r); err != nil {
		t.Fatal(err)
	}
	if len(r.Detected) != 3 || r.Detected[0] != "A" || r.Detected[2] != "" {
		t.Fatalf("list: %v", r.Detected)
	}
	if err := json.Unmarshal([]byte(`{"respostas_detectadas":{"10":"E","2":"B","1":"A"}}`), &r); err != nil {
		t.Fatal(err)
	}
	if len(r.Detected) != 3 || r.Detected[0] != "A" || r.Detected[1] != "B" || r.Detected[2] != "E" {
		t.Fatalf("object: %v", r.Detected)
	}
}

func TestCheckDetection(t *testing.T) {
	ten := make(Detected, 10)
	cases := []struct {
		name string
		r    Result
		ok   bool
	}{
		{"complete", Result{TotalQuestions: 10, Detected: ten}, true},
		{"missing answers", Result{TotalQuestions: 10, Detected: ten[:7]}, false},
		{"wrong total", Result{TotalQuestions: 9, Detected: ten}, false},
		{"nothing", Result{}, false},
	}
	for _, tc := range cases {
		err := CheckDetection(tc.r, 10)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrIncompleteDetection) {
			t.Errorf("%s: expected ErrIncompleteDetection, got %v", tc.name, err)
		}
	}
}

func TestTally(t *testing.T) {
	seven := 7
	o, err := Tally(Result{Correct: &seven, TotalQuestions: 10}, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if o.Correct != 7 || o.Total != 10 || o.Score != 3.5 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if _, err := Tally(Result{TotalQuestions: 10}, 1); !errors.Is(err, ErrMalformedResult) {
		t.Fatalf("expected ErrMalformedResult, got %v", err)
	}
}

func TestAnswerKeyString(t *testing.T) {
	s, err := AnswerKeyString([]string{"A", "C", "E"})
	if err != nil || s != "ACE" {
		t.Fatalf("AnswerKeyString = %q, %v", s, err)
	}
	if _, err := AnswerKeyString(nil); !errors.Is(err, ErrNoAnswerKey) {
		t.Fatalf("expected ErrNoAnswerKey, got %v", err)
	}
}

type stubReader struct {
	name string
	err  error
}

func (s stubReader) ReadName(context.Context, []byte) (string, error) { return s.name, s.err }

func TestNameReaders(t *testing.T) {
	chain := NameReaders{stubReader{err: errors.New("qr down")}, stubReader{name: "  "}, stubReader{name: "Lia"}}
	name, err := chain.ReadName(context.Background(), nil)
	if err != nil || name != "Lia" {
		t.Fatalf("ReadName = %q, %v", name, err)
	}
	name, err = NameReaders{stubReader{err: errors.New("boom")}}.ReadName(context.Background(), nil)
	if name != "" || err == nil {
		t.Fatalf("expected error, got %q %v", name, err)
	}
}
