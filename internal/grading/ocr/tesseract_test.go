package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestNameFromText(t *testing.T) {
	cases := map[string]string{
		"ESCOLA X\nNome:  Maria   da Silva \nTurma 3B": "Maria da Silva",
		"aluno: João":                "João",
		"NOME DO ALUNO: Pedro Alves": "Pedro Alves",
		"Nome:\nsem nome na linha":   "",
		"nada aqui":                  "",
	}
	for in, want := range cases {
		if got := NameFromText(in); got != want {
			t.Errorf("NameFromText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadName_MissingBinary(t *testing.T) {
	o := &TesseractOCR{Bin: "tesseract-binary-that-does-not-exist"}
	if _, err := o.ReadName(context.Background(), []byte("x")); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}
