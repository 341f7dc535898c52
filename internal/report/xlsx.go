// Package report renders saved exam results as spreadsheets.
package report

import (
	"bytes"
	"fmt"

	"github.com/gabicam/gabicam/internal/exam"
	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet = "Resultados"
	statsSheet   = "Resumo"
)

var resultsHeader = []any{"Aluno", "Acertos", "Total de questões", "Nota", "Status", "Data"}

// ResultsXLSX writes one row per result plus a summary sheet with the exam
// statistics.
func ResultsXLSX(examName string, results []exam.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(resultsSheet, 1, 1, bold); err != nil {
		return nil, err
	}
	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{r.StudentName, r.Correct, r.Total, r.Score, r.Status, r.CreatedAt.Format("02/01/2006 15:04")}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(resultsSheet, "A", "A", 32); err != nil {
		return nil, err
	}

	st := exam.ComputeStats(results)
	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"Prova", examName},
		{"Alunos", st.Students},
		{"Média", st.Mean},
		{"Maior nota", st.Max},
		{"Menor nota", st.Min},
		{"Total de questões", st.TotalQuestions},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(statsSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
