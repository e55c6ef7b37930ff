// Package export renders result and account listings as downloadable
// spreadsheets.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/scoutexam/exam-backend/internal/model"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("export format must be csv or xlsx")

// Format is a download file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat reads the format query value. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", ErrUnknownFormat
}

// ContentType is the response media type.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename names a download of base taken on day.
func (f Format) Filename(base string, day time.Time) string {
	return fmt.Sprintf("%s_%s.%s", base, day.Format("2006-01-02"), f)
}

// Table is a sheet of cells. Cells are strings, ints or nil.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

// Write renders t to w.
func Write(w io.Writer, f Format, t *Table) error {
	if f == FormatXLSX {
		return writeXLSX(w, t)
	}
	return writeCSV(w, t)
}

func writeCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellText(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// Attempts lays out a results listing.
func Attempts(attempts []model.Attempt) *Table {
	t := &Table{
		Sheet: "Results",
		Header: []string{
			"attempt_id", "taker_id", "taker_name", "taker_email", "category", "status", "outcome",
			"auto_score", "evaluator_score", "final_score", "infraction_count", "restricted_count",
			"started_at", "completed_at", "locked_at",
		},
		Rows: make([][]any, 0, len(attempts)),
	}
	for _, a := range attempts {
		var outcome any
		if a.Outcome != nil {
			outcome = string(*a.Outcome)
		}
		t.Rows = append(t.Rows, []any{
			a.ID.String(), a.TakerID, a.TakerName, a.TakerEmail, a.Category, string(a.Status), outcome,
			score(a.AutoScore), score(a.EvaluatorScore), score(a.FinalScore), a.InfractionCount, a.RestrictedCount,
			stamp(&a.StartedAt), stamp(a.CompletedAt), stamp(a.LockedAt),
		})
	}
	return t
}

// Users lays out an account listing. Password hashes never leave the store.
func Users(users []model.User) *Table {
	t := &Table{
		Sheet:  "Users",
		Header: []string{"id", "name", "email", "role", "category", "created_at"},
		Rows:   make([][]any, 0, len(users)),
	}
	for _, u := range users {
		var category any
		if u.Category != nil {
			category = *u.Category
		}
		t.Rows = append(t.Rows, []any{u.ID, u.Name, u.Email, string(u.Role), category, stamp(&u.CreatedAt)})
	}
	return t
}

func score(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stamp(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
