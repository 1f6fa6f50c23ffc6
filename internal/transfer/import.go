// Package transfer reads application rows from uploaded files and writes
// application lists back out as CSV.
package transfer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoRows            = errors.New("file contains no applications")
)

const unknown = "Unknown"

// column aliases, keyed by header with case, spaces, '_' and '-' removed
var aliases = map[string]string{
	"company":      models.FieldCompany,
	"companyname":  models.FieldCompany,
	"employer":     models.FieldCompany,
	"organization": models.FieldCompany,

	"role":     models.FieldRole,
	"jobtitle": models.FieldRole,
	"title":    models.FieldRole,
	"position": models.FieldRole,
	"jobrole":  models.FieldRole,

	"url":        models.FieldURL,
	"link":       models.FieldURL,
	"joburl":     models.FieldURL,
	"joblink":    models.FieldURL,
	"postingurl": models.FieldURL,

	"status": models.FieldStatus,
	"stage":  models.FieldStatus,

	"dateapplied": models.FieldDateApplied,
	"applieddate": models.FieldDateApplied,
	"appliedon":   models.FieldDateApplied,
	"applied":     models.FieldDateApplied,
	"date":        models.FieldDateApplied,

	"location": models.FieldLocation,
	"city":     models.FieldLocation,

	"notes":    models.FieldNotes,
	"note":     models.FieldNotes,
	"comments": models.FieldNotes,
}

var dateLayouts = []string{
	models.DateLayout,
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Parse reads applications from r, choosing the format by the file
// extension of name. Missing values get the same defaults as manual entry.
func Parse(name string, r io.Reader, today models.Date) ([]dtos.JobCreationRequest, error) {
	var (
		records []map[string]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, err = readCSV(r)
	case ".json":
		records, err = readJSON(r)
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}

	out := make([]dtos.JobCreationRequest, 0, len(records))
	for _, rec := range records {
		if req, ok := toRequest(rec, today); ok {
			out = append(out, req)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

func readCSV(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromTable(rows), nil
}

func readXLSX(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromTable(rows), nil
}

func readJSON(r io.Reader) ([]map[string]string, error) {
	var items []map[string]any
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	out := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rec := make(map[string]string, len(item))
		for k, v := range item {
			field, ok := aliases[normalizeHeader(k)]
			if !ok || v == nil {
				continue
			}
			rec[field] = strings.TrimSpace(fmt.Sprint(v))
		}
		out = append(out, rec)
	}
	return out, nil
}

// fromTable maps a header row plus data rows to records. Unknown columns
// are dropped; short rows leave the missing cells empty.
func fromTable(rows [][]string) []map[string]string {
	if len(rows) == 0 {
		return nil
	}
	fields := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		fields[i] = aliases[normalizeHeader(h)]
	}
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(fields))
		for i, cell := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			// First matching column wins.
			if _, seen := rec[fields[i]]; !seen || rec[fields[i]] == "" {
				rec[fields[i]] = strings.TrimSpace(cell)
			}
		}
		out = append(out, rec)
	}
	return out
}

func toRequest(rec map[string]string, today models.Date) (dtos.JobCreationRequest, bool) {
	empty := true
	for _, v := range rec {
		if v != "" {
			empty = false
			break
		}
	}
	if empty {
		return dtos.JobCreationRequest{}, false
	}

	req := dtos.JobCreationRequest{
		Company:     orDefault(rec[models.FieldCompany], unknown),
		Role:        orDefault(rec[models.FieldRole], unknown),
		URL:         rec[models.FieldURL],
		Status:      string(models.StatusApplied),
		DateApplied: string(today),
		Location:    rec[models.FieldLocation],
		Notes:       rec[models.FieldNotes],
	}
	if status, err := models.ParseStatus(rec[models.FieldStatus]); err == nil {
		req.Status = string(status)
	}
	if raw := rec[models.FieldDateApplied]; raw != "" {
		req.DateApplied = parseDate(raw)
	}
	return req, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseDate returns raw unchanged when no known layout fits, so the row
// is rejected downstream rather than silently redated.
func parseDate(raw string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return string(models.NewDate(t))
		}
	}
	return raw
}
