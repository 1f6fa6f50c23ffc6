package transfer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/justsurfingit/jobpilot/internal/models"
)

var exportHeader = []string{
	"id", "company", "role", "url", "status", "dateApplied", "lastUpdated", "location", "notes",
}

// ExportFileName is the download name for an export made at now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("job_applications_%s.csv", models.NewDate(now))
}

// WriteCSV writes apps in the order given. The header matches what Parse
// reads back.
func WriteCSV(w io.Writer, apps []models.JobApplication) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, a := range apps {
		lastUpdated := ""
		if !a.LastUpdated.IsZero() {
			lastUpdated = a.LastUpdated.UTC().Format(time.RFC3339)
		}
		row := []string{
			a.ID, a.Company, a.Role, a.URL, string(a.Status),
			string(a.DateApplied), lastUpdated, a.Location, a.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
