package services

import (
	"math"

	"github.com/justsurfingit/jobpilot/internal/models"
)

type Summary struct {
	Total        int `json:"total"`
	Interviewing int `json:"interviewing"`
	Offers       int `json:"offers"`
	// SuccessRate is offers per application, in whole percent.
	SuccessRate int `json:"successRate"`
}

type StatusCount struct {
	Status models.JobStatus `json:"status"`
	Count  int              `json:"count"`
}

func Summarize(apps []models.JobApplication) Summary {
	var s Summary
	s.Total = len(apps)
	for _, a := range apps {
		switch a.Status {
		case models.StatusInterviewing:
			s.Interviewing++
		case models.StatusOffer:
			s.Offers++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = int(math.Round(float64(s.Offers) / float64(s.Total) * 100))
	}
	return s
}

// StatusCounts returns one entry per known status, in display order.
func StatusCounts(apps []models.JobApplication) []StatusCount {
	counts := make(map[models.JobStatus]int, len(models.JobStatuses))
	for _, a := range apps {
		counts[a.Status]++
	}
	out := make([]StatusCount, 0, len(models.JobStatuses))
	for _, st := range models.JobStatuses {
		out = append(out, StatusCount{Status: st, Count: counts[st]})
	}
	return out
}
