package models

import (
	"fmt"
	"strings"
	"time"
)

type JobStatus string

const (
	StatusApplied            JobStatus = "Applied"
	StatusViewed             JobStatus = "Viewed"
	StatusInterviewing       JobStatus = "Interviewing"
	StatusOffer              JobStatus = "Offer"
	StatusRejected           JobStatus = "Rejected"
	StatusNotSelected        JobStatus = "Not selected"
	StatusExpired            JobStatus = "Expired"
	StatusUnlikelyToProgress JobStatus = "Unlikely to progress"
)

// JobStatuses lists every status in display order.
var JobStatuses = []JobStatus{
	StatusApplied,
	StatusViewed,
	StatusInterviewing,
	StatusOffer,
	StatusRejected,
	StatusNotSelected,
	StatusExpired,
	StatusUnlikelyToProgress,
}

func (s JobStatus) Valid() bool {
	for _, known := range JobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus matches s against the known statuses ignoring case and
// surrounding whitespace.
func ParseStatus(s string) (JobStatus, error) {
	s = strings.TrimSpace(s)
	for _, known := range JobStatuses {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component.
type Date string

func NewDate(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

func Today() Date {
	return NewDate(time.Now())
}

func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

func (d Date) String() string { return string(d) }
