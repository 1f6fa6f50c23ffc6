package models

import (
	"time"
)

// Collection names under users/{userId}/.
const (
	JobApplicationsCollection = "jobApplications"
	RemindersCollection       = "reminders"
)

// Document field names, shared by payloads and queries.
const (
	FieldUserID      = "userId"
	FieldCompany     = "company"
	FieldRole        = "role"
	FieldURL         = "url"
	FieldStatus      = "status"
	FieldDateApplied = "dateApplied"
	FieldLastUpdated = "lastUpdated"
	FieldLocation    = "location"
	FieldNotes       = "notes"

	FieldJobID      = "jobId"
	FieldJobCompany = "jobCompany"
	FieldJobRole    = "jobRole"
	FieldTitle      = "title"
	FieldDate       = "date"
)

type JobApplication struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Company     string    `json:"company"`
	Role        string    `json:"role"`
	URL         string    `json:"url,omitempty"`
	Status      JobStatus `json:"status"`
	DateApplied Date      `json:"dateApplied"`
	LastUpdated time.Time `json:"lastUpdated"`

	// Optional Fields
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Reminder keeps a copy of the job's company and role taken when the
// reminder was created. Later edits to the job do not touch it.
type Reminder struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	JobID      string `json:"jobId"`
	JobCompany string `json:"jobCompany"`
	JobRole    string `json:"jobRole"`
	Title      string `json:"title"`
	Date       Date   `json:"date"`
}

// MailboxState is the Gmail sync bookmark of one owner.
type MailboxState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner         string `gorm:"uniqueIndex;not null" json:"owner"`
	LastHistoryID uint64 `json:"last_history_id"`
}

type ProcessedEmail struct {
	ID        string `gorm:"primaryKey"`
	Owner     string `gorm:"index"`
	CreatedAt time.Time
}
