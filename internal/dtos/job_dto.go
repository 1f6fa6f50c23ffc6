package dtos

type JobCreationRequest struct {
	Company string `json:"company" binding:"required"`
	Role    string `json:"role" binding:"required"`

	// Optional Fields
	URL         string `json:"url"`
	Status      string `json:"status"`      // Defaults to "Applied" if empty
	DateApplied string `json:"dateApplied"` // Defaults to today if empty
	Location    string `json:"location"`
	Notes       string `json:"notes"`
}

// JobUpdateRequest carries only the fields being changed.
type JobUpdateRequest struct {
	Company     *string `json:"company"`
	Role        *string `json:"role"`
	URL         *string `json:"url"`
	Status      *string `json:"status"`
	DateApplied *string `json:"dateApplied"`
	Location    *string `json:"location"`
	Notes       *string `json:"notes"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type ReminderCreationRequest struct {
	JobID string `json:"jobId" binding:"required"`
	Title string `json:"title" binding:"required"`
	Date  string `json:"date" binding:"required"`
}

// MutationResponse acknowledges a write that is still in flight.
type MutationResponse struct {
	ID         string `json:"mutationId"`
	Kind       string `json:"kind"`
	DocumentID string `json:"documentId"`
	State      string `json:"state"`
}

type ImportResponse struct {
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Mutations []string `json:"mutationIds"`
}
