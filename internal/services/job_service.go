package services

import (
	"context"
	"strings"

	"github.com/justsurfingit/jobpilot/internal/docstore"
	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/livequery"
	"github.com/justsurfingit/jobpilot/internal/models"
	"github.com/justsurfingit/jobpilot/internal/mutation"
)

type JobService struct {
	Store     *docstore.Store
	Mutations *mutation.Dispatcher
}

func NewJobService(store *docstore.Store, mutations *mutation.Dispatcher) *JobService {
	return &JobService{
		Store:     store,
		Mutations: mutations,
	}
}

// jobFields is a creation request after defaults are applied.
type jobFields struct {
	Company     string           `json:"company" validate:"required"`
	Role        string           `json:"role" validate:"required"`
	URL         string           `json:"url"`
	Status      models.JobStatus `json:"status" validate:"jobstatus"`
	DateApplied models.Date      `json:"dateApplied" validate:"datetime=2006-01-02"`
	Location    string           `json:"location"`
	Notes       string           `json:"notes"`
}

func JobsCollection(owner string) string {
	return docstore.UserCollection(owner, models.JobApplicationsCollection)
}

// JobsQuery lists the owner's applications, most recently updated first.
// An empty status means every status.
func JobsQuery(owner string, status models.JobStatus) docstore.Query {
	q := docstore.NewQuery(JobsCollection(owner))
	if status != "" {
		q = q.Where(models.FieldStatus, string(status))
	}
	return q.OrderBy(models.FieldLastUpdated, docstore.Desc)
}

// JobsDescriptor is what a binding follows for the owner's applications.
// It is nil when nobody is signed in.
func JobsDescriptor(owner string, status models.JobStatus) *livequery.Descriptor {
	if owner == "" {
		return nil
	}
	return &livequery.Descriptor{Principal: owner, Query: JobsQuery(owner, status)}
}

func DecodeJob(doc docstore.Document) (models.JobApplication, error) {
	var job models.JobApplication
	if err := doc.DataTo(&job); err != nil {
		return models.JobApplication{}, err
	}
	job.ID = doc.ID
	return job, nil
}

func (s *JobService) List(ctx context.Context, owner string, status models.JobStatus) ([]models.JobApplication, error) {
	snap, err := s.Store.Query(ctx, owner, JobsQuery(owner, status))
	if err != nil {
		return nil, err
	}
	jobs := make([]models.JobApplication, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		job, err := DecodeJob(doc)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobService) Get(ctx context.Context, owner, id string) (models.JobApplication, error) {
	if err := docID(id); err != nil {
		return models.JobApplication{}, err
	}
	doc, err := s.Store.Get(ctx, owner, docstore.DocPath(JobsCollection(owner), id))
	if err != nil {
		return models.JobApplication{}, err
	}
	return DecodeJob(doc)
}

// Add dispatches the creation of one application. Missing status and date
// default to Applied and today.
func (s *JobService) Add(owner string, req *dtos.JobCreationRequest) (*mutation.Mutation, error) {
	payload, err := jobPayload(owner, req)
	if err != nil {
		return nil, err
	}
	return s.Mutations.Create(owner, JobsCollection(owner), payload), nil
}

// Update dispatches a merge of the fields present in req.
func (s *JobService) Update(owner, id string, req *dtos.JobUpdateRequest) (*mutation.Mutation, error) {
	if err := docID(id); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	setRequired := func(name string, v *string) error {
		if v == nil {
			return nil
		}
		text := strings.TrimSpace(*v)
		if text == "" {
			return invalid("%s must not be empty", name)
		}
		fields[name] = text
		return nil
	}
	// Optional fields accept blanks, which clear them.
	setOptional := func(name string, v *string) {
		if v != nil {
			fields[name] = strings.TrimSpace(*v)
		}
	}
	if err := setRequired(models.FieldCompany, req.Company); err != nil {
		return nil, err
	}
	if err := setRequired(models.FieldRole, req.Role); err != nil {
		return nil, err
	}
	setOptional(models.FieldURL, req.URL)
	setOptional(models.FieldLocation, req.Location)
	setOptional(models.FieldNotes, req.Notes)
	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil {
			return nil, invalid("%v", err)
		}
		fields[models.FieldStatus] = string(status)
	}
	if req.DateApplied != nil {
		d := models.Date(strings.TrimSpace(*req.DateApplied))
		if !d.Valid() {
			return nil, invalid("dateApplied %q is not a YYYY-MM-DD date", *req.DateApplied)
		}
		fields[models.FieldDateApplied] = string(d)
	}
	if len(fields) == 0 {
		return nil, invalid("nothing to update")
	}
	fields[models.FieldLastUpdated] = docstore.ServerTimestamp
	return s.Mutations.Update(owner, docstore.DocPath(JobsCollection(owner), id), fields), nil
}

func (s *JobService) Delete(owner, id string) (*mutation.Mutation, error) {
	if err := docID(id); err != nil {
		return nil, err
	}
	return s.Mutations.Delete(owner, docstore.DocPath(JobsCollection(owner), id)), nil
}

// BulkDelete issues one independent delete per id. Some may fail while
// others commit.
func (s *JobService) BulkDelete(owner string, ids []string) ([]*mutation.Mutation, error) {
	for _, id := range ids {
		if err := docID(id); err != nil {
			return nil, err
		}
	}
	out := make([]*mutation.Mutation, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Mutations.Delete(owner, docstore.DocPath(JobsCollection(owner), id)))
	}
	return out, nil
}

// Import dispatches one create per valid row. Rows that still fail
// validation after defaults are skipped.
func (s *JobService) Import(owner string, rows []dtos.JobCreationRequest) ([]*mutation.Mutation, int) {
	out := make([]*mutation.Mutation, 0, len(rows))
	skipped := 0
	for i := range rows {
		payload, err := jobPayload(owner, &rows[i])
		if err != nil {
			skipped++
			continue
		}
		out = append(out, s.Mutations.Create(owner, JobsCollection(owner), payload))
	}
	return out, skipped
}

func jobPayload(owner string, req *dtos.JobCreationRequest) (map[string]any, error) {
	f := jobFields{
		Company:     strings.TrimSpace(req.Company),
		Role:        strings.TrimSpace(req.Role),
		URL:         strings.TrimSpace(req.URL),
		Status:      models.StatusApplied,
		DateApplied: models.Date(strings.TrimSpace(req.DateApplied)),
		Location:    strings.TrimSpace(req.Location),
		Notes:       strings.TrimSpace(req.Notes),
	}
	if req.Status != "" {
		status, err := models.ParseStatus(req.Status)
		if err != nil {
			return nil, invalid("%v", err)
		}
		f.Status = status
	}
	if f.DateApplied == "" {
		f.DateApplied = models.Today()
	}
	if err := validateInput(f); err != nil {
		return nil, err
	}

	payload := map[string]any{
		models.FieldUserID:      owner,
		models.FieldCompany:     f.Company,
		models.FieldRole:        f.Role,
		models.FieldStatus:      string(f.Status),
		models.FieldDateApplied: string(f.DateApplied),
		models.FieldLastUpdated: docstore.ServerTimestamp,
	}
	// Optional fields are omitted rather than stored empty.
	for name, v := range map[string]string{
		models.FieldURL:      f.URL,
		models.FieldLocation: f.Location,
		models.FieldNotes:    f.Notes,
	} {
		if v != "" {
			payload[name] = v
		}
	}
	return payload, nil
}
