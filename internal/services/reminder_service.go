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

type ReminderService struct {
	Store     *docstore.Store
	Mutations *mutation.Dispatcher
	Jobs      *JobService
}

func NewReminderService(store *docstore.Store, mutations *mutation.Dispatcher, jobs *JobService) *ReminderService {
	return &ReminderService{
		Store:     store,
		Mutations: mutations,
		Jobs:      jobs,
	}
}

type reminderFields struct {
	JobID string      `json:"jobId" validate:"required"`
	Title string      `json:"title" validate:"required,max=200"`
	Date  models.Date `json:"date" validate:"datetime=2006-01-02"`
}

func RemindersCollection(owner string) string {
	return docstore.UserCollection(owner, models.RemindersCollection)
}

// RemindersQuery lists the owner's reminders, soonest first.
func RemindersQuery(owner string) docstore.Query {
	return docstore.NewQuery(RemindersCollection(owner)).
		OrderBy(models.FieldDate, docstore.Asc)
}

func RemindersDescriptor(owner string) *livequery.Descriptor {
	if owner == "" {
		return nil
	}
	return &livequery.Descriptor{Principal: owner, Query: RemindersQuery(owner)}
}

func DecodeReminder(doc docstore.Document) (models.Reminder, error) {
	var r models.Reminder
	if err := doc.DataTo(&r); err != nil {
		return models.Reminder{}, err
	}
	r.ID = doc.ID
	return r, nil
}

func (s *ReminderService) List(ctx context.Context, owner string) ([]models.Reminder, error) {
	snap, err := s.Store.Query(ctx, owner, RemindersQuery(owner))
	if err != nil {
		return nil, err
	}
	out := make([]models.Reminder, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		r, err := DecodeReminder(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Add reads the job once and stores its company and role next to the
// reminder. The copy is not refreshed when the job changes later.
func (s *ReminderService) Add(ctx context.Context, owner string, req *dtos.ReminderCreationRequest) (*mutation.Mutation, error) {
	f := reminderFields{
		JobID: strings.TrimSpace(req.JobID),
		Title: strings.TrimSpace(req.Title),
		Date:  models.Date(strings.TrimSpace(req.Date)),
	}
	if err := validateInput(f); err != nil {
		return nil, err
	}
	job, err := s.Jobs.Get(ctx, owner, f.JobID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		models.FieldUserID:     owner,
		models.FieldJobID:      job.ID,
		models.FieldJobCompany: job.Company,
		models.FieldJobRole:    job.Role,
		models.FieldTitle:      f.Title,
		models.FieldDate:       string(f.Date),
	}
	return s.Mutations.Create(owner, RemindersCollection(owner), payload), nil
}

func (s *ReminderService) Delete(owner, id string) (*mutation.Mutation, error) {
	if err := docID(id); err != nil {
		return nil, err
	}
	return s.Mutations.Delete(owner, docstore.DocPath(RemindersCollection(owner), id)), nil
}
