package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"gorm.io/gorm"

	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/livequery"
	"github.com/justsurfingit/jobpilot/internal/models"
)

// Extractor reads application details out of an email. *LLMService
// implements it.
type Extractor interface {
	ExtractFromEmail(ctx context.Context, in EmailInput) (*EmailExtraction, error)
}

// Outcome of processing one email.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

const fullSyncQuery = "subject:(application OR interview OR update OR offer OR rejected OR status) newer_than:7d"

// EmailService imports applications for one owner from their Gmail inbox.
type EmailService struct {
	DB          *gorm.DB
	Owner       string
	Extractor   Extractor
	Jobs        *JobService
	GmailClient *gmail.Service
	Interval    time.Duration

	apps *livequery.Binding[models.JobApplication]
}

func NewEmailService(db *gorm.DB, owner string, extractor Extractor, jobs *JobService, client *gmail.Service, interval time.Duration) *EmailService {
	return &EmailService{
		DB:          db,
		Owner:       owner,
		Extractor:   extractor,
		Jobs:        jobs,
		GmailClient: client,
		Interval:    interval,
	}
}

// Run polls Gmail until ctx ends.
func (s *EmailService) Run(ctx context.Context) error {
	if s.GmailClient == nil {
		log.Println("⚠️ Gmail Watcher disabled (no client). Check credentials.")
		return nil
	}
	s.watchApplications()
	defer s.apps.Close()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.SyncEmails(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SyncEmails(ctx)
		}
	}
}

// watchApplications keeps the owner's applications at hand for matching.
func (s *EmailService) watchApplications() {
	s.apps = livequery.New(s.Jobs.Store, DecodeJob, nil)
	s.apps.SetDescriptor(JobsDescriptor(s.Owner, ""))
}

// SyncEmails runs one sync cycle.
func (s *EmailService) SyncEmails(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	log.Println("📧 Email Watcher: Starting Sync Cycle...")

	var state models.MailboxState
	if err := s.DB.WithContext(ctx).Where(models.MailboxState{Owner: s.Owner}).FirstOrCreate(&state).Error; err != nil {
		log.Printf("❌ Could not load mailbox state: %v", err)
		return
	}

	var messages []*gmail.Message
	var newHistoryID uint64
	var err error

	if state.LastHistoryID == 0 {
		log.Println("🆕 First run detected. Running Full Bootstrap Sync...")
		messages, newHistoryID, err = s.performFullSync(ctx)
	} else {
		messages, newHistoryID, err = s.performIncrementalSync(ctx, state.LastHistoryID)
		// Google drops old history; start over from a full sync.
		if err != nil && isHistoryExpiredError(err) {
			log.Println("⚠️ History ID expired (too old). Falling back to Full Sync.")
			messages, newHistoryID, err = s.performFullSync(ctx)
		}
	}
	if err != nil {
		log.Printf("❌ Sync failed: %v", err)
		return
	}

	if len(messages) > 0 {
		log.Printf("📥 Processing %d candidate emails...", len(messages))
	}
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if s.alreadyProcessed(ctx, msg.Id) {
			continue
		}
		s.handle(ctx, msg)
	}

	if newHistoryID > state.LastHistoryID {
		err := s.DB.WithContext(ctx).Model(&models.MailboxState{}).
			Where("id = ?", state.ID).
			Update("last_history_id", newHistoryID).Error
		if err != nil {
			log.Printf("❌ Could not save history bookmark: %v", err)
			return
		}
		log.Printf("🔖 History updated to %d", newHistoryID)
	}
}

// handle processes msg and records it as done unless it was skipped, so a
// failed extraction or write is tried again on the next cycle.
func (s *EmailService) handle(ctx context.Context, msg *gmail.Message) Outcome {
	outcome := s.ProcessMessage(ctx, msg)
	if outcome == OutcomeSkipped {
		return outcome
	}
	if err := s.DB.WithContext(ctx).Create(&models.ProcessedEmail{ID: msg.Id, Owner: s.Owner}).Error; err != nil {
		log.Printf("⚠️ Could not mark email %s as processed: %v", msg.Id, err)
	}
	return outcome
}

func (s *EmailService) alreadyProcessed(ctx context.Context, id string) bool {
	var count int64
	s.DB.WithContext(ctx).Model(&models.ProcessedEmail{}).Where("id = ?", id).Count(&count)
	return count > 0
}

// performFullSync scans the last 7 days and resets the history anchor.
func (s *EmailService) performFullSync(ctx context.Context) ([]*gmail.Message, uint64, error) {
	var resp *gmail.ListMessagesResponse
	err := retry(ctx, 3, time.Second, func() error {
		var e error
		resp, e = s.GmailClient.Users.Messages.List("me").Q(fullSyncQuery).MaxResults(50).Context(ctx).Do()
		return e
	})
	if err != nil {
		return nil, 0, err
	}

	profile, err := s.GmailClient.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, 0, err
	}
	return s.expandMessages(ctx, resp.Messages), profile.HistoryId, nil
}

// performIncrementalSync asks only for messages added since startID.
func (s *EmailService) performIncrementalSync(ctx context.Context, startID uint64) ([]*gmail.Message, uint64, error) {
	var resp *gmail.ListHistoryResponse
	err := retry(ctx, 3, time.Second, func() error {
		var e error
		resp, e = s.GmailClient.Users.History.List("me").
			StartHistoryId(startID).
			HistoryTypes("messageAdded").
			Context(ctx).Do()
		return e
	})
	if err != nil {
		return nil, 0, err
	}

	var headers []*gmail.Message
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				headers = append(headers, added.Message)
			}
		}
	}
	return s.expandMessages(ctx, headers), resp.HistoryId, nil
}

func (s *EmailService) expandMessages(ctx context.Context, headers []*gmail.Message) []*gmail.Message {
	var full []*gmail.Message
	for _, h := range headers {
		err := retry(ctx, 2, 500*time.Millisecond, func() error {
			msg, err := s.GmailClient.Users.Messages.Get("me", h.Id).Context(ctx).Do()
			if err == nil {
				full = append(full, msg)
			}
			return err
		})
		if err != nil {
			log.Printf("⚠️ Could not fetch email %s: %v", h.Id, err)
		}
	}
	return full
}

// ProcessMessage turns one email into a new application or a status
// change of a tracked one, and waits for the write to land.
func (s *EmailService) ProcessMessage(ctx context.Context, msg *gmail.Message) Outcome {
	headers := parseHeaders(msg)
	subject := headers["Subject"]
	sender := headers["From"]

	shortSub := subject
	if len(shortSub) > 20 {
		shortSub = truncate(shortSub, 20) + "..."
	}
	logPrefix := fmt.Sprintf("[Email: %s]", shortSub)
	log.Printf("%s 📥 START processing from: %s", logPrefix, sender)

	content := fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", subject, sender, getEmailBody(msg))
	ext, err := s.Extractor.ExtractFromEmail(ctx, EmailInput{EmailContent: content})
	if err != nil {
		log.Printf("%s ❌ SKIPPED: extraction failed: %v", logPrefix, err)
		return OutcomeSkipped
	}
	status, err := models.ParseStatus(ext.Status)
	if err != nil {
		status = models.StatusApplied
	}

	apps, err := s.currentApplications(ctx)
	if err != nil {
		log.Printf("%s ❌ SKIPPED: could not read applications: %v", logPrefix, err)
		return OutcomeSkipped
	}

	match := FindApplicationForEmail(apps, ext.Company, subject, sender)
	if match == nil {
		m, err := s.Jobs.Add(s.Owner, &dtos.JobCreationRequest{
			Company:     ext.Company,
			Role:        ext.Role,
			URL:         ext.URL,
			Status:      string(status),
			DateApplied: string(messageDate(msg)),
			Location:    ext.Location,
			Notes:       "Imported from email: " + subject,
		})
		if err != nil {
			log.Printf("%s ❌ SKIPPED: %v", logPrefix, err)
			return OutcomeSkipped
		}
		if err := m.Wait(ctx); err != nil {
			return OutcomeSkipped
		}
		log.Printf("%s ✅ Created application %s at %s", logPrefix, ext.Role, ext.Company)
		return OutcomeCreated
	}

	log.Printf("%s ✅ MATCHED application: %s at %s", logPrefix, match.Role, match.Company)
	// A confirmation or job alert says nothing new about a tracked application.
	if status == match.Status || status == models.StatusApplied || status == models.StatusViewed {
		log.Printf("%s ⏹️  Status stays %s.", logPrefix, match.Status)
		return OutcomeUnchanged
	}

	log.Printf("%s ⚡ UPDATING: %s -> %s", logPrefix, match.Status, status)
	next := string(status)
	m, err := s.Jobs.Update(s.Owner, match.ID, &dtos.JobUpdateRequest{Status: &next})
	if err != nil {
		log.Printf("%s ❌ SKIPPED: %v", logPrefix, err)
		return OutcomeSkipped
	}
	if err := m.Wait(ctx); err != nil {
		return OutcomeSkipped
	}
	return OutcomeUpdated
}

// currentApplications prefers the live copy and falls back to a one-shot
// read while it is still loading.
func (s *EmailService) currentApplications(ctx context.Context) ([]models.JobApplication, error) {
	if s.apps != nil {
		st := s.apps.State()
		if !st.IsLoading && st.Err == nil {
			return st.Data, nil
		}
	}
	return s.Jobs.List(ctx, s.Owner, "")
}

// retry runs f with exponential backoff. An expired history id fails fast
// so the caller can switch to a full sync.
func retry(ctx context.Context, attempts int, sleep time.Duration, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if isHistoryExpiredError(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		log.Printf("⚠️ API Error: %v. Retrying in %v...", err, sleep)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

func isHistoryExpiredError(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}

func parseHeaders(msg *gmail.Message) map[string]string {
	res := make(map[string]string)
	if msg.Payload == nil {
		return res
	}
	for _, h := range msg.Payload.Headers {
		res[h.Name] = h.Value
	}
	return res
}

// messageDate is the day Gmail received msg, or today when unknown.
func messageDate(msg *gmail.Message) models.Date {
	if msg.InternalDate > 0 {
		return models.NewDate(time.UnixMilli(msg.InternalDate))
	}
	return models.Today()
}

func getEmailBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return msg.Snippet
	}
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		d, _ := base64.URLEncoding.DecodeString(msg.Payload.Body.Data)
		return string(d)
	}
	for _, mime := range []string{"text/plain", "text/html"} {
		for _, part := range msg.Payload.Parts {
			if part.MimeType == mime && part.Body != nil && part.Body.Data != "" {
				d, _ := base64.URLEncoding.DecodeString(part.Body.Data)
				return string(d)
			}
		}
	}
	return msg.Snippet
}
