package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justsurfingit/jobpilot/internal/auth"
	"github.com/justsurfingit/jobpilot/internal/docstore"
	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/models"
	"github.com/justsurfingit/jobpilot/internal/mutation"
	"github.com/justsurfingit/jobpilot/internal/services"
	"github.com/justsurfingit/jobpilot/internal/toast"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type testAPI struct {
	router   *gin.Engine
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T, gen services.Generator) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.New(docstore.NewMemoryBackend())
	bus := toast.NewBus()
	d := mutation.NewDispatcher(store, bus, mutation.Options{Timeout: 2 * time.Second})
	jobs := services.NewJobService(store, d)
	var llm *services.LLMService
	if gen != nil {
		llm = services.NewLLMService(gen, 0)
	}
	verifier := auth.NewVerifier("test-secret", "", "")
	t.Cleanup(func() {
		require.NoError(t, d.Close(context.Background()))
		store.Close()
	})
	return &testAPI{
		router: NewRouter(Deps{
			Verifier:  verifier,
			Source:    store,
			Toasts:    bus,
			Jobs:      jobs,
			Reminders: services.NewReminderService(store, d, jobs),
			LLM:       llm,
		}),
		verifier: verifier,
	}
}

func (a *testAPI) token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := a.verifier.Issue(auth.Identity{UserID: uid, Name: "Test User"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, uid, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, uid))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) listJobs(t *testing.T, uid string) []models.JobApplication {
	t.Helper()
	w := a.do(t, uid, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Data []models.JobApplication `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Data
}

func (a *testAPI) waitForJobs(t *testing.T, uid string, n int) []models.JobApplication {
	t.Helper()
	var jobs []models.JobApplication
	require.Eventually(t, func() bool {
		jobs = a.listJobs(t, uid)
		return len(jobs) == n
	}, 2*time.Second, 10*time.Millisecond)
	return jobs
}

func TestHealthAndAuth(t *testing.T) {
	api := newTestAPI(t, nil)

	assert.Equal(t, http.StatusOK, api.do(t, "", http.MethodGet, "/api/v1/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, "", http.MethodGet, "/api/v1/jobs", nil).Code)

	w := api.do(t, "u1", http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":"u1","displayName":"Test User"}`, w.Body.String())
}

func TestCreateJobIsAcceptedThenVisible(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, "u1", http.MethodPost, "/api/v1/jobs", dtos.JobCreationRequest{Company: "Acme", Role: "SRE"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp dtos.MutationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "create", resp.Kind)
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.DocumentID)

	jobs := api.waitForJobs(t, "u1", 1)
	assert.Equal(t, resp.DocumentID, jobs[0].ID)
	assert.Equal(t, models.StatusApplied, jobs[0].Status)

	// Other users see nothing and cannot reach the document by id.
	assert.Empty(t, api.listJobs(t, "u2"))
	assert.Equal(t, http.StatusNotFound, api.do(t, "u2", http.MethodGet, "/api/v1/jobs/"+resp.DocumentID, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, "u1", http.MethodGet, "/api/v1/jobs/"+resp.DocumentID, nil).Code)
}

func TestCreateJobValidation(t *testing.T) {
	api := newTestAPI(t, nil)

	assert.Equal(t, http.StatusBadRequest, api.do(t, "u1", http.MethodPost, "/api/v1/jobs", map[string]string{"company": "Acme"}).Code)
	w := api.do(t, "u1", http.MethodPost, "/api/v1/jobs", dtos.JobCreationRequest{Company: "Acme", Role: "SRE", Status: "Ghosted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, "u1", http.MethodGet, "/api/v1/jobs?status=nope", nil).Code)
}

func TestUpdateDeleteAndBulkDelete(t *testing.T) {
	api := newTestAPI(t, nil)
	for _, company := range []string{"A", "B", "C"} {
		require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodPost, "/api/v1/jobs", dtos.JobCreationRequest{Company: company, Role: "Dev"}).Code)
	}
	jobs := api.waitForJobs(t, "u1", 3)

	w := api.do(t, "u1", http.MethodPatch, "/api/v1/jobs/"+jobs[2].ID, map[string]string{"status": "Offer"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		w := api.do(t, "u1", http.MethodGet, "/api/v1/jobs?status=Offer", nil)
		return strings.Contains(w.Body.String(), jobs[2].ID)
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodDelete, "/api/v1/jobs/"+jobs[0].ID, nil).Code)
	api.waitForJobs(t, "u1", 2)

	w = api.do(t, "u1", http.MethodPost, "/api/v1/jobs/bulk-delete", dtos.BulkDeleteRequest{IDs: []string{jobs[1].ID, jobs[2].ID}})
	require.Equal(t, http.StatusAccepted, w.Code)
	api.waitForJobs(t, "u1", 0)

	assert.Equal(t, http.StatusBadRequest, api.do(t, "u1", http.MethodPost, "/api/v1/jobs/bulk-delete", dtos.BulkDeleteRequest{}).Code)
}

func TestImportExportAndSummary(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusBadRequest, api.do(t, "u1", http.MethodGet, "/api/v1/jobs/export", nil).Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "apps.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "Company,Job Title,Status\nAcme,SRE,Offer\nGlobex,PM,Interviewing\n,,\n")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+api.token(t, "u1"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	var imported dtos.ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imported))
	assert.Equal(t, 2, imported.Imported)
	api.waitForJobs(t, "u1", 2)

	w = api.do(t, "u1", http.MethodGet, "/api/v1/jobs/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "job_applications_")
	assert.Contains(t, w.Body.String(), "Acme,SRE")

	w = api.do(t, "u1", http.MethodGet, "/api/v1/jobs/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Summary      services.Summary       `json:"summary"`
		StatusCounts []services.StatusCount `json:"statusCounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, services.Summary{Total: 2, Interviewing: 1, Offers: 1, SuccessRate: 50}, summary.Summary)
	assert.Len(t, summary.StatusCounts, len(models.JobStatuses))
}

func TestReminders(t *testing.T) {
	api := newTestAPI(t, nil)
	require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodPost, "/api/v1/jobs", dtos.JobCreationRequest{Company: "Acme", Role: "SRE"}).Code)
	jobs := api.waitForJobs(t, "u1", 1)

	assert.Equal(t, http.StatusNotFound, api.do(t, "u1", http.MethodPost, "/api/v1/reminders",
		dtos.ReminderCreationRequest{JobID: "missing", Title: "Call", Date: "2025-01-01"}).Code)
	require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodPost, "/api/v1/reminders",
		dtos.ReminderCreationRequest{JobID: jobs[0].ID, Title: "Call", Date: "2025-01-01"}).Code)

	require.Eventually(t, func() bool {
		return strings.Contains(api.do(t, "u1", http.MethodGet, "/api/v1/reminders", nil).Body.String(), `"jobCompany":"Acme"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAIEndpoints(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		api := newTestAPI(t, nil)
		w := api.do(t, "u1", http.MethodPost, "/api/v1/ai/tailor-resume", services.ResumeTailorInput{ResumeText: "r", JobDescription: "j"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("tailor resume", func(t *testing.T) {
		api := newTestAPI(t, generatorFunc(func(context.Context, string) (string, error) {
			return `{"tailoredResumeText":"# Tailored"}`, nil
		}))
		w := api.do(t, "u1", http.MethodPost, "/api/v1/ai/tailor-resume", services.ResumeTailorInput{ResumeText: "r", JobDescription: "j"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tailoredResumeText":"# Tailored"}`, w.Body.String())

		assert.Equal(t, http.StatusBadRequest, api.do(t, "u1", http.MethodPost, "/api/v1/ai/tailor-resume", services.ResumeTailorInput{}).Code)
	})

	t.Run("schema mismatch", func(t *testing.T) {
		api := newTestAPI(t, generatorFunc(func(context.Context, string) (string, error) {
			return `{"coverLetter":"oops"}`, nil
		}))
		w := api.do(t, "u1", http.MethodPost, "/api/v1/ai/cover-letter", services.CoverLetterInput{
			FullName: "Ada", JobRole: "Eng", CompanyName: "Acme", JobDescription: "d", UserExperience: "e",
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("insights use current applications", func(t *testing.T) {
		var prompt string
		api := newTestAPI(t, generatorFunc(func(_ context.Context, p string) (string, error) {
			prompt = p
			return `{"overallSuccessRate":0,"roleSuccessRates":{},"companySuccessRates":{},"optimalApplicationTiming":"now","personalizedRecommendations":"apply"}`, nil
		}))
		assert.Equal(t, http.StatusBadRequest, api.do(t, "u1", http.MethodPost, "/api/v1/ai/insights", nil).Code)

		require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodPost, "/api/v1/jobs", dtos.JobCreationRequest{Company: "Acme", Role: "SRE"}).Code)
		api.waitForJobs(t, "u1", 1)
		w := api.do(t, "u1", http.MethodPost, "/api/v1/ai/insights", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, prompt, `"company":"Acme"`)
	})
}

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	Event string
	Data  string
}

func readEvents(t *testing.T, body io.Reader) <-chan sseEvent {
	t.Helper()
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(body)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if ev.Event != "" {
					out <- ev
				}
				ev = sseEvent{}
			case strings.HasPrefix(line, "event:"):
				ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()
	return out
}

func openStream(t *testing.T, srv *httptest.Server, token, path string) (<-chan sseEvent, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })
	return readEvents(t, resp.Body), cancel
}

func nextEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			if ev.Event == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
		}
	}
}

func TestJobsStreamFollowsWrites(t *testing.T) {
	api := newTestAPI(t, nil)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	events, cancel := openStream(t, srv, api.token(t, "u1"), "/api/v1/jobs/stream")
	defer cancel()

	var snap snapshotEvent[models.JobApplication]
	for {
		require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "snapshot").Data), &snap))
		if !snap.IsLoading {
			break
		}
	}
	assert.Empty(t, snap.Data)

	require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodPost, "/api/v1/jobs", dtos.JobCreationRequest{Company: "Acme", Role: "SRE"}).Code)
	for len(snap.Data) == 0 {
		require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "snapshot").Data), &snap))
	}
	require.Len(t, snap.Data, 1)
	assert.Equal(t, "Acme", snap.Data[0].Company)
}

func TestToastStreamReportsFailedWrites(t *testing.T) {
	api := newTestAPI(t, nil)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	events, cancel := openStream(t, srv, api.token(t, "u1"), "/api/v1/toasts/stream")
	defer cancel()

	require.Equal(t, http.StatusAccepted, api.do(t, "u1", http.MethodDelete, "/api/v1/jobs/missing", nil).Code)

	var got toast.Toast
	require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "toast").Data), &got))
	assert.Equal(t, toast.VariantDestructive, got.Variant)
	assert.Equal(t, string(docstore.CodeNotFound), got.Code)
	assert.NotEmpty(t, got.MutationID)
}
