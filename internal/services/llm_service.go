package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/time/rate"

	"github.com/justsurfingit/jobpilot/internal/models"
)

// ErrInvalidOutput means the model answered with something that does not
// fit the task's output schema.
var ErrInvalidOutput = errors.New("llm: output does not match schema")

const maxEmailChars = 20000

type ApplicationRecord struct {
	Company     string           `json:"company" validate:"required"`
	Role        string           `json:"role" validate:"required"`
	Status      models.JobStatus `json:"status" validate:"jobstatus"`
	DateApplied string           `json:"dateApplied" validate:"required"`
}

type InsightsInput struct {
	Applications []ApplicationRecord `json:"applications" validate:"required,min=1,dive"`
}

type Insights struct {
	OverallSuccessRate          *float64           `json:"overallSuccessRate" validate:"required"`
	RoleSuccessRates            map[string]float64 `json:"roleSuccessRates" validate:"required"`
	CompanySuccessRates         map[string]float64 `json:"companySuccessRates" validate:"required"`
	OptimalApplicationTiming    string             `json:"optimalApplicationTiming" validate:"required"`
	PersonalizedRecommendations string             `json:"personalizedRecommendations" validate:"required"`
}

type ResumeTailorInput struct {
	ResumeText     string `json:"resumeText" validate:"required"`
	JobDescription string `json:"jobDescription" validate:"required"`
}

type TailoredResume struct {
	TailoredResumeText string `json:"tailoredResumeText" validate:"required"`
}

type Experience struct {
	Role             string `json:"role"`
	Company          string `json:"company"`
	Duration         string `json:"duration"`
	Responsibilities string `json:"responsibilities"`
}

type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

type CVInput struct {
	FullName   string       `json:"fullName" validate:"required"`
	Email      string       `json:"email" validate:"required,email"`
	Phone      string       `json:"phone" validate:"required"`
	Address    string       `json:"address" validate:"required"`
	Summary    string       `json:"summary" validate:"required"`
	Experience []Experience `json:"experience" validate:"required,min=1,dive"`
	Education  []Education  `json:"education" validate:"required,min=1,dive"`
	Skills     string       `json:"skills" validate:"required"`
}

type CV struct {
	CVText string `json:"cvText" validate:"required"`
}

type CoverLetterInput struct {
	FullName       string `json:"fullName" validate:"required"`
	JobRole        string `json:"jobRole" validate:"required"`
	CompanyName    string `json:"companyName" validate:"required"`
	JobDescription string `json:"jobDescription" validate:"required"`
	UserExperience string `json:"userExperience" validate:"required"`
}

type CoverLetter struct {
	CoverLetterText string `json:"coverLetterText" validate:"required"`
}

type EmailInput struct {
	EmailContent string `json:"emailContent" validate:"required"`
}

type EmailExtraction struct {
	Company  string `json:"company" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status" validate:"required"`
	URL      string `json:"url,omitempty"`
}

type LLMService struct {
	Generator Generator
	limiter   *rate.Limiter
}

// NewLLMService wraps gen with a limit of perMinute calls. A non-positive
// limit disables it.
func NewLLMService(gen Generator, perMinute int) *LLMService {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), max(1, perMinute/10))
	}
	return &LLMService{Generator: gen, limiter: limiter}
}

func (s *LLMService) AnalyzeApplications(ctx context.Context, in InsightsInput) (*Insights, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	data, err := json.Marshal(in.Applications)
	if err != nil {
		return nil, err
	}
	var out Insights
	err = s.run(ctx, "insights", insightsPrompt, map[string]any{"applications": string(data)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LLMService) TailorResume(ctx context.Context, in ResumeTailorInput) (*TailoredResume, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var out TailoredResume
	err := s.run(ctx, "tailor-resume", tailorPrompt, map[string]any{
		"resumeText":     in.ResumeText,
		"jobDescription": in.JobDescription,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LLMService) WriteCV(ctx context.Context, in CVInput) (*CV, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var out CV
	if err := s.run(ctx, "cv", cvPrompt, map[string]any{"cv": in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LLMService) WriteCoverLetter(ctx context.Context, in CoverLetterInput) (*CoverLetter, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var out CoverLetter
	if err := s.run(ctx, "cover-letter", coverLetterPrompt, map[string]any{"letter": in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractFromEmail pulls application details out of an email body.
func (s *LLMService) ExtractFromEmail(ctx context.Context, in EmailInput) (*EmailExtraction, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	content := in.EmailContent
	content = truncate(content, maxEmailChars)
	var out EmailExtraction
	if err := s.run(ctx, "extract-email", emailPrompt, map[string]any{"emailContent": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *LLMService) run(ctx context.Context, task string, tmpl prompts.PromptTemplate, vars map[string]any, out any) error {
	prompt, err := tmpl.Format(vars)
	if err != nil {
		return fmt.Errorf("render %s prompt: %w", task, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	raw, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate %s: %w", task, err)
	}
	if err := decodeStrict(cleanMarkdownJSON(raw), out); err != nil {
		log.Printf("🤖 [%s] rejected model output (%d bytes): %v", task, len(raw), err)
		return err
	}
	return nil
}

// decodeStrict accepts exactly one JSON object that satisfies out's
// validate tags and carries no unknown fields.
func decodeStrict(raw string, out any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data", ErrInvalidOutput)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOutput, describe(err))
	}
	return nil
}

// cleanMarkdownJSON removes backticks and "json" prefix if the model wraps
// its answer in a code block.
// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

var insightsPrompt = prompts.NewPromptTemplate(`
You are an AI job search strategist. Analyze the following job application data to identify trends and provide insights.

### JOB APPLICATION DATA:
{{.applications}}

### OUTPUT SCHEMA:
Return valid JSON only, with exactly these fields:
{
    "overallSuccessRate": "number, percent of applications that reached an offer",
    "roleSuccessRates": {"<role>": "number, percent"},
    "companySuccessRates": {"<company>": "number, percent"},
    "optimalApplicationTiming": "string, when applying worked best",
    "personalizedRecommendations": "string, concrete advice for this candidate"
}
`, []string{"applications"})

var tailorPrompt = prompts.NewPromptTemplate(`
You are an expert resume writer. Rewrite the resume below so it targets the job description. Keep every fact true; reorder, rephrase and emphasize, never invent.

### RESUME:
{{.resumeText}}

### JOB DESCRIPTION:
{{.jobDescription}}

### OUTPUT SCHEMA:
Return valid JSON only: {"tailoredResumeText": "the full tailored resume in Markdown"}
`, []string{"resumeText", "jobDescription"})

var cvPrompt = prompts.NewPromptTemplate(`
You are a professional resume writer. Create a clean, well-formatted CV in Markdown based on the following information.

Name: {{.cv.FullName}}
Email: {{.cv.Email}}
Phone: {{.cv.Phone}}
Address: {{.cv.Address}}

Professional Summary:
{{.cv.Summary}}

Work Experience:
{{range .cv.Experience}}- {{.Role}} at {{.Company}} ({{.Duration}}): {{.Responsibilities}}
{{end}}
Education:
{{range .cv.Education}}- {{.Degree}}, {{.Institution}} ({{.Year}})
{{end}}
Skills:
{{.cv.Skills}}

### OUTPUT SCHEMA:
Return valid JSON only: {"cvText": "the full CV in Markdown"}
`, []string{"cv"})

var coverLetterPrompt = prompts.NewPromptTemplate(`
You are a professional career coach. Write a compelling and professional cover letter in Markdown. The tone should be enthusiastic and confident.

Applicant: {{.letter.FullName}}
Role: {{.letter.JobRole}}
Company: {{.letter.CompanyName}}

Job Description:
{{.letter.JobDescription}}

Relevant Experience:
{{.letter.UserExperience}}

### OUTPUT SCHEMA:
Return valid JSON only: {"coverLetterText": "the full cover letter in Markdown"}
`, []string{"letter"})

var emailPrompt = prompts.NewPromptTemplate(`
You are an intelligent assistant that extracts job application details from the body of an email.
If the email is an application confirmation, set the status to "Applied". If it looks like a job alert or suggestion, set it to "Viewed". Use "Interviewing", "Offer" or "Rejected" when the email says so.

### EMAIL CONTENT:
{{.emailContent}}

### OUTPUT SCHEMA:
Return valid JSON only. Omit a field rather than guessing it.
{
    "company": "company name",
    "role": "job title",
    "location": "job location, optional",
    "status": "one of Applied, Viewed, Interviewing, Offer, Rejected",
    "url": "job posting URL, optional"
}
`, []string{"emailContent"})
