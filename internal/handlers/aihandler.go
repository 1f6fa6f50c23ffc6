package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/justsurfingit/jobpilot/internal/services"
)

// AIHandler serves the text-generation helpers. LLMService is nil when no
// model is configured.
type AIHandler struct {
	LLMService *services.LLMService
	JobService *services.JobService
}

func NewAIHandler(llm *services.LLMService, j *services.JobService) *AIHandler {
	return &AIHandler{LLMService: llm, JobService: j}
}

func (h *AIHandler) available(c *gin.Context) bool {
	if h.LLMService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI features are not configured"})
		return false
	}
	return true
}

// aiCall binds the request into In, runs fn and writes its result.
func aiCall[In any, Out any](h *AIHandler, fn func(*gin.Context, In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.available(c) {
			return
		}
		var in In
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
			return
		}
		out, err := fn(c, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// Insights is POST /ai/insights. It analyzes the caller's current
// applications; the body is ignored.
func (h *AIHandler) Insights(c *gin.Context) {
	if !h.available(c) {
		return
	}
	jobs, err := h.JobService.List(c.Request.Context(), identity(c).UserID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	if len(jobs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No applications to analyze."})
		return
	}
	in := services.InsightsInput{Applications: make([]services.ApplicationRecord, 0, len(jobs))}
	for _, j := range jobs {
		in.Applications = append(in.Applications, services.ApplicationRecord{
			Company:     j.Company,
			Role:        j.Role,
			Status:      j.Status,
			DateApplied: string(j.DateApplied),
		})
	}
	out, err := h.LLMService.AnalyzeApplications(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *AIHandler) TailorResume() gin.HandlerFunc {
	return aiCall(h, func(c *gin.Context, in services.ResumeTailorInput) (*services.TailoredResume, error) {
		return h.LLMService.TailorResume(c.Request.Context(), in)
	})
}

func (h *AIHandler) WriteCV() gin.HandlerFunc {
	return aiCall(h, func(c *gin.Context, in services.CVInput) (*services.CV, error) {
		return h.LLMService.WriteCV(c.Request.Context(), in)
	})
}

func (h *AIHandler) WriteCoverLetter() gin.HandlerFunc {
	return aiCall(h, func(c *gin.Context, in services.CoverLetterInput) (*services.CoverLetter, error) {
		return h.LLMService.WriteCoverLetter(c.Request.Context(), in)
	})
}

func (h *AIHandler) ExtractFromEmail() gin.HandlerFunc {
	return aiCall(h, func(c *gin.Context, in services.EmailInput) (*services.EmailExtraction, error) {
		return h.LLMService.ExtractFromEmail(c.Request.Context(), in)
	})
}
