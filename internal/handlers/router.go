package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/justsurfingit/jobpilot/internal/auth"
	"github.com/justsurfingit/jobpilot/internal/livequery"
	"github.com/justsurfingit/jobpilot/internal/services"
	"github.com/justsurfingit/jobpilot/internal/toast"
)

// Deps is everything the HTTP surface needs. LLM may be nil.
type Deps struct {
	Verifier    *auth.Verifier
	Source      livequery.Source
	Toasts      *toast.Bus
	Jobs        *services.JobService
	Reminders   *services.ReminderService
	LLM         *services.LLMService
	CORSOrigins []string
}

// HealthCheck is GET /health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me is GET /me
func Me(c *gin.Context) {
	c.JSON(http.StatusOK, identity(c))
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	config := cors.DefaultConfig()
	if len(d.CORSOrigins) == 0 {
		config.AllowAllOrigins = true // For development only
	} else {
		config.AllowOrigins = d.CORSOrigins
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	r.Use(cors.New(config))

	jobHandler := NewJobHandler(d.Jobs)
	reminderHandler := NewReminderHandler(d.Reminders)
	aiHandler := NewAIHandler(d.LLM, d.Jobs)
	streamHandler := NewStreamHandler(d.Source, d.Toasts)

	api := r.Group("/api/v1")
	api.GET("/health", HealthCheck)

	authed := api.Group("", auth.Middleware(d.Verifier))
	{
		authed.GET("/me", Me)

		// Job Routes
		authed.GET("/jobs", jobHandler.ListJobs)
		authed.GET("/jobs/stream", streamHandler.StreamJobs)
		authed.GET("/jobs/export", jobHandler.ExportJobs)
		authed.GET("/jobs/summary", jobHandler.Summary)
		authed.GET("/jobs/:id", jobHandler.GetJob)
		authed.POST("/jobs", jobHandler.CreateJob)
		authed.POST("/jobs/bulk-delete", jobHandler.BulkDelete)
		authed.POST("/jobs/import", jobHandler.ImportJobs)
		authed.PATCH("/jobs/:id", jobHandler.UpdateJob)
		authed.DELETE("/jobs/:id", jobHandler.DeleteJob)

		// Reminder Routes
		authed.GET("/reminders", reminderHandler.ListReminders)
		authed.GET("/reminders/stream", streamHandler.StreamReminders)
		authed.POST("/reminders", reminderHandler.CreateReminder)
		authed.DELETE("/reminders/:id", reminderHandler.DeleteReminder)

		authed.GET("/toasts/stream", streamHandler.StreamToasts)

		// AI Routes
		ai := authed.Group("/ai")
		ai.POST("/insights", aiHandler.Insights)
		ai.POST("/tailor-resume", aiHandler.TailorResume())
		ai.POST("/cv", aiHandler.WriteCV())
		ai.POST("/cover-letter", aiHandler.WriteCoverLetter())
		ai.POST("/extract-email", aiHandler.ExtractFromEmail())
	}
	return r
}
