package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/models"
	"github.com/justsurfingit/jobpilot/internal/services"
	"github.com/justsurfingit/jobpilot/internal/transfer"
)

// maxImportBytes bounds an uploaded import file.
const maxImportBytes = 10 << 20

type JobHandler struct {
	JobService *services.JobService
	now        func() time.Time
}

func NewJobHandler(j *services.JobService) *JobHandler {
	return &JobHandler{JobService: j, now: time.Now}
}

func statusParam(c *gin.Context) (models.JobStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return "", true
	}
	status, err := models.ParseStatus(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return status, true
}

// ListJobs is GET /jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	status, ok := statusParam(c)
	if !ok {
		return
	}
	jobs, err := h.JobService.List(c.Request.Context(), identity(c).UserID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

// GetJob is GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.JobService.Get(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CreateJob is POST /jobs. It answers as soon as the write is dispatched;
// the new row shows up on the stream.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dtos.JobCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	m, err := h.JobService.Add(identity(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted(m))
}

// UpdateJob is PATCH /jobs/:id
func (h *JobHandler) UpdateJob(c *gin.Context) {
	var req dtos.JobUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	m, err := h.JobService.Update(identity(c).UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted(m))
}

// DeleteJob is DELETE /jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	m, err := h.JobService.Delete(identity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, accepted(m))
}

// BulkDelete is POST /jobs/bulk-delete
func (h *JobHandler) BulkDelete(c *gin.Context) {
	var req dtos.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	ms, err := h.JobService.BulkDelete(identity(c).UserID, req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]dtos.MutationResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, accepted(m))
	}
	c.JSON(http.StatusAccepted, gin.H{"mutations": out})
}

// ImportJobs is POST /jobs/import with a multipart "file" field.
func (h *JobHandler) ImportJobs(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file field named \"file\" is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	rows, err := transfer.Parse(fh.Filename, f, models.NewDate(h.now()))
	if err != nil {
		respondError(c, err)
		return
	}
	ms, skipped := h.JobService.Import(identity(c).UserID, rows)
	resp := dtos.ImportResponse{Imported: len(ms), Skipped: skipped, Mutations: make([]string, 0, len(ms))}
	for _, m := range ms {
		resp.Mutations = append(resp.Mutations, m.ID)
	}
	c.JSON(http.StatusAccepted, resp)
}

// ExportJobs is GET /jobs/export
func (h *JobHandler) ExportJobs(c *gin.Context) {
	jobs, err := h.JobService.List(c.Request.Context(), identity(c).UserID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	if len(jobs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No applications to export."})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+transfer.ExportFileName(h.now())+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := transfer.WriteCSV(c.Writer, jobs); err != nil {
		_ = c.Error(err)
	}
}

// Summary is GET /jobs/summary
func (h *JobHandler) Summary(c *gin.Context) {
	jobs, err := h.JobService.List(c.Request.Context(), identity(c).UserID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":      services.Summarize(jobs),
		"statusCounts": services.StatusCounts(jobs),
	})
}
