package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/justsurfingit/jobpilot/internal/auth"
	"github.com/justsurfingit/jobpilot/internal/docstore"
	"github.com/justsurfingit/jobpilot/internal/dtos"
	"github.com/justsurfingit/jobpilot/internal/mutation"
	"github.com/justsurfingit/jobpilot/internal/services"
	"github.com/justsurfingit/jobpilot/internal/transfer"
)

// respondError maps service and store errors to a status code and a JSON
// error body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, docstore.ErrInvalidArgument),
		errors.Is(err, transfer.ErrUnsupportedFormat),
		errors.Is(err, transfer.ErrNoRows):
		status = http.StatusBadRequest
	case errors.Is(err, docstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, docstore.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidOutput):
		status = http.StatusBadGateway
	case errors.Is(err, docstore.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func identity(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c)
	return id
}

func accepted(m *mutation.Mutation) dtos.MutationResponse {
	return dtos.MutationResponse{
		ID:         m.ID,
		Kind:       string(m.Kind),
		DocumentID: lastSegment(m.Path),
		State:      m.State().String(),
	}
}

func lastSegment(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
