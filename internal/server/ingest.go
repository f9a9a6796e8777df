package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/snapknow/internal/service"
	"github.com/raphaelgruber/snapknow/internal/store"
)

// Folder source kinds accepted by the ingest endpoint.
const (
	folderLocal   = "local"
	folderService = "file_service"
)

type ingestRequest struct {
	// Images are locators: HTTP(S) URLs or file-service references.
	Images []string `json:"images"`
	// FolderType and FolderLocation describe a batch source: "local" for a
	// filesystem folder on the server, "file_service" for a folder hosted by
	// the external file service.
	FolderType     string `json:"folder_type"`
	FolderLocation string `json:"folder_location"`
	// Extractor selects the vision model ("web", "local"); empty uses the
	// configured default.
	Extractor string `json:"extractor"`
}

type jobResponse struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Progress    int      `json:"progress"`
	Total       int      `json:"total"`
	Completed   int      `json:"completed"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors,omitempty"`
	StartedAt   string   `json:"started_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

func toJobResponse(snap service.Job) jobResponse {
	resp := jobResponse{
		ID:        snap.ID,
		Type:      snap.Type,
		Status:    string(snap.Status),
		Progress:  snap.Progress,
		Total:     snap.Total,
		Completed: snap.Completed,
		Failed:    snap.Failed,
		Errors:    snap.Errors,
		StartedAt: snap.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if snap.CompletedAt != nil {
		s := snap.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.CompletedAt = &s
	}
	return resp
}

// handleIngest accepts image locators, or a folder descriptor expanded into
// locators, and queues them. The response returns immediately with the job
// and per-image record IDs; processing happens in the background.
func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	locators, err := s.resolveIngestSources(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, items, err := s.dispatcher.Ingest(c.Request.Context(), locators, req.Extractor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job":   toJobResponse(job.Snapshot()),
		"items": items,
	})
}

// resolveIngestSources turns a request into the flat list of image locators
// to ingest: explicit images plus the contents of an optional folder source.
func (s *Server) resolveIngestSources(ctx context.Context, req ingestRequest) ([]string, error) {
	locators := req.Images

	if req.FolderType == "" {
		if len(locators) == 0 {
			return nil, errors.New("provide images or folder_type with folder_location")
		}
		return locators, nil
	}
	if req.FolderLocation == "" {
		return nil, errors.New("folder_location is required with folder_type")
	}
	if s.sources == nil {
		return nil, errors.New("folder ingestion is not configured")
	}

	switch req.FolderType {
	case folderLocal:
		paths, err := s.sources.FromFolder(req.FolderLocation)
		if err != nil {
			return nil, err
		}
		locators = append(locators, paths...)
	case folderService:
		refs, err := s.sources.FromServiceFolder(ctx, req.FolderLocation)
		if err != nil {
			return nil, err
		}
		locators = append(locators, refs...)
	default:
		return nil, fmt.Errorf("unknown folder_type %q (expected %q or %q)", req.FolderType, folderLocal, folderService)
	}
	return locators, nil
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs := s.jobs.ListJobs()
	out := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		out[i] = toJobResponse(job.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job := s.jobs.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job.Snapshot()))
}

func (s *Server) handleRetryRecord(c *gin.Context) {
	job, err := s.dispatcher.RetryRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		case errors.Is(err, service.ErrNotFailed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": toJobResponse(job.Snapshot())})
}

type retryFailedRequest struct {
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleRetryFailed(c *gin.Context) {
	var req retryFailedRequest
	// The body is optional; an empty one retries everything.
	_ = c.ShouldBindJSON(&req)

	job, err := s.dispatcher.RetryFailed(c.Request.Context(), req.Category, req.Limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": toJobResponse(job.Snapshot())})
}
