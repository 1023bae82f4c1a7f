package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/bsvalues/PACS-DataBridge/internal/errors"
	"github.com/bsvalues/PACS-DataBridge/internal/middleware"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
	"github.com/bsvalues/PACS-DataBridge/internal/services"
)

// ImportHandler handles import job HTTP requests.
type ImportHandler struct {
	service services.ImportService
}

// NewImportHandler creates a new ImportHandler instance.
func NewImportHandler(service services.ImportService) *ImportHandler {
	return &ImportHandler{
		service: service,
	}
}

// CreateImportRequest is the body of POST /api/v1/imports.
type CreateImportRequest struct {
	ImportType string `json:"importType" binding:"required,oneof=permits property Permit PersonalProperty"`
	Source     string `json:"source" binding:"required"`
}

// ListImportsRequest holds the query parameters of GET /api/v1/imports.
type ListImportsRequest struct {
	Status     string `form:"status" binding:"omitempty,oneof=Pending Processing Completed Failed"`
	ImportType string `form:"importType" binding:"omitempty,oneof=permits property Permit PersonalProperty"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ListRecordsRequest holds the query parameters of GET /api/v1/imports/:id/records.
type ListRecordsRequest struct {
	ValidationStatus string `form:"validationStatus" binding:"omitempty,oneof=Pending Valid Warning Invalid"`
	ProcessingStatus string `form:"processingStatus" binding:"omitempty,oneof=Pending Processed Failed Skipped"`
	Limit            int    `form:"limit" binding:"omitempty,min=1,max=5000"`
	Offset           int    `form:"offset" binding:"omitempty,gte=0"`
}

// ListErrorsRequest holds the query parameters of GET /api/v1/imports/:id/errors.
type ListErrorsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=5000"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job *models.ImportJob `json:"job"`
}

// JobListResponse wraps a list of jobs.
type JobListResponse struct {
	Jobs  []models.ImportJob `json:"jobs"`
	Count int                `json:"count"`
}

// RecordListResponse wraps a job's staging records.
type RecordListResponse struct {
	Records []models.StagingRecord `json:"records"`
	Count   int                    `json:"count"`
}

// ErrorListResponse wraps a job's import errors.
type ErrorListResponse struct {
	Errors []models.ImportError `json:"errors"`
	Count  int                  `json:"count"`
}

// Create handles POST /api/v1/imports. The job runs in the background; the
// response is 202 with the Pending job and a Location header to poll.
func (h *ImportHandler) Create(c *gin.Context) {
	var req CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}

	importType, err := models.ParseImportType(req.ImportType)
	if err != nil {
		apierrors.BadRequest(c, err.Error(), nil)
		return
	}

	job, err := h.service.Start(c.Request.Context(), importType, req.Source)
	if err != nil {
		serviceError(c, err, "Failed to start import")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Import job accepted", map[string]interface{}{
			"job_id":      job.ID.String(),
			"import_type": string(job.ImportType),
			"source":      job.Source.Name,
		})
	}

	c.Header("Location", "/api/v1/imports/"+job.ID.String())
	c.JSON(http.StatusAccepted, JobResponse{Job: job})
}

// List handles GET /api/v1/imports.
func (h *ImportHandler) List(c *gin.Context) {
	var req ListImportsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}

	filter := repository.JobFilter{
		Status: models.JobStatus(req.Status),
		Limit:  req.Limit,
	}
	if req.ImportType != "" {
		importType, err := models.ParseImportType(req.ImportType)
		if err != nil {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		filter.ImportType = importType
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		serviceError(c, err, "Failed to list import jobs")
		return
	}

	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}

// Get handles GET /api/v1/imports/:id.
func (h *ImportHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err, "Failed to load import job")
		return
	}

	c.JSON(http.StatusOK, JobResponse{Job: job})
}

// Records handles GET /api/v1/imports/:id/records.
func (h *ImportHandler) Records(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req ListRecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}

	records, err := h.service.ListRecords(c.Request.Context(), id, repository.RecordFilter{
		ValidationStatus: models.ValidationStatus(req.ValidationStatus),
		ProcessingStatus: models.ProcessingStatus(req.ProcessingStatus),
		Limit:            req.Limit,
		Offset:           req.Offset,
	})
	if err != nil {
		serviceError(c, err, "Failed to list staging records")
		return
	}

	c.JSON(http.StatusOK, RecordListResponse{Records: records, Count: len(records)})
}

// Errors handles GET /api/v1/imports/:id/errors.
func (h *ImportHandler) Errors(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req ListErrorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BindError(c, err)
		return
	}

	errs, err := h.service.ListErrors(c.Request.Context(), id, req.Limit)
	if err != nil {
		serviceError(c, err, "Failed to list import errors")
		return
	}

	c.JSON(http.StatusOK, ErrorListResponse{Errors: errs, Count: len(errs)})
}

// Abort handles POST /api/v1/imports/:id/abort. A job that is not running
// answers 409.
func (h *ImportHandler) Abort(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Abort(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrJobNotRunning) {
			apierrors.Conflict(c, "Import job is not running")
			return
		}
		serviceError(c, err, "Failed to abort import job")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "aborting", "jobId": id.String()})
}
