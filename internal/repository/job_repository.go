package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

const jobsTable = "import_jobs"

var jobColumns = []string{
	"id",
	"import_type",
	"source_name",
	"source_uri",
	"status",
	"records_total",
	"records_processed",
	"records_successful",
	"records_failed",
	"error_summary",
	"created_at",
	"updated_at",
	"started_at",
	"completed_at",
}

// CreateJob inserts a new job row.
func (s *sqlStore) CreateJob(ctx context.Context, job *models.ImportJob) error {
	b := s.sb.Insert(jobsTable).Columns(jobColumns...).Values(
		job.ID.String(),
		string(job.ImportType),
		job.Source.Name,
		job.Source.URI,
		string(job.Status),
		job.RecordsTotal,
		job.RecordsProcessed,
		job.RecordsSuccessful,
		job.RecordsFailed,
		job.ErrorSummary,
		s.timeArg(job.CreatedAt),
		s.timeArg(job.UpdatedAt),
		s.timePtrArg(job.StartedAt),
		s.timePtrArg(job.CompletedAt),
	)
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob writes the mutable job columns.
func (s *sqlStore) UpdateJob(ctx context.Context, job *models.ImportJob) error {
	b := s.sb.Update(jobsTable).SetMap(map[string]interface{}{
		"status":             string(job.Status),
		"records_total":      job.RecordsTotal,
		"records_processed":  job.RecordsProcessed,
		"records_successful": job.RecordsSuccessful,
		"records_failed":     job.RecordsFailed,
		"error_summary":      job.ErrorSummary,
		"updated_at":         s.timeArg(job.UpdatedAt),
		"started_at":         s.timePtrArg(job.StartedAt),
		"completed_at":       s.timePtrArg(job.CompletedAt),
	}).Where(sq.Eq{"id": job.ID.String()})
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads one job. It returns nil, nil when the job does not exist.
func (s *sqlStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	r, err := s.queryRow(ctx, s.sb.Select(jobColumns...).From(jobsTable).Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return nil, err
	}
	job, err := scanJob(r)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *sqlStore) ListJobs(ctx context.Context, filter JobFilter) ([]models.ImportJob, error) {
	b := s.sb.Select(jobColumns...).From(jobsTable).OrderBy("created_at DESC", "id")
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.ImportType != "" {
		b = b.Where(sq.Eq{"import_type": string(filter.ImportType)})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rs.Close()

	jobs := []models.ImportJob{}
	for rs.Next() {
		job, err := scanJob(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

func scanJob(r row) (*models.ImportJob, error) {
	var job models.ImportJob
	var importType, status string
	var created, updated, started, completed sqlTime
	err := r.Scan(
		&job.ID,
		&importType,
		&job.Source.Name,
		&job.Source.URI,
		&status,
		&job.RecordsTotal,
		&job.RecordsProcessed,
		&job.RecordsSuccessful,
		&job.RecordsFailed,
		&job.ErrorSummary,
		&created,
		&updated,
		&started,
		&completed,
	)
	if err != nil {
		return nil, err
	}
	job.ImportType = models.ImportType(importType)
	job.Status = models.JobStatus(status)
	job.CreatedAt = created.Time
	job.UpdatedAt = updated.Time
	job.StartedAt = started.ptr()
	job.CompletedAt = completed.ptr()
	return &job, nil
}
