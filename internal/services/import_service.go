package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sync"

	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/pipeline"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
)

// Import service errors
var (
	ErrJobNotFound   = errors.New("import job not found")
	ErrJobNotRunning = errors.New("import job is not running")
	ErrInvalidSource = errors.New("invalid import source")
	ErrInvalidImport = errors.New("invalid import request")
	ErrShuttingDown  = errors.New("import service is shutting down")
)

const defaultRecordLimit = 500

// Rows is an opened import source.
type Rows interface {
	pipeline.RowSource
	Close() error
}

// OpenFunc opens the rows behind a source URI for one import type.
type OpenFunc func(ctx context.Context, uri string, importType models.ImportType) (Rows, error)

// Runner is the orchestrator surface the service drives.
type Runner interface {
	Submit(ctx context.Context, importType models.ImportType, source models.SourceDescriptor) (*models.ImportJob, error)
	Run(ctx context.Context, job *models.ImportJob, rows pipeline.RowSource) (*models.ImportJob, error)
	Abort(jobID uuid.UUID) error
}

// JobStore is the persistence the service reads jobs from.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]models.ImportJob, error)
	ListRecords(ctx context.Context, jobID uuid.UUID, filter repository.RecordFilter) ([]models.StagingRecord, error)
	ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error)
}

// ImportService defines import job operations.
type ImportService interface {
	// Import opens uri and runs a job to completion on the caller's goroutine.
	// Record-level failures are reported on the returned job, not as an error.
	Import(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error)

	// Start opens uri, submits a job and processes it in the background.
	// It returns the Pending job as soon as it is persisted.
	Start(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error)

	// GetJob returns ErrJobNotFound when no job has the ID.
	GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]models.ImportJob, error)
	ListRecords(ctx context.Context, jobID uuid.UUID, filter repository.RecordFilter) ([]models.StagingRecord, error)
	ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error)

	// Abort cancels a Processing job. Terminal jobs return ErrJobNotRunning.
	Abort(ctx context.Context, jobID uuid.UUID) error

	// Shutdown aborts background jobs and waits for them to reach a terminal status.
	Shutdown(ctx context.Context) error
}

type importService struct {
	runner Runner
	jobs   JobStore
	open   OpenFunc
	log    *logger.Logger

	// base outlives requests so background jobs survive the HTTP call that started them.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// started holds a cancel per background job from Submit until its run
	// returns, so an abort lands even before the orchestrator has the job.
	started map[uuid.UUID]context.CancelCauseFunc
}

// NewImportService creates an ImportService.
func NewImportService(runner Runner, jobs JobStore, open OpenFunc, log *logger.Logger) ImportService {
	base, cancel := context.WithCancel(context.Background())
	return &importService{
		runner: runner,
		jobs:   jobs,
		open:   open,
		log:    log,
		base:    base,
		cancel:  cancel,
		started: make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

func (s *importService) prepare(ctx context.Context, importType models.ImportType, uri string) (Rows, models.SourceDescriptor, error) {
	if !importType.Valid() {
		return nil, models.SourceDescriptor{}, fmt.Errorf("%w: unknown import type %q", ErrInvalidImport, importType)
	}
	if uri == "" {
		return nil, models.SourceDescriptor{}, fmt.Errorf("%w: source is required", ErrInvalidSource)
	}
	rows, err := s.open(ctx, uri, importType)
	if err != nil {
		s.log.Warn("Failed to open import source", map[string]interface{}{
			"source":      uri,
			"import_type": string(importType),
			"error":       err.Error(),
		})
		return nil, models.SourceDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return rows, describe(uri), nil
}

// Import runs a job synchronously.
func (s *importService) Import(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error) {
	rows, src, err := s.prepare(ctx, importType, uri)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	job, err := s.runner.Submit(ctx, importType, src)
	if err != nil {
		return nil, fmt.Errorf("failed to submit import: %w", err)
	}
	return s.runner.Run(ctx, job, rows)
}

// Start runs a job in the background.
func (s *importService) Start(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	// The rows are read after the caller returns, so they are opened against
	// the job's context rather than the request's.
	jobCtx, cancelJob := context.WithCancelCause(s.base)
	rows, src, err := s.prepare(jobCtx, importType, uri)
	if err != nil {
		cancelJob(nil)
		s.wg.Done()
		return nil, err
	}

	job, err := s.runner.Submit(ctx, importType, src)
	if err != nil {
		rows.Close()
		cancelJob(nil)
		s.wg.Done()
		return nil, fmt.Errorf("failed to submit import: %w", err)
	}

	// The caller gets its own copy; the background run mutates the original.
	accepted := *job

	s.mu.Lock()
	s.started[job.ID] = cancelJob
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer rows.Close()
		defer func() {
			s.mu.Lock()
			delete(s.started, job.ID)
			s.mu.Unlock()
			cancelJob(nil)
		}()
		if _, err := s.runner.Run(jobCtx, job, rows); err != nil {
			s.log.Error("Background import ended with a job fault", err, map[string]interface{}{
				"job_id": job.ID.String(),
			})
		}
	}()

	return &accepted, nil
}

// GetJob retrieves one job.
func (s *importService) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		s.log.Error("Failed to query import job", err, map[string]interface{}{
			"job_id": id.String(),
		})
		return nil, fmt.Errorf("failed to query import job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs lists jobs newest first.
func (s *importService) ListJobs(ctx context.Context, filter repository.JobFilter) ([]models.ImportJob, error) {
	if filter.ImportType != "" && !filter.ImportType.Valid() {
		return nil, fmt.Errorf("%w: unknown import type %q", ErrInvalidImport, filter.ImportType)
	}
	jobs, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	return jobs, nil
}

// ListRecords lists a job's staging records in source order.
func (s *importService) ListRecords(ctx context.Context, jobID uuid.UUID, filter repository.RecordFilter) ([]models.StagingRecord, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultRecordLimit
	}
	recs, err := s.jobs.ListRecords(ctx, jobID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging records: %w", err)
	}
	return recs, nil
}

// ListErrors lists a job's import errors.
func (s *importService) ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	errs, err := s.jobs.ListErrors(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import errors: %w", err)
	}
	return errs, nil
}

// Abort cancels a running job.
func (s *importService) Abort(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job is %s", ErrJobNotRunning, job.Status)
	}

	s.mu.Lock()
	cancelJob, ok := s.started[jobID]
	s.mu.Unlock()
	if ok {
		cancelJob(pipeline.ErrAborted)
		s.log.Info("Import job abort requested", map[string]interface{}{
			"job_id": jobID.String(),
		})
		return nil
	}

	if err := s.runner.Abort(jobID); err != nil {
		if errors.Is(err, pipeline.ErrJobNotRunning) {
			return fmt.Errorf("%w: job is not running in this process", ErrJobNotRunning)
		}
		return err
	}
	s.log.Info("Import job abort requested", map[string]interface{}{
		"job_id": jobID.String(),
	})
	return nil
}

// Shutdown cancels background jobs and waits for them or for ctx.
func (s *importService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// describe names a source by the last element of its path.
func describe(uri string) models.SourceDescriptor {
	name := path.Base(uri)
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	return models.SourceDescriptor{Name: name, URI: uri}
}
