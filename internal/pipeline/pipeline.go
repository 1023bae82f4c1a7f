// Package pipeline runs import jobs: it owns the job lifecycle, drives every
// record through normalization, transformation, validation, duplicate
// detection and address matching, and rolls record outcomes up into the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
)

// Orchestrator errors.
var (
	ErrJobNotPending = errors.New("job is not pending")
	ErrJobNotRunning = errors.New("job is not running")
	ErrAborted       = errors.New("job aborted")
	// ErrStore marks a persistence failure; it is fatal to the current job.
	ErrStore = errors.New("persistence store unavailable")
	// ErrSource marks a failure reading the row source; it is fatal to the current job.
	ErrSource = errors.New("row source failed")
)

// RowSource yields raw rows for one import. Next returns io.EOF when the
// source is exhausted. Sources are read once.
type RowSource interface {
	Next(ctx context.Context) (map[string]string, error)
}

// SliceSource is a RowSource over rows already in memory.
type SliceSource struct {
	Rows []map[string]string
	pos  int
}

// Next returns the next row or io.EOF.
func (s *SliceSource) Next(_ context.Context) (map[string]string, error) {
	if s.pos >= len(s.Rows) {
		return nil, io.EOF
	}
	row := s.Rows[s.pos]
	s.pos++
	return row, nil
}

// Store is the persistence the orchestrator writes through.
type Store interface {
	CreateJob(ctx context.Context, job *models.ImportJob) error
	UpdateJob(ctx context.Context, job *models.ImportJob) error
	SaveRecord(ctx context.Context, rec *models.StagingRecord) error
	AppendErrors(ctx context.Context, errs []*models.ImportError) error
	AppendMatch(ctx context.Context, match *models.AddressMatch) error
	CommittedKeys(ctx context.Context, importType models.ImportType, keys []string, excludeJob uuid.UUID) (map[string]bool, error)
	ParcelAddresses(ctx context.Context) ([]models.ParcelAddress, error)
}

// Recorder receives pipeline measurements. *metrics.Metrics implements it.
type Recorder interface {
	JobFinished(importType models.ImportType, status models.JobStatus, elapsed time.Duration)
	RecordFinished(importType models.ImportType, outcome models.ProcessingStatus)
	MatchAttempted(tier string)
}

type nopRecorder struct{}

func (nopRecorder) JobFinished(models.ImportType, models.JobStatus, time.Duration) {}
func (nopRecorder) RecordFinished(models.ImportType, models.ProcessingStatus)     {}
func (nopRecorder) MatchAttempted(string)                                         {}

// Options tune one orchestrator. They are fixed at construction.
type Options struct {
	// Workers bounds concurrent record processing within a job.
	Workers int
	// ProgressInterval persists job counters every N records; zero disables it.
	ProgressInterval int
	// MinConfidence is the fuzzy address threshold, 0 to 100.
	MinConfidence float64
	// RequireParcelMatch fails records whose address resolves to no parcel.
	RequireParcelMatch bool
	// AddressMatching enables the address matching stage.
	AddressMatching bool
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Workers:          4,
		ProgressInterval: 100,
		MinConfidence:    70,
		AddressMatching:  true,
	}
}

// OptionsFromConfig converts the pipeline configuration section.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		Workers:            cfg.Workers,
		ProgressInterval:   cfg.ProgressInterval,
		MinConfidence:      cfg.MatchMinConfidence,
		RequireParcelMatch: cfg.RequireParcelMatch,
		AddressMatching:    cfg.AddressMatching,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sends measurements to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator owns the import job state machine. It is safe for concurrent
// use; each job runs on the caller's goroutine.
type Orchestrator struct {
	store    Store
	rules    rules.Provider
	registry *rules.Registry
	log      *logger.Logger
	metrics  Recorder
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelCauseFunc
}

// New creates an Orchestrator. Out-of-range options fall back to defaults.
func New(store Store, provider rules.Provider, registry *rules.Registry, log *logger.Logger, opts Options, options ...Option) *Orchestrator {
	def := DefaultOptions()
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.ProgressInterval < 0 {
		opts.ProgressInterval = 0
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 100 {
		opts.MinConfidence = def.MinConfidence
	}
	if registry == nil {
		registry = rules.DefaultRegistry(time.Now)
	}
	if log == nil {
		log = logger.Nop()
	}
	o := &Orchestrator{
		store:    store,
		rules:    provider,
		registry: registry,
		log:      log,
		metrics:  nopRecorder{},
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		running:  make(map[uuid.UUID]context.CancelCauseFunc),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Submit creates and persists a Pending job. Every submission gets a new
// identity; jobs are never reused.
func (o *Orchestrator) Submit(ctx context.Context, importType models.ImportType, source models.SourceDescriptor) (*models.ImportJob, error) {
	if !importType.Valid() {
		return nil, fmt.Errorf("unknown import type %q", importType)
	}
	job := models.NewImportJob(importType, source, o.now())
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	o.log.Info("Import job submitted", map[string]interface{}{
		"job_id":      job.ID.String(),
		"import_type": string(importType),
		"source":      source.Name,
	})
	return job, nil
}

// Import submits a job and runs it to completion.
func (o *Orchestrator) Import(ctx context.Context, importType models.ImportType, source models.SourceDescriptor, rows RowSource) (*models.ImportJob, error) {
	job, err := o.Submit(ctx, importType, source)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, job, rows)
}

// Abort cancels a running job. Records already persisted keep their outcome;
// the rest are marked Skipped and the job ends Failed.
func (o *Orchestrator) Abort(jobID uuid.UUID) error {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	cancel(ErrAborted)
	return nil
}

// Running reports whether jobID is currently being processed here.
func (o *Orchestrator) Running(jobID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[jobID]
	return ok
}

func (o *Orchestrator) register(jobID uuid.UUID, cancel context.CancelCauseFunc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, dup := o.running[jobID]; dup {
		return false
	}
	o.running[jobID] = cancel
	return true
}

func (o *Orchestrator) unregister(jobID uuid.UUID) {
	o.mu.Lock()
	delete(o.running, jobID)
	o.mu.Unlock()
}

// Run processes a Pending job to a terminal status. It returns the final job
// and, when the job ended Failed, the job-level fault. Record-level problems
// never produce an error here.
func (o *Orchestrator) Run(ctx context.Context, job *models.ImportJob, rows RowSource) (*models.ImportJob, error) {
	if job.Status != models.JobStatusPending {
		return job, fmt.Errorf("%w: %s is %s", ErrJobNotPending, job.ID, job.Status)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if !o.register(job.ID, cancel) {
		return job, fmt.Errorf("%w: %s is already running", ErrJobNotPending, job.ID)
	}
	defer o.unregister(job.ID)

	r := newRun(o, job, rows)
	if err := job.Transition(models.JobStatusProcessing, o.now()); err != nil {
		return job, err
	}
	if err := o.store.UpdateJob(ctx, job); err != nil {
		// Nothing was staged; settle the job as Failed rather than leave it
		// Processing in memory and Pending in the store.
		return r.finish(ctx, storeFault(ctx, err, "starting job"))
	}
	r.log.Info("Import job started", nil)

	fault := r.execute(runCtx)
	return r.finish(ctx, fault)
}
