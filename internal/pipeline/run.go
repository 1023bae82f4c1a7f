package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bsvalues/PACS-DataBridge/internal/address"
	"github.com/bsvalues/PACS-DataBridge/internal/duplicates"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
	"github.com/bsvalues/PACS-DataBridge/internal/transform"
	"github.com/bsvalues/PACS-DataBridge/internal/validation"
)

const abortedMessage = "job aborted before this record was processed"

// run is the state of one job execution.
type run struct {
	o       *Orchestrator
	job     *models.ImportJob
	rows    RowSource
	log     *logger.Logger
	started time.Time

	validations     []validation.Compiled
	transformations []transform.Compiled
	matcher         *address.Matcher

	records []*models.StagingRecord
	// faults holds Processing faults per record, indexed like records.
	faults [][]string
	// persisted is written by exactly one worker per index and read after Wait.
	persisted []bool

	mu sync.Mutex // guards job counters

	progressMu    sync.Mutex // serializes progress writes
	savedProgress int
}

func newRun(o *Orchestrator, job *models.ImportJob, rows RowSource) *run {
	return &run{
		o:       o,
		job:     job,
		rows:    rows,
		log:     o.log.WithJob(job.ID.String(), string(job.ImportType)),
		started: time.Now(),
	}
}

// execute runs the stages in order and returns the job-level fault, if any.
func (r *run) execute(ctx context.Context) error {
	// A job aborted before it started never touches its source.
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if err := r.load(ctx); err != nil {
		return err
	}
	if err := r.ingest(ctx); err != nil {
		return err
	}
	if err := r.prepare(ctx); err != nil {
		return err
	}
	if err := r.deduplicate(ctx); err != nil {
		return err
	}
	return r.finalize(ctx)
}

// load fetches and compiles the rules and builds the parcel index. Rules are
// read once per job so edits never change a job mid-flight.
func (r *run) load(ctx context.Context) error {
	importType := r.job.ImportType
	if r.o.rules != nil {
		vr, err := r.o.rules.ValidationRules(ctx, importType)
		if err != nil {
			return storeFault(ctx, err, "loading validation rules")
		}
		tr, err := r.o.rules.TransformationRules(ctx, importType)
		if err != nil {
			return storeFault(ctx, err, "loading transformation rules")
		}
		r.validations = validation.Compile(vr, r.o.registry)
		r.transformations = transform.Compile(tr, r.o.registry)
	}

	if r.o.opts.AddressMatching {
		parcels, err := r.o.store.ParcelAddresses(ctx)
		if err != nil {
			return storeFault(ctx, err, "loading parcel addresses")
		}
		r.matcher = address.NewMatcher(address.NewIndex(parcels))
		r.log.Debug("Parcel index loaded", map[string]interface{}{
			"parcels": r.matcher.Index().Len(),
		})
	}

	r.log.Debug("Rules compiled", map[string]interface{}{
		"validation_rules":     len(r.validations),
		"transformation_rules": len(r.transformations),
	})
	return nil
}

// ingest reads every row from the source into Pending staging records.
// Blank rows are dropped but still consume a record index.
func (r *run) ingest(ctx context.Context) error {
	now := r.o.now()
	for index := 0; ; index++ {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		row, err := r.rows.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return fmt.Errorf("%w: row %d: %v", ErrSource, index, err)
		}
		rec, ok := normalizer.Normalize(r.job.ID, r.job.ImportType, index, row, now)
		if !ok {
			continue
		}
		r.records = append(r.records, rec)
	}

	r.faults = make([][]string, len(r.records))
	r.persisted = make([]bool, len(r.records))
	r.mu.Lock()
	r.job.RecordsTotal = len(r.records)
	r.mu.Unlock()

	r.log.Info("Rows ingested", map[string]interface{}{
		"records": len(r.records),
	})
	return nil
}

// prepare transforms, validates and binds every record concurrently. Records
// that are Invalid or hit a processing fault are failed here, so duplicate
// detection only sees candidates for commit.
func (r *run) prepare(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.Workers)
	for i, rec := range r.records {
		g.Go(func() error {
			if err := context.Cause(gctx); err != nil {
				return err
			}
			faults := transform.Apply(rec, r.transformations)
			outcome := validation.Validate(rec, r.validations)
			faults = append(faults, outcome.Faults...)
			normalizer.Bind(rec)
			r.faults[i] = faults

			switch {
			case rec.ValidationStatus == models.ValidationStatusInvalid:
				rec.MarkFailed("Record failed validation")
			case len(faults) > 0:
				rec.MarkFailed("Record could not be processed")
			}
			return nil
		})
	}
	return g.Wait()
}

// deduplicate is the barrier between preparation and commit: keys are compared
// across the whole job and against records committed by earlier jobs.
func (r *run) deduplicate(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	var prior map[string]bool
	if keys := duplicates.Keys(r.records); len(keys) > 0 {
		var err error
		prior, err = r.o.store.CommittedKeys(ctx, r.job.ImportType, keys, r.job.ID)
		if err != nil {
			return storeFault(ctx, err, "checking committed keys")
		}
	}
	flags := duplicates.Detect(r.records, prior)
	duplicates.Mark(flags)
	if len(flags) > 0 {
		r.log.Info("Duplicate records flagged", map[string]interface{}{
			"duplicates": len(flags),
		})
	}
	return nil
}

// finalize matches addresses, settles each record's status and persists it.
func (r *run) finalize(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.opts.Workers)
	for i := range r.records {
		g.Go(func() error {
			return r.complete(gctx, i)
		})
	}
	return g.Wait()
}

func (r *run) complete(ctx context.Context, i int) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	rec := r.records[i]

	var audit *models.AddressMatch
	if r.matcher != nil && rec.ProcessingStatus != models.ProcessingStatusFailed {
		if addr := normalizer.AddressOf(rec); addr != "" {
			audit = r.match(rec, i, addr)
		}
	}

	if rec.ProcessingStatus != models.ProcessingStatusFailed {
		if err := rec.MarkProcessed(); err != nil {
			rec.MarkFailed(err.Error())
		}
	}

	if err := r.o.store.SaveRecord(ctx, rec); err != nil {
		return storeFault(ctx, err, "saving record %d", rec.RecordIndex)
	}
	r.persisted[i] = true
	snapshot := r.count(rec)

	if audit != nil {
		if err := r.o.store.AppendMatch(ctx, audit); err != nil {
			return storeFault(ctx, err, "saving address match for record %d", rec.RecordIndex)
		}
	}
	if errs := r.importErrors(i); len(errs) > 0 {
		if err := r.o.store.AppendErrors(ctx, errs); err != nil {
			return storeFault(ctx, err, "saving errors for record %d", rec.RecordIndex)
		}
	}
	return r.saveProgress(ctx, snapshot)
}

// match resolves the record's address and returns the audit row to persist.
func (r *run) match(rec *models.StagingRecord, i int, addr string) *models.AddressMatch {
	res, err := r.matcher.Match(addr, r.o.opts.MinConfidence)
	if err != nil {
		r.faults[i] = append(r.faults[i], fmt.Sprintf("address matching failed: %v", err))
		rec.MarkFailed("Address could not be matched")
		return nil
	}
	r.o.metrics.MatchAttempted(string(res.Tier))

	if best, ok := res.Best(); ok {
		parcel := best.ParcelNumber
		rec.ResolvedParcelNumber = &parcel
		switch {
		case rec.Permit != nil && rec.Permit.ParcelNumber == "":
			rec.Permit.ParcelNumber = parcel
		case rec.PersonalProperty != nil && rec.PersonalProperty.ParcelNumber == "":
			rec.PersonalProperty.ParcelNumber = parcel
		}
	} else if r.o.opts.RequireParcelMatch {
		msg := fmt.Sprintf("No parcel matched address %q", addr)
		r.faults[i] = append(r.faults[i], msg)
		rec.MarkFailed(msg)
	}
	return res.Audit(&rec.ID, &r.job.ID, r.o.now())
}

func (r *run) importErrors(i int) []*models.ImportError {
	rec := r.records[i]
	now := r.o.now()
	var out []*models.ImportError
	if rec.ValidationStatus == models.ValidationStatusInvalid {
		out = append(out, models.NewImportError(r.job.ID, rec, models.ErrorTypeValidation, rec.ValidationMessages.String(), now))
	}
	for _, fault := range r.faults[i] {
		out = append(out, models.NewImportError(r.job.ID, rec, models.ErrorTypeProcessing, fault, now))
	}
	return out
}

// count rolls a persisted record into the job. It returns a copy of the job
// when a progress save is due.
func (r *run) count(rec *models.StagingRecord) *models.ImportJob {
	interval := r.o.opts.ProgressInterval

	r.mu.Lock()
	r.job.CountRecord(rec.ProcessingStatus)
	var snapshot *models.ImportJob
	if interval > 0 && r.job.RecordsProcessed%interval == 0 {
		copied := *r.job
		snapshot = &copied
	}
	r.mu.Unlock()

	r.o.metrics.RecordFinished(r.job.ImportType, rec.ProcessingStatus)
	if rec.ProcessingStatus == models.ProcessingStatusFailed {
		r.log.Debug("Record failed", map[string]interface{}{
			"record_index": rec.RecordIndex,
			"messages":     rec.ProcessingMessages.String(),
		})
	}
	return snapshot
}

// saveProgress writes snapshot unless a later one has already been saved.
func (r *run) saveProgress(ctx context.Context, snapshot *models.ImportJob) error {
	if snapshot == nil {
		return nil
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	if snapshot.RecordsProcessed <= r.savedProgress {
		return nil
	}

	r.log.Info("Import progress", map[string]interface{}{
		"processed": snapshot.RecordsProcessed,
		"total":     snapshot.RecordsTotal,
	})
	if err := r.o.store.UpdateJob(ctx, snapshot); err != nil {
		return storeFault(ctx, err, "saving progress")
	}
	r.savedProgress = snapshot.RecordsProcessed
	return nil
}

// finish settles unpersisted records after a fault and moves the job to its
// terminal status. Writes here ignore cancellation so an aborted job still
// reaches a terminal state.
func (r *run) finish(ctx context.Context, fault error) (*models.ImportJob, error) {
	wctx := context.WithoutCancel(ctx)
	aborted := fault != nil && (errors.Is(fault, ErrAborted) ||
		errors.Is(fault, context.Canceled) ||
		errors.Is(fault, context.DeadlineExceeded))

	if fault != nil {
		r.skipRemaining(wctx, fault, aborted)
	}

	status := models.JobStatusCompleted
	summary := ""
	if fault != nil {
		status = models.JobStatusFailed
		if aborted {
			summary = fmt.Sprintf("Import aborted after %d of %d records", r.job.RecordsSuccessful, r.job.RecordsTotal)
		} else {
			summary = fault.Error()
		}
	} else if r.job.RecordsFailed > 0 {
		summary = fmt.Sprintf("%d of %d records failed", r.job.RecordsFailed, r.job.RecordsTotal)
	}

	r.job.SetErrorSummary(summary)
	if err := r.job.Transition(status, r.o.now()); err != nil {
		return r.job, err
	}
	if err := r.o.store.UpdateJob(wctx, r.job); err != nil {
		r.log.Error("Failed to save final job status", err, map[string]interface{}{
			"status": string(status),
		})
		if fault == nil {
			fault = storeFault(wctx, err, "saving final status")
		}
	}
	r.o.metrics.JobFinished(r.job.ImportType, status, time.Since(r.started))

	fields := map[string]interface{}{
		"status":     string(status),
		"total":      r.job.RecordsTotal,
		"successful": r.job.RecordsSuccessful,
		"failed":     r.job.RecordsFailed,
		"duration":   time.Since(r.started).String(),
	}
	if fault != nil && status == models.JobStatusFailed {
		r.log.Error("Import job failed", fault, fields)
	} else {
		r.log.Info("Import job completed", fields)
	}

	if aborted && !errors.Is(fault, ErrAborted) {
		fault = fmt.Errorf("%w: %v", ErrAborted, fault)
	}
	return r.job, fault
}

func (r *run) skipRemaining(ctx context.Context, fault error, aborted bool) {
	if len(r.persisted) != len(r.records) {
		r.persisted = make([]bool, len(r.records))
	}
	// The source may have failed before the total was known.
	r.job.RecordsTotal = len(r.records)

	errType := models.ErrorTypeProcessing
	reason := abortedMessage
	if !aborted {
		reason = "job failed before this record was processed"
		if errors.Is(fault, ErrStore) {
			errType = models.ErrorTypeDatabase
		}
		// The job-level fault itself, not tied to any record.
		jobErr := models.NewImportError(r.job.ID, nil, errType, fault.Error(), r.o.now())
		if err := r.o.store.AppendErrors(ctx, []*models.ImportError{jobErr}); err != nil {
			r.log.Warn("Could not record job failure", map[string]interface{}{"error": err.Error()})
		}
	}

	var skipped int
	for i, rec := range r.records {
		if r.persisted[i] {
			continue
		}
		rec.MarkSkipped(reason)
		r.job.CountRecord(rec.ProcessingStatus)
		r.o.metrics.RecordFinished(r.job.ImportType, rec.ProcessingStatus)
		skipped++

		if err := r.o.store.SaveRecord(ctx, rec); err != nil {
			r.log.Warn("Could not save skipped record", map[string]interface{}{
				"record_index": rec.RecordIndex,
				"error":        err.Error(),
			})
			continue
		}
		r.persisted[i] = true
		ie := models.NewImportError(r.job.ID, rec, errType, reason, r.o.now())
		if err := r.o.store.AppendErrors(ctx, []*models.ImportError{ie}); err != nil {
			r.log.Warn("Could not save skipped record error", map[string]interface{}{
				"record_index": rec.RecordIndex,
				"error":        err.Error(),
			})
		}
	}
	if skipped > 0 {
		r.log.Warn("Records skipped", map[string]interface{}{
			"skipped": skipped,
			"reason":  reason,
		})
	}
}

// storeFault wraps a persistence error, preferring the cancellation cause when
// the failure came from an aborted context.
func storeFault(ctx context.Context, err error, format string, args ...interface{}) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return fmt.Errorf("%w: %s: %v", ErrStore, fmt.Sprintf(format, args...), err)
}
