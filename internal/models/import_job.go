package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportType identifies which family of county records a job ingests.
type ImportType string

// Import types. The string values are persisted.
const (
	ImportTypePermit           ImportType = "Permit"
	ImportTypePersonalProperty ImportType = "PersonalProperty"
)

// Valid reports whether t is a known import type.
func (t ImportType) Valid() bool {
	return t == ImportTypePermit || t == ImportTypePersonalProperty
}

// ParseImportType accepts the persisted names plus the CLI/API shorthands.
func ParseImportType(s string) (ImportType, error) {
	switch s {
	case "Permit", "permit", "permits":
		return ImportTypePermit, nil
	case "PersonalProperty", "personal_property", "property", "personal-property":
		return ImportTypePersonalProperty, nil
	}
	return "", fmt.Errorf("unknown import type %q", s)
}

// JobStatus is the lifecycle state of an ImportJob.
// The values are the exact persisted vocabulary.
type JobStatus string

// Job statuses.
const (
	JobStatusPending    JobStatus = "Pending"
	JobStatusProcessing JobStatus = "Processing"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusFailed     JobStatus = "Failed"
)

// Terminal reports whether no further processing is allowed in this state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrInvalidTransition is returned when a job status change is not allowed.
var ErrInvalidTransition = errors.New("invalid job status transition")

// allowedTransitions is the job state machine. No transition skips Processing.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// SourceDescriptor records where a job's rows came from.
type SourceDescriptor struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// ImportJob is one batch-processing unit covering one source and one import type.
// Only the pipeline orchestrator mutates a job.
type ImportJob struct {
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	StartedAt         *time.Time       `json:"startedAt,omitempty"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
	ErrorSummary      *string          `json:"errorSummary,omitempty"`
	Source            SourceDescriptor `json:"source"`
	ImportType        ImportType       `json:"importType"`
	Status            JobStatus        `json:"status"`
	RecordsTotal      int              `json:"recordsTotal"`
	RecordsProcessed  int              `json:"recordsProcessed"`
	RecordsSuccessful int              `json:"recordsSuccessful"`
	RecordsFailed     int              `json:"recordsFailed"`
	ID                uuid.UUID        `json:"id"`
}

// NewImportJob creates a Pending job with a fresh identity.
func NewImportJob(importType ImportType, source SourceDescriptor, now time.Time) *ImportJob {
	return &ImportJob{
		ID:         uuid.New(),
		ImportType: importType,
		Source:     source,
		Status:     JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the job to the next status, enforcing the state machine.
// Entering Processing resets the counters; entering a terminal state stamps CompletedAt.
func (j *ImportJob) Transition(to JobStatus, now time.Time) error {
	for _, next := range allowedTransitions[j.Status] {
		if next != to {
			continue
		}
		j.Status = to
		j.UpdatedAt = now
		switch to {
		case JobStatusProcessing:
			j.RecordsTotal = 0
			j.RecordsProcessed = 0
			j.RecordsSuccessful = 0
			j.RecordsFailed = 0
			started := now
			j.StartedAt = &started
		case JobStatusCompleted, JobStatusFailed:
			completed := now
			j.CompletedAt = &completed
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// CountRecord rolls one finished record into the job counters.
func (j *ImportJob) CountRecord(status ProcessingStatus) {
	j.RecordsProcessed++
	switch status {
	case ProcessingStatusProcessed:
		j.RecordsSuccessful++
	case ProcessingStatusFailed, ProcessingStatusSkipped:
		j.RecordsFailed++
	}
}

// SetErrorSummary replaces the job-level error summary.
func (j *ImportJob) SetErrorSummary(summary string) {
	if summary == "" {
		j.ErrorSummary = nil
		return
	}
	j.ErrorSummary = &summary
}
