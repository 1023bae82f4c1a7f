package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// ErrUnsupportedDriver is returned by Open for an unknown store driver.
var ErrUnsupportedDriver = errors.New("unsupported store driver")

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	Status     models.JobStatus
	ImportType models.ImportType
	Limit      int
}

// RecordFilter narrows ListRecords. Zero values mean "any".
type RecordFilter struct {
	ValidationStatus models.ValidationStatus
	ProcessingStatus models.ProcessingStatus
	Limit            int
	Offset           int
}

// MatchFilter narrows ListMatches. At least one of the IDs should be set.
type MatchFilter struct {
	StagingRecordID *uuid.UUID
	JobID           *uuid.UUID
	Limit           int
}

// JobRepository persists import jobs.
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.ImportJob) error
	// UpdateJob writes status, counters, summary and timestamps.
	UpdateJob(ctx context.Context, job *models.ImportJob) error
	// GetJob returns nil, nil if the job does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]models.ImportJob, error)
}

// RecordRepository persists staging records and their import errors.
type RecordRepository interface {
	SaveRecord(ctx context.Context, rec *models.StagingRecord) error
	// ListRecords returns a job's records ordered by record index.
	ListRecords(ctx context.Context, jobID uuid.UUID, filter RecordFilter) ([]models.StagingRecord, error)
	AppendErrors(ctx context.Context, errs []*models.ImportError) error
	ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error)
	// CommittedKeys reports which of keys already belong to records of other jobs
	// whose processing status is neither Failed nor Skipped.
	CommittedKeys(ctx context.Context, importType models.ImportType, keys []string, excludeJob uuid.UUID) (map[string]bool, error)
}

// MatchRepository appends and reads the address match audit trail.
type MatchRepository interface {
	AppendMatch(ctx context.Context, match *models.AddressMatch) error
	ListMatches(ctx context.Context, filter MatchFilter) ([]models.AddressMatch, error)
}

// ParcelRepository reads the parcel index owned by the assessment system.
type ParcelRepository interface {
	// FindByNumber returns nil, nil if no parcel has that number.
	FindByNumber(ctx context.Context, parcelNumber string) (*models.TaxParcel, error)
	// ParcelAddresses returns every parcel with a situs address.
	ParcelAddresses(ctx context.Context) ([]models.ParcelAddress, error)
	// UpsertParcel inserts or replaces a parcel. Used to seed local stores.
	UpsertParcel(ctx context.Context, parcel *models.TaxParcel) error
}

// RuleRepository stores validation and transformation rules. Its read side
// satisfies rules.Provider.
type RuleRepository interface {
	ValidationRules(ctx context.Context, importType models.ImportType) ([]models.ValidationRule, error)
	TransformationRules(ctx context.Context, importType models.ImportType) ([]models.TransformationRule, error)
	AddValidationRule(ctx context.Context, rule *models.ValidationRule) error
	AddTransformationRule(ctx context.Context, rule *models.TransformationRule) error
}

// Store is the full persistence collaborator of the import pipeline.
type Store interface {
	JobRepository
	RecordRepository
	MatchRepository
	ParcelRepository
	RuleRepository

	// Migrate creates any missing tables.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	// Driver names the backend, "postgres" or "sqlite".
	Driver() string
}
