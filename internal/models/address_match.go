package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchMethod records how a parcel was resolved for an address.
type MatchMethod string

// Match methods.
const (
	MatchMethodExact  MatchMethod = "Exact"
	MatchMethodFuzzy  MatchMethod = "Fuzzy"
	MatchMethodManual MatchMethod = "Manual"
)

// AddressMatch is the immutable audit row for one address-resolution attempt.
// Failed attempts are written too, with a nil ParcelNumber.
type AddressMatch struct {
	CreatedAt           time.Time   `json:"createdAt"`
	StandardizedAddress *string     `json:"standardizedAddress,omitempty"`
	ParcelNumber        *string     `json:"parcelNumber,omitempty"`
	StagingRecordID     *uuid.UUID  `json:"stagingRecordId,omitempty"`
	JobID               *uuid.UUID  `json:"jobId,omitempty"`
	SourceAddress       string      `json:"sourceAddress"`
	MatchMethod         MatchMethod `json:"matchMethod"`
	ConfidenceScore     float64     `json:"confidenceScore"`
	ID                  uuid.UUID   `json:"id"`
}

// ErrorType categorizes an ImportError.
type ErrorType string

// Error types.
const (
	ErrorTypeValidation ErrorType = "Validation"
	ErrorTypeProcessing ErrorType = "Processing"
	ErrorTypeDatabase   ErrorType = "Database"
)

// ImportError is one append-only row describing a record-level failure.
type ImportError struct {
	CreatedAt      time.Time `json:"createdAt"`
	RecordIndex    *int      `json:"recordIndex,omitempty"`
	RecordSnapshot Payload   `json:"recordSnapshot,omitempty"`
	ErrorType      ErrorType `json:"errorType"`
	Message        string    `json:"message"`
	ID             uuid.UUID `json:"id"`
	JobID          uuid.UUID `json:"jobId"`
}

// NewImportError builds an ImportError for the record, copying its source snapshot.
func NewImportError(jobID uuid.UUID, rec *StagingRecord, errType ErrorType, message string, now time.Time) *ImportError {
	ie := &ImportError{
		ID:        uuid.New(),
		JobID:     jobID,
		ErrorType: errType,
		Message:   message,
		CreatedAt: now,
	}
	if rec != nil {
		idx := rec.RecordIndex
		ie.RecordIndex = &idx
		ie.RecordSnapshot = rec.Snapshot()
	}
	return ie
}
