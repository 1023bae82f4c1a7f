package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationStatus is the persisted validation outcome of a staging record.
type ValidationStatus string

// Validation statuses.
const (
	ValidationStatusPending ValidationStatus = "Pending"
	ValidationStatusValid   ValidationStatus = "Valid"
	ValidationStatusWarning ValidationStatus = "Warning"
	ValidationStatusInvalid ValidationStatus = "Invalid"
)

// severity orders validation statuses so escalation is monotonic.
func (s ValidationStatus) severity() int {
	switch s {
	case ValidationStatusValid:
		return 1
	case ValidationStatusWarning:
		return 2
	case ValidationStatusInvalid:
		return 3
	default:
		return 0
	}
}

// ProcessingStatus is the persisted processing outcome of a staging record.
type ProcessingStatus string

// Processing statuses.
const (
	ProcessingStatusPending   ProcessingStatus = "Pending"
	ProcessingStatusProcessed ProcessingStatus = "Processed"
	ProcessingStatusFailed    ProcessingStatus = "Failed"
	ProcessingStatusSkipped   ProcessingStatus = "Skipped"
)

// ErrInvalidRecordProcessed is returned when an Invalid record is asked to become Processed.
var ErrInvalidRecordProcessed = errors.New("invalid record cannot be marked processed")

// MessageSeparator joins accumulated messages at the persistence boundary.
const MessageSeparator = "; "

// Messages is an append-only ordered list of record messages.
type Messages []string

// String renders the messages the way they are stored.
func (m Messages) String() string {
	return strings.Join(m, MessageSeparator)
}

// Encode renders the messages for storage. Literal semicolons and backslashes
// inside an entry are escaped so SplitMessages returns the same entries.
func (m Messages) Encode() string {
	parts := make([]string, len(m))
	for i, msg := range m {
		parts[i] = messageEscaper.Replace(msg)
	}
	return strings.Join(parts, MessageSeparator)
}

var messageEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`)

// SplitMessages parses a stored message column back into entries.
func SplitMessages(s string) Messages {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		out     Messages
		cur     strings.Builder
		escaped bool
	)
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			out = append(out, p)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// PermitDetails holds the typed business fields of a building-permit row.
type PermitDetails struct {
	IssueDate       *time.Time `json:"issueDate,omitempty"`
	Valuation       *float64   `json:"valuation,omitempty"`
	SquareFootage   *float64   `json:"squareFootage,omitempty"`
	PermitNumber    string     `json:"permitNumber"`
	PermitType      string     `json:"permitType,omitempty"`
	SiteAddress     string     `json:"siteAddress,omitempty"`
	Description     string     `json:"description,omitempty"`
	OwnerName       string     `json:"ownerName,omitempty"`
	OwnerPhone      string     `json:"ownerPhone,omitempty"`
	ParcelNumber    string     `json:"parcelNumber,omitempty"`
	ImprovementType string     `json:"improvementType,omitempty"`
}

// PersonalPropertyDetails holds the typed business fields of a personal-property filing.
type PersonalPropertyDetails struct {
	AcquisitionDate *time.Time `json:"acquisitionDate,omitempty"`
	AcquisitionCost *float64   `json:"acquisitionCost,omitempty"`
	Quantity        *float64   `json:"quantity,omitempty"`
	Year            *int       `json:"year,omitempty"`
	TaxpayerID      string     `json:"taxpayerId"`
	BusinessName    string     `json:"businessName,omitempty"`
	TaxpayerName    string     `json:"taxpayerName,omitempty"`
	Address         string     `json:"address,omitempty"`
	MailingAddress  string     `json:"mailingAddress,omitempty"`
	City            string     `json:"city,omitempty"`
	State           string     `json:"state,omitempty"`
	Zip             string     `json:"zip,omitempty"`
	ParcelNumber    string     `json:"parcelNumber,omitempty"`
	PropertyType    string     `json:"propertyType,omitempty"`
	Description     string     `json:"description,omitempty"`
	Make            string     `json:"make,omitempty"`
	Model           string     `json:"model,omitempty"`
	SerialNumber    string     `json:"serialNumber,omitempty"`
	Condition       string     `json:"condition,omitempty"`
	Category        string     `json:"category,omitempty"`
}

// StagingRecord is one source row in its typed, in-process form prior to final commit.
// Exactly one of Permit or PersonalProperty is set once the record has been bound.
type StagingRecord struct {
	CreatedAt            time.Time                `json:"createdAt"`
	RawPayload           Payload                  `json:"rawPayload"`
	Fields               Payload                  `json:"fields"`
	Permit               *PermitDetails           `json:"permit,omitempty"`
	PersonalProperty     *PersonalPropertyDetails `json:"personalProperty,omitempty"`
	ResolvedParcelNumber *string                  `json:"resolvedParcelNumber,omitempty"`
	// failedFields lists fields whose transformation failed; not persisted.
	failedFields       map[string]bool
	NaturalKey         string           `json:"naturalKey,omitempty"`
	ImportType         ImportType       `json:"importType"`
	ValidationStatus   ValidationStatus `json:"validationStatus"`
	ProcessingStatus   ProcessingStatus `json:"processingStatus"`
	ValidationMessages Messages         `json:"validationMessages,omitempty"`
	ProcessingMessages Messages         `json:"processingMessages,omitempty"`
	RecordIndex        int              `json:"recordIndex"`
	ID                 uuid.UUID        `json:"id"`
	JobID              uuid.UUID        `json:"jobId"`
}

// NewStagingRecord creates a Pending record owned by jobID. The raw payload is copied verbatim.
func NewStagingRecord(jobID uuid.UUID, importType ImportType, index int, raw map[string]string, now time.Time) *StagingRecord {
	return &StagingRecord{
		ID:               uuid.New(),
		JobID:            jobID,
		ImportType:       importType,
		RecordIndex:      index,
		RawPayload:       Payload(raw).Clone(),
		Fields:           Payload{},
		ValidationStatus: ValidationStatusPending,
		ProcessingStatus: ProcessingStatusPending,
		CreatedAt:        now,
	}
}

// Field returns the current value of a canonical field.
func (r *StagingRecord) Field(name string) string {
	return r.Fields[name]
}

// SetField overwrites a canonical field value.
func (r *StagingRecord) SetField(name, value string) {
	if r.Fields == nil {
		r.Fields = Payload{}
	}
	r.Fields[name] = value
}

// MarkFieldFailed records that a transformation of name failed.
func (r *StagingRecord) MarkFieldFailed(name string) {
	if r.failedFields == nil {
		r.failedFields = map[string]bool{}
	}
	r.failedFields[name] = true
}

// FieldFailed reports whether a transformation of name failed.
func (r *StagingRecord) FieldFailed(name string) bool {
	return r.failedFields[name]
}

// EscalateValidation raises the validation status to s unless it is already more severe.
// A record that is Invalid never goes back to Valid or Warning.
func (r *StagingRecord) EscalateValidation(s ValidationStatus) {
	if s.severity() > r.ValidationStatus.severity() {
		r.ValidationStatus = s
	}
}

// AddValidationMessage appends msg unless the same message is already present.
func (r *StagingRecord) AddValidationMessage(msg string) {
	r.ValidationMessages = appendDistinct(r.ValidationMessages, msg)
}

// AddProcessingMessage appends msg unless the same message is already present.
func (r *StagingRecord) AddProcessingMessage(msg string) {
	r.ProcessingMessages = appendDistinct(r.ProcessingMessages, msg)
}

// MarkProcessed sets the record Processed. Invalid records are refused.
func (r *StagingRecord) MarkProcessed() error {
	if r.ValidationStatus == ValidationStatusInvalid {
		return ErrInvalidRecordProcessed
	}
	r.ProcessingStatus = ProcessingStatusProcessed
	return nil
}

// MarkFailed sets the record Failed with a processing message.
func (r *StagingRecord) MarkFailed(reason string) {
	r.ProcessingStatus = ProcessingStatusFailed
	r.AddProcessingMessage(reason)
}

// MarkSkipped sets the record Skipped with a processing message.
func (r *StagingRecord) MarkSkipped(reason string) {
	r.ProcessingStatus = ProcessingStatusSkipped
	r.AddProcessingMessage(reason)
}

// Snapshot returns a copy of the verbatim source payload for error forensics.
func (r *StagingRecord) Snapshot() Payload {
	if r.RawPayload == nil {
		return Payload{}
	}
	return r.RawPayload.Clone()
}

func appendDistinct(list Messages, msg string) Messages {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return list
	}
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
