package repository

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

const (
	recordsTable = "staging_records"
	errorsTable  = "import_errors"

	// keyChunk bounds the IN list of one CommittedKeys query.
	keyChunk = 500
)

var recordColumns = []string{
	"id",
	"job_id",
	"import_type",
	"record_index",
	"raw_payload",
	"fields",
	"details",
	"natural_key",
	"resolved_parcel_number",
	"validation_status",
	"processing_status",
	"validation_messages",
	"processing_messages",
	"created_at",
}

var errorColumns = []string{
	"id",
	"job_id",
	"record_index",
	"error_type",
	"message",
	"record_snapshot",
	"created_at",
}

// SaveRecord inserts a staging record with its final outcome.
func (s *sqlStore) SaveRecord(ctx context.Context, rec *models.StagingRecord) error {
	var details models.JSONDocument
	switch {
	case rec.Permit != nil:
		details.V = rec.Permit
	case rec.PersonalProperty != nil:
		details.V = rec.PersonalProperty
	}

	var naturalKey interface{}
	if rec.NaturalKey != "" {
		naturalKey = rec.NaturalKey
	}

	raw := rec.RawPayload
	if raw == nil {
		raw = models.Payload{}
	}
	fields := rec.Fields
	if fields == nil {
		fields = models.Payload{}
	}
	docs, err := values(raw, fields, details, rec.ValidationMessages, rec.ProcessingMessages)
	if err != nil {
		return fmt.Errorf("failed to encode staging record %d: %w", rec.RecordIndex, err)
	}

	b := s.sb.Insert(recordsTable).Columns(recordColumns...).Values(
		rec.ID.String(),
		rec.JobID.String(),
		string(rec.ImportType),
		rec.RecordIndex,
		docs[0],
		docs[1],
		docs[2],
		naturalKey,
		rec.ResolvedParcelNumber,
		string(rec.ValidationStatus),
		string(rec.ProcessingStatus),
		docs[3],
		docs[4],
		s.timeArg(rec.CreatedAt),
	)
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to insert staging record %d of job %s: %w", rec.RecordIndex, rec.JobID, err)
	}
	return nil
}

// ListRecords returns a job's staging records ordered by record index.
func (s *sqlStore) ListRecords(ctx context.Context, jobID uuid.UUID, filter RecordFilter) ([]models.StagingRecord, error) {
	b := s.sb.Select(recordColumns...).From(recordsTable).
		Where(sq.Eq{"job_id": jobID.String()}).
		OrderBy("record_index")
	if filter.ValidationStatus != "" {
		b = b.Where(sq.Eq{"validation_status": string(filter.ValidationStatus)})
	}
	if filter.ProcessingStatus != "" {
		b = b.Where(sq.Eq{"processing_status": string(filter.ProcessingStatus)})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		b = b.Offset(uint64(filter.Offset))
	}

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query staging records: %w", err)
	}
	defer rs.Close()

	records := []models.StagingRecord{}
	for rs.Next() {
		rec, err := scanRecord(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staging records: %w", err)
	}
	return records, nil
}

func scanRecord(r row) (*models.StagingRecord, error) {
	var rec models.StagingRecord
	var importType, validation, processing string
	var details []byte
	var naturalKey *string
	var created sqlTime
	err := r.Scan(
		&rec.ID,
		&rec.JobID,
		&importType,
		&rec.RecordIndex,
		&rec.RawPayload,
		&rec.Fields,
		&details,
		&naturalKey,
		&rec.ResolvedParcelNumber,
		&validation,
		&processing,
		&rec.ValidationMessages,
		&rec.ProcessingMessages,
		&created,
	)
	if err != nil {
		return nil, err
	}
	rec.ImportType = models.ImportType(importType)
	rec.ValidationStatus = models.ValidationStatus(validation)
	rec.ProcessingStatus = models.ProcessingStatus(processing)
	rec.CreatedAt = created.Time
	if naturalKey != nil {
		rec.NaturalKey = *naturalKey
	}

	if len(details) > 0 {
		switch rec.ImportType {
		case models.ImportTypePermit:
			rec.Permit = &models.PermitDetails{}
			err = json.Unmarshal(details, rec.Permit)
		case models.ImportTypePersonalProperty:
			rec.PersonalProperty = &models.PersonalPropertyDetails{}
			err = json.Unmarshal(details, rec.PersonalProperty)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode record details: %w", err)
		}
	}
	return &rec, nil
}

// AppendErrors inserts import errors in one statement.
func (s *sqlStore) AppendErrors(ctx context.Context, errs []*models.ImportError) error {
	if len(errs) == 0 {
		return nil
	}
	b := s.sb.Insert(errorsTable).Columns(errorColumns...)
	for _, ie := range errs {
		snapshot := ie.RecordSnapshot
		if snapshot == nil {
			snapshot = models.Payload{}
		}
		doc, err := snapshot.Value()
		if err != nil {
			return fmt.Errorf("failed to encode record snapshot: %w", err)
		}
		b = b.Values(
			ie.ID.String(),
			ie.JobID.String(),
			ie.RecordIndex,
			string(ie.ErrorType),
			ie.Message,
			doc,
			s.timeArg(ie.CreatedAt),
		)
	}
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to insert %d import errors: %w", len(errs), err)
	}
	return nil
}

// ListErrors returns a job's import errors in record order.
func (s *sqlStore) ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error) {
	b := s.sb.Select(errorColumns...).From(errorsTable).
		Where(sq.Eq{"job_id": jobID.String()}).
		OrderBy("record_index", "created_at", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query import errors: %w", err)
	}
	defer rs.Close()

	out := []models.ImportError{}
	for rs.Next() {
		var ie models.ImportError
		var errType string
		var created sqlTime
		if err := rs.Scan(
			&ie.ID,
			&ie.JobID,
			&ie.RecordIndex,
			&errType,
			&ie.Message,
			&ie.RecordSnapshot,
			&created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import error: %w", err)
		}
		ie.ErrorType = models.ErrorType(errType)
		ie.CreatedAt = created.Time
		out = append(out, ie)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import errors: %w", err)
	}
	return out, nil
}

// CommittedKeys looks up natural keys already held by surviving records of other jobs.
func (s *sqlStore) CommittedKeys(ctx context.Context, importType models.ImportType, keys []string, excludeJob uuid.UUID) (map[string]bool, error) {
	found := make(map[string]bool)
	for start := 0; start < len(keys); start += keyChunk {
		end := start + keyChunk
		if end > len(keys) {
			end = len(keys)
		}
		b := s.sb.Select("DISTINCT natural_key").From(recordsTable).Where(sq.And{
			sq.Eq{"import_type": string(importType)},
			sq.Eq{"natural_key": keys[start:end]},
			sq.NotEq{"job_id": excludeJob.String()},
			sq.NotEq{"processing_status": []string{
				string(models.ProcessingStatusFailed),
				string(models.ProcessingStatusSkipped),
			}},
		})
		if err := s.collectKeys(ctx, b, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (s *sqlStore) collectKeys(ctx context.Context, b sq.SelectBuilder, into map[string]bool) error {
	rs, err := s.query(ctx, b)
	if err != nil {
		return fmt.Errorf("failed to query committed keys: %w", err)
	}
	defer rs.Close()
	for rs.Next() {
		var key string
		if err := rs.Scan(&key); err != nil {
			return fmt.Errorf("failed to scan committed key: %w", err)
		}
		into[key] = true
	}
	return rs.Err()
}
