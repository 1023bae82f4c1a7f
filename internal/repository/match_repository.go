package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

const matchesTable = "address_matches"

var matchColumns = []string{
	"id",
	"job_id",
	"staging_record_id",
	"source_address",
	"standardized_address",
	"parcel_number",
	"confidence_score",
	"match_method",
	"created_at",
}

func uuidArg(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

// AppendMatch writes one address match. Rows are never updated.
func (s *sqlStore) AppendMatch(ctx context.Context, m *models.AddressMatch) error {
	b := s.sb.Insert(matchesTable).Columns(matchColumns...).Values(
		m.ID.String(),
		uuidArg(m.JobID),
		uuidArg(m.StagingRecordID),
		m.SourceAddress,
		m.StandardizedAddress,
		m.ParcelNumber,
		m.ConfidenceScore,
		string(m.MatchMethod),
		s.timeArg(m.CreatedAt),
	)
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to insert address match: %w", err)
	}
	return nil
}

// ListMatches returns matches oldest first.
func (s *sqlStore) ListMatches(ctx context.Context, filter MatchFilter) ([]models.AddressMatch, error) {
	b := s.sb.Select(matchColumns...).From(matchesTable).OrderBy("created_at", "id")
	if filter.StagingRecordID != nil {
		b = b.Where(sq.Eq{"staging_record_id": filter.StagingRecordID.String()})
	}
	if filter.JobID != nil {
		b = b.Where(sq.Eq{"job_id": filter.JobID.String()})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query address matches: %w", err)
	}
	defer rs.Close()

	out := []models.AddressMatch{}
	for rs.Next() {
		var m models.AddressMatch
		var jobID, recordID uuid.NullUUID
		var method string
		var created sqlTime
		if err := rs.Scan(
			&m.ID,
			&jobID,
			&recordID,
			&m.SourceAddress,
			&m.StandardizedAddress,
			&m.ParcelNumber,
			&m.ConfidenceScore,
			&method,
			&created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan address match: %w", err)
		}
		if jobID.Valid {
			m.JobID = &jobID.UUID
		}
		if recordID.Valid {
			m.StagingRecordID = &recordID.UUID
		}
		m.MatchMethod = models.MatchMethod(method)
		m.CreatedAt = created.Time
		out = append(out, m)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating address matches: %w", err)
	}
	return out, nil
}
