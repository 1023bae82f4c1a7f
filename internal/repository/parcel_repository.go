package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

var parcelColumns = []string{
	"parcel_number",
	"situs",
	"owner_name",
	"owner_address",
	"legal_description",
	"county_name",
	"created_at",
	"updated_at",
}

// FindByNumber queries the parcel index for an exact parcel number.
// A missing parcel is not an error at the repository level.
func (s *sqlStore) FindByNumber(ctx context.Context, parcelNumber string) (*models.TaxParcel, error) {
	r, err := s.queryRow(ctx, s.sb.Select(parcelColumns...).
		From(models.TaxParcel{}.TableName()).
		Where(sq.Eq{"parcel_number": parcelNumber}).
		Limit(1))
	if err != nil {
		return nil, err
	}

	var parcel models.TaxParcel
	var created, updated sqlTime
	err = r.Scan(
		&parcel.ParcelNumber,
		&parcel.Situs,
		&parcel.OwnerName,
		&parcel.OwnerAddress,
		&parcel.LegalDescription,
		&parcel.CountyName,
		&created,
		&updated,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query parcel %q: %w", parcelNumber, err)
	}
	parcel.CreatedAt = created.Time
	parcel.UpdatedAt = updated.Time
	return &parcel, nil
}

// ParcelAddresses loads the address index used by the matcher.
// Parcels without a situs address are left out.
func (s *sqlStore) ParcelAddresses(ctx context.Context) ([]models.ParcelAddress, error) {
	b := s.sb.Select("parcel_number", "situs").
		From(models.TaxParcel{}.TableName()).
		Where(sq.And{sq.NotEq{"situs": nil}, sq.NotEq{"situs": ""}}).
		OrderBy("parcel_number")

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query parcel addresses: %w", err)
	}
	defer rs.Close()

	out := []models.ParcelAddress{}
	for rs.Next() {
		var pa models.ParcelAddress
		if err := rs.Scan(&pa.ParcelNumber, &pa.Address); err != nil {
			return nil, fmt.Errorf("failed to scan parcel address: %w", err)
		}
		out = append(out, pa)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parcel addresses: %w", err)
	}
	return out, nil
}

// UpsertParcel inserts a parcel or replaces the existing row with the same number.
func (s *sqlStore) UpsertParcel(ctx context.Context, parcel *models.TaxParcel) error {
	b := s.sb.Insert(models.TaxParcel{}.TableName()).Columns(parcelColumns...).Values(
		parcel.ParcelNumber,
		parcel.Situs,
		parcel.OwnerName,
		parcel.OwnerAddress,
		parcel.LegalDescription,
		parcel.CountyName,
		s.timeArg(parcel.CreatedAt),
		s.timeArg(parcel.UpdatedAt),
	).Suffix(`ON CONFLICT (parcel_number) DO UPDATE SET
		situs = excluded.situs,
		owner_name = excluded.owner_name,
		owner_address = excluded.owner_address,
		legal_description = excluded.legal_description,
		county_name = excluded.county_name,
		updated_at = excluded.updated_at`)
	if err := s.exec(ctx, b); err != nil {
		return fmt.Errorf("failed to upsert parcel %q: %w", parcel.ParcelNumber, err)
	}
	return nil
}
