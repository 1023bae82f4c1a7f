// Package normalizer turns raw parsed rows into staging records with canonical
// field names, and binds transformed fields into typed record details.
package normalizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Normalize builds a Pending staging record from a raw row. Headers are mapped to
// canonical field names and values are trimmed; the raw row is kept verbatim.
// It returns false when every value in the row is blank.
func Normalize(jobID uuid.UUID, importType models.ImportType, index int, raw map[string]string, now time.Time) (*models.StagingRecord, bool) {
	if blank(raw) {
		return nil, false
	}

	rec := models.NewStagingRecord(jobID, importType, index, raw, now)

	headers := make([]string, 0, len(raw))
	for h := range raw {
		headers = append(headers, h)
	}
	// Exact canonical headers first, then alphabetical, so the first non-empty
	// value for a field is chosen deterministically.
	sort.Slice(headers, func(i, j int) bool {
		ci, _ := CanonicalField(importType, headers[i])
		cj, _ := CanonicalField(importType, headers[j])
		ei, ej := headerKey(headers[i]) == headerKey(ci), headerKey(headers[j]) == headerKey(cj)
		if ei != ej {
			return ei
		}
		return headers[i] < headers[j]
	})

	for _, h := range headers {
		field, _ := CanonicalField(importType, h)
		if field == "" {
			continue
		}
		value := strings.TrimSpace(raw[h])
		if existing, ok := rec.Fields[field]; ok && existing != "" {
			continue
		}
		rec.SetField(field, value)
	}
	return rec, true
}

func blank(raw map[string]string) bool {
	for _, v := range raw {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// AddressOf returns the address to resolve for a record, or the empty string.
// Permits use the site address; personal property joins address, city, state and zip.
func AddressOf(rec *models.StagingRecord) string {
	switch rec.ImportType {
	case models.ImportTypePermit:
		return strings.TrimSpace(rec.Field(FieldSiteAddress))
	case models.ImportTypePersonalProperty:
		street := strings.TrimSpace(rec.Field(FieldAddress))
		if street == "" {
			return ""
		}
		parts := []string{street}
		for _, f := range []string{FieldCity, FieldState} {
			if v := strings.TrimSpace(rec.Field(f)); v != "" {
				parts = append(parts, v)
			}
		}
		out := strings.Join(parts, ", ")
		if zip := strings.TrimSpace(rec.Field(FieldZip)); zip != "" {
			out += " " + zip
		}
		return out
	}
	return ""
}

// Bind populates the typed details of rec from its canonical fields. Values that
// do not parse are left unset and noted on the record.
func Bind(rec *models.StagingRecord) {
	b := binder{rec: rec}
	switch rec.ImportType {
	case models.ImportTypePermit:
		rec.Permit = &models.PermitDetails{
			PermitNumber:    rec.Field(FieldPermitNumber),
			PermitType:      rec.Field(FieldPermitType),
			SiteAddress:     rec.Field(FieldSiteAddress),
			Description:     rec.Field(FieldDescription),
			OwnerName:       rec.Field(FieldOwnerName),
			OwnerPhone:      rec.Field(FieldOwnerPhone),
			ParcelNumber:    rec.Field(FieldParcelNumber),
			ImprovementType: rec.Field(FieldImprovementType),
			IssueDate:       b.date(FieldIssueDate),
			Valuation:       b.number(FieldValuation),
			SquareFootage:   b.number(FieldSquareFootage),
		}
	case models.ImportTypePersonalProperty:
		rec.PersonalProperty = &models.PersonalPropertyDetails{
			TaxpayerID:      rec.Field(FieldTaxpayerID),
			BusinessName:    rec.Field(FieldBusinessName),
			TaxpayerName:    rec.Field(FieldTaxpayerName),
			Address:         rec.Field(FieldAddress),
			MailingAddress:  rec.Field(FieldMailingAddress),
			City:            rec.Field(FieldCity),
			State:           rec.Field(FieldState),
			Zip:             rec.Field(FieldZip),
			ParcelNumber:    rec.Field(FieldParcelNumber),
			PropertyType:    rec.Field(FieldPropertyType),
			Description:     rec.Field(FieldDescription),
			Make:            rec.Field(FieldMake),
			Model:           rec.Field(FieldModel),
			SerialNumber:    rec.Field(FieldSerialNumber),
			Condition:       rec.Field(FieldCondition),
			Category:        rec.Field(FieldCategory),
			AcquisitionDate: b.date(FieldAcquisitionDate),
			AcquisitionCost: b.number(FieldAcquisitionCost),
			Quantity:        b.number(FieldQuantity),
			Year:            b.integer(FieldYear),
		}
	}
}

type binder struct {
	rec *models.StagingRecord
}

func (b binder) date(field string) *time.Time {
	v := b.rec.Field(field)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	t, err := ParseDate(v)
	if err != nil {
		b.rec.AddProcessingMessage(fmt.Sprintf("%s could not be read as a date", field))
		return nil
	}
	return &t
}

func (b binder) number(field string) *float64 {
	v := b.rec.Field(field)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	f, err := ParseNumber(v)
	if err != nil {
		b.rec.AddProcessingMessage(fmt.Sprintf("%s could not be read as a number", field))
		return nil
	}
	return &f
}

func (b binder) integer(field string) *int {
	v := strings.TrimSpace(b.rec.Field(field))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		b.rec.AddProcessingMessage(fmt.Sprintf("%s could not be read as a whole number", field))
		return nil
	}
	return &n
}

// ParcelNumberOf returns the parcel number supplied on the source row, if any.
func ParcelNumberOf(rec *models.StagingRecord) string {
	return strings.TrimSpace(rec.Field(FieldParcelNumber))
}
