package normalizer

import (
	"strings"
	"unicode"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Canonical permit fields.
const (
	FieldPermitType      = "permit_type"
	FieldPermitNumber    = "permit_number"
	FieldIssueDate       = "issue_date"
	FieldSiteAddress     = "site_address"
	FieldDescription     = "description"
	FieldOwnerName       = "owner_name"
	FieldOwnerPhone      = "owner_phone"
	FieldValuation       = "valuation"
	FieldParcelNumber    = "parcel_number"
	FieldImprovementType = "improvement_type"
	FieldSquareFootage   = "square_footage"
)

// Canonical personal-property fields.
const (
	FieldTaxpayerID      = "taxpayer_id"
	FieldBusinessName    = "business_name"
	FieldTaxpayerName    = "taxpayer_name"
	FieldAddress         = "address"
	FieldMailingAddress  = "mailing_address"
	FieldCity            = "city"
	FieldState           = "state"
	FieldZip             = "zip"
	FieldPropertyType    = "property_type"
	FieldAcquisitionDate = "acquisition_date"
	FieldAcquisitionCost = "acquisition_cost"
	FieldQuantity        = "quantity"
	FieldYear            = "year"
	FieldMake            = "make"
	FieldModel           = "model"
	FieldSerialNumber    = "serial_number"
	FieldCondition       = "condition"
	FieldCategory        = "category"
)

var permitAliases = map[string][]string{
	FieldPermitType:   {"permit type", "type"},
	FieldPermitNumber: {"permit number", "permit no", "permit #", "permit"},
	FieldIssueDate:    {"issue date", "issued", "date issued"},
	FieldSiteAddress:  {"site address", "project address", "address", "location"},
	FieldDescription:  {"description", "work description"},
	FieldOwnerName:    {"owner name", "owner"},
	FieldOwnerPhone:   {"owner phone", "phone"},
	FieldValuation:    {"valuation", "value", "job value"},
	FieldParcelNumber: {"parcel #", "parcel number", "parcel", "parcel id", "pid", "apn"},
}

var propertyAliases = map[string][]string{
	FieldTaxpayerID:      {"taxpayer id", "account number", "id"},
	FieldBusinessName:    {"business name", "company name", "name"},
	FieldTaxpayerName:    {"taxpayer name", "owner name", "responsible party"},
	FieldAddress:         {"address", "location", "property address", "site address"},
	FieldMailingAddress:  {"mailing address", "mail address"},
	FieldCity:            {"city", "site city", "property city"},
	FieldState:           {"state", "site state", "property state"},
	FieldZip:             {"zip", "zipcode", "zip code", "postal code", "site zip"},
	FieldParcelNumber:    {"parcel number", "parcel id", "parcel #", "pid", "apn"},
	FieldPropertyType:    {"property type", "asset type", "type"},
	FieldDescription:     {"description", "asset description", "property description"},
	FieldAcquisitionDate: {"acquisition date", "date acquired", "purchase date"},
	FieldAcquisitionCost: {"acquisition cost", "original cost", "purchase cost", "cost"},
	FieldQuantity:        {"quantity", "qty", "asset count", "count", "units"},
	FieldYear:            {"year", "model year", "asset year", "manufacture year"},
	FieldMake:            {"make", "manufacturer", "brand"},
	FieldModel:           {"model", "model number", "model name"},
	FieldSerialNumber:    {"serial number", "serial no", "serial"},
	FieldCondition:       {"condition", "asset condition", "status"},
	FieldCategory:        {"category", "asset category", "class", "classification"},
}

// lookup maps a header key to its canonical field, per import type.
var lookup = map[models.ImportType]map[string]string{
	models.ImportTypePermit:           invert(permitAliases),
	models.ImportTypePersonalProperty: invert(propertyAliases),
}

func invert(aliases map[string][]string) map[string]string {
	out := make(map[string]string)
	for field, names := range aliases {
		out[headerKey(field)] = field
		for _, name := range names {
			out[headerKey(name)] = field
		}
	}
	return out
}

// headerKey folds a column header for alias comparison: lower case, with
// underscores and hyphens treated as spaces and whitespace collapsed.
func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// CanonicalField returns the canonical field name for a source header and whether
// the header is a known alias. Unknown headers map to their snake_case form.
func CanonicalField(importType models.ImportType, header string) (string, bool) {
	key := headerKey(header)
	if field, ok := lookup[importType][key]; ok {
		return field, true
	}
	return snakeCase(key), false
}

// Recognizes reports whether header is a known alias for the import type.
func Recognizes(importType models.ImportType, header string) bool {
	_, ok := lookup[importType][headerKey(header)]
	return ok
}

func snakeCase(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
