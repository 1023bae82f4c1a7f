package rules

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
)

// Built-in names.
const (
	PredicateNotFutureDate     = "not_future_date"
	PredicateValidParcelNumber = "valid_parcel_number"
	PredicatePositiveQuantity  = "positive_quantity"

	TransformCleanParcelNumber       = "clean_parcel_number"
	TransformClassifyImprovement     = "classify_improvement"
	TransformStandardizePropertyType = "standardize_property_type"
)

// DefaultRegistry returns a registry with the built-in predicates and
// transformations. now supplies the current time for date checks.
func DefaultRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := NewRegistry()

	r.RegisterPredicate(PredicateNotFutureDate, func(value string, _ *models.StagingRecord, _ map[string]string) bool {
		if strings.TrimSpace(value) == "" {
			return true
		}
		t, err := normalizer.ParseDate(value)
		if err != nil {
			return false
		}
		y, m, d := now().Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return !t.After(today)
	})

	r.RegisterPredicate(PredicateValidParcelNumber, func(value string, _ *models.StagingRecord, args map[string]string) bool {
		if strings.TrimSpace(value) == "" {
			return true
		}
		cleaned := CleanParcelNumber(value)
		if min, err := strconv.Atoi(args["minLength"]); err == nil && len(cleaned) < min {
			return false
		}
		return cleaned != "" && alphanumeric.MatchString(cleaned)
	})

	r.RegisterPredicate(PredicatePositiveQuantity, func(value string, _ *models.StagingRecord, _ map[string]string) bool {
		if strings.TrimSpace(value) == "" {
			return true
		}
		f, err := normalizer.ParseNumber(value)
		return err == nil && f > 0
	})

	r.RegisterTransform(TransformCleanParcelNumber, func(value string, _ *models.StagingRecord, _ map[string]string) (string, error) {
		return CleanParcelNumber(value), nil
	})

	r.RegisterTransform(TransformClassifyImprovement, func(value string, rec *models.StagingRecord, _ map[string]string) (string, error) {
		kind, sqft := ClassifyImprovement(value)
		if kind != "" {
			rec.SetField(normalizer.FieldImprovementType, kind)
		}
		if sqft != "" {
			rec.SetField(normalizer.FieldSquareFootage, sqft)
		}
		return value, nil
	})

	r.RegisterTransform(TransformStandardizePropertyType, func(value string, _ *models.StagingRecord, _ map[string]string) (string, error) {
		return StandardizePropertyType(value), nil
	})

	return r
}

var alphanumeric = regexp.MustCompile(`^[A-Z0-9]+$`)

// CleanParcelNumber strips separators and whitespace and upper-cases a parcel number.
func CleanParcelNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch r {
		case '.', '-', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var improvementKinds = []struct {
	kind  string
	terms []string
}{
	{"Renovation", []string{"remodel", "renovat", "upgrad", "improv", "update", "repair"}},
	{"Demolition", []string{"demoli", "remov", "tear down", "teardown"}},
	{"Roof Work", []string{"roof", "shingle"}},
	{"Plumbing Work", []string{"plumb", "pipe", "water line", "sewer"}},
	{"Electrical Work", []string{"electric", "wiring", "panel"}},
	{"Mechanical Work", []string{"mechanical", "hvac", "furnace", "air condition"}},
}

var squareFeet = regexp.MustCompile(`(\d+(?:,\d{3})*)\s*(?:sq\.?\s*ft\.?|square\s*feet|sf\b)`)

// ClassifyImprovement infers the improvement type and square footage from a permit
// description. Either result may be empty.
func ClassifyImprovement(description string) (kind, squareFootage string) {
	d := strings.ToLower(description)
	if d == "" {
		return "", ""
	}

	switch {
	case containsAny(d, "new", "construct", "build"):
		switch {
		case containsAny(d, "home", "house", "dwelling", "residence", "residential"):
			kind = "New Residential Construction"
		case containsAny(d, "commercial", "office", "retail", "industrial"):
			kind = "New Commercial Construction"
		default:
			kind = "New Construction"
		}
	default:
		for _, k := range improvementKinds {
			if containsAny(d, k.terms...) {
				kind = k.kind
				break
			}
		}
	}

	if m := squareFeet.FindStringSubmatch(d); m != nil {
		squareFootage = strings.ReplaceAll(m[1], ",", "")
	}
	return kind, squareFootage
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// propertyTypes maps common descriptions to standard personal-property codes.
var propertyTypes = map[string]string{
	"computer":                "COMPUTER_EQUIPMENT",
	"computers":               "COMPUTER_EQUIPMENT",
	"computer equipment":      "COMPUTER_EQUIPMENT",
	"it equipment":            "COMPUTER_EQUIPMENT",
	"computer hardware":       "COMPUTER_EQUIPMENT",
	"furniture":               "FURNITURE",
	"office furniture":        "FURNITURE",
	"fixtures":                "FURNITURE",
	"furniture and fixtures":  "FURNITURE",
	"machinery":               "MACHINERY_EQUIPMENT",
	"equipment":               "MACHINERY_EQUIPMENT",
	"machinery & equipment":   "MACHINERY_EQUIPMENT",
	"machinery and equipment": "MACHINERY_EQUIPMENT",
	"manufacturing equipment": "MACHINERY_EQUIPMENT",
	"vehicle":                 "VEHICLE",
	"vehicles":                "VEHICLE",
	"auto":                    "VEHICLE",
	"automobile":              "VEHICLE",
	"truck":                   "VEHICLE",
	"inventory":               "INVENTORY",
	"stock":                   "INVENTORY",
	"supplies":                "SUPPLIES",
	"leasehold":               "LEASEHOLD_IMPROVEMENT",
	"leasehold improvement":   "LEASEHOLD_IMPROVEMENT",
	"intangible":              "INTANGIBLE",
	"goodwill":                "INTANGIBLE",
	"intellectual property":   "INTANGIBLE",
	"other":                   "OTHER",
}

// propertyTypeKeys is propertyTypes' keys, longest first, for partial matching.
var propertyTypeKeys = func() []string {
	keys := make([]string, 0, len(propertyTypes))
	for k := range propertyTypes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// standardCodes are the outputs of StandardizePropertyType; they map to themselves.
var standardCodes = func() map[string]bool {
	out := map[string]bool{"UNKNOWN": true}
	for _, v := range propertyTypes {
		out[v] = true
	}
	return out
}()

// StandardizePropertyType maps a free-text property type to a standard code.
// Blank values become UNKNOWN and unrecognized values OTHER. Codes map to themselves.
func StandardizePropertyType(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return "UNKNOWN"
	}
	if standardCodes[strings.ToUpper(v)] {
		return strings.ToUpper(v)
	}
	lower := strings.ToLower(v)
	if code, ok := propertyTypes[lower]; ok {
		return code
	}
	for _, key := range propertyTypeKeys {
		if strings.Contains(lower, key) {
			return propertyTypes[key]
		}
	}
	return "OTHER"
}
