package transform

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
)

func record(importType models.ImportType, fields map[string]string) *models.StagingRecord {
	rec := models.NewStagingRecord(uuid.New(), importType, 0, fields, time.Now())
	for k, v := range fields {
		rec.SetField(k, v)
	}
	return rec
}

func trule(id int64, order int, field string, ruleType models.TransformationRuleType, cfg string) models.TransformationRule {
	return models.TransformationRule{
		ID:             id,
		ImportType:     models.ImportTypePermit,
		FieldName:      field,
		RuleType:       ruleType,
		Config:         json.RawMessage(cfg),
		ExecutionOrder: order,
		Active:         true,
	}
}

func TestApplyInExecutionOrder(t *testing.T) {
	compiled := Compile([]models.TransformationRule{
		trule(2, 20, "permit_number", models.TransformFormat, `{"op":"upper"}`),
		trule(1, 10, "permit_number", models.TransformFormat, `{"op":"collapse"}`),
		trule(3, 20, "permit_number", models.TransformFormat, `{"op":"strip","chars":"-"}`),
	}, nil)

	ids := []int64{compiled[0].Rule.ID, compiled[1].Rule.ID, compiled[2].Rule.ID}
	assert.Equal(t, []int64{1, 2, 3}, ids)

	rec := record(models.ImportTypePermit, map[string]string{"permit_number": "  b-1001  "})
	faults := Apply(rec, compiled)

	assert.Empty(t, faults)
	assert.Equal(t, "B1001", rec.Field("permit_number"))
	assert.Equal(t, "  b-1001  ", rec.RawPayload["permit_number"])
}

func TestFormatOps(t *testing.T) {
	tests := []struct {
		cfg  string
		in   string
		want string
	}{
		{`{"op":"lower"}`, "ABC", "abc"},
		{`{"op":"trim"}`, "  a b  ", "a b"},
		{`{"op":"title"}`, "ACME HARDWARE", "Acme Hardware"},
		{`{"op":"digits"}`, "(509) 555-0100", "5095550100"},
		{`{"op":"date"}`, "03/15/2024", "2024-03-15"},
		{`{"op":"date"}`, "", ""},
		{`{"op":"number"}`, "$125,000.00", "125000"},
	}

	for _, tt := range tests {
		t.Run(tt.cfg+"/"+tt.in, func(t *testing.T) {
			compiled := Compile([]models.TransformationRule{trule(1, 1, "f", models.TransformFormat, tt.cfg)}, nil)
			require.NoError(t, compiled[0].Err)

			rec := record(models.ImportTypePermit, map[string]string{"f": tt.in})
			assert.Empty(t, Apply(rec, compiled))
			assert.Equal(t, tt.want, rec.Field("f"))
		})
	}
}

func TestFailedTransformRetainsValue(t *testing.T) {
	compiled := Compile([]models.TransformationRule{
		trule(1, 1, "issue_date", models.TransformFormat, `{"op":"date"}`),
	}, nil)

	rec := record(models.ImportTypePermit, map[string]string{"issue_date": "sometime soon"})
	faults := Apply(rec, compiled)

	require.Len(t, faults, 1)
	assert.Contains(t, faults[0], "issue_date")
	assert.Equal(t, "sometime soon", rec.Field("issue_date"))
	assert.True(t, rec.FieldFailed("issue_date"))
	assert.NotEmpty(t, rec.ProcessingMessages)
}

func TestMapping(t *testing.T) {
	compiled := Compile([]models.TransformationRule{
		trule(1, 1, "property_type", models.TransformMapping, `{"values":{"computers":"COMPUTER_EQUIPMENT","furniture":"FURNITURE"},"default":"OTHER"}`),
	}, nil)
	require.NoError(t, compiled[0].Err)

	for in, want := range map[string]string{
		"Computers":          "COMPUTER_EQUIPMENT",
		"FURNITURE":          "FURNITURE",
		"COMPUTER_EQUIPMENT": "COMPUTER_EQUIPMENT",
		"artwork":            "OTHER",
		"":                   "",
	} {
		rec := record(models.ImportTypePermit, map[string]string{"property_type": in})
		Apply(rec, compiled)
		assert.Equal(t, want, rec.Field("property_type"), in)
	}

	strict := Compile([]models.TransformationRule{
		trule(1, 1, "state", models.TransformMapping, `{"values":{"washington":"WA"},"strict":true}`),
	}, nil)
	rec := record(models.ImportTypePermit, map[string]string{"state": "Oregon"})
	assert.Len(t, Apply(rec, strict), 1)
	assert.Equal(t, "Oregon", rec.Field("state"))
}

func TestCalculate(t *testing.T) {
	compiled := Compile([]models.TransformationRule{
		trule(1, 1, "total_cost", models.TransformCalculate, `{"op":"multiply","fields":["quantity","unit_cost"],"precision":2}`),
		trule(2, 2, "owner_label", models.TransformCalculate, `{"op":"concat","fields":["owner_name","owner_phone"],"separator":" / "}`),
	}, nil)

	rec := record(models.ImportTypePermit, map[string]string{
		"quantity":    "3",
		"unit_cost":   "$10.50",
		"owner_name":  "Jane Roe",
		"owner_phone": "555-0100",
	})
	assert.Empty(t, Apply(rec, compiled))
	assert.Equal(t, "31.50", rec.Field("total_cost"))
	assert.Equal(t, "Jane Roe / 555-0100", rec.Field("owner_label"))

	partial := record(models.ImportTypePermit, map[string]string{"quantity": "3"})
	faults := Apply(partial, compiled)
	assert.Len(t, faults, 1)
	assert.True(t, partial.FieldFailed("total_cost"))

	selfRef := Compile([]models.TransformationRule{
		trule(1, 1, "quantity", models.TransformCalculate, `{"op":"sum","fields":["quantity","extra"]}`),
	}, nil)
	assert.ErrorIs(t, selfRef[0].Err, ErrMalformedRule)
}

func TestCustomTransformFromRegistry(t *testing.T) {
	reg := rules.DefaultRegistry(nil)
	reg.RegisterTransform("explode", func(string, *models.StagingRecord, map[string]string) (string, error) {
		return "", errors.New("boom")
	})

	compiled := Compile([]models.TransformationRule{
		trule(1, 1, "parcel_number", models.TransformCustom, `{"transform":"clean_parcel_number"}`),
		trule(2, 2, "description", models.TransformCustom, `{"transform":"classify_improvement"}`),
		trule(3, 3, "owner_name", models.TransformCustom, `{"transform":"explode"}`),
		trule(4, 4, "owner_name", models.TransformCustom, `{"transform":"not_registered"}`),
	}, reg)
	assert.ErrorIs(t, compiled[3].Err, rules.ErrUnknownCustom)

	rec := record(models.ImportTypePermit, map[string]string{
		"parcel_number": "12-345.67",
		"description":   "New house 1,800 sq ft",
		"owner_name":    "Jane Roe",
	})
	faults := Apply(rec, compiled)

	assert.Len(t, faults, 2)
	assert.Equal(t, "1234567", rec.Field("parcel_number"))
	assert.Equal(t, "New Residential Construction", rec.Field("improvement_type"))
	assert.Equal(t, "1800", rec.Field("square_footage"))
	assert.Equal(t, "Jane Roe", rec.Field("owner_name"))
	assert.True(t, rec.FieldFailed("owner_name"))
}

func TestApplyIsIdempotent(t *testing.T) {
	defaults, err := rules.Defaults()
	require.NoError(t, err)
	reg := rules.DefaultRegistry(nil)

	for _, importType := range []models.ImportType{models.ImportTypePermit, models.ImportTypePersonalProperty} {
		compiled := Compile(defaults.Transformation, reg)
		rec := record(importType, map[string]string{
			"permit_number":    " b-1001 ",
			"parcel_number":    "12-345.67",
			"issue_date":       "Mar 5, 2024",
			"valuation":        "$1,250.00",
			"description":      "Roof repair",
			"business_name":    "  Acme   Hardware ",
			"property_type":    "computers",
			"acquisition_date": "1/2/2020",
			"acquisition_cost": "$3,000",
			"quantity":         "2",
		})

		require.Empty(t, Apply(rec, compiled))
		first := rec.Fields.Clone()

		require.Empty(t, Apply(rec, compiled))
		assert.Equal(t, first, rec.Fields, string(importType))
	}

	chained := Compile([]models.TransformationRule{
		trule(1, 1, "improvement_type", models.TransformMapping, `{"values":{"bldg":"building","building":"Residential Building"}}`),
	}, nil)
	for _, in := range []string{"bldg", "building", "Residential Building"} {
		rec := record(models.ImportTypePermit, map[string]string{"improvement_type": in})
		require.Empty(t, Apply(rec, chained))
		first := rec.Field("improvement_type")

		require.Empty(t, Apply(rec, chained))
		assert.Equal(t, first, rec.Field("improvement_type"), in)
	}
}

func TestChainedMappingStopsAtTarget(t *testing.T) {
	compiled := Compile([]models.TransformationRule{
		trule(1, 1, "improvement_type", models.TransformMapping, `{"values":{"bldg":"building","building":"Residential Building"}}`),
	}, nil)

	rec := record(models.ImportTypePermit, map[string]string{"improvement_type": "bldg"})
	Apply(rec, compiled)
	assert.Equal(t, "building", rec.Field("improvement_type"))

	Apply(rec, compiled)
	assert.Equal(t, "building", rec.Field("improvement_type"))
}

func TestPanickingTransformBecomesFault(t *testing.T) {
	// Arrange
	reg := rules.NewRegistry()
	reg.RegisterTransform("broken", func(string, *models.StagingRecord, map[string]string) (string, error) {
		var m map[string]int
		m["x"] = 1
		return "", nil
	})
	compiled := Compile([]models.TransformationRule{
		trule(1, 1, "owner_name", models.TransformCustom, `{"transform":"broken"}`),
		trule(2, 2, "permit_number", models.TransformFormat, `{"op":"upper"}`),
	}, reg)
	rec := record(models.ImportTypePermit, map[string]string{"owner_name": "Jane Roe", "permit_number": "b-1"})

	// Act
	var faults []string
	require.NotPanics(t, func() { faults = Apply(rec, compiled) })

	// Assert
	require.Len(t, faults, 1)
	assert.Contains(t, faults[0], "panicked")
	assert.Equal(t, "Jane Roe", rec.Field("owner_name"))
	assert.True(t, rec.FieldFailed("owner_name"))
	assert.Equal(t, "B-1", rec.Field("permit_number"))
}

func TestRulesForOtherImportTypesIgnored(t *testing.T) {
	r := trule(1, 1, "permit_number", models.TransformFormat, `{"op":"upper"}`)
	r.ImportType = models.ImportTypePersonalProperty
	compiled := Compile([]models.TransformationRule{r}, nil)

	rec := record(models.ImportTypePermit, map[string]string{"permit_number": "b-1"})
	Apply(rec, compiled)
	assert.Equal(t, "b-1", rec.Field("permit_number"))
}
