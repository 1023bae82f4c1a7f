package validation

import (
	"fmt"
	"strings"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
)

// Outcome is the result of validating one record.
type Outcome struct {
	Status   models.ValidationStatus
	Messages []string
	// Faults are malformed-rule problems to record as Processing errors.
	Faults []string
}

// Validate applies compiled rules to rec in order. Every rule is evaluated so
// distinct messages accumulate; the status only ever escalates. Rules scoped to
// another import type are ignored, and malformed rules are reported as faults
// and skipped.
func Validate(rec *models.StagingRecord, compiled []Compiled) Outcome {
	rec.EscalateValidation(models.ValidationStatusValid)
	var out Outcome

	for _, c := range compiled {
		if c.Rule.ImportType != rec.ImportType {
			continue
		}
		if c.Err != nil {
			out.Faults = append(out.Faults, c.Err.Error())
			continue
		}

		status, failed, err := c.safeEvaluate(rec)
		if err != nil {
			out.Faults = append(out.Faults, err.Error())
			continue
		}
		if !failed {
			continue
		}
		msg := c.message()
		rec.EscalateValidation(status)
		rec.AddValidationMessage(msg)
		out.Messages = append(out.Messages, msg)
	}

	out.Status = rec.ValidationStatus
	return out
}

// safeEvaluate runs evaluate, reporting a panicking custom predicate as an
// error for this record instead of unwinding the worker.
func (c Compiled) safeEvaluate(rec *models.StagingRecord) (status models.ValidationStatus, failed bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("validation rule %d on %s panicked: %v", c.Rule.ID, c.Rule.FieldName, p)
		}
	}()
	status, failed = c.evaluate(rec)
	return status, failed, nil
}

// evaluate returns the status a failure implies and whether the rule failed.
func (c Compiled) evaluate(rec *models.StagingRecord) (models.ValidationStatus, bool) {
	field := c.Rule.FieldName
	value := strings.TrimSpace(rec.Field(field))

	switch c.Rule.RuleType {
	case models.ValidationRequired:
		return models.ValidationStatusInvalid, value == "" || rec.FieldFailed(field)

	case models.ValidationFormat:
		if rec.FieldFailed(field) {
			return models.ValidationStatusInvalid, true
		}
		if value == "" {
			return "", false
		}
		return models.ValidationStatusInvalid, !c.format.matches(value)

	case models.ValidationRange:
		if value == "" {
			return "", false
		}
		return c.softStatus(), !c.rng.contains(value)

	case models.ValidationCustom:
		return c.softStatus(), !c.custom.predicate(value, rec, c.custom.args)
	}
	return "", false
}

func (c Compiled) softStatus() models.ValidationStatus {
	if c.Rule.SoftFail {
		return models.ValidationStatusWarning
	}
	return models.ValidationStatusInvalid
}

func (c Compiled) message() string {
	if c.Rule.ErrorMessage != "" {
		return c.Rule.ErrorMessage
	}
	return fmt.Sprintf("%s failed %s validation", c.Rule.FieldName, strings.ToLower(string(c.Rule.RuleType)))
}

func (f *formatCheck) matches(value string) bool {
	switch f.kind {
	case FormatNumeric:
		_, err := normalizer.ParseNumber(value)
		return err == nil
	case FormatDate:
		_, err := normalizer.ParseDate(value)
		return err == nil
	}
	return f.pattern.MatchString(value)
}

func (r *rangeCheck) contains(value string) bool {
	if r.dates {
		t, err := normalizer.ParseDate(value)
		if err != nil {
			return false
		}
		if r.minDate != nil && t.Before(*r.minDate) {
			return false
		}
		return r.maxDate == nil || !t.After(*r.maxDate)
	}
	f, err := normalizer.ParseNumber(value)
	if err != nil {
		return false
	}
	if r.min != nil && f < *r.min {
		return false
	}
	return r.max == nil || f <= *r.max
}
