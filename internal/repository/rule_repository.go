package repository

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

const (
	validationRulesTable     = "validation_rules"
	transformationRulesTable = "transformation_rules"
)

var validationRuleColumns = []string{
	"id",
	"import_type",
	"field_name",
	"rule_type",
	"config",
	"error_message",
	"rule_order",
	"soft_fail",
	"active",
	"created_at",
}

var transformationRuleColumns = []string{
	"id",
	"import_type",
	"field_name",
	"rule_type",
	"config",
	"execution_order",
	"active",
	"created_at",
}

func configArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// ValidationRules returns the active validation rules of an import type in
// evaluation order.
func (s *sqlStore) ValidationRules(ctx context.Context, importType models.ImportType) ([]models.ValidationRule, error) {
	b := s.sb.Select(validationRuleColumns...).From(validationRulesTable).
		Where(sq.Eq{"import_type": string(importType), "active": true}).
		OrderBy("rule_order", "id")

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query validation rules: %w", err)
	}
	defer rs.Close()

	var out []models.ValidationRule
	for rs.Next() {
		var r models.ValidationRule
		var it, rt string
		var cfg []byte
		var created sqlTime
		if err := rs.Scan(&r.ID, &it, &r.FieldName, &rt, &cfg, &r.ErrorMessage, &r.Order, &r.SoftFail, &r.Active, &created); err != nil {
			return nil, fmt.Errorf("failed to scan validation rule: %w", err)
		}
		r.ImportType = models.ImportType(it)
		r.RuleType = models.ValidationRuleType(rt)
		if len(cfg) > 0 {
			r.Config = json.RawMessage(cfg)
		}
		r.CreatedAt = created.Time
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validation rules: %w", err)
	}
	return out, nil
}

// TransformationRules returns the active transformation rules of an import
// type in execution order.
func (s *sqlStore) TransformationRules(ctx context.Context, importType models.ImportType) ([]models.TransformationRule, error) {
	b := s.sb.Select(transformationRuleColumns...).From(transformationRulesTable).
		Where(sq.Eq{"import_type": string(importType), "active": true}).
		OrderBy("execution_order", "id")

	rs, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query transformation rules: %w", err)
	}
	defer rs.Close()

	var out []models.TransformationRule
	for rs.Next() {
		var r models.TransformationRule
		var it, rt string
		var cfg []byte
		var created sqlTime
		if err := rs.Scan(&r.ID, &it, &r.FieldName, &rt, &cfg, &r.ExecutionOrder, &r.Active, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transformation rule: %w", err)
		}
		r.ImportType = models.ImportType(it)
		r.RuleType = models.TransformationRuleType(rt)
		if len(cfg) > 0 {
			r.Config = json.RawMessage(cfg)
		}
		r.CreatedAt = created.Time
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transformation rules: %w", err)
	}
	return out, nil
}

// AddValidationRule inserts a rule and sets its generated ID.
func (s *sqlStore) AddValidationRule(ctx context.Context, rule *models.ValidationRule) error {
	r, err := s.queryRow(ctx, s.sb.Insert(validationRulesTable).
		Columns(validationRuleColumns[1:]...).
		Values(
			string(rule.ImportType),
			rule.FieldName,
			string(rule.RuleType),
			configArg(rule.Config),
			rule.ErrorMessage,
			rule.Order,
			rule.SoftFail,
			rule.Active,
			s.timeArg(rule.CreatedAt),
		).Suffix("RETURNING id"))
	if err != nil {
		return err
	}
	if err := r.Scan(&rule.ID); err != nil {
		return fmt.Errorf("failed to insert validation rule: %w", err)
	}
	return nil
}

// AddTransformationRule inserts a rule and sets its generated ID.
func (s *sqlStore) AddTransformationRule(ctx context.Context, rule *models.TransformationRule) error {
	r, err := s.queryRow(ctx, s.sb.Insert(transformationRulesTable).
		Columns(transformationRuleColumns[1:]...).
		Values(
			string(rule.ImportType),
			rule.FieldName,
			string(rule.RuleType),
			configArg(rule.Config),
			rule.ExecutionOrder,
			rule.Active,
			s.timeArg(rule.CreatedAt),
		).Suffix("RETURNING id"))
	if err != nil {
		return err
	}
	if err := r.Scan(&rule.ID); err != nil {
		return fmt.Errorf("failed to insert transformation rule: %w", err)
	}
	return nil
}
