package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Errors returned by rule providers and the registry.
var (
	ErrUnknownCustom    = errors.New("unknown custom logic")
	ErrUnsupportedFile  = errors.New("unsupported rule file format")
	ErrInvalidRuleEntry = errors.New("invalid rule entry")
)

// Provider supplies the ordered rule sets for an import type. Implementations are
// read at the start of every job; nothing is cached across jobs.
type Provider interface {
	ValidationRules(ctx context.Context, importType models.ImportType) ([]models.ValidationRule, error)
	TransformationRules(ctx context.Context, importType models.ImportType) ([]models.TransformationRule, error)
}

// Fallback returns a provider that consults each provider in turn and uses the
// first non-empty rule list. Errors stop the search.
func Fallback(providers ...Provider) Provider {
	return fallback(providers)
}

type fallback []Provider

func (f fallback) ValidationRules(ctx context.Context, importType models.ImportType) ([]models.ValidationRule, error) {
	for _, p := range f {
		if p == nil {
			continue
		}
		rules, err := p.ValidationRules(ctx, importType)
		if err != nil {
			return nil, fmt.Errorf("failed to load validation rules: %w", err)
		}
		if len(rules) > 0 {
			return rules, nil
		}
	}
	return nil, nil
}

func (f fallback) TransformationRules(ctx context.Context, importType models.ImportType) ([]models.TransformationRule, error) {
	for _, p := range f {
		if p == nil {
			continue
		}
		rules, err := p.TransformationRules(ctx, importType)
		if err != nil {
			return nil, fmt.Errorf("failed to load transformation rules: %w", err)
		}
		if len(rules) > 0 {
			return rules, nil
		}
	}
	return nil, nil
}

// Set is an in-memory rule set. It implements Provider.
type Set struct {
	Validation     []models.ValidationRule
	Transformation []models.TransformationRule
}

// ValidationRules returns the active validation rules for importType.
func (s *Set) ValidationRules(_ context.Context, importType models.ImportType) ([]models.ValidationRule, error) {
	var out []models.ValidationRule
	for _, r := range s.Validation {
		if r.ImportType == importType && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// TransformationRules returns the active transformation rules for importType.
func (s *Set) TransformationRules(_ context.Context, importType models.ImportType) ([]models.TransformationRule, error) {
	var out []models.TransformationRule
	for _, r := range s.Transformation {
		if r.ImportType == importType && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}
