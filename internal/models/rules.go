package models

import (
	"encoding/json"
	"time"
)

// ValidationRuleType selects how a validation rule evaluates a field.
type ValidationRuleType string

// Validation rule types.
const (
	ValidationRequired ValidationRuleType = "Required"
	ValidationFormat   ValidationRuleType = "Format"
	ValidationRange    ValidationRuleType = "Range"
	ValidationCustom   ValidationRuleType = "Custom"
)

// TransformationRuleType selects how a transformation rule rewrites a field.
type TransformationRuleType string

// Transformation rule types.
const (
	TransformMapping   TransformationRuleType = "Mapping"
	TransformFormat    TransformationRuleType = "Format"
	TransformCalculate TransformationRuleType = "Calculate"
	TransformCustom    TransformationRuleType = "Custom"
)

// ValidationRule is a stored validation rule. Config holds the type-specific
// parameters as an opaque JSON document; it is compiled once per job.
type ValidationRule struct {
	CreatedAt    time.Time          `json:"createdAt"`
	Config       json.RawMessage    `json:"config,omitempty"`
	ImportType   ImportType         `json:"importType"`
	FieldName    string             `json:"fieldName"`
	RuleType     ValidationRuleType `json:"ruleType"`
	ErrorMessage string             `json:"errorMessage"`
	ID           int64              `json:"id"`
	Order        int                `json:"order"`
	// SoftFail downgrades a failing Range or Custom rule to Warning.
	SoftFail bool `json:"softFail"`
	Active   bool `json:"active"`
}

// TransformationRule is a stored transformation rule, applied in ascending ExecutionOrder.
type TransformationRule struct {
	CreatedAt      time.Time              `json:"createdAt"`
	Config         json.RawMessage        `json:"config,omitempty"`
	ImportType     ImportType             `json:"importType"`
	FieldName      string                 `json:"fieldName"`
	RuleType       TransformationRuleType `json:"ruleType"`
	ID             int64                  `json:"id"`
	ExecutionOrder int                    `json:"executionOrder"`
	Active         bool                   `json:"active"`
}
