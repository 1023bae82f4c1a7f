// Package transform applies ordered field-level transformation rules to staging records.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
)

// Errors produced while compiling or applying transformations.
var (
	ErrMalformedRule = errors.New("malformed transformation rule")
	ErrTransform     = errors.New("transformation failed")
)

// Format operations.
const (
	OpUpper    = "upper"
	OpLower    = "lower"
	OpTrim     = "trim"
	OpCollapse = "collapse"
	OpTitle    = "title"
	OpDigits   = "digits"
	OpStrip    = "strip"
	OpDate     = "date"
	OpNumber   = "number"
)

// Calculate operations.
const (
	CalcSum      = "sum"
	CalcMultiply = "multiply"
	CalcConcat   = "concat"
)

// step rewrites one field value. rec is available for rules that read or set other fields.
type step func(value string, rec *models.StagingRecord) (string, error)

// Compiled is one transformation rule parsed into its executable form.
type Compiled struct {
	apply step
	Err   error
	Rule  models.TransformationRule
}

// run applies the step, turning a panic in a registry transform into an error
// so one record cannot take down the job.
func (c Compiled) run(value string, rec *models.StagingRecord) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = value, fmt.Errorf("transformation panicked: %v", p)
		}
	}()
	return c.apply(value, rec)
}

type mappingConfig struct {
	Values        map[string]string `json:"values"`
	Default       *string           `json:"default"`
	CaseSensitive bool              `json:"caseSensitive"`
	Strict        bool              `json:"strict"`
}

type formatConfig struct {
	Op    string `json:"op"`
	Chars string `json:"chars"`
}

type calculateConfig struct {
	Precision *int     `json:"precision"`
	Op        string   `json:"op"`
	Separator string   `json:"separator"`
	Fields    []string `json:"fields"`
}

type customConfig struct {
	Args      map[string]string `json:"args"`
	Transform string            `json:"transform"`
}

// Compile parses the active rules once and orders them by ExecutionOrder, ties
// broken by ID. Malformed rules are kept with Err set.
func Compile(in []models.TransformationRule, reg *rules.Registry) []Compiled {
	out := make([]Compiled, 0, len(in))
	for _, r := range in {
		if !r.Active {
			continue
		}
		c := Compiled{Rule: r}
		fn, err := compileStep(r, reg)
		if err != nil {
			c.Err = fmt.Errorf("%w %d (%s on %s): %w", ErrMalformedRule, r.ID, r.RuleType, r.FieldName, err)
		}
		c.apply = fn
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rule.ExecutionOrder != out[j].Rule.ExecutionOrder {
			return out[i].Rule.ExecutionOrder < out[j].Rule.ExecutionOrder
		}
		return out[i].Rule.ID < out[j].Rule.ID
	})
	return out
}

// Apply runs the compiled rules for rec's import type in order, each seeing the
// previous output. A failing rule leaves the field at its prior value, marks the
// field failed and adds a fault; the returned faults are Processing errors.
func Apply(rec *models.StagingRecord, compiled []Compiled) []string {
	var faults []string
	for _, c := range compiled {
		if c.Rule.ImportType != rec.ImportType {
			continue
		}
		if c.Err != nil {
			faults = append(faults, c.Err.Error())
			continue
		}

		field := c.Rule.FieldName
		before := rec.Field(field)
		after, err := c.run(before, rec)
		if err != nil {
			msg := fmt.Sprintf("%s: rule %d on %s: %v", ErrTransform, c.Rule.ID, field, err)
			rec.MarkFieldFailed(field)
			rec.AddProcessingMessage(msg)
			faults = append(faults, msg)
			continue
		}
		if after != before {
			rec.SetField(field, after)
		}
	}
	return faults
}

func compileStep(r models.TransformationRule, reg *rules.Registry) (step, error) {
	switch r.RuleType {
	case models.TransformMapping:
		var cfg mappingConfig
		if err := decode(r.Config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Values) == 0 {
			return nil, errors.New("mapping has no values")
		}
		return mappingStep(cfg), nil

	case models.TransformFormat:
		var cfg formatConfig
		if err := decode(r.Config, &cfg); err != nil {
			return nil, err
		}
		return formatStep(cfg)

	case models.TransformCalculate:
		var cfg calculateConfig
		if err := decode(r.Config, &cfg); err != nil {
			return nil, err
		}
		return calculateStep(cfg, r.FieldName)

	case models.TransformCustom:
		var cfg customConfig
		if err := decode(r.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Transform == "" {
			return nil, errors.New("custom rule names no transformation")
		}
		if reg == nil {
			return nil, errors.New("no transformation registry")
		}
		fn, err := reg.Transform(cfg.Transform)
		if err != nil {
			return nil, err
		}
		return func(value string, rec *models.StagingRecord) (string, error) {
			return fn(value, rec, cfg.Args)
		}, nil
	}
	return nil, fmt.Errorf("unknown rule type %q", r.RuleType)
}

// mappingStep translates values through a lookup table. Values that are already a
// mapping target are left alone, even when the table also maps them, so chained
// entries stop after one hop and the rule is a fixed point.
func mappingStep(cfg mappingConfig) step {
	key := func(s string) string {
		s = strings.TrimSpace(s)
		if cfg.CaseSensitive {
			return s
		}
		return strings.ToLower(s)
	}
	table := make(map[string]string, len(cfg.Values))
	targets := make(map[string]bool, len(cfg.Values)+1)
	for from, to := range cfg.Values {
		table[key(from)] = to
		targets[key(to)] = true
	}
	if cfg.Default != nil {
		targets[key(*cfg.Default)] = true
	}

	return func(value string, _ *models.StagingRecord) (string, error) {
		if strings.TrimSpace(value) == "" {
			return value, nil
		}
		k := key(value)
		if targets[k] {
			return value, nil
		}
		if to, ok := table[k]; ok {
			return to, nil
		}
		if cfg.Strict {
			return "", fmt.Errorf("no mapping for %q", value)
		}
		if cfg.Default != nil {
			return *cfg.Default, nil
		}
		return value, nil
	}
}

func formatStep(cfg formatConfig) (step, error) {
	var fn func(string) (string, error)
	switch cfg.Op {
	case OpUpper:
		fn = func(s string) (string, error) { return strings.ToUpper(s), nil }
	case OpLower:
		fn = func(s string) (string, error) { return strings.ToLower(s), nil }
	case OpTrim:
		fn = func(s string) (string, error) { return strings.TrimSpace(s), nil }
	case OpCollapse:
		fn = func(s string) (string, error) { return strings.Join(strings.Fields(s), " "), nil }
	case OpTitle:
		// Casers are stateful, so each call gets its own.
		fn = func(s string) (string, error) {
			return cases.Title(language.English).String(strings.ToLower(s)), nil
		}
	case OpDigits:
		fn = func(s string) (string, error) {
			return strings.Map(func(r rune) rune {
				if unicode.IsDigit(r) {
					return r
				}
				return -1
			}, s), nil
		}
	case OpStrip:
		if cfg.Chars == "" {
			return nil, errors.New("strip needs chars")
		}
		fn = func(s string) (string, error) {
			return strings.Map(func(r rune) rune {
				if strings.ContainsRune(cfg.Chars, r) {
					return -1
				}
				return r
			}, s), nil
		}
	case OpDate:
		fn = func(s string) (string, error) {
			if strings.TrimSpace(s) == "" {
				return s, nil
			}
			t, err := normalizer.ParseDate(s)
			if err != nil {
				return "", err
			}
			return t.Format(normalizer.ISODate), nil
		}
	case OpNumber:
		fn = func(s string) (string, error) {
			if strings.TrimSpace(s) == "" {
				return s, nil
			}
			f, err := normalizer.ParseNumber(s)
			if err != nil {
				return "", err
			}
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
	default:
		return nil, fmt.Errorf("unknown format op %q", cfg.Op)
	}
	return func(value string, _ *models.StagingRecord) (string, error) {
		return fn(value)
	}, nil
}

// calculateStep computes target from other fields. The target may not be one of
// its own operands, which keeps the rule idempotent.
func calculateStep(cfg calculateConfig, target string) (step, error) {
	if len(cfg.Fields) == 0 {
		return nil, errors.New("calculate needs fields")
	}
	for _, f := range cfg.Fields {
		if f == target {
			return nil, fmt.Errorf("field %q cannot be its own operand", target)
		}
	}

	switch cfg.Op {
	case CalcConcat:
		sep := cfg.Separator
		if sep == "" {
			sep = " "
		}
		return func(value string, rec *models.StagingRecord) (string, error) {
			parts := make([]string, 0, len(cfg.Fields))
			for _, f := range cfg.Fields {
				if v := strings.TrimSpace(rec.Field(f)); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) == 0 {
				return value, nil
			}
			return strings.Join(parts, sep), nil
		}, nil

	case CalcSum, CalcMultiply:
		return func(value string, rec *models.StagingRecord) (string, error) {
			var present int
			result := 0.0
			if cfg.Op == CalcMultiply {
				result = 1
			}
			for _, f := range cfg.Fields {
				raw := rec.Field(f)
				if strings.TrimSpace(raw) == "" {
					continue
				}
				present++
				n, err := normalizer.ParseNumber(raw)
				if err != nil {
					return "", fmt.Errorf("operand %s: %w", f, err)
				}
				if cfg.Op == CalcSum {
					result += n
				} else {
					result *= n
				}
			}
			if present == 0 {
				return value, nil
			}
			if present < len(cfg.Fields) {
				return "", errors.New("missing operand")
			}
			prec := -1
			if cfg.Precision != nil {
				prec = *cfg.Precision
			}
			return strconv.FormatFloat(result, 'f', prec, 64), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown calculate op %q", cfg.Op)
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bad config: %w", err)
	}
	return nil
}
