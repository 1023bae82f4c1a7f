// Package validation applies ordered validation rules to staging records.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
)

// ErrMalformedRule marks a rule whose configuration cannot be compiled.
var ErrMalformedRule = errors.New("malformed validation rule")

// FormatKind is the value shape a Format rule checks for.
type FormatKind string

// Format kinds.
const (
	FormatNumeric FormatKind = "numeric"
	FormatInteger FormatKind = "integer"
	FormatDate    FormatKind = "date"
	FormatPattern FormatKind = "regex"
	FormatEmail   FormatKind = "email"
	FormatPhone   FormatKind = "phone"
	FormatZip     FormatKind = "zip"
)

var builtinPatterns = map[FormatKind]*regexp.Regexp{
	FormatInteger: regexp.MustCompile(`^[+-]?\d+$`),
	FormatEmail:   regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	FormatPhone:   regexp.MustCompile(`^\+?1?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`),
	FormatZip:     regexp.MustCompile(`^\d{5}(-\d{4})?$`),
}

// formatCheck is the compiled Format variant.
type formatCheck struct {
	pattern *regexp.Regexp
	kind    FormatKind
}

// rangeCheck is the compiled Range variant. Bounds are inclusive; either may be absent.
type rangeCheck struct {
	min, max         *float64
	minDate, maxDate *time.Time
	dates            bool
}

// customCheck is the compiled Custom variant.
type customCheck struct {
	predicate rules.Predicate
	args      map[string]string
	name      string
}

// Compiled is one validation rule parsed into its typed variant. A rule that
// failed to compile keeps its error and is skipped at evaluation time.
type Compiled struct {
	format *formatCheck
	rng    *rangeCheck
	custom *customCheck
	Err    error
	Rule   models.ValidationRule
}

type formatConfig struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
}

type rangeConfig struct {
	Min  json.RawMessage `json:"min"`
	Max  json.RawMessage `json:"max"`
	Type string          `json:"type"`
}

type customConfig struct {
	Args      map[string]string `json:"args"`
	Predicate string            `json:"predicate"`
}

// Compile parses each active rule once and orders them by Order, then ID.
// Malformed rules are kept with Err set rather than failing the whole set.
func Compile(in []models.ValidationRule, reg *rules.Registry) []Compiled {
	out := make([]Compiled, 0, len(in))
	for _, r := range in {
		if !r.Active {
			continue
		}
		c := Compiled{Rule: r}
		if err := c.compile(reg); err != nil {
			c.Err = fmt.Errorf("%w %d (%s on %s): %w", ErrMalformedRule, r.ID, r.RuleType, r.FieldName, err)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rule.Order != out[j].Rule.Order {
			return out[i].Rule.Order < out[j].Rule.Order
		}
		return out[i].Rule.ID < out[j].Rule.ID
	})
	return out
}

func (c *Compiled) compile(reg *rules.Registry) error {
	switch c.Rule.RuleType {
	case models.ValidationRequired:
		return nil

	case models.ValidationFormat:
		var cfg formatConfig
		if err := decode(c.Rule.Config, &cfg); err != nil {
			return err
		}
		kind := FormatKind(cfg.Type)
		if kind == "" && cfg.Pattern != "" {
			kind = FormatPattern
		}
		check := &formatCheck{kind: kind}
		switch kind {
		case FormatNumeric, FormatDate:
		case FormatPattern:
			re, err := regexp.Compile(cfg.Pattern)
			if err != nil {
				return fmt.Errorf("bad pattern: %w", err)
			}
			check.pattern = re
		default:
			re, ok := builtinPatterns[kind]
			if !ok {
				return fmt.Errorf("unknown format type %q", cfg.Type)
			}
			check.pattern = re
		}
		c.format = check
		return nil

	case models.ValidationRange:
		var cfg rangeConfig
		if err := decode(c.Rule.Config, &cfg); err != nil {
			return err
		}
		check, err := compileRange(cfg)
		if err != nil {
			return err
		}
		c.rng = check
		return nil

	case models.ValidationCustom:
		var cfg customConfig
		if err := decode(c.Rule.Config, &cfg); err != nil {
			return err
		}
		if cfg.Predicate == "" {
			return errors.New("custom rule names no predicate")
		}
		if reg == nil {
			return errors.New("no predicate registry")
		}
		p, err := reg.Predicate(cfg.Predicate)
		if err != nil {
			return err
		}
		c.custom = &customCheck{name: cfg.Predicate, predicate: p, args: cfg.Args}
		return nil
	}
	return fmt.Errorf("unknown rule type %q", c.Rule.RuleType)
}

func compileRange(cfg rangeConfig) (*rangeCheck, error) {
	if len(cfg.Min) == 0 && len(cfg.Max) == 0 {
		return nil, errors.New("range needs min or max")
	}
	check := &rangeCheck{dates: cfg.Type == "date"}
	if cfg.Type != "" && cfg.Type != "date" && cfg.Type != "number" {
		return nil, fmt.Errorf("unknown range type %q", cfg.Type)
	}
	bound := func(raw json.RawMessage) (*float64, *time.Time, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil, nil
		}
		if check.dates {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, nil, fmt.Errorf("date bound must be a string: %w", err)
			}
			t, err := normalizer.ParseDate(s)
			if err != nil {
				return nil, nil, err
			}
			return nil, &t, nil
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, nil, fmt.Errorf("numeric bound required: %w", err)
		}
		return &f, nil, nil
	}
	var err error
	if check.min, check.minDate, err = bound(cfg.Min); err != nil {
		return nil, err
	}
	if check.max, check.maxDate, err = bound(cfg.Max); err != nil {
		return nil, err
	}
	if check.min != nil && check.max != nil && *check.min > *check.max {
		return nil, errors.New("range min exceeds max")
	}
	if check.minDate != nil && check.maxDate != nil && check.minDate.After(*check.maxDate) {
		return nil, errors.New("range min exceeds max")
	}
	return check, nil
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
