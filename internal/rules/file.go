package rules

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

//go:embed default_rules.yaml
var defaultRules []byte

// document is the on-disk shape of a rule file, shared by YAML and TOML.
type document struct {
	Validation     []validationEntry     `yaml:"validation" toml:"validation"`
	Transformation []transformationEntry `yaml:"transformation" toml:"transformation"`
}

type validationEntry struct {
	Active     *bool                  `yaml:"active" toml:"active"`
	Config     map[string]interface{} `yaml:"config" toml:"config"`
	ImportType string                 `yaml:"importType" toml:"importType"`
	Field      string                 `yaml:"field" toml:"field"`
	Type       string                 `yaml:"type" toml:"type"`
	Message    string                 `yaml:"message" toml:"message"`
	ID         int64                  `yaml:"id" toml:"id"`
	Order      int                    `yaml:"order" toml:"order"`
	SoftFail   bool                   `yaml:"softFail" toml:"softFail"`
}

type transformationEntry struct {
	Active     *bool                  `yaml:"active" toml:"active"`
	Config     map[string]interface{} `yaml:"config" toml:"config"`
	ImportType string                 `yaml:"importType" toml:"importType"`
	Field      string                 `yaml:"field" toml:"field"`
	Type       string                 `yaml:"type" toml:"type"`
	ID         int64                  `yaml:"id" toml:"id"`
	Order      int                    `yaml:"order" toml:"order"`
}

// Defaults returns the built-in rule set shipped with the binary.
func Defaults() (*Set, error) {
	return Parse(defaultRules, "yaml")
}

// LoadFile reads a rule set from a .yaml, .yml or .toml file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	set, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes a rule document. format is "yaml", "yml" or "toml".
// Missing IDs are assigned by position and missing orders default to position*10.
func Parse(data []byte, format string) (*Set, error) {
	var doc document
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML rules: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML rules: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, format)
	}

	set := &Set{}
	for i, e := range doc.Validation {
		importType, err := models.ParseImportType(e.ImportType)
		if err != nil {
			return nil, fmt.Errorf("%w: validation rule %d: %v", ErrInvalidRuleEntry, i+1, err)
		}
		if e.Field == "" {
			return nil, fmt.Errorf("%w: validation rule %d has no field", ErrInvalidRuleEntry, i+1)
		}
		cfg, err := encodeConfig(e.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: validation rule %d: %v", ErrInvalidRuleEntry, i+1, err)
		}
		set.Validation = append(set.Validation, models.ValidationRule{
			ID:           defaultID(e.ID, i),
			ImportType:   importType,
			FieldName:    e.Field,
			RuleType:     models.ValidationRuleType(e.Type),
			Config:       cfg,
			ErrorMessage: e.Message,
			Order:        defaultOrder(e.Order, i),
			SoftFail:     e.SoftFail,
			Active:       e.Active == nil || *e.Active,
		})
	}
	for i, e := range doc.Transformation {
		importType, err := models.ParseImportType(e.ImportType)
		if err != nil {
			return nil, fmt.Errorf("%w: transformation rule %d: %v", ErrInvalidRuleEntry, i+1, err)
		}
		if e.Field == "" {
			return nil, fmt.Errorf("%w: transformation rule %d has no field", ErrInvalidRuleEntry, i+1)
		}
		cfg, err := encodeConfig(e.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: transformation rule %d: %v", ErrInvalidRuleEntry, i+1, err)
		}
		set.Transformation = append(set.Transformation, models.TransformationRule{
			ID:             defaultID(e.ID, i),
			ImportType:     importType,
			FieldName:      e.Field,
			RuleType:       models.TransformationRuleType(e.Type),
			Config:         cfg,
			ExecutionOrder: defaultOrder(e.Order, i),
			Active:         e.Active == nil || *e.Active,
		})
	}
	return set, nil
}

func encodeConfig(cfg map[string]interface{}) (json.RawMessage, error) {
	if len(cfg) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config is not JSON-compatible: %w", err)
	}
	return data, nil
}

func defaultID(id int64, i int) int64 {
	if id != 0 {
		return id
	}
	return int64(i + 1)
}

func defaultOrder(order, i int) int {
	if order != 0 {
		return order
	}
	return (i + 1) * 10
}

// FileProvider reads a rule file on every call so edits apply to the next job.
type FileProvider struct {
	Path string
}

// ValidationRules implements Provider.
func (p FileProvider) ValidationRules(ctx context.Context, importType models.ImportType) ([]models.ValidationRule, error) {
	set, err := LoadFile(p.Path)
	if err != nil {
		return nil, err
	}
	return set.ValidationRules(ctx, importType)
}

// TransformationRules implements Provider.
func (p FileProvider) TransformationRules(ctx context.Context, importType models.ImportType) ([]models.TransformationRule, error) {
	set, err := LoadFile(p.Path)
	if err != nil {
		return nil, err
	}
	return set.TransformationRules(ctx, importType)
}
