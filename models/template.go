package models

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

var TemplateHeaders = []string{
	"template_id",
	"name",
	"version",
	"phase",
	"is_active",
	"description",
}

var TemplateStepHeaders = []string{
	"template_id",
	"step_order",
	"code",
	"title",
	"type",
	"required",
	"validators_json",
	"norm_rule",
	"hint",
	"owner_role",
}

// TemplateStepDefinition is one ordered checklist step of a template.
// Validators carries type-specific rules (min/max/peer deviation/delta
// threshold) as loose JSON; ParsedValidators decodes it on demand.
type TemplateStepDefinition struct {
	StepOrder      int
	Code           string
	Title          string
	Type           StepValueKind
	Required       bool
	ValidatorsJSON string
	NormRule       string
	Hint           string
	OwnerRole      OwnerRole
}

type TemplateDefinition struct {
	TemplateId  string
	Name        string
	Version     int
	Phase       string
	IsActive    bool
	Description string
	Steps       []TemplateStepDefinition
}

func TemplateFromRow(row []string) TemplateDefinition {
	padded := make([]string, len(TemplateHeaders))
	copy(padded, row)
	return TemplateDefinition{
		TemplateId:  padded[0],
		Name:        padded[1],
		Version:     parseIntOr(padded[2], 1),
		Phase:       padded[3],
		IsActive:    padded[4] == "" || parseSheetBool(padded[4]),
		Description: padded[5],
	}
}

func (t *TemplateDefinition) ToRow() []string {
	return []string{
		t.TemplateId,
		t.Name,
		strconv.Itoa(t.Version),
		t.Phase,
		sheetBool(t.IsActive),
		t.Description,
	}
}

func TemplateStepFromRow(row []string) (templateId string, step TemplateStepDefinition) {
	padded := make([]string, len(TemplateStepHeaders))
	copy(padded, row)
	return padded[0], TemplateStepDefinition{
		StepOrder:      parseIntOr(padded[1], 0),
		Code:           padded[2],
		Title:          padded[3],
		Type:           StepValueKind(cellOr(strings.ToLower(padded[4]), string(StepValueText))),
		Required:       parseSheetBool(padded[5]),
		ValidatorsJSON: padded[6],
		NormRule:       padded[7],
		Hint:           padded[8],
		OwnerRole:      NormalizeOwnerRole(padded[9]),
	}
}

func (s *TemplateStepDefinition) ToRow(templateId string) []string {
	return []string{
		templateId,
		strconv.Itoa(s.StepOrder),
		s.Code,
		s.Title,
		string(s.Type),
		sheetBool(s.Required),
		s.ValidatorsJSON,
		s.NormRule,
		s.Hint,
		string(s.OwnerRole),
	}
}

// ParsedValidators decodes validators_json; malformed JSON yields an empty
// map rather than failing a whole checklist.
func (s *TemplateStepDefinition) ParsedValidators() map[string]string {
	out := map[string]string{}
	raw := strings.TrimSpace(s.ValidatorsJSON)
	if raw == "" {
		return out
	}
	var loose map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return out
	}
	for key, value := range loose {
		switch v := value.(type) {
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = sheetBool(v)
		}
	}
	return out
}

// SortSteps orders steps in place by step_order for rendering and seeding.
func (t *TemplateDefinition) SortSteps() {
	sort.SliceStable(t.Steps, func(i, j int) bool {
		return t.Steps[i].StepOrder < t.Steps[j].StepOrder
	})
}
