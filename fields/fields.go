/*
Package fields provides custom field definitions for caregivers, orders and
clients.

PURPOSE:
  Operators extend the fixed record layout with extra form fields without
  code changes. A definition names the field, its input type and whether it
  is required; values live in the owning record (Order.CustomData.Fields).

JSON SCHEMA:
  {
    "target_model": "order",
    "name": "petsAtHome",
    "label": "Pets at home",
    "type": "select",
    "options": ["none", "cat", "dog"],
    "required": true,
    "order": 3
  }

KEY FEATURES:
  - Validates JSON structure and names
  - (target_model, name) is unique per store
  - ValidateValues checks submitted values against definitions

SEE ALSO:
  - store/sqlite/fields.go: Persistent Store
  - orders/service.go: Validates order field values on create/update
*/
package fields

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// TYPES
// =============================================================================

type TargetModel string

const (
	TargetCaregiver TargetModel = "caregiver"
	TargetOrder     TargetModel = "order"
	TargetClient    TargetModel = "client"
)

func (m TargetModel) Valid() bool {
	return m == TargetCaregiver || m == TargetOrder || m == TargetClient
}

type FieldType string

const (
	TypeText        FieldType = "text"
	TypeNumber      FieldType = "number"
	TypeDate        FieldType = "date"
	TypeSelect      FieldType = "select"
	TypeMultiSelect FieldType = "multiselect"
	TypeTextarea    FieldType = "textarea"
	TypeBoolean     FieldType = "boolean"
)

var fieldTypes = map[FieldType]bool{
	TypeText: true, TypeNumber: true, TypeDate: true, TypeSelect: true,
	TypeMultiSelect: true, TypeTextarea: true, TypeBoolean: true,
}

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ErrDuplicateField is returned when (target_model, name) already exists.
var ErrDuplicateField = errors.New("field already defined for target model")

// Definition is one custom field.
type Definition struct {
	ID          string      `json:"id"`
	TargetModel TargetModel `json:"target_model"`
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	Type        FieldType   `json:"type"`
	Options     []string    `json:"options,omitempty"`
	Required    bool        `json:"required"`
	Order       int         `json:"order"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Store persists definitions.
type Store interface {
	SaveField(ctx context.Context, d Definition) error
	ListFields(ctx context.Context, target TargetModel) ([]Definition, error)
	DeleteField(ctx context.Context, id string) error
}

// =============================================================================
// PARSING & VALIDATION
// =============================================================================

// Parse decodes and validates a JSON definition. Missing ids are generated.
func Parse(data []byte) (Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return Definition{}, fmt.Errorf("invalid field JSON: %w", err)
	}
	d.Type = FieldType(strings.ToLower(string(d.Type)))
	d.TargetModel = TargetModel(strings.ToLower(string(d.TargetModel)))
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// Validate checks the definition itself.
func (d Definition) Validate() error {
	verrs := staffing.ValidationErrors{}
	if !d.TargetModel.Valid() {
		verrs.Add("target_model", "must be caregiver, order or client")
	}
	if !namePattern.MatchString(d.Name) {
		verrs.Add("name", "must start with a letter and contain only letters, digits or _")
	}
	if strings.TrimSpace(d.Label) == "" {
		verrs.Add("label", "is required")
	}
	if !fieldTypes[d.Type] {
		verrs.Add("type", fmt.Sprintf("unknown field type %q", d.Type))
	}
	if (d.Type == TypeSelect || d.Type == TypeMultiSelect) && len(d.Options) == 0 {
		verrs.Add("options", "select fields need at least one option")
	}
	if verrs.Empty() {
		return nil
	}
	return verrs
}

// ValidateValues checks submitted values against definitions. Unknown keys
// are kept as free-form values.
func ValidateValues(defs []Definition, values map[string]string) staffing.ValidationErrors {
	verrs := staffing.ValidationErrors{}
	for _, d := range defs {
		key := "fields." + d.Name
		v, ok := values[d.Name]
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			if d.Required {
				verrs.Add(key, d.Label+" is required")
			}
			continue
		}
		switch d.Type {
		case TypeNumber:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				verrs.Add(key, "must be a number")
			}
		case TypeDate:
			if _, err := staffing.ParseDay(v); err != nil {
				verrs.Add(key, "must be a date (YYYY-MM-DD)")
			}
		case TypeBoolean:
			if _, err := strconv.ParseBool(v); err != nil {
				verrs.Add(key, "must be true or false")
			}
		case TypeSelect:
			if !contains(d.Options, v) {
				verrs.Add(key, "must be one of "+strings.Join(d.Options, ", "))
			}
		case TypeMultiSelect:
			for _, part := range strings.Split(v, ",") {
				if !contains(d.Options, strings.TrimSpace(part)) {
					verrs.Add(key, "must be among "+strings.Join(d.Options, ", "))
					break
				}
			}
		}
	}
	return verrs
}

// SortDefinitions orders by Order, then Name.
func SortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Order != defs[j].Order {
			return defs[i].Order < defs[j].Order
		}
		return defs[i].Name < defs[j].Name
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
