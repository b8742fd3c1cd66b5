// Package render turns a module manifest's field schema plus stored
// records into UI-agnostic view models: a FormModel of typed controls for
// create/edit screens and display values for list views. The actual
// widgets are owned by the frontend; this package only decides what kind
// of control each field needs and what its options and labels are.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/golobby/cast"

	hogarfix "github.com/hogarfix/hogarfix"
)

// Sentinel technician assignment value. Records may carry it even though
// it never appears in the resolved technician list.
const (
	UnassignedValue = "sin_asignar"
	UnassignedLabel = "Sin asignar"
)

// ControlKind is the abstract widget category for a field.
type ControlKind string

const (
	ControlInput    ControlKind = "input"
	ControlTextarea ControlKind = "textarea"
	ControlCheckbox ControlKind = "checkbox"
	ControlSelect   ControlKind = "select"
	ControlDate     ControlKind = "date"
	ControlNumber   ControlKind = "number"
)

// Option is one selectable choice of a select control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Control is a single rendered form control.
type Control struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Kind     ControlKind `json:"kind"`
	// InputType carries the HTML input type for ControlInput kinds
	// (text, email, tel).
	InputType   string   `json:"inputType,omitempty"`
	Required    bool     `json:"required"`
	Options     []Option `json:"options,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Value       any      `json:"value,omitempty"`
}

// FormModel is the complete rendered form for a manifest.
type FormModel struct {
	ModuleSlug string    `json:"moduleSlug"`
	Title      string    `json:"title"`
	Controls   []Control `json:"controls"`
}

// Technician is a row from the external technicians collaborator.
type Technician struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	IsActive  bool   `json:"is_active"`
}

// Label returns "First Last", falling back to the email when both name
// parts are empty.
func (t Technician) Label() string {
	name := strings.TrimSpace(strings.TrimSpace(t.FirstName) + " " + strings.TrimSpace(t.LastName))
	if name == "" {
		return t.Email
	}
	return name
}

// TechnicianDirectory resolves dynamic select options sourced from
// "technicians". The runtime consumes it as an opaque collaborator.
type TechnicianDirectory interface {
	ListTechnicians(ctx context.Context, companyID hogarfix.CompanyID) ([]Technician, error)
}

// Renderer builds form and list view models from manifests and records.
type Renderer struct {
	directory TechnicianDirectory
	logger    hogarfix.Logger
}

// New creates a renderer. directory may be nil when no dynamic sources are
// in use; dynamic fields then render with static options only.
func New(directory TechnicianDirectory, logger hogarfix.Logger) *Renderer {
	if logger == nil {
		logger = hogarfix.NopLogger{}
	}
	return &Renderer{directory: directory, logger: logger}
}

// BuildForm renders one control per manifest field. When record is non-nil
// its data pre-populates the control values (edit flow); otherwise the form
// is blank (create flow).
func (r *Renderer) BuildForm(ctx context.Context, manifest *hogarfix.ModuleManifest, companyID hogarfix.CompanyID, record *hogarfix.ModuleData) (*FormModel, error) {
	if manifest == nil {
		return nil, hogarfix.ErrManifestNil
	}

	form := &FormModel{
		ModuleSlug: manifest.Slug,
		Title:      manifest.DisplayName,
		Controls:   make([]Control, 0, len(manifest.Fields)),
	}

	for _, field := range manifest.Fields {
		control := Control{
			Name:     field.Name,
			Label:    field.Label,
			Required: field.Required,
		}

		switch field.Type {
		case hogarfix.FieldTypeText, hogarfix.FieldTypeEmail, hogarfix.FieldTypeTel:
			control.Kind = ControlInput
			control.InputType = string(field.Type)
		case hogarfix.FieldTypeNumber:
			control.Kind = ControlNumber
		case hogarfix.FieldTypeTextarea:
			control.Kind = ControlTextarea
		case hogarfix.FieldTypeBoolean:
			control.Kind = ControlCheckbox
		case hogarfix.FieldTypeDate:
			control.Kind = ControlDate
		case hogarfix.FieldTypeSelect:
			control.Kind = ControlSelect
			control.Placeholder = "Seleccione una opción"
			options, err := r.ResolveOptions(ctx, field, companyID)
			if err != nil {
				return nil, err
			}
			control.Options = options
		}

		if record != nil {
			if v, ok := record.Data[field.Name]; ok {
				control.Value = v
			}
		}

		form.Controls = append(form.Controls, control)
	}

	return form, nil
}

// ResolveOptions returns a select field's static options plus, for dynamic
// fields sourced from "technicians", one option per technician labeled with
// their full name (email fallback).
func (r *Renderer) ResolveOptions(ctx context.Context, field hogarfix.FieldSpec, companyID hogarfix.CompanyID) ([]Option, error) {
	options := make([]Option, 0, len(field.Options))
	for _, o := range field.Options {
		options = append(options, Option{Value: o.Value, Label: o.Label})
	}

	if !field.Dynamic {
		return options, nil
	}

	switch field.Source {
	case "technicians":
		if r.directory == nil {
			r.logger.Warn("no technician directory configured, dynamic options skipped", "field", field.Name)
			return options, nil
		}
		techs, err := r.directory.ListTechnicians(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("resolve technicians for field %q: %w", field.Name, err)
		}
		for _, t := range techs {
			options = append(options, Option{Value: t.ID, Label: t.Label()})
		}
	default:
		r.logger.Warn("unknown dynamic option source", "field", field.Name, "source", field.Source)
	}

	return options, nil
}

// DisplayValue maps a stored scalar to its list-view representation.
// Nil or empty values render as "N/A". Select values resolve back to their
// option label, checking the unassigned sentinel and the resolved
// technician list before the static options. Booleans render as Sí/No.
func (r *Renderer) DisplayValue(field hogarfix.FieldSpec, value any, technicians []Technician) string {
	if value == nil {
		return "N/A"
	}
	if s, ok := value.(string); ok && s == "" {
		return "N/A"
	}

	switch field.Type {
	case hogarfix.FieldTypeSelect:
		s := fmt.Sprint(value)
		if s == UnassignedValue {
			return UnassignedLabel
		}
		for _, t := range technicians {
			if t.ID == s {
				return t.Label()
			}
		}
		for _, o := range field.Options {
			if o.Value == s {
				return o.Label
			}
		}
		return s
	case hogarfix.FieldTypeBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return "Sí"
			}
			return "No"
		}
	}

	return fmt.Sprint(value)
}

// FilterRecords returns the records whose JSON-serialized data contains the
// query, case-insensitively. An empty query returns the input unchanged.
func (r *Renderer) FilterRecords(records []hogarfix.ModuleData, query string) []hogarfix.ModuleData {
	if query == "" {
		return records
	}
	q := strings.ToLower(query)
	matched := make([]hogarfix.ModuleData, 0)
	for _, rec := range records {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(raw)), q) {
			matched = append(matched, rec)
		}
	}
	return matched
}

// CoerceValues converts raw form values to the scalar type each field
// declares: numbers via cast, booleans via cast, everything else
// stringified. Keys without a matching field pass through untouched so the
// renderer can still show them as raw values.
func (r *Renderer) CoerceValues(manifest *hogarfix.ModuleManifest, raw map[string]any) (map[string]any, error) {
	if manifest == nil {
		return nil, hogarfix.ErrManifestNil
	}

	out := make(map[string]any, len(raw))
	for key, value := range raw {
		field := manifest.Field(key)
		if field == nil || value == nil {
			out[key] = value
			continue
		}

		switch field.Type {
		case hogarfix.FieldTypeNumber:
			if _, ok := value.(float64); ok {
				out[key] = value
				continue
			}
			n, err := cast.FromType(fmt.Sprint(value), reflect.TypeOf(float64(0)))
			if err != nil {
				return nil, fmt.Errorf("field %q expects a number: %w", key, err)
			}
			out[key] = n
		case hogarfix.FieldTypeBoolean:
			if _, ok := value.(bool); ok {
				out[key] = value
				continue
			}
			b, err := cast.FromType(fmt.Sprint(value), reflect.TypeOf(false))
			if err != nil {
				return nil, fmt.Errorf("field %q expects a boolean: %w", key, err)
			}
			out[key] = b
		default:
			out[key] = fmt.Sprint(value)
		}
	}
	return out, nil
}
