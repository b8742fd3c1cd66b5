// Package hogarfix implements the module extension runtime for the HogarFix
// platform. It supports manifest-driven plugin modules, a priority-ordered
// hook dispatch mechanism, per-company module data storage, and dynamic
// form generation from field schemas.
//
// A module is described by a declarative JSON manifest (ModuleManifest).
// Installing a manifest persists it as a Module row scoped to a company and
// loads a runtime instance whose declared hooks are wired into the
// HookDispatcher. Business records created through a module's generic form
// are stored as ModuleData rows.
//
// Basic usage:
//
//	rt := hogarfix.NewModuleRuntime(backend, logger)
//	manifest, err := hogarfix.ParseManifest(raw)
//	if err != nil {
//		return err
//	}
//	if _, err := rt.Manager.RegisterModule(ctx, manifest); err != nil {
//		return err
//	}
package hogarfix

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FieldType enumerates the closed set of field types a manifest may declare.
// Unknown types are rejected at validation time rather than silently
// rendering as plain text.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeEmail    FieldType = "email"
	FieldTypeTel      FieldType = "tel"
	FieldTypeNumber   FieldType = "number"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeSelect   FieldType = "select"
	FieldTypeDate     FieldType = "date"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeEmail, FieldTypeTel, FieldTypeNumber,
		FieldTypeTextarea, FieldTypeBoolean, FieldTypeSelect, FieldTypeDate:
		return true
	}
	return false
}

// HookName identifies a system extension point modules can attach to.
type HookName string

// System hook names. The mutation hooks accept an entity-suffixed form
// (e.g. "after_create_herramienta") so a module can scope its handler to a
// single record type.
const (
	HookSidebarMenu      HookName = "sidebar_menu"
	HookDashboardWidgets HookName = "dashboard_widgets"
	HookHeaderActions    HookName = "header_actions"
	HookBeforeSave       HookName = "before_save"
	HookAfterCreate      HookName = "after_create"
	HookBeforeDelete     HookName = "before_delete"
)

// entityHookPrefixes are the hook families that accept an entity suffix.
var entityHookPrefixes = []HookName{HookBeforeSave, HookAfterCreate, HookBeforeDelete}

// Valid reports whether h is a known system hook name or an entity-suffixed
// variant of one of the mutation hooks.
func (h HookName) Valid() bool {
	switch h {
	case HookSidebarMenu, HookDashboardWidgets, HookHeaderActions,
		HookBeforeSave, HookAfterCreate, HookBeforeDelete:
		return true
	}
	for _, prefix := range entityHookPrefixes {
		if strings.HasPrefix(string(h), string(prefix)+"_") {
			return true
		}
	}
	return false
}

// ForEntity returns the entity-suffixed variant of a mutation hook, e.g.
// HookAfterCreate.ForEntity("herramienta") == "after_create_herramienta".
func (h HookName) ForEntity(entity string) HookName {
	if entity == "" {
		return h
	}
	return HookName(string(h) + "_" + entity)
}

// SelectOption is a single choice in a select field.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldSpec describes one input field of a module's generic form.
type FieldSpec struct {
	// Name is the key used in ModuleData.Data. Unique within a manifest.
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`

	// Options holds the static choices for select fields.
	Options []SelectOption `json:"options,omitempty"`

	// Dynamic marks a select field whose options are resolved at render
	// time from an external collaborator named by Source (e.g.
	// "technicians").
	Dynamic bool   `json:"dynamic,omitempty"`
	Source  string `json:"source,omitempty"`
}

// RouteSpec declares a UI route a module wants exposed. Informational only
// for the runtime; the frontend owns actual routing.
type RouteSpec struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	Protected bool   `json:"protected"`
}

// DatabaseSpec is advisory metadata describing auxiliary collections a
// module would like provisioned. The runtime does not act on it.
type DatabaseSpec struct {
	CreateTables bool     `json:"create_tables"`
	Tables       []string `json:"tables,omitempty"`
}

// ModuleManifest is the declarative description of a plugin module.
// Manifests are author-supplied JSON and immutable once loaded.
type ModuleManifest struct {
	Name               string        `json:"name"`
	Slug               string        `json:"slug"`
	Version            string        `json:"version"`
	Description        string        `json:"description"`
	DisplayName        string        `json:"displayName"`
	DisplayDescription string        `json:"displayDescription,omitempty"`
	Author             string        `json:"author,omitempty"`
	License            string        `json:"license,omitempty"`
	Icon               string        `json:"icon,omitempty"`
	Category           string        `json:"category,omitempty"`
	Fields             []FieldSpec   `json:"fields"`
	Hooks              []HookName    `json:"hooks,omitempty"`
	Routes             []RouteSpec   `json:"routes,omitempty"`
	Permissions        []string      `json:"permissions,omitempty"`
	Dependencies       []string      `json:"dependencies,omitempty"`
	Database           *DatabaseSpec `json:"database,omitempty"`
}

// Field returns the field spec with the given name, or nil.
func (m *ModuleManifest) Field(name string) *FieldSpec {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// ParseManifest decodes and validates a manifest from raw JSON.
func ParseManifest(data []byte) (*ModuleManifest, error) {
	var manifest ModuleManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestParse, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ParseManifestFile reads and parses a manifest JSON file from disk.
func ParseManifestFile(path string) (*ModuleManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest file %q: %w", path, err)
	}
	return ParseManifest(data)
}
