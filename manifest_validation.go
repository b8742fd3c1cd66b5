package hogarfix

import "fmt"

// Validate checks that the manifest carries every required field and that
// its field and hook declarations use known types. It is side-effect free;
// callers decide whether a failure blocks installation or registration.
//
// Required: name, slug, version, description, displayName, fields (the
// fields array may be empty but must be present). Empty hooks or
// permissions lists are accepted; the Manager logs an advisory warning for
// them at registration time.
func (m *ModuleManifest) Validate() error {
	if m == nil {
		return ErrManifestNil
	}

	required := []struct {
		name  string
		empty bool
	}{
		{"name", m.Name == ""},
		{"slug", m.Slug == ""},
		{"version", m.Version == ""},
		{"description", m.Description == ""},
		{"displayName", m.DisplayName == ""},
		{"fields", m.Fields == nil},
	}
	for _, r := range required {
		if r.empty {
			return &ValidationError{Field: r.name}
		}
	}

	seen := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" {
			return &ValidationError{Field: "fields", Reason: "field with empty name"}
		}
		if _, dup := seen[f.Name]; dup {
			return &ValidationError{Field: "fields", Reason: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		seen[f.Name] = struct{}{}

		if !f.Type.Valid() {
			return &ValidationError{Field: "fields", Reason: fmt.Sprintf("field %q has unknown type %q", f.Name, f.Type)}
		}
		if f.Type == FieldTypeSelect && f.Dynamic && f.Source == "" {
			return &ValidationError{Field: "fields", Reason: fmt.Sprintf("dynamic select %q missing source", f.Name)}
		}
	}

	for _, h := range m.Hooks {
		if !h.Valid() {
			return &ValidationError{Field: "hooks", Reason: fmt.Sprintf("unknown hook %q", h)}
		}
	}

	return nil
}

// ValidateManifest is a standalone form of (*ModuleManifest).Validate for
// callers holding a possibly-nil manifest.
func ValidateManifest(m *ModuleManifest) error {
	return m.Validate()
}
