package hogarfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() *ModuleManifest {
	return &ModuleManifest{
		Name:        "Herramientas",
		Slug:        "herramientas",
		Version:     "1.0.0",
		Description: "Inventario de herramientas",
		DisplayName: "Herramientas",
		Fields: []FieldSpec{
			{Name: "nombre", Label: "Nombre", Type: FieldTypeText, Required: true},
			{Name: "cantidad", Label: "Cantidad", Type: FieldTypeNumber},
		},
		Hooks: []HookName{HookSidebarMenu, HookAfterCreate},
	}
}

func TestManifestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid_manifest_passes", func(t *testing.T) {
		assert.NoError(t, validManifest().Validate())
	})

	t.Run("nil_manifest_rejected", func(t *testing.T) {
		var m *ModuleManifest
		assert.ErrorIs(t, m.Validate(), ErrManifestNil)
	})

	t.Run("each_missing_required_field_is_named", func(t *testing.T) {
		cases := []struct {
			field  string
			mutate func(*ModuleManifest)
		}{
			{"name", func(m *ModuleManifest) { m.Name = "" }},
			{"slug", func(m *ModuleManifest) { m.Slug = "" }},
			{"version", func(m *ModuleManifest) { m.Version = "" }},
			{"description", func(m *ModuleManifest) { m.Description = "" }},
			{"displayName", func(m *ModuleManifest) { m.DisplayName = "" }},
			{"fields", func(m *ModuleManifest) { m.Fields = nil }},
		}
		for _, tc := range cases {
			t.Run(tc.field, func(t *testing.T) {
				m := validManifest()
				tc.mutate(m)

				err := m.Validate()
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrManifestInvalid)

				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.field, verr.Field)
			})
		}
	})

	t.Run("empty_fields_array_is_accepted", func(t *testing.T) {
		m := validManifest()
		m.Fields = []FieldSpec{}
		assert.NoError(t, m.Validate())
	})

	t.Run("empty_hooks_and_permissions_are_accepted", func(t *testing.T) {
		m := validManifest()
		m.Hooks = nil
		m.Permissions = nil
		assert.NoError(t, m.Validate())
	})

	t.Run("unknown_field_type_rejected", func(t *testing.T) {
		m := validManifest()
		m.Fields = append(m.Fields, FieldSpec{Name: "foto", Label: "Foto", Type: "image"})
		err := m.Validate()
		assert.ErrorIs(t, err, ErrManifestInvalid)
		assert.Contains(t, err.Error(), "image")
	})

	t.Run("duplicate_field_name_rejected", func(t *testing.T) {
		m := validManifest()
		m.Fields = append(m.Fields, FieldSpec{Name: "nombre", Label: "Otro", Type: FieldTypeText})
		err := m.Validate()
		assert.ErrorIs(t, err, ErrManifestInvalid)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("dynamic_select_requires_source", func(t *testing.T) {
		m := validManifest()
		m.Fields = append(m.Fields, FieldSpec{Name: "tecnico", Label: "Técnico", Type: FieldTypeSelect, Dynamic: true})
		err := m.Validate()
		assert.ErrorIs(t, err, ErrManifestInvalid)
	})

	t.Run("unknown_hook_rejected", func(t *testing.T) {
		m := validManifest()
		m.Hooks = append(m.Hooks, HookName("on_boot"))
		err := m.Validate()
		assert.ErrorIs(t, err, ErrManifestInvalid)
		assert.Contains(t, err.Error(), "on_boot")
	})

	t.Run("entity_suffixed_mutation_hook_accepted", func(t *testing.T) {
		m := validManifest()
		m.Hooks = append(m.Hooks, HookName("after_create_herramienta"))
		assert.NoError(t, m.Validate())
	})
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	t.Run("parses_and_validates", func(t *testing.T) {
		raw := []byte(`{
			"name": "Clientes VIP",
			"slug": "clientes-vip",
			"version": "2.1.0",
			"description": "Seguimiento de clientes prioritarios",
			"displayName": "Clientes VIP",
			"fields": [
				{"name": "email", "label": "Email", "type": "email", "required": true},
				{"name": "tecnico", "label": "Técnico", "type": "select", "dynamic": true, "source": "technicians"}
			],
			"hooks": ["sidebar_menu", "before_save"]
		}`)

		m, err := ParseManifest(raw)
		require.NoError(t, err)
		assert.Equal(t, "clientes-vip", m.Slug)
		assert.Len(t, m.Fields, 2)
		assert.True(t, m.Fields[1].Dynamic)
		assert.Equal(t, "technicians", m.Fields[1].Source)
	})

	t.Run("malformed_json_wraps_parse_error", func(t *testing.T) {
		_, err := ParseManifest([]byte(`{"name": `))
		assert.ErrorIs(t, err, ErrManifestParse)
	})

	t.Run("invalid_manifest_wraps_validation_error", func(t *testing.T) {
		_, err := ParseManifest([]byte(`{"name": "X"}`))
		assert.ErrorIs(t, err, ErrManifestInvalid)
	})
}

func TestHookNameForEntity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, HookName("after_create_herramienta"), HookAfterCreate.ForEntity("herramienta"))
	assert.Equal(t, HookAfterCreate, HookAfterCreate.ForEntity(""))
	assert.True(t, HookAfterCreate.ForEntity("herramienta").Valid())
	assert.False(t, HookName("sidebar_menu_extra").Valid())
}
