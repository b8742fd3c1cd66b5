package hogarfix

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogarfix/hogarfix/store"
)

func mustManifestJSON(t *testing.T, m *ModuleManifest) []byte {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

func newTestAdapter(t *testing.T, logger Logger) *StoreAdapter {
	t.Helper()
	backend := store.NewMemoryBackend()
	require.NoError(t, backend.EnsureCollections(context.Background(), CollectionModules, CollectionModuleData))
	return NewStoreAdapter(backend, logger)
}

func TestModuleRoundTrip(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, nil)
	ctx := context.Background()

	created, err := adapter.CreateModule(ctx, Module{
		CompanyID: "c1",
		Slug:      "herramientas",
		Name:      "Herramientas",
		Version:   "1.0.0",
		IsActive:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := adapter.GetModule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "herramientas", fetched.Slug)
	assert.Equal(t, CompanyID("c1"), fetched.CompanyID)

	updated, err := adapter.UpdateModule(ctx, created.ID, map[string]any{"name": "Herramientas Pro"})
	require.NoError(t, err)
	assert.Equal(t, "Herramientas Pro", updated.Name)
	assert.True(t, updated.UpdatedAt.After(created.CreatedAt) || updated.UpdatedAt.Equal(created.CreatedAt))

	require.NoError(t, adapter.DeleteModule(ctx, created.ID, "c1"))
	_, err = adapter.GetModule(ctx, created.ID)
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestGetModules(t *testing.T) {
	t.Parallel()

	t.Run("only_active_modules_ordered_by_name", func(t *testing.T) {
		adapter := newTestAdapter(t, nil)
		ctx := context.Background()

		for _, m := range []Module{
			{CompanyID: "c1", Slug: "zeta", Name: "Zeta", IsActive: true},
			{CompanyID: "c1", Slug: "alfa", Name: "Alfa", IsActive: true},
			{CompanyID: "c1", Slug: "dormido", Name: "Dormido", IsActive: false},
		} {
			_, err := adapter.CreateModule(ctx, m)
			require.NoError(t, err)
		}

		modules, err := adapter.GetModules(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, modules, 2)
		assert.Equal(t, "Alfa", modules[0].Name)
		assert.Equal(t, "Zeta", modules[1].Name)
	})

	t.Run("company_scoping_isolates_tenants", func(t *testing.T) {
		adapter := newTestAdapter(t, nil)
		ctx := context.Background()

		_, err := adapter.CreateModule(ctx, Module{CompanyID: "c1", Slug: "m1", Name: "M1", IsActive: true})
		require.NoError(t, err)
		_, err = adapter.CreateModule(ctx, Module{CompanyID: "c2", Slug: "m2", Name: "M2", IsActive: true})
		require.NoError(t, err)

		forC1, err := adapter.GetModules(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, forC1, 1)
		assert.Equal(t, "m1", forC1[0].Slug)

		all, err := adapter.GetModules(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("unprovisioned_collection_degrades_to_empty_list", func(t *testing.T) {
		logger := &recordingLogger{}
		backend := store.NewMemoryBackend()
		adapter := NewStoreAdapter(backend, logger)

		modules, err := adapter.GetModules(context.Background(), "c1")
		require.NoError(t, err)
		assert.Empty(t, modules)
		assert.NotNil(t, modules)
		assert.True(t, logger.contains("warn: modules collection not provisioned, returning empty list"))
	})
}

func TestModuleDataTenantIsolation(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, nil)
	ctx := context.Background()

	mod, err := adapter.CreateModule(ctx, Module{CompanyID: "c1", Slug: "herramientas", Name: "Herramientas", IsActive: true})
	require.NoError(t, err)

	_, err = adapter.CreateModuleData(ctx, ModuleData{
		ModuleID:  mod.ID,
		CompanyID: "c1",
		Data:      map[string]any{"nombre": "Taladro"},
	})
	require.NoError(t, err)
	_, err = adapter.CreateModuleData(ctx, ModuleData{
		ModuleID:  mod.ID,
		CompanyID: "c2",
		Data:      map[string]any{"nombre": "Martillo"},
	})
	require.NoError(t, err)

	forC1, err := adapter.GetModuleData(ctx, mod.ID, "c1")
	require.NoError(t, err)
	require.Len(t, forC1, 1)
	assert.Equal(t, "Taladro", forC1[0].Data["nombre"])

	forC2, err := adapter.GetModuleData(ctx, mod.ID, "c2")
	require.NoError(t, err)
	require.Len(t, forC2, 1)
	assert.Equal(t, "Martillo", forC2[0].Data["nombre"])
}

func TestCreateModuleData(t *testing.T) {
	t.Parallel()

	t.Run("requires_module_id", func(t *testing.T) {
		adapter := newTestAdapter(t, nil)
		_, err := adapter.CreateModuleData(context.Background(), ModuleData{CompanyID: "c1"})
		assert.ErrorIs(t, err, ErrModuleDataMissingModule)
	})

	t.Run("assigns_id_timestamps_and_empty_data_map", func(t *testing.T) {
		adapter := newTestAdapter(t, nil)
		record, err := adapter.CreateModuleData(context.Background(), ModuleData{ModuleID: "m1", CompanyID: "c1"})
		require.NoError(t, err)
		assert.NotEmpty(t, record.ID)
		assert.NotNil(t, record.Data)
		assert.False(t, record.CreatedAt.IsZero())
	})
}

func TestUpdateAndDeleteModuleData(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, nil)
	ctx := context.Background()

	record, err := adapter.CreateModuleData(ctx, ModuleData{
		ModuleID:  "m1",
		CompanyID: "c1",
		Data:      map[string]any{"estado": "pendiente"},
	})
	require.NoError(t, err)

	t.Run("update_scoped_to_company", func(t *testing.T) {
		_, err := adapter.UpdateModuleData(ctx, record.ID, map[string]any{"data": map[string]any{"estado": "hecho"}}, "otra-empresa")
		assert.ErrorIs(t, err, ErrModuleDataNotFound)

		updated, err := adapter.UpdateModuleData(ctx, record.ID, map[string]any{"data": map[string]any{"estado": "hecho"}}, "c1")
		require.NoError(t, err)
		assert.Equal(t, "hecho", updated.Data["estado"])
	})

	t.Run("delete_scoped_to_company", func(t *testing.T) {
		require.NoError(t, adapter.DeleteModuleData(ctx, record.ID, "otra-empresa"))
		remaining, err := adapter.GetModuleData(ctx, "m1", "c1")
		require.NoError(t, err)
		assert.Len(t, remaining, 1)

		require.NoError(t, adapter.DeleteModuleData(ctx, record.ID, "c1"))
		remaining, err = adapter.GetModuleData(ctx, "m1", "c1")
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})
}

// flakyBackend fails company-scoped module_data selects so the fallback
// path is observable.
type flakyBackend struct {
	store.Backend
}

type flakyQuery struct {
	store.Query
	scoped bool
}

func (b *flakyBackend) Table(name string) store.Query {
	return &flakyQuery{Query: b.Backend.Table(name)}
}

func (q *flakyQuery) Eq(field string, value any) store.Query {
	if field == "company_id" {
		q.scoped = true
	}
	q.Query = q.Query.Eq(field, value)
	return q
}

func (q *flakyQuery) Order(field string, desc bool) store.Query {
	q.Query = q.Query.Order(field, desc)
	return q
}

func (q *flakyQuery) Select(ctx context.Context) ([]map[string]any, error) {
	if q.scoped {
		return nil, errors.New("scoped index unavailable")
	}
	return q.Query.Select(ctx)
}

func TestGetModuleDataScopedFallback(t *testing.T) {
	t.Parallel()
	logger := &recordingLogger{}
	inner := store.NewMemoryBackend()
	require.NoError(t, inner.EnsureCollections(context.Background(), CollectionModules, CollectionModuleData))

	seed := NewStoreAdapter(inner, nil)
	_, err := seed.CreateModuleData(context.Background(), ModuleData{ModuleID: "m1", CompanyID: "c1"})
	require.NoError(t, err)

	adapter := NewStoreAdapter(&flakyBackend{Backend: inner}, logger)
	records, err := adapter.GetModuleData(context.Background(), "m1", "c1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.True(t, logger.contains("warn: company-scoped module data query failed, falling back to unscoped query"))
}

func TestInstallModuleEndToEnd(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, nil)
	ctx := context.Background()

	manifest := validManifest()
	mod, err := adapter.InstallModule(ctx, mustManifestJSON(t, manifest), "c1", "user-1")
	require.NoError(t, err)
	assert.True(t, mod.IsActive)
	assert.Equal(t, "user-1", mod.CreatedBy)
	require.NotNil(t, mod.Config)
	assert.Equal(t, manifest.Slug, mod.Config.Slug)

	record, err := adapter.CreateModuleData(ctx, ModuleData{
		ModuleID:  mod.ID,
		CompanyID: "c1",
		Data:      map[string]any{"nombre": "Taladro", "cantidad": 3},
	})
	require.NoError(t, err)

	records, err := adapter.GetModuleData(ctx, mod.ID, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, "Taladro", records[0].Data["nombre"])
	assert.EqualValues(t, 3, records[0].Data["cantidad"])

	require.NoError(t, adapter.DeleteModuleData(ctx, record.ID, "c1"))
	records, err = adapter.GetModuleData(ctx, mod.ID, "c1")
	require.NoError(t, err)
	assert.Empty(t, records)

	t.Run("install_rejects_invalid_manifest", func(t *testing.T) {
		_, err := adapter.InstallModule(ctx, []byte(`{"name": "X"}`), "c1", "user-1")
		assert.ErrorIs(t, err, ErrManifestInvalid)
	})
}

func TestServiceBundle(t *testing.T) {
	t.Parallel()
	adapter := newTestAdapter(t, nil)
	ctx := context.Background()

	mod, err := adapter.CreateModule(ctx, Module{CompanyID: "c1", Slug: "herramientas", Name: "Herramientas", IsActive: true})
	require.NoError(t, err)

	bundle := adapter.serviceBundleFor("herramientas")

	created, err := bundle.Create(ctx, ModuleData{CompanyID: "c1", Data: map[string]any{"nombre": "Sierra"}})
	require.NoError(t, err)
	assert.Equal(t, mod.ID, created.ModuleID)

	listed, err := bundle.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = bundle.Update(ctx, created.ID, map[string]any{"data": map[string]any{"nombre": "Sierra circular"}}, "c1")
	require.NoError(t, err)

	require.NoError(t, bundle.Delete(ctx, created.ID, "c1"))

	t.Run("unknown_slug_fails_resolution", func(t *testing.T) {
		missing := adapter.serviceBundleFor("fantasma")
		_, err := missing.List(ctx, "c1")
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})
}
