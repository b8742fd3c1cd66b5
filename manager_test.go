package hogarfix

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogarfix/hogarfix/store"
)

func newTestRuntime(t *testing.T, logger Logger) *ModuleRuntime {
	t.Helper()
	backend := store.NewMemoryBackend()
	require.NoError(t, backend.EnsureCollections(context.Background(), CollectionModules, CollectionModuleData))
	return NewModuleRuntime(backend, logger)
}

func TestRegisterModule(t *testing.T) {
	t.Parallel()

	t.Run("validates_then_loads", func(t *testing.T) {
		rt := newTestRuntime(t, nil)
		manifest := validManifest()

		rm, err := rt.Manager.RegisterModule(context.Background(), manifest)
		require.NoError(t, err)
		require.NotNil(t, rm)

		assert.True(t, rt.Loader.IsModuleLoaded(manifest.Slug))
		assert.Same(t, manifest, rt.Manager.Manifest(manifest.Slug))
	})

	t.Run("invalid_manifest_registers_nothing", func(t *testing.T) {
		rt := newTestRuntime(t, nil)
		manifest := validManifest()
		manifest.Slug = ""

		_, err := rt.Manager.RegisterModule(context.Background(), manifest)
		assert.ErrorIs(t, err, ErrManifestInvalid)
		assert.Zero(t, rt.Dispatcher.Stats().TotalHooks)
		assert.Empty(t, rt.Manager.AllManifests())
	})

	t.Run("missing_dependency_blocks_load_and_names_slug", func(t *testing.T) {
		rt := newTestRuntime(t, nil)
		manifest := validManifest()
		manifest.Dependencies = []string{"missing-slug"}

		_, err := rt.Manager.RegisterModule(context.Background(), manifest)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingDependency)

		var depErr *DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, manifest.Slug, depErr.Slug)
		assert.Equal(t, []string{"missing-slug"}, depErr.Missing)

		// The gated manifest left nothing behind.
		assert.False(t, rt.Loader.IsModuleLoaded(manifest.Slug))
		assert.Zero(t, rt.Dispatcher.Stats().TotalHooks)
	})

	t.Run("dependency_satisfied_by_registered_manifest", func(t *testing.T) {
		rt := newTestRuntime(t, nil)

		base := validManifest()
		_, err := rt.Manager.RegisterModule(context.Background(), base)
		require.NoError(t, err)

		dependent := validManifest()
		dependent.Slug = "reportes"
		dependent.Dependencies = []string{base.Slug}
		_, err = rt.Manager.RegisterModule(context.Background(), dependent)
		assert.NoError(t, err)
	})
}

func TestConcurrentRegistrationIsSerialized(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)
	manifest := validManifest()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = rt.Manager.RegisterModule(context.Background(), manifest)
		}()
	}
	wg.Wait()

	// One instance, hooks registered exactly once.
	assert.Equal(t, 1, rt.Loader.Stats().LoadedModules)
	assert.Equal(t, len(manifest.Hooks), rt.Dispatcher.Stats().TotalHooks)
	assert.Same(t, manifest, rt.Manager.Manifest(manifest.Slug))
}

func TestUnregisterModule(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)
	manifest := validManifest()

	_, err := rt.Manager.RegisterModule(context.Background(), manifest)
	require.NoError(t, err)

	rt.Manager.UnregisterModule(context.Background(), manifest.Slug)

	assert.False(t, rt.Loader.IsModuleLoaded(manifest.Slug))
	assert.Nil(t, rt.Manager.Manifest(manifest.Slug))
	assert.Zero(t, rt.Dispatcher.Stats().TotalHooks)
}

func TestSearchModules(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)

	tools := validManifest()
	tools.Category = "inventario"
	clients := validManifest()
	clients.Slug = "clientes-vip"
	clients.Name = "Clientes VIP"
	clients.Description = "Seguimiento de clientes prioritarios"

	_, err := rt.Manager.RegisterModule(context.Background(), tools)
	require.NoError(t, err)
	_, err = rt.Manager.RegisterModule(context.Background(), clients)
	require.NoError(t, err)

	t.Run("matches_name_case_insensitively", func(t *testing.T) {
		results := rt.Manager.SearchModules("CLIENTES")
		require.Len(t, results, 1)
		assert.Equal(t, "clientes-vip", results[0].Slug)
	})

	t.Run("matches_description", func(t *testing.T) {
		results := rt.Manager.SearchModules("prioritarios")
		require.Len(t, results, 1)
	})

	t.Run("matches_category", func(t *testing.T) {
		results := rt.Manager.SearchModules("inventario")
		require.Len(t, results, 1)
		assert.Equal(t, tools.Slug, results[0].Slug)
	})

	t.Run("empty_query_matches_all", func(t *testing.T) {
		assert.Len(t, rt.Manager.SearchModules(""), 2)
	})

	t.Run("no_match_returns_empty_slice", func(t *testing.T) {
		assert.Empty(t, rt.Manager.SearchModules("zzz"))
	})
}

func TestInitializeFromStore(t *testing.T) {
	t.Parallel()

	t.Run("registers_active_modules_for_company", func(t *testing.T) {
		rt := newTestRuntime(t, nil)
		ctx := context.Background()

		manifest := validManifest()
		_, err := rt.Adapter.InstallModule(ctx, mustManifestJSON(t, manifest), "c1", "user-1")
		require.NoError(t, err)

		require.NoError(t, rt.Manager.InitializeFromStore(ctx, "c1"))
		assert.True(t, rt.Loader.IsModuleLoaded(manifest.Slug))
	})

	t.Run("bad_stored_config_is_skipped_not_fatal", func(t *testing.T) {
		logger := &recordingLogger{}
		rt := newTestRuntime(t, logger)
		ctx := context.Background()

		good := validManifest()
		_, err := rt.Adapter.InstallModule(ctx, mustManifestJSON(t, good), "c1", "user-1")
		require.NoError(t, err)

		// A row persisted without config and without a name cannot be
		// reconstructed into a valid manifest.
		_, err = rt.Adapter.CreateModule(ctx, Module{
			CompanyID: "c1",
			Slug:      "roto",
			IsActive:  true,
		})
		require.NoError(t, err)

		require.NoError(t, rt.Manager.InitializeFromStore(ctx, "c1"))
		assert.True(t, rt.Loader.IsModuleLoaded(good.Slug))
		assert.False(t, rt.Loader.IsModuleLoaded("roto"))
		assert.True(t, logger.contains("error: failed to register persisted module"))
	})
}

func TestManagerUIPassThroughs(t *testing.T) {
	t.Parallel()

	t.Run("collects_default_contributions", func(t *testing.T) {
		rt := newTestRuntime(t, nil)
		manifest := validManifest()
		manifest.Hooks = []HookName{HookSidebarMenu, HookDashboardWidgets, HookHeaderActions}

		_, err := rt.Manager.RegisterModule(context.Background(), manifest)
		require.NoError(t, err)

		ctx := context.Background()
		assert.Len(t, rt.Manager.SidebarItems(ctx), 1)
		assert.Len(t, rt.Manager.DashboardWidgets(ctx), 1)
		assert.Len(t, rt.Manager.HeaderActions(ctx), 1)
	})

	t.Run("panicking_contribution_degrades_to_empty", func(t *testing.T) {
		logger := &recordingLogger{}
		rt := newTestRuntime(t, logger)
		rt.Dispatcher.AddHook(HookSidebarMenu, func(_ context.Context, _ any) (any, error) {
			panic("contribution exploded")
		}, "roto", 10)

		items := rt.Manager.SidebarItems(context.Background())
		assert.Empty(t, items)
		assert.NotNil(t, items)
		assert.True(t, logger.contains("error: sidebar collection panicked"))
	})
}

func TestExecuteModuleHook(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)
	manifest := validManifest()
	manifest.Hooks = []HookName{HookSidebarMenu}

	_, err := rt.Manager.RegisterModule(context.Background(), manifest)
	require.NoError(t, err)

	t.Run("invokes_one_modules_handler_directly", func(t *testing.T) {
		result := rt.Manager.ExecuteModuleHook(context.Background(), manifest.Slug, HookSidebarMenu, nil)
		item, ok := result.(MenuItem)
		require.True(t, ok)
		assert.Equal(t, manifest.DisplayName, item.Label)
	})

	t.Run("unknown_module_returns_nil", func(t *testing.T) {
		assert.Nil(t, rt.Manager.ExecuteModuleHook(context.Background(), "fantasma", HookSidebarMenu, nil))
	})

	t.Run("undeclared_hook_returns_nil", func(t *testing.T) {
		assert.Nil(t, rt.Manager.ExecuteModuleHook(context.Background(), manifest.Slug, HookBeforeDelete, nil))
	})
}

func TestManagerStats(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t, nil)

	a := validManifest()
	b := validManifest()
	b.Slug = "clientes"
	b.Category = "crm"

	_, err := rt.Manager.RegisterModule(context.Background(), a)
	require.NoError(t, err)
	_, err = rt.Manager.RegisterModule(context.Background(), b)
	require.NoError(t, err)

	stats := rt.Manager.Stats()
	assert.Equal(t, 2, stats.Manifests)
	assert.Equal(t, 2, stats.LoadedModules)
	assert.Equal(t, 4, stats.TotalHooks)
	assert.Equal(t, 1, stats.Categories["general"])
	assert.Equal(t, 1, stats.Categories["crm"])
}
