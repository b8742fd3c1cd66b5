package hogarfix

import (
	"context"
	"strings"
	"sync"
)

// ManagerStats combines manifest, load, and hook counts with a per-category
// manifest breakdown.
type ManagerStats struct {
	Manifests     int            `json:"manifests"`
	LoadedModules int            `json:"loadedModules"`
	TotalHooks    int            `json:"totalHooks"`
	Categories    map[string]int `json:"categories"`
}

// ModuleManager is the façade over the loader and dispatcher. It validates
// manifests, resolves declared dependencies, orchestrates load/unload, and
// answers read-only introspection. The manager keeps its own manifest map,
// separate from the loader's runtime map, so "what manifests exist" can be
// answered independently of load state.
type ModuleManager struct {
	// regMu serializes whole register/unregister cycles so a dependency
	// cannot be unregistered between its check and the load.
	regMu sync.Mutex

	mu         sync.RWMutex
	manifests  map[string]*ModuleManifest
	loader     *ModuleLoader
	dispatcher *HookDispatcher
	adapter    *StoreAdapter
	logger     Logger
}

// NewModuleManager creates a manager over the given loader, dispatcher,
// and adapter.
func NewModuleManager(loader *ModuleLoader, dispatcher *HookDispatcher, adapter *StoreAdapter, logger Logger) *ModuleManager {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ModuleManager{
		manifests:  make(map[string]*ModuleManifest),
		loader:     loader,
		dispatcher: dispatcher,
		adapter:    adapter,
		logger:     logger,
	}
}

// RegisterModule validates the manifest, checks its declared dependencies,
// and delegates to the loader. Ordering is strict: validation, then
// dependency checking, then load - any failure prevents the later steps, so
// a rejected manifest leaves no hooks behind. On success the manifest is
// remembered for introspection. Concurrent registrations are serialized.
func (m *ModuleManager) RegisterModule(ctx context.Context, manifest *ModuleManifest) (*RuntimeModule, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()

	if len(manifest.Hooks) == 0 {
		m.logger.Warn("manifest declares no hooks", "slug", manifest.Slug)
	}
	if len(manifest.Permissions) == 0 {
		m.logger.Warn("manifest declares no permissions", "slug", manifest.Slug)
	}

	if err := m.checkDependencies(manifest); err != nil {
		return nil, err
	}

	rm, err := m.loader.LoadModule(ctx, manifest.Slug, manifest)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.manifests[manifest.Slug] = manifest
	m.mu.Unlock()

	m.loader.notifyObservers(ctx, EventTypeModuleRegistered, manifest.Slug, map[string]any{"version": manifest.Version})
	return rm, nil
}

// checkDependencies verifies every declared dependency slug is a known
// manifest or an already-loaded module.
func (m *ModuleManager) checkDependencies(manifest *ModuleManifest) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var missing []string
	for _, dep := range manifest.Dependencies {
		if _, known := m.manifests[dep]; known {
			continue
		}
		if m.loader.IsModuleLoaded(dep) {
			continue
		}
		missing = append(missing, dep)
	}
	if len(missing) > 0 {
		return &DependencyError{Slug: manifest.Slug, Missing: missing}
	}
	return nil
}

// UnregisterModule unloads the runtime instance and forgets the manifest.
func (m *ModuleManager) UnregisterModule(ctx context.Context, slug string) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.loader.UnloadModule(ctx, slug)

	m.mu.Lock()
	delete(m.manifests, slug)
	m.mu.Unlock()

	m.loader.notifyObservers(ctx, EventTypeModuleUnregistered, slug, nil)
}

// Manifest returns the registered manifest for a slug, or nil.
func (m *ModuleManager) Manifest(slug string) *ModuleManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.manifests[slug]
}

// AllManifests returns a snapshot of registered manifests keyed by slug.
func (m *ModuleManager) AllManifests() map[string]*ModuleManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*ModuleManifest, len(m.manifests))
	for slug, manifest := range m.manifests {
		out[slug] = manifest
	}
	return out
}

// SearchModules returns manifests whose name, description, slug, or
// category contains the query, case-insensitively. An empty query matches
// everything.
func (m *ModuleManager) SearchModules(query string) []*ModuleManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(query)
	results := make([]*ModuleManifest, 0)
	for _, manifest := range m.manifests {
		haystack := strings.ToLower(manifest.Name + " " + manifest.Description + " " + manifest.Slug + " " + manifest.Category)
		if strings.Contains(haystack, q) {
			results = append(results, manifest)
		}
	}
	return results
}

// InitializeFromStore bulk-loads persisted modules: fetches Module rows
// (companyID may be empty for a global re-sync), filters to active ones,
// reconstructs each manifest from the stored config, and registers it.
// Best effort - a failure on one module is logged and the loop continues.
func (m *ModuleManager) InitializeFromStore(ctx context.Context, companyID CompanyID) error {
	modules, err := m.adapter.GetModules(ctx, companyID)
	if err != nil {
		return err
	}

	registered := 0
	for _, mod := range modules {
		if !mod.IsActive {
			continue
		}
		manifest := manifestFromModule(&mod)
		if _, err := m.RegisterModule(ctx, manifest); err != nil {
			m.logger.Error("failed to register persisted module", "slug", mod.Slug, "error", err)
			continue
		}
		registered++
	}

	m.logger.Info("modules initialized from store", "total", len(modules), "registered", registered)
	return nil
}

// manifestFromModule reconstructs a manifest from a persisted Module row,
// applying defaults for fields absent in configs stored by older versions.
func manifestFromModule(mod *Module) *ModuleManifest {
	manifest := &ModuleManifest{}
	if mod.Config != nil {
		copied := *mod.Config
		manifest = &copied
	}
	if manifest.Name == "" {
		manifest.Name = mod.Name
	}
	if manifest.Slug == "" {
		manifest.Slug = mod.Slug
	}
	if manifest.Version == "" {
		if mod.Version != "" {
			manifest.Version = mod.Version
		} else {
			manifest.Version = "1.0.0"
		}
	}
	if manifest.Description == "" {
		if mod.Description != "" {
			manifest.Description = mod.Description
		} else {
			manifest.Description = manifest.Name
		}
	}
	if manifest.DisplayName == "" {
		manifest.DisplayName = manifest.Name
	}
	if manifest.Icon == "" {
		manifest.Icon = mod.Icon
	}
	if manifest.Fields == nil {
		manifest.Fields = []FieldSpec{}
	}
	return manifest
}

// SidebarItems collects sidebar contributions, degrading to an empty slice
// on any panic from a misbehaving contribution - UI chrome must never
// crash because of one module.
func (m *ModuleManager) SidebarItems(ctx context.Context) (items []MenuItem) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("sidebar collection panicked", "panic", r)
			items = []MenuItem{}
		}
	}()
	return m.dispatcher.SidebarMenuItems(ctx)
}

// DashboardWidgets collects dashboard widgets with the same degradation
// policy as SidebarItems.
func (m *ModuleManager) DashboardWidgets(ctx context.Context) (widgets []Widget) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("widget collection panicked", "panic", r)
			widgets = []Widget{}
		}
	}()
	return m.dispatcher.DashboardWidgets(ctx)
}

// HeaderActions collects header actions with the same degradation policy
// as SidebarItems.
func (m *ModuleManager) HeaderActions(ctx context.Context) (actions []HeaderAction) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("header action collection panicked", "panic", r)
			actions = []HeaderAction{}
		}
	}()
	return m.dispatcher.HeaderActions(ctx)
}

// ExecuteModuleHook invokes one specific loaded module's middleware handler
// directly, bypassing the dispatcher chain. Returns nil when the module is
// not loaded, the hook has no handler, or the handler fails (logged).
func (m *ModuleManager) ExecuteModuleHook(ctx context.Context, slug string, hook HookName, data any) any {
	rm := m.loader.GetLoadedModule(slug)
	if rm == nil {
		m.logger.Debug("module not loaded for direct hook execution", "slug", slug, "hook", hook)
		return nil
	}
	fn, ok := rm.Middleware[hook]
	if !ok {
		return nil
	}
	result, err := fn(ctx, data)
	if err != nil {
		m.logger.Error("direct hook execution failed", "slug", slug, "hook", hook, "error", err)
		return nil
	}
	return result
}

// Stats combines manifest count, loaded-module count, total hook count, and
// a manifest breakdown by category.
func (m *ModuleManager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{
		Manifests:     len(m.manifests),
		LoadedModules: m.loader.Stats().LoadedModules,
		TotalHooks:    m.dispatcher.Stats().TotalHooks,
		Categories:    make(map[string]int),
	}
	for _, manifest := range m.manifests {
		category := manifest.Category
		if category == "" {
			category = "general"
		}
		stats.Categories[category]++
	}
	return stats
}
