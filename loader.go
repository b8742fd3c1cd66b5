package hogarfix

import (
	"context"
	"fmt"
	"sync"
)

// ModuleStats aggregates counts across loaded modules.
type ModuleStats struct {
	LoadedModules int `json:"loadedModules"`
	Services      int `json:"services"`
	Hooks         int `json:"hooks"`
}

// ModuleLoader resolves manifests into runtime module instances and tracks
// loaded state. Loading registers the module's middleware with the
// dispatcher; unloading removes it. The loaded set is global per runtime,
// not per company: data queries are company-scoped, module load state is
// not.
type ModuleLoader struct {
	mu         sync.RWMutex
	loaded     map[string]*RuntimeModule
	dispatcher *HookDispatcher
	adapter    *StoreAdapter
	logger     Logger

	obsMu     sync.RWMutex
	observers []Observer
}

// NewModuleLoader creates a loader bound to a dispatcher and adapter.
func NewModuleLoader(dispatcher *HookDispatcher, adapter *StoreAdapter, logger Logger) *ModuleLoader {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ModuleLoader{
		loaded:     make(map[string]*RuntimeModule),
		dispatcher: dispatcher,
		adapter:    adapter,
		logger:     logger,
	}
}

// RegisterObserver adds an observer for module lifecycle events.
func (l *ModuleLoader) RegisterObserver(observer Observer) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, observer)
}

// notifyObservers delivers a lifecycle event. Never called with l.mu held:
// observers may call back into the loader (IsModuleLoaded, Stats).
func (l *ModuleLoader) notifyObservers(ctx context.Context, eventType, slug string, data map[string]any) {
	l.obsMu.RLock()
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.obsMu.RUnlock()

	event := NewModuleEvent(eventType, slug, data)
	for _, obs := range observers {
		if err := obs.OnEvent(ctx, event); err != nil {
			l.logger.Debug("observer rejected lifecycle event", "observer", obs.ObserverID(), "type", eventType, "error", err)
		}
	}
}

// LoadModule resolves a manifest into a runtime module, registers its
// middleware with the dispatcher, invokes Init, and records the instance.
// Loading an already-loaded slug is a warned no-op returning the existing
// instance. Registration and map insertion are a single commit point: if
// Init fails, every hook registered so far is rolled back and the loaded
// map is left unmodified.
func (l *ModuleLoader) LoadModule(ctx context.Context, slug string, manifest *ModuleManifest) (*RuntimeModule, error) {
	if manifest == nil {
		return nil, ErrManifestNil
	}

	l.mu.Lock()
	if existing, ok := l.loaded[slug]; ok {
		l.mu.Unlock()
		l.logger.Warn("module already loaded", "slug", slug)
		return existing, nil
	}
	rm := l.buildRuntimeModule(slug, manifest)
	eventType, payload, err := l.commitLocked(ctx, rm)
	l.mu.Unlock()

	l.notifyObservers(ctx, eventType, slug, payload)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// LoadInstance loads a pre-built runtime module, typically one with custom
// Init, Destroy, or middleware beyond the manifest defaults. Same idempotency
// and rollback semantics as LoadModule.
func (l *ModuleLoader) LoadInstance(ctx context.Context, rm *RuntimeModule) (*RuntimeModule, error) {
	if rm == nil {
		return nil, ErrRuntimeModuleNil
	}

	l.mu.Lock()
	if existing, ok := l.loaded[rm.Slug]; ok {
		l.mu.Unlock()
		l.logger.Warn("module already loaded", "slug", rm.Slug)
		return existing, nil
	}
	eventType, payload, err := l.commitLocked(ctx, rm)
	l.mu.Unlock()

	l.notifyObservers(ctx, eventType, rm.Slug, payload)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// commitLocked registers the module's middleware, runs Init, and records the
// instance. Callers hold l.mu. If Init fails every hook registered so far is
// rolled back and the loaded map stays unmodified. The returned lifecycle
// event is the caller's to deliver once the lock is released.
func (l *ModuleLoader) commitLocked(ctx context.Context, rm *RuntimeModule) (eventType string, payload map[string]any, err error) {
	for _, hook := range rm.middlewareHooks() {
		id := l.dispatcher.AddHook(hook, rm.Middleware[hook], rm.Slug, DefaultHookPriority)
		rm.hookIDs = append(rm.hookIDs, id)
	}

	if rm.Init != nil {
		if err := rm.Init(ctx); err != nil {
			for _, id := range rm.hookIDs {
				l.dispatcher.RemoveHook(id)
			}
			rm.hookIDs = nil
			return EventTypeModuleLoadFailed, map[string]any{"error": err.Error()},
				fmt.Errorf("%w: %s: %w", ErrModuleInitFailed, rm.Slug, err)
		}
	}

	version := ""
	if rm.Manifest != nil {
		version = rm.Manifest.Version
	}
	l.loaded[rm.Slug] = rm
	l.logger.Info("module loaded", "slug", rm.Slug, "version", version, "hooks", len(rm.hookIDs))
	return EventTypeModuleLoaded, map[string]any{"version": version}, nil
}

// UnloadModule removes a loaded module: clears its dispatcher listeners,
// invokes Destroy, and drops it from the registry. Unloading a slug that is
// not loaded is a warned no-op.
func (l *ModuleLoader) UnloadModule(ctx context.Context, slug string) {
	l.mu.Lock()
	rm, ok := l.loaded[slug]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("module not loaded, nothing to unload", "slug", slug)
		return
	}

	l.dispatcher.ClearModuleHooks(slug)

	if rm.Destroy != nil {
		if err := rm.Destroy(ctx); err != nil {
			l.logger.Error("module destroy failed", "slug", slug, "error", err)
		}
	}

	delete(l.loaded, slug)
	l.logger.Info("module unloaded", "slug", slug)
	l.mu.Unlock()

	l.notifyObservers(ctx, EventTypeModuleUnloaded, slug, nil)
}

// GetLoadedModule returns the runtime instance for a slug, or nil.
func (l *ModuleLoader) GetLoadedModule(slug string) *RuntimeModule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded[slug]
}

// AllLoadedModules returns a snapshot of the loaded instances keyed by slug.
func (l *ModuleLoader) AllLoadedModules() map[string]*RuntimeModule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*RuntimeModule, len(l.loaded))
	for slug, rm := range l.loaded {
		out[slug] = rm
	}
	return out
}

// IsModuleLoaded reports whether a slug currently has a runtime instance.
func (l *ModuleLoader) IsModuleLoaded(slug string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.loaded[slug]
	return ok
}

// Stats returns aggregate counts across loaded modules.
func (l *ModuleLoader) Stats() ModuleStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := ModuleStats{LoadedModules: len(l.loaded)}
	for _, rm := range l.loaded {
		stats.Services += len(rm.Services)
		stats.Hooks += len(rm.hookIDs)
	}
	return stats
}

// buildRuntimeModule constructs the runtime instance for a manifest: an
// adapter-backed service bundle named after the slug, plus one middleware
// handler per declared hook. UI hooks contribute the module's menu entry,
// widget, or header action; mutation hooks default to pass-through
// handlers that log the dispatch (a manifest declares interest, behavior
// beyond the default is supplied by registering replacement middleware).
func (l *ModuleLoader) buildRuntimeModule(slug string, manifest *ModuleManifest) *RuntimeModule {
	rm := &RuntimeModule{
		Slug:       slug,
		Manifest:   manifest,
		Services:   make(map[string]ServiceBundle),
		Middleware: make(map[HookName]HookFunc),
	}

	if l.adapter != nil {
		rm.Services[slug] = l.adapter.serviceBundleFor(slug)
	}

	for _, hook := range manifest.Hooks {
		rm.Middleware[hook] = l.defaultMiddleware(hook, slug, manifest)
	}

	return rm
}

func (l *ModuleLoader) defaultMiddleware(hook HookName, slug string, manifest *ModuleManifest) HookFunc {
	switch hook {
	case HookSidebarMenu:
		return func(ctx context.Context, _ any) (any, error) {
			return MenuItem{
				Label:  manifest.DisplayName,
				Path:   "/modules/" + slug,
				Icon:   manifest.Icon,
				Module: slug,
			}, nil
		}
	case HookDashboardWidgets:
		return func(ctx context.Context, _ any) (any, error) {
			return Widget{
				ID:       slug + "-widget",
				Title:    manifest.DisplayName,
				Priority: DefaultHookPriority,
				Module:   slug,
			}, nil
		}
	case HookHeaderActions:
		return func(ctx context.Context, _ any) (any, error) {
			return HeaderAction{
				Label:  manifest.DisplayName,
				Action: "open:" + slug,
				Module: slug,
			}, nil
		}
	default:
		// Mutation hooks: no opinion, value passes through unchanged.
		return func(ctx context.Context, value any) (any, error) {
			l.logger.Debug("module hook dispatched", "slug", slug, "hook", hook)
			return nil, nil
		}
	}
}
