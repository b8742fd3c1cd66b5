package hogarfix

import (
	"context"
	"sort"

	"github.com/hogarfix/hogarfix/store"
)

// ServiceBundle is a CRUD-like function bundle a runtime module exposes for
// one resource. The loader wires the bundle to the store adapter so module
// pages and hook handlers share one data path.
type ServiceBundle struct {
	List   func(ctx context.Context, companyID CompanyID) ([]ModuleData, error)
	Create func(ctx context.Context, record ModuleData) (*ModuleData, error)
	Update func(ctx context.Context, id string, updates map[string]any, companyID CompanyID) (*ModuleData, error)
	Delete func(ctx context.Context, id string, companyID CompanyID) error
}

// RuntimeModule is the in-memory instance of a loaded manifest: its service
// bundles, the middleware handlers registered with the dispatcher, and
// optional lifecycle functions. Instances are exclusively owned by the
// ModuleLoader, keyed by slug, at most one per slug.
type RuntimeModule struct {
	Slug     string
	Manifest *ModuleManifest

	// Services maps resource name to its CRUD bundle. A manifest-driven
	// module gets a single bundle named after its slug.
	Services map[string]ServiceBundle

	// Middleware maps system hook names to the handlers registered with
	// the dispatcher at load time.
	Middleware map[HookName]HookFunc

	// Init and Destroy are optional lifecycle functions invoked on load
	// and unload respectively.
	Init    func(ctx context.Context) error
	Destroy func(ctx context.Context) error

	// hookIDs tracks dispatcher registrations so unload (and load
	// rollback) can remove exactly what load added.
	hookIDs []string
}

// middlewareHooks returns the module's middleware hook names in a stable
// order so dispatcher registration order is deterministic.
func (rm *RuntimeModule) middlewareHooks() []HookName {
	hooks := make([]HookName, 0, len(rm.Middleware))
	for h := range rm.Middleware {
		hooks = append(hooks, h)
	}
	sort.Slice(hooks, func(i, j int) bool { return hooks[i] < hooks[j] })
	return hooks
}

// ModuleRuntime owns the runtime's mutable registries: the hook dispatcher,
// the module loader, the manager façade, and the store adapter. Construct
// one per process (or per test) instead of sharing package-level state, so
// isolated runtimes never leak listeners or loaded modules into each other.
type ModuleRuntime struct {
	Dispatcher *HookDispatcher
	Loader     *ModuleLoader
	Manager    *ModuleManager
	Adapter    *StoreAdapter

	logger Logger
}

// NewModuleRuntime wires a complete runtime over the given store backend.
// A nil logger is replaced with NopLogger.
func NewModuleRuntime(backend store.Backend, logger Logger) *ModuleRuntime {
	if logger == nil {
		logger = NopLogger{}
	}
	dispatcher := NewHookDispatcher(logger)
	adapter := NewStoreAdapter(backend, logger)
	loader := NewModuleLoader(dispatcher, adapter, logger)
	manager := NewModuleManager(loader, dispatcher, adapter, logger)

	return &ModuleRuntime{
		Dispatcher: dispatcher,
		Loader:     loader,
		Manager:    manager,
		Adapter:    adapter,
		logger:     logger,
	}
}

// Logger returns the runtime's logger.
func (rt *ModuleRuntime) Logger() Logger {
	return rt.logger
}
