package hogarfix

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultHookPriority is the priority the loader assigns to middleware
// registered from a manifest. Higher priorities run first.
const DefaultHookPriority = 10

// HookFunc is a hook listener callback. For transform dispatch the returned
// value replaces the running value; returning nil means "no opinion" and
// leaves the running value unchanged. For collect dispatch the returned
// value is gathered into the result set (slices are flattened one level).
type HookFunc func(ctx context.Context, value any) (any, error)

// HookListener is a registered (hook, callback, priority, owning module)
// tuple. Listeners are runtime-only state and are never persisted.
type HookListener struct {
	ID       string
	Hook     HookName
	Callback HookFunc
	Priority int
	Module   string

	seq uint64 // insertion order, breaks priority ties stably
}

// HookStats is an introspection snapshot of the dispatcher's registry.
type HookStats struct {
	TotalHooks   int              `json:"totalHooks"`
	ModuleCounts map[string]int   `json:"moduleCounts"`
	HookCounts   map[HookName]int `json:"hookCounts"`
}

// MenuItem is a sidebar contribution collected from modules.
type MenuItem struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Icon   string `json:"icon,omitempty"`
	Module string `json:"module,omitempty"`
}

// Widget is a dashboard contribution. Priority orders widgets on the
// dashboard (descending) and is unrelated to listener priority.
type Widget struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
	Module   string `json:"module,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// HeaderAction is a header toolbar contribution.
type HeaderAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Icon   string `json:"icon,omitempty"`
	Module string `json:"module,omitempty"`
}

// HookDispatcher maps hook names to priority-ordered listener chains. It
// supports two dispatch modes:
//
//   - ExecuteHook (fire-and-transform): threads one value through the chain
//     sequentially; used for before-save style transformations and veto
//     gates where a later listener may depend on an earlier result.
//   - CollectHook (fire-and-collect): gathers one contribution per listener
//     into a slice; used for inherently additive hooks such as sidebar
//     entries and dashboard widgets.
//
// Listeners for a hook always run in descending-priority order, stable on
// insertion order for ties, and never concurrently. The dispatcher itself
// is safe for concurrent registration, removal, and dispatch.
type HookDispatcher struct {
	mu      sync.RWMutex
	hooks   map[HookName][]*HookListener
	byID    map[string]*HookListener
	nextSeq uint64
	logger  Logger
}

// NewHookDispatcher creates an empty dispatcher. A nil logger is replaced
// with NopLogger.
func NewHookDispatcher(logger Logger) *HookDispatcher {
	if logger == nil {
		logger = NopLogger{}
	}
	return &HookDispatcher{
		hooks:  make(map[HookName][]*HookListener),
		byID:   make(map[string]*HookListener),
		logger: logger,
	}
}

// AddHook registers a callback for the named hook on behalf of moduleSlug
// and returns the generated listener id. The chain for the hook is kept
// sorted by descending priority; equal priorities keep insertion order.
func (d *HookDispatcher) AddHook(hook HookName, callback HookFunc, moduleSlug string, priority int) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextSeq++
	listener := &HookListener{
		ID:       uuid.NewString(),
		Hook:     hook,
		Callback: callback,
		Priority: priority,
		Module:   moduleSlug,
		seq:      d.nextSeq,
	}

	chain := append(d.hooks[hook], listener)
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Priority != chain[j].Priority {
			return chain[i].Priority > chain[j].Priority
		}
		return chain[i].seq < chain[j].seq
	})
	d.hooks[hook] = chain
	d.byID[listener.ID] = listener

	d.logger.Debug("hook listener registered", "hook", hook, "module", moduleSlug, "priority", priority, "id", listener.ID)
	return listener.ID
}

// RemoveHook removes a listener by id. Unknown ids are a no-op.
func (d *HookDispatcher) RemoveHook(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	listener, ok := d.byID[id]
	if !ok {
		return
	}
	delete(d.byID, id)
	d.hooks[listener.Hook] = removeListener(d.hooks[listener.Hook], id)
	if len(d.hooks[listener.Hook]) == 0 {
		delete(d.hooks, listener.Hook)
	}
}

// ClearModuleHooks removes every listener owned by the given module slug.
func (d *HookDispatcher) ClearModuleHooks(moduleSlug string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for hook, chain := range d.hooks {
		kept := chain[:0]
		for _, l := range chain {
			if l.Module == moduleSlug {
				delete(d.byID, l.ID)
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == 0 {
			delete(d.hooks, hook)
		} else {
			d.hooks[hook] = kept
		}
	}
}

// listeners returns a snapshot of the chain for a hook so dispatch can run
// without holding the lock across listener callbacks.
func (d *HookDispatcher) listeners(hook HookName) []*HookListener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	chain := d.hooks[hook]
	out := make([]*HookListener, len(chain))
	copy(out, chain)
	return out
}

// ExecuteHook runs fire-and-transform dispatch: the initial value is
// threaded through each listener in priority order, each callback receiving
// the value produced so far. A listener returning nil leaves the running
// value unchanged; a listener error is logged and the chain continues with
// the prior value. There is no per-listener timeout - a hanging listener
// stalls the chain, so callers pass a context they control.
func (d *HookDispatcher) ExecuteHook(ctx context.Context, hook HookName, initial any) any {
	value := initial
	for _, l := range d.listeners(hook) {
		if ctx.Err() != nil {
			d.logger.Warn("hook chain cancelled", "hook", hook, "error", ctx.Err())
			return value
		}
		result, err := l.Callback(ctx, value)
		if err != nil {
			d.logger.Error("hook listener failed", "hook", hook, "module", l.Module, "error", err)
			continue
		}
		if result != nil {
			value = result
		}
	}
	return value
}

// CollectHook runs fire-and-collect dispatch: every listener is called with
// no input and all non-nil results are unioned, flattening slice results
// one level. Listener errors are logged and skipped.
func (d *HookDispatcher) CollectHook(ctx context.Context, hook HookName) []any {
	var collected []any
	for _, l := range d.listeners(hook) {
		if ctx.Err() != nil {
			d.logger.Warn("hook collection cancelled", "hook", hook, "error", ctx.Err())
			return collected
		}
		result, err := l.Callback(ctx, nil)
		if err != nil {
			d.logger.Error("hook listener failed", "hook", hook, "module", l.Module, "error", err)
			continue
		}
		switch v := result.(type) {
		case nil:
		case []any:
			collected = append(collected, v...)
		default:
			collected = append(collected, v)
		}
	}
	return collected
}

// SidebarMenuItems collects sidebar contributions from all modules.
func (d *HookDispatcher) SidebarMenuItems(ctx context.Context) []MenuItem {
	items := make([]MenuItem, 0)
	for _, v := range d.CollectHook(ctx, HookSidebarMenu) {
		switch item := v.(type) {
		case MenuItem:
			items = append(items, item)
		case *MenuItem:
			items = append(items, *item)
		case []MenuItem:
			items = append(items, item...)
		default:
			d.logger.Warn("sidebar contribution has unexpected type", "hook", HookSidebarMenu, "value", v)
		}
	}
	return items
}

// DashboardWidgets collects dashboard contributions from all modules,
// sorted by the widget's own Priority field descending. This ordering is
// distinct from listener priority, which only governs callback order.
func (d *HookDispatcher) DashboardWidgets(ctx context.Context) []Widget {
	widgets := make([]Widget, 0)
	for _, v := range d.CollectHook(ctx, HookDashboardWidgets) {
		switch w := v.(type) {
		case Widget:
			widgets = append(widgets, w)
		case *Widget:
			widgets = append(widgets, *w)
		case []Widget:
			widgets = append(widgets, w...)
		default:
			d.logger.Warn("widget contribution has unexpected type", "hook", HookDashboardWidgets, "value", v)
		}
	}
	sort.SliceStable(widgets, func(i, j int) bool {
		return widgets[i].Priority > widgets[j].Priority
	})
	return widgets
}

// HeaderActions collects header toolbar contributions from all modules.
func (d *HookDispatcher) HeaderActions(ctx context.Context) []HeaderAction {
	actions := make([]HeaderAction, 0)
	for _, v := range d.CollectHook(ctx, HookHeaderActions) {
		switch a := v.(type) {
		case HeaderAction:
			actions = append(actions, a)
		case *HeaderAction:
			actions = append(actions, *a)
		case []HeaderAction:
			actions = append(actions, a...)
		default:
			d.logger.Warn("header action contribution has unexpected type", "hook", HookHeaderActions, "value", v)
		}
	}
	return actions
}

// Stats returns an introspection snapshot of the listener registry.
func (d *HookDispatcher) Stats() HookStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := HookStats{
		ModuleCounts: make(map[string]int),
		HookCounts:   make(map[HookName]int),
	}
	for hook, chain := range d.hooks {
		stats.HookCounts[hook] = len(chain)
		stats.TotalHooks += len(chain)
		for _, l := range chain {
			stats.ModuleCounts[l.Module]++
		}
	}
	return stats
}

func removeListener(chain []*HookListener, id string) []*HookListener {
	for i, l := range chain {
		if l.ID == id {
			return append(chain[:i], chain[i+1:]...)
		}
	}
	return chain
}
