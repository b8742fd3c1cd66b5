package hogarfix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hogarfix/hogarfix/store"
)

// Logical collection names in the backing store.
const (
	CollectionModules    = "modules"
	CollectionModuleData = "module_data"
)

// StoreAdapter is the data-access layer for the two runtime collections:
// installed modules and their free-form records. Pure data access, no
// business logic; every operation is company-scoped where noted to prevent
// cross-tenant leakage.
//
// Two deliberate degradations, both logged rather than silent:
//   - GetModules returns an empty list when the collections are not yet
//     provisioned ("feature not turned on" is not an error).
//   - GetModuleData falls back to an unscoped query for the module when the
//     company-scoped query fails, trading strict isolation for
//     availability on this one read path.
type StoreAdapter struct {
	backend store.Backend
	logger  Logger
}

// NewStoreAdapter creates an adapter over the given backend.
func NewStoreAdapter(backend store.Backend, logger Logger) *StoreAdapter {
	if logger == nil {
		logger = NopLogger{}
	}
	return &StoreAdapter{backend: backend, logger: logger}
}

// GetModules returns the active modules for a company, ordered by name.
// An empty companyID returns modules across all companies (used by the
// global re-sync, never by request handlers). If the collection is not
// provisioned the adapter degrades to an empty list with a warning.
func (a *StoreAdapter) GetModules(ctx context.Context, companyID CompanyID) ([]Module, error) {
	q := a.backend.Table(CollectionModules)
	if companyID != "" {
		q = q.Eq("company_id", string(companyID))
	}
	docs, err := q.Eq("is_active", true).Order("name", false).Select(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotProvisioned) {
			a.logger.Warn("modules collection not provisioned, returning empty list", "company", companyID)
			return []Module{}, nil
		}
		return nil, fmt.Errorf("query modules: %w", err)
	}
	return decodeModules(docs)
}

// GetModule returns one module row by id.
func (a *StoreAdapter) GetModule(ctx context.Context, id string) (*Module, error) {
	docs, err := a.backend.Table(CollectionModules).Eq("id", id).Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("query module %q: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	var mod Module
	if err := fromDocument(docs[0], &mod); err != nil {
		return nil, err
	}
	return &mod, nil
}

// CreateModule inserts a module row, assigning id and timestamps when
// absent, and returns the created row.
func (a *StoreAdapter) CreateModule(ctx context.Context, mod Module) (*Module, error) {
	if mod.ID == "" {
		mod.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mod.CreatedAt.IsZero() {
		mod.CreatedAt = now
	}
	mod.UpdatedAt = now

	doc, err := toDocument(mod)
	if err != nil {
		return nil, err
	}
	if _, err := a.backend.Table(CollectionModules).Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert module %q: %w", mod.Slug, err)
	}
	return &mod, nil
}

// UpdateModule applies a partial update to a module row by id and returns
// the updated row.
func (a *StoreAdapter) UpdateModule(ctx context.Context, id string, updates map[string]any) (*Module, error) {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	docs, err := a.backend.Table(CollectionModules).Eq("id", id).Update(ctx, updates)
	if err != nil {
		return nil, fmt.Errorf("update module %q: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	var mod Module
	if err := fromDocument(docs[0], &mod); err != nil {
		return nil, err
	}
	return &mod, nil
}

// DeleteModule removes a module row by id. A non-empty companyID adds a
// tenant filter as defense in depth against cross-tenant deletes.
func (a *StoreAdapter) DeleteModule(ctx context.Context, id string, companyID CompanyID) error {
	q := a.backend.Table(CollectionModules).Eq("id", id)
	if companyID != "" {
		q = q.Eq("company_id", string(companyID))
	}
	if err := q.Delete(ctx); err != nil {
		return fmt.Errorf("delete module %q: %w", id, err)
	}
	return nil
}

// GetModuleData returns the records for a module, newest first. When a
// company-scoped query fails, the adapter retries unscoped for the same
// module - an explicit, logged degradation, preserved as a visible signal
// rather than hidden.
func (a *StoreAdapter) GetModuleData(ctx context.Context, moduleID string, companyID CompanyID) ([]ModuleData, error) {
	q := a.backend.Table(CollectionModuleData).Eq("module_id", moduleID)
	if companyID != "" {
		q = q.Eq("company_id", string(companyID))
	}
	docs, err := q.Order("created_at", true).Select(ctx)
	if err != nil && companyID != "" {
		a.logger.Warn("company-scoped module data query failed, falling back to unscoped query",
			"module", moduleID, "company", companyID, "error", err)
		docs, err = a.backend.Table(CollectionModuleData).
			Eq("module_id", moduleID).
			Order("created_at", true).
			Select(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("query module data for %q: %w", moduleID, err)
	}
	return decodeModuleData(docs)
}

// CreateModuleData inserts a record. ModuleID is mandatory.
func (a *StoreAdapter) CreateModuleData(ctx context.Context, record ModuleData) (*ModuleData, error) {
	if record.ModuleID == "" {
		return nil, ErrModuleDataMissingModule
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	doc, err := toDocument(record)
	if err != nil {
		return nil, err
	}
	if _, err := a.backend.Table(CollectionModuleData).Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert module data: %w", err)
	}
	return &record, nil
}

// UpdateModuleData applies a partial update to a record by id, with the
// same optional company scoping as deletes, and returns the updated row.
func (a *StoreAdapter) UpdateModuleData(ctx context.Context, id string, updates map[string]any, companyID CompanyID) (*ModuleData, error) {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	q := a.backend.Table(CollectionModuleData).Eq("id", id)
	if companyID != "" {
		q = q.Eq("company_id", string(companyID))
	}
	docs, err := q.Update(ctx, updates)
	if err != nil {
		return nil, fmt.Errorf("update module data %q: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModuleDataNotFound, id)
	}
	var record ModuleData
	if err := fromDocument(docs[0], &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteModuleData physically removes a record by id (no soft delete),
// with optional company scoping.
func (a *StoreAdapter) DeleteModuleData(ctx context.Context, id string, companyID CompanyID) error {
	q := a.backend.Table(CollectionModuleData).Eq("id", id)
	if companyID != "" {
		q = q.Eq("company_id", string(companyID))
	}
	if err := q.Delete(ctx); err != nil {
		return fmt.Errorf("delete module data %q: %w", id, err)
	}
	return nil
}

// ParseModuleFile parses and validates an uploaded manifest file's bytes.
func (a *StoreAdapter) ParseModuleFile(data []byte) (*ModuleManifest, error) {
	return ParseManifest(data)
}

// InstallModule parses a manifest upload and persists it as an active
// Module row for the company, storing the full manifest as the row config.
func (a *StoreAdapter) InstallModule(ctx context.Context, manifestJSON []byte, companyID CompanyID, userID string) (*Module, error) {
	manifest, err := a.ParseModuleFile(manifestJSON)
	if err != nil {
		return nil, err
	}

	mod := Module{
		CompanyID:   companyID,
		Slug:        manifest.Slug,
		Name:        manifest.Name,
		Version:     manifest.Version,
		Description: manifest.Description,
		Icon:        manifest.Icon,
		IsActive:    true,
		Config:      manifest,
		CreatedBy:   userID,
	}
	created, err := a.CreateModule(ctx, mod)
	if err != nil {
		return nil, err
	}
	a.logger.Info("module installed", "slug", manifest.Slug, "company", companyID, "version", manifest.Version)
	return created, nil
}

// serviceBundleFor builds the adapter-backed CRUD bundle the loader hands
// to a runtime module. moduleSlug doubles as the resource name; records are
// resolved through the module row owning the slug for the calling company.
func (a *StoreAdapter) serviceBundleFor(moduleSlug string) ServiceBundle {
	findModuleID := func(ctx context.Context, companyID CompanyID) (string, error) {
		mods, err := a.GetModules(ctx, companyID)
		if err != nil {
			return "", err
		}
		for _, m := range mods {
			if m.Slug == moduleSlug {
				return m.ID, nil
			}
		}
		return "", fmt.Errorf("%w: slug %q", ErrModuleNotFound, moduleSlug)
	}

	return ServiceBundle{
		List: func(ctx context.Context, companyID CompanyID) ([]ModuleData, error) {
			id, err := findModuleID(ctx, companyID)
			if err != nil {
				return nil, err
			}
			return a.GetModuleData(ctx, id, companyID)
		},
		Create: func(ctx context.Context, record ModuleData) (*ModuleData, error) {
			if record.ModuleID == "" {
				id, err := findModuleID(ctx, record.CompanyID)
				if err != nil {
					return nil, err
				}
				record.ModuleID = id
			}
			return a.CreateModuleData(ctx, record)
		},
		Update: func(ctx context.Context, id string, updates map[string]any, companyID CompanyID) (*ModuleData, error) {
			return a.UpdateModuleData(ctx, id, updates, companyID)
		},
		Delete: func(ctx context.Context, id string, companyID CompanyID) error {
			return a.DeleteModuleData(ctx, id, companyID)
		},
	}
}

func decodeModules(docs []map[string]any) ([]Module, error) {
	out := make([]Module, 0, len(docs))
	for _, doc := range docs {
		var mod Module
		if err := fromDocument(doc, &mod); err != nil {
			return nil, err
		}
		out = append(out, mod)
	}
	return out, nil
}

func decodeModuleData(docs []map[string]any) ([]ModuleData, error) {
	out := make([]ModuleData, 0, len(docs))
	for _, doc := range docs {
		var record ModuleData
		if err := fromDocument(doc, &record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}
