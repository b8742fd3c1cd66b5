package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	hogarfix "github.com/hogarfix/hogarfix"
)

// decodeJSON reads a request body into v, capping it at 1 MiB.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// ownedModule resolves the {id} route param to a module row and enforces
// that it belongs to the requesting company. Rows owned by another tenant
// are reported as not found, never as forbidden, so module ids cannot be
// probed across tenants. On failure the response has already been written.
func (s *Server) ownedModule(w http.ResponseWriter, r *http.Request) (*hogarfix.Module, bool) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	moduleID := chi.URLParam(r, "id")

	mod, err := s.runtime.Adapter.GetModule(r.Context(), moduleID)
	if err != nil {
		if errors.Is(err, hogarfix.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if mod.CompanyID != id.CompanyID {
		s.logger.Warn("cross-tenant module access denied", "module", moduleID, "owner", mod.CompanyID, "requester", id.CompanyID)
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s: %s", hogarfix.ErrModuleNotFound.Error(), moduleID))
		return nil, false
	}
	return mod, true
}

func (s *Server) handleInstallModule(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read manifest body")
		return
	}

	mod, err := s.runtime.Adapter.InstallModule(r.Context(), body, id.CompanyID, id.UserID)
	if err != nil {
		if errors.Is(err, hogarfix.ErrManifestInvalid) || errors.Is(err, hogarfix.ErrManifestParse) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Registration failures (e.g. unmet dependencies) roll back the
	// persisted row so install stays all-or-nothing.
	if _, err := s.runtime.Manager.RegisterModule(r.Context(), mod.Config); err != nil {
		if delErr := s.runtime.Adapter.DeleteModule(r.Context(), mod.ID, id.CompanyID); delErr != nil {
			s.logger.Error("failed to roll back module row after registration failure", "id", mod.ID, "error", delErr)
		}
		if errors.Is(err, hogarfix.ErrMissingDependency) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, mod)
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	modules, err := s.runtime.Adapter.GetModules(r.Context(), id.CompanyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, modules)
}

func (s *Server) handleUpdateModule(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := decodeJSON(r, &updates); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	mod, ok := s.ownedModule(w, r)
	if !ok {
		return
	}
	updated, err := s.runtime.Adapter.UpdateModule(r.Context(), mod.ID, updates)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	mod, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	if err := s.runtime.Adapter.DeleteModule(r.Context(), mod.ID, id.CompanyID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Unregister only once the row is confirmed gone. Unloading hooks while
	// the row survives would leave runtime and store out of sync.
	if _, err := s.runtime.Adapter.GetModule(r.Context(), mod.ID); !errors.Is(err, hogarfix.ErrModuleNotFound) {
		respondError(w, http.StatusInternalServerError, "module row survived scoped delete")
		return
	}
	s.runtime.Manager.UnregisterModule(r.Context(), mod.Slug)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleModule(w http.ResponseWriter, r *http.Request) {
	mod, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	updated, err := s.runtime.Adapter.UpdateModule(r.Context(), mod.ID, map[string]any{"is_active": !mod.IsActive})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleModuleForm(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	manifest := s.runtime.Manager.Manifest(slug)
	if manifest == nil {
		respondError(w, http.StatusNotFound, "module not registered: "+slug)
		return
	}

	form, err := s.renderer.BuildForm(r.Context(), manifest, id.CompanyID, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, form)
}

func (s *Server) handleListModuleData(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	records, err := s.runtime.Adapter.GetModuleData(r.Context(), chi.URLParam(r, "id"), id.CompanyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if search := r.URL.Query().Get("search"); search != "" {
		records = s.renderer.FilterRecords(records, search)
	}
	respondJSON(w, http.StatusOK, records)
}

// moduleDataRequest is the mutation payload for module records.
type moduleDataRequest struct {
	Data map[string]any `json:"data"`
}

func (s *Server) handleCreateModuleData(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())

	var req moduleDataRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	mod, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	data := req.Data
	if mod.Config != nil {
		var err error
		if data, err = s.renderer.CoerceValues(mod.Config, req.Data); err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	data = s.transformHook(r.Context(), hogarfix.HookBeforeSave, mod.Slug, data)

	record, err := s.runtime.Adapter.CreateModuleData(r.Context(), hogarfix.ModuleData{
		ModuleID:  mod.ID,
		CompanyID: id.CompanyID,
		CreatedBy: id.UserID,
		Data:      data,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.runtime.Dispatcher.ExecuteHook(r.Context(), hogarfix.HookAfterCreate.ForEntity(mod.Slug), record)
	s.runtime.Dispatcher.ExecuteHook(r.Context(), hogarfix.HookAfterCreate, record)

	respondJSON(w, http.StatusCreated, record)
}

func (s *Server) handleUpdateModuleData(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	dataID := chi.URLParam(r, "dataID")

	var req moduleDataRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	mod, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	data := req.Data
	if mod.Config != nil {
		var err error
		if data, err = s.renderer.CoerceValues(mod.Config, req.Data); err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	data = s.transformHook(r.Context(), hogarfix.HookBeforeSave, mod.Slug, data)

	record, err := s.runtime.Adapter.UpdateModuleData(r.Context(), dataID, map[string]any{"data": data}, id.CompanyID)
	if err != nil {
		if errors.Is(err, hogarfix.ErrModuleDataNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteModuleData(w http.ResponseWriter, r *http.Request) {
	id, _ := hogarfix.IdentityFromContext(r.Context())
	dataID := chi.URLParam(r, "dataID")

	mod, ok := s.ownedModule(w, r)
	if !ok {
		return
	}

	// before_delete acts as a veto gate: a listener returning false
	// blocks the deletion.
	result := s.runtime.Dispatcher.ExecuteHook(r.Context(), hogarfix.HookBeforeDelete.ForEntity(mod.Slug), dataID)
	if vetoed, ok := result.(bool); ok && !vetoed {
		respondError(w, http.StatusConflict, "deletion vetoed by module hook")
		return
	}

	if err := s.runtime.Adapter.DeleteModuleData(r.Context(), dataID, id.CompanyID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transformHook runs the entity-scoped then the generic variant of a
// transform hook over a data map, keeping the prior value when a listener
// chain yields something that is not a data map.
func (s *Server) transformHook(ctx context.Context, hook hogarfix.HookName, slug string, data map[string]any) map[string]any {
	value := s.runtime.Dispatcher.ExecuteHook(ctx, hook.ForEntity(slug), data)
	value = s.runtime.Dispatcher.ExecuteHook(ctx, hook, value)
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return data
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.runtime.Manager.SidebarItems(r.Context()))
}

func (s *Server) handleWidgets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.runtime.Manager.DashboardWidgets(r.Context()))
}

func (s *Server) handleHeaderActions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.runtime.Manager.HeaderActions(r.Context()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"manager": s.runtime.Manager.Stats(),
		"hooks":   s.runtime.Dispatcher.Stats(),
	})
}
