package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	hogarfix "github.com/hogarfix/hogarfix"
	"github.com/hogarfix/hogarfix/render"
	"github.com/hogarfix/hogarfix/store"
)

// CollectionTechnicians holds the technician rows dynamic select fields
// resolve against. The collection is owned by the surrounding platform;
// this runtime only reads it.
const CollectionTechnicians = "technicians"

// StoreTechnicianDirectory resolves technicians from the shared backend.
// A missing collection resolves to no technicians rather than an error, so
// forms still render where the platform has not provisioned the table.
type StoreTechnicianDirectory struct {
	backend store.Backend
	logger  hogarfix.Logger
}

// NewStoreTechnicianDirectory creates a directory over the given backend.
func NewStoreTechnicianDirectory(backend store.Backend, logger hogarfix.Logger) *StoreTechnicianDirectory {
	if logger == nil {
		logger = hogarfix.NopLogger{}
	}
	return &StoreTechnicianDirectory{backend: backend, logger: logger}
}

// ListTechnicians returns the active technicians for a company, ordered by
// first name.
func (d *StoreTechnicianDirectory) ListTechnicians(ctx context.Context, companyID hogarfix.CompanyID) ([]render.Technician, error) {
	q := d.backend.Table(CollectionTechnicians)
	if companyID != "" {
		q = q.Eq("company_id", string(companyID))
	}
	docs, err := q.Eq("is_active", true).Order("first_name", false).Select(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotProvisioned) {
			d.logger.Warn("technicians collection not provisioned, returning empty list", "company", companyID)
			return []render.Technician{}, nil
		}
		return nil, fmt.Errorf("query technicians: %w", err)
	}

	techs := make([]render.Technician, 0, len(docs))
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode technician row: %w", err)
		}
		var t render.Technician
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode technician row: %w", err)
		}
		techs = append(techs, t)
	}
	return techs, nil
}
