package hogarfix

import (
	"encoding/json"
	"fmt"
	"time"
)

// Module is an installed plugin instance persisted per company. Config
// holds the full manifest as stored at install time; is_active is toggled
// independently of the runtime load state.
type Module struct {
	ID          string          `json:"id"`
	CompanyID   CompanyID       `json:"company_id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	IsActive    bool            `json:"is_active"`
	Config      *ModuleManifest `json:"config,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ModuleData is a single free-form business record created through a
// module's generic form. Data keys correspond to FieldSpec names in the
// owning manifest; the store does not enforce this, the renderer treats
// unknown keys as raw values.
type ModuleData struct {
	ID        string         `json:"id"`
	ModuleID  string         `json:"module_id"`
	CompanyID CompanyID      `json:"company_id"`
	CreatedBy string         `json:"created_by,omitempty"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// toDocument converts a typed row to the generic document shape the store
// backend works with, via a JSON round trip.
func toDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode row document: %w", err)
	}
	return doc, nil
}

// fromDocument decodes a generic store document into the typed target.
func fromDocument(doc map[string]any, target any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode row document: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
