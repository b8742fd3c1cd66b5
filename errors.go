package hogarfix

import (
	"errors"
	"fmt"
	"strings"
)

// Runtime errors
var (
	// Manifest errors
	ErrManifestNil     = errors.New("manifest is nil")
	ErrManifestParse   = errors.New("failed to parse manifest JSON")
	ErrManifestInvalid = errors.New("manifest validation failed")

	// Loader errors
	ErrModuleNotLoaded   = errors.New("module not loaded")
	ErrModuleInitFailed  = errors.New("module init failed")
	ErrRuntimeModuleNil  = errors.New("runtime module is nil")
	ErrDispatcherNil     = errors.New("hook dispatcher is nil")
	ErrManifestNotFound  = errors.New("manifest not found")
	ErrMissingDependency = errors.New("missing module dependencies")

	// Adapter errors
	ErrModuleDataMissingModule = errors.New("module_id is required to create module data")
	ErrModuleNotFound          = errors.New("module not found")
	ErrModuleDataNotFound      = errors.New("module data record not found")
	ErrBackendNil              = errors.New("store backend is nil")
)

// ValidationError reports a manifest that failed required-field or shape
// validation. Field names the offending manifest key.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("manifest validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("manifest validation failed: missing required field %q", e.Field)
}

// Is allows errors.Is(err, ErrManifestInvalid) to match validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrManifestInvalid
}

// DependencyError reports a manifest declaring dependency slugs that are
// neither known manifests nor loaded modules.
type DependencyError struct {
	Slug    string
	Missing []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("module %q has missing dependencies: %s", e.Slug, strings.Join(e.Missing, ", "))
}

// Is allows errors.Is(err, ErrMissingDependency) to match dependency errors.
func (e *DependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}
