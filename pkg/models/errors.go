package models

import (
	"errors"
	"fmt"
	"strings"
)

// Domain sentinels. Repositories and services wrap these; handlers map them
// onto HTTP codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrIntegrity marks an invariant violation that escaped validation.
	// The operation must abort without mutating state.
	ErrIntegrity = errors.New("integrity violation")
)

// GenreResolutionError reports unresolvable public-request genre names
// together with the catalog's available names.
type GenreResolutionError struct {
	Detail GenreResolutionDetail
}

func (e *GenreResolutionError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Detail.NotFound) > 0 {
		parts = append(parts, fmt.Sprintf("not found: %s", strings.Join(e.Detail.NotFound, ", ")))
	}
	if len(e.Detail.Ambiguous) > 0 {
		parts = append(parts, fmt.Sprintf("ambiguous: %s", strings.Join(e.Detail.Ambiguous, ", ")))
	}
	if len(parts) == 0 {
		return "genre resolution failed"
	}
	return "genre resolution failed: " + strings.Join(parts, "; ")
}
