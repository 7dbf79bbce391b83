// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict on a locked record.
var ErrConflict = errors.New("conflict: resource is being modified by another request")

// ErrValidation indicates malformed caller input. Wrap it with the field detail:
//
//	fmt.Errorf("project_id is required: %w", domain.ErrValidation)
var ErrValidation = errors.New("validation failed")
