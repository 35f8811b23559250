package simplepages

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrPageNotFound indicates a page was not found
	ErrPageNotFound = errors.New("page not found")

	// ErrRecordNotFound indicates a typed record was not found
	ErrRecordNotFound = errors.New("typed record not found")

	// ErrActivationNotFound indicates no type activation exists for a (type, site) pair
	ErrActivationNotFound = errors.New("type activation not found")

	// ErrTypeNotRegistered indicates a page references a type absent from the registry
	ErrTypeNotRegistered = errors.New("page type not registered")

	// ErrTypeAlreadyRegistered indicates a duplicate type registration
	ErrTypeAlreadyRegistered = errors.New("page type already registered")

	// ErrTypeMismatch indicates a binding attempted between a page and a record of another type
	ErrTypeMismatch = errors.New("page type mismatch")

	// ErrUnknownMember indicates a member absent on both the page and its typed record
	ErrUnknownMember = errors.New("unknown member")

	// ErrReadOnlyMember indicates an attempt to write a system-managed envelope member
	ErrReadOnlyMember = errors.New("member is read-only")

	// ErrInvalidFieldValue indicates a value incompatible with a field's declared kind
	ErrInvalidFieldValue = errors.New("invalid field value")

	// ErrConstraintViolation indicates a duplicate URL, duplicate binding or duplicate activation
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrPartialPersistence indicates a joint save/install/uninstall aborted mid-way;
	// the enclosing transaction is always rolled back before this is reported
	ErrPartialPersistence = errors.New("partial persistence failure")
)

// PageError represents an error related to page composition operations
type PageError struct {
	PageID uuid.UUID
	Member string
	Op     string
	Err    error
}

func (e *PageError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("page operation %s failed for member %q on page %s: %v", e.Op, e.Member, e.PageID, e.Err)
	}
	return fmt.Sprintf("page operation %s failed for page %s: %v", e.Op, e.PageID, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// LifecycleError represents an error related to type install/uninstall operations
type LifecycleError struct {
	TypeName string
	SiteID   uuid.UUID
	Op       string
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle operation %s failed for type %s on site %s: %v", e.Op, e.TypeName, e.SiteID, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
