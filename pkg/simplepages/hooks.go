package simplepages

import (
	"context"

	"github.com/google/uuid"
)

// InstallVars is the named mapping of unsaved artifacts handed to a type's
// CustomInstall hook before the default persistence step runs. The hook may
// mutate field values in place, persist an artifact itself through the
// transactional repository it receives (the default step skips anything that
// already carries a committed identifier), or set a pointer to nil to decline
// persisting that artifact.
type InstallVars struct {
	Page       *Page
	Record     *TypedRecord
	Navigation *NavigationItem
	Activation *TypeActivation

	// Extras carries type-specific artifacts between hook invocations; the
	// default persistence step does not touch it.
	Extras map[string]interface{}
}

// TypeHooks customizes the install/uninstall lifecycle for one page type.
// Both methods are optional extension points; returning an error aborts the
// enclosing lifecycle operation before any further persistence or deletion.
type TypeHooks interface {
	// CustomInstall runs inside the install transaction, after the default
	// artifacts are built and before they are persisted. repo is the
	// transaction-scoped repository.
	CustomInstall(ctx context.Context, repo Repository, vars *InstallVars) error

	// CustomUninstall runs before any deletion. It is the place for
	// type-specific external cleanup.
	CustomUninstall(ctx context.Context, repo Repository, desc *TypeDescriptor, siteID uuid.UUID) error
}

// NoopTypeHooks is the default no-op lifecycle strategy.
type NoopTypeHooks struct{}

// CustomInstall does nothing and returns nil
func (NoopTypeHooks) CustomInstall(ctx context.Context, repo Repository, vars *InstallVars) error {
	return nil
}

// CustomUninstall does nothing and returns nil
func (NoopTypeHooks) CustomUninstall(ctx context.Context, repo Repository, desc *TypeDescriptor, siteID uuid.UUID) error {
	return nil
}

// InstallFunc adapts a bare install function to TypeHooks.
type InstallFunc func(ctx context.Context, repo Repository, vars *InstallVars) error

// CustomInstall invokes the wrapped function
func (f InstallFunc) CustomInstall(ctx context.Context, repo Repository, vars *InstallVars) error {
	return f(ctx, repo, vars)
}

// CustomUninstall does nothing and returns nil
func (f InstallFunc) CustomUninstall(ctx context.Context, repo Repository, desc *TypeDescriptor, siteID uuid.UUID) error {
	return nil
}
