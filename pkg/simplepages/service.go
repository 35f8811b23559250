package simplepages

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-pages library
type Service interface {
	// Composition operations
	ResolveByURL(ctx context.Context, url string) (*Proxy, error)
	ResolveByID(ctx context.Context, id uuid.UUID) (*Proxy, error)
	NewPage(typeName string) (*Proxy, error)

	// Lifecycle operations
	Install(ctx context.Context, typeName string, siteID uuid.UUID) error
	Uninstall(ctx context.Context, typeName string, siteID uuid.UUID, dropSchema bool) error

	// Registry access for collaborators (routing, rendering)
	Registry() *TypeRegistry
}
