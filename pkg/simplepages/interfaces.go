package simplepages

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for page and typed-record persistence.
// Implementations (memory, Postgres, SQLite) live under repo/.
type Repository interface {
	// Page operations
	CreatePage(ctx context.Context, page *Page) error
	GetPage(ctx context.Context, id uuid.UUID) (*Page, error)
	GetPageByURL(ctx context.Context, url string) (*Page, error)
	UpdatePage(ctx context.Context, page *Page) error
	DeletePage(ctx context.Context, id uuid.UUID) error
	ListPagesByType(ctx context.Context, typeName string, siteID uuid.UUID) ([]*Page, error)

	// Typed record operations. The type name selects the record store; a
	// record is only reachable through the store of its own type.
	CreateRecord(ctx context.Context, record *TypedRecord) error
	GetRecord(ctx context.Context, typeName string, id uuid.UUID) (*TypedRecord, error)
	UpdateRecord(ctx context.Context, record *TypedRecord) error
	DeleteRecord(ctx context.Context, typeName string, id uuid.UUID) error
	ListRecords(ctx context.Context, typeName string) ([]*TypedRecord, error)

	// Child collection operations
	CreateChildRecord(ctx context.Context, child *ChildRecord) error
	ListChildRecords(ctx context.Context, recordID uuid.UUID) ([]*ChildRecord, error)
	DeleteChildRecords(ctx context.Context, recordID uuid.UUID) error

	// Navigation operations
	CreateNavigationItem(ctx context.Context, item *NavigationItem) error
	ListNavigationItems(ctx context.Context, siteID uuid.UUID) ([]*NavigationItem, error)
	DeleteNavigationItemsByPage(ctx context.Context, pageID uuid.UUID) error

	// Type activation operations. CreateTypeActivation enforces uniqueness
	// of the (type name, site id) pair and returns ErrConstraintViolation
	// on a duplicate.
	CreateTypeActivation(ctx context.Context, activation *TypeActivation) error
	GetTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) (*TypeActivation, error)
	DeleteTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) error

	// Schema lifecycle. EnsureTypeSchema provisions the type's record store
	// and reconciles newly declared fields additively; existing fields are
	// never dropped or retyped. DropTypeSchema removes the record store
	// entirely and is not reversible.
	EnsureTypeSchema(ctx context.Context, desc *TypeDescriptor) error
	DropTypeSchema(ctx context.Context, typeName string) error

	// WithTx runs fn against a transactional view of the repository. The
	// transaction is committed when fn returns nil and rolled back on any
	// error or panic; no partial state survives a failed fn.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
