package simplepages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	registry   *TypeRegistry
	hooks      map[string]TypeHooks
	logger     *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithRegistry sets the type registry for the service
func WithRegistry(registry *TypeRegistry) Option {
	return func(s *service) {
		s.registry = registry
	}
}

// WithTypeHooks registers a lifecycle customization strategy for a type
func WithTypeHooks(typeName string, hooks TypeHooks) Option {
	return func(s *service) {
		if s.hooks == nil {
			s.hooks = make(map[string]TypeHooks)
		}
		s.hooks[typeName] = hooks
	}
}

// WithLogger sets the logger used by lifecycle operations
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		hooks: make(map[string]TypeHooks),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.registry == nil {
		s.registry = NewTypeRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) Registry() *TypeRegistry {
	return s.registry
}

// hooksFor returns the lifecycle strategy for a type, defaulting to no-op.
func (s *service) hooksFor(typeName string) TypeHooks {
	if h, ok := s.hooks[typeName]; ok {
		return h
	}
	return NoopTypeHooks{}
}

// ResolveByURL fetches the envelope by its external lookup key and wraps it
// in a composition proxy. The typed side is not fetched until first use.
func (s *service) ResolveByURL(ctx context.Context, url string) (*Proxy, error) {
	page, err := s.repository.GetPageByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.newProxy(page), nil
}

// ResolveByID fetches the envelope by its identifier and wraps it in a
// composition proxy.
func (s *service) ResolveByID(ctx context.Context, id uuid.UUID) (*Proxy, error) {
	page, err := s.repository.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.newProxy(page), nil
}

// NewPage constructs an unbound proxy pre-associated with a registered type.
// Nothing is persisted until the first Save, which performs the joint insert
// of the typed record and the envelope.
func (s *service) NewPage(typeName string) (*Proxy, error) {
	desc, err := s.registry.Get(typeName)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		repo:     s.repository,
		registry: s.registry,
		desc:     desc,
		page:     &Page{TypeName: typeName},
	}, nil
}

func (s *service) newProxy(page *Page) *Proxy {
	return &Proxy{
		repo:     s.repository,
		registry: s.registry,
		page:     page,
	}
}
