package simplepages

import (
	"fmt"
	"sort"
	"sync"
)

// TypeRegistry is the process-wide catalogue of page type descriptors. It is
// populated at startup and read-only during normal operation; the registry is
// passed explicitly to the service, never consulted through package state.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*TypeDescriptor
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]*TypeDescriptor),
	}
}

// Register adds a type descriptor to the registry. Registering the same name
// twice is an error; descriptors are not replaced in place.
func (r *TypeRegistry) Register(desc *TypeDescriptor) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[desc.Name]; exists {
		return fmt.Errorf("type %q: %w", desc.Name, ErrTypeAlreadyRegistered)
	}

	// Store a copy so callers cannot mutate a registered descriptor.
	descCopy := *desc
	descCopy.Fields = append([]FieldDefinition(nil), desc.Fields...)
	descCopy.Relations = append([]RelationDefinition(nil), desc.Relations...)
	r.types[desc.Name] = &descCopy

	return nil
}

// Get returns the descriptor registered under name.
func (r *TypeRegistry) Get(name string) (*TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.types[name]
	if !exists {
		return nil, fmt.Errorf("type %q: %w", name, ErrTypeNotRegistered)
	}
	return desc, nil
}

// List returns all registered descriptors sorted by name.
func (r *TypeRegistry) List() []*TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]*TypeDescriptor, 0, len(r.types))
	for _, desc := range r.types {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].Name < descs[j].Name
	})
	return descs
}

func validateDescriptor(desc *TypeDescriptor) error {
	if desc == nil || desc.Name == "" {
		return fmt.Errorf("type descriptor requires a name")
	}

	seen := make(map[string]bool, len(desc.Fields))
	for _, f := range desc.Fields {
		if f.Name == "" {
			return fmt.Errorf("type %q: field with empty name", desc.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("type %q: duplicate field %q", desc.Name, f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case FieldKindText, FieldKindString, FieldKindInt, FieldKindFloat, FieldKindBool:
		case FieldKindEnum:
			if len(f.EnumValues) == 0 {
				return fmt.Errorf("type %q: enum field %q declares no values", desc.Name, f.Name)
			}
		default:
			return fmt.Errorf("type %q: field %q has unknown kind %q", desc.Name, f.Name, f.Kind)
		}

		if f.Default != nil {
			if err := desc.ValidateValue(f.Name, f.Default); err != nil {
				return fmt.Errorf("type %q: bad default: %w", desc.Name, err)
			}
		}
	}

	relSeen := make(map[string]bool, len(desc.Relations))
	for _, rel := range desc.Relations {
		if rel.Name == "" {
			return fmt.Errorf("type %q: relation with empty name", desc.Name)
		}
		if relSeen[rel.Name] {
			return fmt.Errorf("type %q: duplicate relation %q", desc.Name, rel.Name)
		}
		relSeen[rel.Name] = true
	}

	return nil
}
