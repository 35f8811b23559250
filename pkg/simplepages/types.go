package simplepages

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FieldKind is the domain type for typed-record field kinds.
type FieldKind string

// Field kind constants (typed).
const (
	FieldKindText   FieldKind = "text"
	FieldKindString FieldKind = "string"
	FieldKindInt    FieldKind = "int"
	FieldKindFloat  FieldKind = "float"
	FieldKindBool   FieldKind = "bool"
	FieldKindEnum   FieldKind = "enum"
)

// FieldDefinition describes one declared field of a page type.
type FieldDefinition struct {
	Name       string      `json:"name"`
	Kind       FieldKind   `json:"kind"`
	Default    interface{} `json:"default,omitempty"`
	EnumValues []string    `json:"enum_values,omitempty"`
}

// RelationDefinition describes a child collection owned by records of a page
// type (e.g. the dishes of a menu page).
type RelationDefinition struct {
	Name string `json:"name"`
}

// TypeDescriptor identifies a registered page type: its declared fields, its
// child relations and whether its records are bound to a generic Page
// envelope. Descriptors are immutable once registered.
type TypeDescriptor struct {
	Name         string               `json:"name"`
	Fields       []FieldDefinition    `json:"fields"`
	Relations    []RelationDefinition `json:"relations,omitempty"`
	RequiresPage bool                 `json:"requires_page"`
}

// Field returns the definition of a declared field by name.
func (d *TypeDescriptor) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// DefaultFields builds the initial field map for a new record of this type,
// using each field's declared default or its kind's zero value.
func (d *TypeDescriptor) DefaultFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(d.Fields))
	for _, f := range d.Fields {
		if f.Default != nil {
			fields[f.Name] = f.Default
			continue
		}
		fields[f.Name] = f.Kind.zero()
	}
	return fields
}

func (k FieldKind) zero() interface{} {
	switch k {
	case FieldKindInt:
		return int64(0)
	case FieldKindFloat:
		return float64(0)
	case FieldKindBool:
		return false
	default:
		return ""
	}
}

// ValidateValue reports whether a value is acceptable for the named field.
func (d *TypeDescriptor) ValidateValue(field string, value interface{}) error {
	def, ok := d.Field(field)
	if !ok {
		return fmt.Errorf("field %q: %w", field, ErrUnknownMember)
	}
	if value == nil {
		return nil
	}
	switch def.Kind {
	case FieldKindText, FieldKindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q expects a string, got %T: %w", field, value, ErrInvalidFieldValue)
		}
	case FieldKindInt:
		switch value.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("field %q expects an integer, got %T: %w", field, value, ErrInvalidFieldValue)
		}
	case FieldKindFloat:
		switch value.(type) {
		case float32, float64:
		default:
			return fmt.Errorf("field %q expects a float, got %T: %w", field, value, ErrInvalidFieldValue)
		}
	case FieldKindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q expects a bool, got %T: %w", field, value, ErrInvalidFieldValue)
		}
	case FieldKindEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q expects an enum string, got %T: %w", field, value, ErrInvalidFieldValue)
		}
		for _, allowed := range def.EnumValues {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("field %q: value %q not in enum set: %w", field, s, ErrInvalidFieldValue)
	}
	return nil
}

// Page is the generic envelope record. Exactly one Page exists per URL, and
// each Page is bound one-to-one to a typed record identified by
// (TypeName, RecordID).
type Page struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	TypeName  string    `json:"type_name"`
	RecordID  uuid.UUID `json:"record_id"`
	SiteID    uuid.UUID `json:"site_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TypedRecord is one row of a registered page type. Fields holds the declared
// field values; PageID is the back reference to the owning envelope (zero for
// types that do not require one).
type TypedRecord struct {
	ID        uuid.UUID              `json:"id"`
	PageID    uuid.UUID              `json:"page_id"`
	TypeName  string                 `json:"type_name"`
	Fields    map[string]interface{} `json:"fields"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Get returns the value of a field and whether it is present.
func (r *TypedRecord) Get(field string) (interface{}, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Set stores a field value on the record's in-memory state. Nothing is
// persisted until the owning proxy is saved.
func (r *TypedRecord) Set(field string, value interface{}) {
	if r.Fields == nil {
		r.Fields = make(map[string]interface{})
	}
	r.Fields[field] = value
}

// FieldNames returns the record's field names in sorted order.
func (r *TypedRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChildRecord is one row of a declared relation owned by a typed record.
// Children are deleted together with their owning record.
type ChildRecord struct {
	ID        uuid.UUID              `json:"id"`
	RecordID  uuid.UUID              `json:"record_id"`
	Relation  string                 `json:"relation"`
	Fields    map[string]interface{} `json:"fields"`
	CreatedAt time.Time              `json:"created_at"`
}

// NavigationItem is an auxiliary artifact produced at install time. PageID
// references the sample page seeded alongside it; URL is the generated
// listing lookup key the entry points at.
type NavigationItem struct {
	ID        uuid.UUID `json:"id"`
	SiteID    uuid.UUID `json:"site_id"`
	PageID    uuid.UUID `json:"page_id"`
	Label     string    `json:"label"`
	URL       string    `json:"url"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// TypeActivation marks a page type as installed for a site. The
// (TypeName, SiteID) pair is unique and serves as the serialization point for
// concurrent installs of the same type.
type TypeActivation struct {
	ID        uuid.UUID `json:"id"`
	TypeName  string    `json:"type_name"`
	SiteID    uuid.UUID `json:"site_id"`
	CreatedAt time.Time `json:"created_at"`
}
