package simplepages_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := simplepages.NewTypeRegistry()

	require.NoError(t, registry.Register(articleDescriptor()))

	desc, err := registry.Get("article")
	require.NoError(t, err)
	assert.Equal(t, "article", desc.Name)
	assert.Len(t, desc.Fields, 5)

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, simplepages.ErrTypeNotRegistered)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	registry := simplepages.NewTypeRegistry()

	require.NoError(t, registry.Register(articleDescriptor()))
	err := registry.Register(articleDescriptor())
	assert.ErrorIs(t, err, simplepages.ErrTypeAlreadyRegistered)
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		desc *simplepages.TypeDescriptor
	}{
		{
			name: "empty type name",
			desc: &simplepages.TypeDescriptor{},
		},
		{
			name: "field without name",
			desc: &simplepages.TypeDescriptor{
				Name:   "broken",
				Fields: []simplepages.FieldDefinition{{Kind: simplepages.FieldKindText}},
			},
		},
		{
			name: "duplicate field",
			desc: &simplepages.TypeDescriptor{
				Name: "broken",
				Fields: []simplepages.FieldDefinition{
					{Name: "title", Kind: simplepages.FieldKindText},
					{Name: "title", Kind: simplepages.FieldKindText},
				},
			},
		},
		{
			name: "unknown kind",
			desc: &simplepages.TypeDescriptor{
				Name:   "broken",
				Fields: []simplepages.FieldDefinition{{Name: "blob", Kind: "binary"}},
			},
		},
		{
			name: "enum without values",
			desc: &simplepages.TypeDescriptor{
				Name:   "broken",
				Fields: []simplepages.FieldDefinition{{Name: "season", Kind: simplepages.FieldKindEnum}},
			},
		},
		{
			name: "default of wrong kind",
			desc: &simplepages.TypeDescriptor{
				Name:   "broken",
				Fields: []simplepages.FieldDefinition{{Name: "views", Kind: simplepages.FieldKindInt, Default: "many"}},
			},
		},
		{
			name: "duplicate relation",
			desc: &simplepages.TypeDescriptor{
				Name: "broken",
				Relations: []simplepages.RelationDefinition{
					{Name: "dishes"},
					{Name: "dishes"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := simplepages.NewTypeRegistry()
			assert.Error(t, registry.Register(tt.desc))
		})
	}
}

func TestRegistryListSorted(t *testing.T) {
	registry := simplepages.NewTypeRegistry()

	require.NoError(t, registry.Register(&simplepages.TypeDescriptor{Name: "zebra"}))
	require.NoError(t, registry.Register(&simplepages.TypeDescriptor{Name: "article"}))
	require.NoError(t, registry.Register(&simplepages.TypeDescriptor{Name: "menu"}))

	descs := registry.List()
	require.Len(t, descs, 3)
	assert.Equal(t, "article", descs[0].Name)
	assert.Equal(t, "menu", descs[1].Name)
	assert.Equal(t, "zebra", descs[2].Name)
}

func TestRegistryStoresCopy(t *testing.T) {
	registry := simplepages.NewTypeRegistry()

	desc := articleDescriptor()
	require.NoError(t, registry.Register(desc))

	// Mutating the caller's descriptor must not affect the registry.
	desc.Fields[0].Default = "Changed"
	stored, err := registry.Get("article")
	require.NoError(t, err)
	assert.Equal(t, "Sample Article", stored.Fields[0].Default)
}
