package simplepages_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/memory"
)

func newTestService(t *testing.T, opts ...simplepages.Option) (simplepages.Service, *memory.Repository) {
	t.Helper()

	repo := memory.New()
	registry := simplepages.NewTypeRegistry()
	require.NoError(t, registry.Register(articleDescriptor()))

	options := append([]simplepages.Option{
		simplepages.WithRepository(repo),
		simplepages.WithRegistry(registry),
	}, opts...)
	svc, err := simplepages.New(options...)
	require.NoError(t, err)
	return svc, repo
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simplepages.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simplepages.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []simplepages.Option{
				simplepages.WithRepository(memory.New()),
			},
			expectError: false,
		},
		{
			name: "with repository and registry should succeed",
			options: []simplepages.Option{
				simplepages.WithRepository(memory.New()),
				simplepages.WithRegistry(simplepages.NewTypeRegistry()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplepages.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestNewPageSaveAndResolve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	siteID := uuid.New()

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)

	require.NoError(t, proxy.Set(ctx, "url", "/articles/hello"))
	require.NoError(t, proxy.Set(ctx, "site_id", siteID))
	require.NoError(t, proxy.Set(ctx, "title", "Hello"))
	require.NoError(t, proxy.Set(ctx, "body", "Hello, world."))

	require.NoError(t, proxy.Save(ctx))

	resolved, err := svc.ResolveByURL(ctx, "/articles/hello")
	require.NoError(t, err)

	title, err := resolved.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "Hello", title)

	body, err := resolved.Get(ctx, "body")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world.", body)

	gotSite, err := resolved.Get(ctx, "site_id")
	require.NoError(t, err)
	assert.Equal(t, siteID, gotSite)

	page := resolved.Page()
	assert.Equal(t, "article", page.TypeName)
	assert.NotEqual(t, uuid.Nil, page.ID)
	assert.NotEqual(t, uuid.Nil, page.RecordID)

	byID, err := svc.ResolveByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.URL, byID.Page().URL)
}

func TestNewPageUnregisteredType(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.NewPage("gallery")
	assert.ErrorIs(t, err, simplepages.ErrTypeNotRegistered)
}

func TestProxyEnvelopePrecedence(t *testing.T) {
	// A type may declare a field named like an envelope member; the
	// envelope side always wins on access.
	repo := memory.New()
	registry := simplepages.NewTypeRegistry()
	require.NoError(t, registry.Register(&simplepages.TypeDescriptor{
		Name: "landing",
		Fields: []simplepages.FieldDefinition{
			{Name: "url", Kind: simplepages.FieldKindString, Default: "/shadowed"},
			{Name: "headline", Kind: simplepages.FieldKindString},
		},
		RequiresPage: true,
	}))
	svc, err := simplepages.New(
		simplepages.WithRepository(repo),
		simplepages.WithRegistry(registry),
	)
	require.NoError(t, err)

	ctx := context.Background()
	proxy, err := svc.NewPage("landing")
	require.NoError(t, err)
	require.NoError(t, proxy.Set(ctx, "url", "/landing"))
	require.NoError(t, proxy.Set(ctx, "site_id", uuid.New()))
	require.NoError(t, proxy.Save(ctx))

	resolved, err := svc.ResolveByURL(ctx, "/landing")
	require.NoError(t, err)

	got, err := resolved.Get(ctx, "url")
	require.NoError(t, err)
	assert.Equal(t, "/landing", got, "envelope member must shadow the typed field")

	headline, err := resolved.Get(ctx, "headline")
	require.NoError(t, err)
	assert.Equal(t, "", headline)
}

func TestProxyUnknownMember(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)

	_, err = proxy.Get(ctx, "no_such_member")
	assert.ErrorIs(t, err, simplepages.ErrUnknownMember)

	err = proxy.Set(ctx, "no_such_member", "x")
	assert.ErrorIs(t, err, simplepages.ErrUnknownMember)
}

func TestProxyReadOnlyMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)

	for _, member := range []string{"id", "type", "record_id", "created_at", "updated_at"} {
		err := proxy.Set(ctx, member, "x")
		assert.ErrorIs(t, err, simplepages.ErrReadOnlyMember, member)
	}
}

func TestProxyFieldValidationOnSet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)

	err = proxy.Set(ctx, "views", "not a number")
	assert.ErrorIs(t, err, simplepages.ErrInvalidFieldValue)

	err = proxy.Set(ctx, "published", 1)
	assert.ErrorIs(t, err, simplepages.ErrInvalidFieldValue)
}

func TestProxySaveRequiresURL(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)

	assert.Error(t, proxy.Save(ctx))
}

func TestProxyDuplicateURL(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	siteID := uuid.New()

	first, err := svc.NewPage("article")
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "url", "/articles/dup"))
	require.NoError(t, first.Set(ctx, "site_id", siteID))
	require.NoError(t, first.Save(ctx))

	second, err := svc.NewPage("article")
	require.NoError(t, err)
	require.NoError(t, second.Set(ctx, "url", "/articles/dup"))
	require.NoError(t, second.Set(ctx, "site_id", siteID))

	err = second.Save(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, simplepages.ErrConstraintViolation)
	assert.ErrorIs(t, err, simplepages.ErrPartialPersistence)

	// The failed save must leave no orphaned typed record behind.
	records, listErr := repo.ListRecords(ctx, "article")
	require.NoError(t, listErr)
	assert.Len(t, records, 1)
}

func TestProxyUpdateExisting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)
	require.NoError(t, proxy.Set(ctx, "url", "/articles/update-me"))
	require.NoError(t, proxy.Set(ctx, "site_id", uuid.New()))
	require.NoError(t, proxy.Save(ctx))

	resolved, err := svc.ResolveByURL(ctx, "/articles/update-me")
	require.NoError(t, err)
	require.NoError(t, resolved.Set(ctx, "title", "Second Edition"))
	require.NoError(t, resolved.Save(ctx))

	again, err := svc.ResolveByURL(ctx, "/articles/update-me")
	require.NoError(t, err)
	title, err := again.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "Second Edition", title)
}

// countingRepo counts typed-record fetches to observe proxy caching.
type countingRepo struct {
	simplepages.Repository
	gets atomic.Int64
}

func (r *countingRepo) GetRecord(ctx context.Context, typeName string, id uuid.UUID) (*simplepages.TypedRecord, error) {
	r.gets.Add(1)
	return r.Repository.GetRecord(ctx, typeName, id)
}

func TestProxyCachesTypedRecord(t *testing.T) {
	repo := memory.New()
	counting := &countingRepo{Repository: repo}
	registry := simplepages.NewTypeRegistry()
	require.NoError(t, registry.Register(articleDescriptor()))
	svc, err := simplepages.New(
		simplepages.WithRepository(counting),
		simplepages.WithRegistry(registry),
	)
	require.NoError(t, err)

	ctx := context.Background()
	proxy, err := svc.NewPage("article")
	require.NoError(t, err)
	require.NoError(t, proxy.Set(ctx, "url", "/articles/cached"))
	require.NoError(t, proxy.Set(ctx, "site_id", uuid.New()))
	require.NoError(t, proxy.Save(ctx))

	resolved, err := svc.ResolveByURL(ctx, "/articles/cached")
	require.NoError(t, err)

	before := counting.gets.Load()
	for i := 0; i < 5; i++ {
		_, err := resolved.Get(ctx, "title")
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, counting.gets.Load(), "typed record must be fetched once per proxy")
}

func TestProxyResolveUnregisteredEnvelopeType(t *testing.T) {
	repo := memory.New()
	registry := simplepages.NewTypeRegistry()
	require.NoError(t, registry.Register(articleDescriptor()))
	svc, err := simplepages.New(
		simplepages.WithRepository(repo),
		simplepages.WithRegistry(registry),
	)
	require.NoError(t, err)

	// Seed an envelope whose type the registry does not know.
	ctx := context.Background()
	page := &simplepages.Page{
		ID:       uuid.New(),
		URL:      "/ghosts/one",
		TypeName: "ghost",
		RecordID: uuid.New(),
		SiteID:   uuid.New(),
	}
	require.NoError(t, repo.CreatePage(ctx, page))

	proxy, err := svc.ResolveByURL(ctx, "/ghosts/one")
	require.NoError(t, err, "envelope resolution alone must succeed")

	_, err = proxy.Get(ctx, "anything")
	assert.ErrorIs(t, err, simplepages.ErrTypeNotRegistered)
}

func TestProxyBindTypeMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	proxy, err := svc.NewPage("article")
	require.NoError(t, err)

	err = proxy.Bind(&simplepages.TypedRecord{ID: uuid.New(), TypeName: "menu"})
	assert.ErrorIs(t, err, simplepages.ErrTypeMismatch)

	assert.NoError(t, proxy.Bind(&simplepages.TypedRecord{ID: uuid.New(), TypeName: "article"}))
}
