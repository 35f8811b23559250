package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/sqlite"
)

func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()

	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func articleDescriptor() *simplepages.TypeDescriptor {
	return &simplepages.TypeDescriptor{
		Name: "article",
		Fields: []simplepages.FieldDefinition{
			{Name: "title", Kind: simplepages.FieldKindString},
			{Name: "body", Kind: simplepages.FieldKindText},
			{Name: "views", Kind: simplepages.FieldKindInt},
			{Name: "published", Kind: simplepages.FieldKindBool},
		},
		RequiresPage: true,
	}
}

func newPage(url string, siteID uuid.UUID) *simplepages.Page {
	now := time.Now().UTC()
	return &simplepages.Page{
		ID:        uuid.New(),
		URL:       url,
		TypeName:  "article",
		RecordID:  uuid.New(),
		SiteID:    siteID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPageRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	siteID := uuid.New()

	page := newPage("/articles/one", siteID)
	require.NoError(t, repo.CreatePage(ctx, page))

	got, err := repo.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.URL, got.URL)
	assert.Equal(t, page.RecordID, got.RecordID)
	assert.Equal(t, page.SiteID, got.SiteID)
	assert.WithinDuration(t, page.CreatedAt, got.CreatedAt, time.Millisecond)

	byURL, err := repo.GetPageByURL(ctx, "/articles/one")
	require.NoError(t, err)
	assert.Equal(t, page.ID, byURL.ID)

	_, err = repo.GetPageByURL(ctx, "/articles/missing")
	assert.ErrorIs(t, err, simplepages.ErrPageNotFound)

	pages, err := repo.ListPagesByType(ctx, "article", siteID)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	require.NoError(t, repo.DeletePage(ctx, page.ID))
	assert.ErrorIs(t, repo.DeletePage(ctx, page.ID), simplepages.ErrPageNotFound)
}

func TestPageUniqueConstraints(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	siteID := uuid.New()

	first := newPage("/articles/one", siteID)
	require.NoError(t, repo.CreatePage(ctx, first))

	dupURL := newPage("/articles/one", siteID)
	assert.ErrorIs(t, repo.CreatePage(ctx, dupURL), simplepages.ErrConstraintViolation)

	dupBinding := newPage("/articles/two", siteID)
	dupBinding.RecordID = first.RecordID
	assert.ErrorIs(t, repo.CreatePage(ctx, dupBinding), simplepages.ErrConstraintViolation)
}

func TestRecordSchemaAndCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	desc := articleDescriptor()

	require.NoError(t, repo.EnsureTypeSchema(ctx, desc))

	now := time.Now().UTC()
	record := &simplepages.TypedRecord{
		ID:       uuid.New(),
		PageID:   uuid.New(),
		TypeName: "article",
		Fields: map[string]interface{}{
			"title":     "One",
			"body":      "Body text",
			"views":     int64(7),
			"published": true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateRecord(ctx, record))

	got, err := repo.GetRecord(ctx, "article", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.PageID, got.PageID)
	assert.Equal(t, "One", got.Fields["title"])
	assert.Equal(t, int64(7), got.Fields["views"])
	// Booleans come back as the driver stores them.
	assert.Equal(t, int64(1), got.Fields["published"])

	record.Fields["title"] = "Two"
	require.NoError(t, repo.UpdateRecord(ctx, record))
	updated, err := repo.GetRecord(ctx, "article", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Two", updated.Fields["title"])

	list, err := repo.ListRecords(ctx, "article")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteRecord(ctx, "article", record.ID))
	_, err = repo.GetRecord(ctx, "article", record.ID)
	assert.ErrorIs(t, err, simplepages.ErrRecordNotFound)
}

func TestEnsureTypeSchemaIsAdditive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	desc := articleDescriptor()

	require.NoError(t, repo.EnsureTypeSchema(ctx, desc))

	now := time.Now().UTC()
	record := &simplepages.TypedRecord{
		ID:        uuid.New(),
		TypeName:  "article",
		Fields:    map[string]interface{}{"title": "Kept"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateRecord(ctx, record))

	// Re-reconciling with an extra field keeps existing rows and columns.
	desc.Fields = append(desc.Fields, simplepages.FieldDefinition{
		Name: "subtitle", Kind: simplepages.FieldKindString,
	})
	require.NoError(t, repo.EnsureTypeSchema(ctx, desc))
	require.NoError(t, repo.EnsureTypeSchema(ctx, desc))

	got, err := repo.GetRecord(ctx, "article", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Fields["title"])
	assert.Contains(t, got.Fields, "subtitle")
}

func TestDropTypeSchema(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureTypeSchema(ctx, articleDescriptor()))
	require.NoError(t, repo.DropTypeSchema(ctx, "article"))

	_, err := repo.ListRecords(ctx, "article")
	assert.Error(t, err, "listing after a drop must fail until the schema is ensured again")

	require.NoError(t, repo.EnsureTypeSchema(ctx, articleDescriptor()))
	records, err := repo.ListRecords(ctx, "article")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInvalidTypeNameRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"", "Article", "a-b", "pages; DROP TABLE pages"} {
		_, err := repo.GetRecord(ctx, name, uuid.New())
		assert.Error(t, err, name)
	}
}

func TestChildRecordsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	recordID := uuid.New()

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.CreateChildRecord(ctx, &simplepages.ChildRecord{
			ID:        uuid.New(),
			RecordID:  recordID,
			Relation:  "dishes",
			Fields:    map[string]interface{}{"name": "dish", "position": float64(i)},
			CreatedAt: time.Now().UTC(),
		}))
	}

	children, err := repo.ListChildRecords(ctx, recordID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "dishes", children[0].Relation)
	assert.Equal(t, "dish", children[0].Fields["name"])

	require.NoError(t, repo.DeleteChildRecords(ctx, recordID))
	children, err = repo.ListChildRecords(ctx, recordID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestTypeActivationConstraint(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	siteID := uuid.New()

	activation := &simplepages.TypeActivation{
		ID:        uuid.New(),
		TypeName:  "article",
		SiteID:    siteID,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateTypeActivation(ctx, activation))

	dup := &simplepages.TypeActivation{
		ID:        uuid.New(),
		TypeName:  "article",
		SiteID:    siteID,
		CreatedAt: time.Now().UTC(),
	}
	assert.ErrorIs(t, repo.CreateTypeActivation(ctx, dup), simplepages.ErrConstraintViolation)

	got, err := repo.GetTypeActivation(ctx, "article", siteID)
	require.NoError(t, err)
	assert.Equal(t, activation.ID, got.ID)

	require.NoError(t, repo.DeleteTypeActivation(ctx, "article", siteID))
	_, err = repo.GetTypeActivation(ctx, "article", siteID)
	assert.ErrorIs(t, err, simplepages.ErrActivationNotFound)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	siteID := uuid.New()

	sentinel := errors.New("abort")
	err := repo.WithTx(ctx, func(tx simplepages.Repository) error {
		if err := tx.CreatePage(ctx, newPage("/articles/discarded", siteID)); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = repo.GetPageByURL(ctx, "/articles/discarded")
	assert.ErrorIs(t, err, simplepages.ErrPageNotFound)

	err = repo.WithTx(ctx, func(tx simplepages.Repository) error {
		return tx.CreatePage(ctx, newPage("/articles/committed", siteID))
	})
	require.NoError(t, err)

	_, err = repo.GetPageByURL(ctx, "/articles/committed")
	assert.NoError(t, err)
}
