package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplepages.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository over an existing connection or transaction
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// Migrate creates the base tables. Per-type record tables are provisioned by
// EnsureTypeSchema at install time.
func (r *Repository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			type_name TEXT NOT NULL,
			record_id UUID NOT NULL,
			site_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (type_name, record_id)
		)`,
		`CREATE TABLE IF NOT EXISTS page_children (
			id UUID PRIMARY KEY,
			record_id UUID NOT NULL,
			relation TEXT NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_page_children_record ON page_children (record_id)`,
		`CREATE TABLE IF NOT EXISTS navigation_items (
			id UUID PRIMARY KEY,
			site_id UUID NOT NULL,
			page_id UUID,
			label TEXT NOT NULL,
			url TEXT NOT NULL,
			position INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS type_activations (
			id UUID PRIMARY KEY,
			type_name TEXT NOT NULL,
			site_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (type_name, site_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// handlePostgresError maps driver errors onto the library's error kinds.
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %s: %w", operation, pgErr.ConstraintName, simplepages.ErrConstraintViolation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found", operation)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - install the type first", operation)
		}
		return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Page operations

func (r *Repository) CreatePage(ctx context.Context, page *simplepages.Page) error {
	query := `
		INSERT INTO pages (id, url, type_name, record_id, site_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		page.ID, page.URL, page.TypeName, page.RecordID, page.SiteID,
		page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return handlePostgresError("create page", err)
	}
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplepages.Page, error) {
	query := `
		SELECT id, url, type_name, record_id, site_id, created_at, updated_at
		FROM pages WHERE id = $1`

	return r.scanPage(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) GetPageByURL(ctx context.Context, url string) (*simplepages.Page, error) {
	query := `
		SELECT id, url, type_name, record_id, site_id, created_at, updated_at
		FROM pages WHERE url = $1`

	return r.scanPage(r.db.QueryRow(ctx, query, url))
}

func (r *Repository) scanPage(row pgx.Row) (*simplepages.Page, error) {
	var page simplepages.Page
	err := row.Scan(&page.ID, &page.URL, &page.TypeName, &page.RecordID,
		&page.SiteID, &page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepages.ErrPageNotFound
		}
		return nil, handlePostgresError("get page", err)
	}
	return &page, nil
}

func (r *Repository) UpdatePage(ctx context.Context, page *simplepages.Page) error {
	query := `
		UPDATE pages SET url = $2, site_id = $3, updated_at = $4 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, page.ID, page.URL, page.SiteID, page.UpdatedAt)
	if err != nil {
		return handlePostgresError("update page", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrPageNotFound
	}
	return nil
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete page", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrPageNotFound
	}
	return nil
}

func (r *Repository) ListPagesByType(ctx context.Context, typeName string, siteID uuid.UUID) ([]*simplepages.Page, error) {
	query := `
		SELECT id, url, type_name, record_id, site_id, created_at, updated_at
		FROM pages WHERE type_name = $1 AND site_id = $2 ORDER BY url`

	rows, err := r.db.Query(ctx, query, typeName, siteID)
	if err != nil {
		return nil, handlePostgresError("list pages", err)
	}
	defer rows.Close()

	var result []*simplepages.Page
	for rows.Next() {
		var page simplepages.Page
		if err := rows.Scan(&page.ID, &page.URL, &page.TypeName, &page.RecordID,
			&page.SiteID, &page.CreatedAt, &page.UpdatedAt); err != nil {
			return nil, handlePostgresError("list pages", err)
		}
		result = append(result, &page)
	}
	return result, rows.Err()
}

// Typed record operations. Each type owns its own table with one column per
// declared field, provisioned by EnsureTypeSchema.

func (r *Repository) CreateRecord(ctx context.Context, record *simplepages.TypedRecord) error {
	table, err := recordTable(record.TypeName)
	if err != nil {
		return err
	}

	columns := []string{"id", "page_id", "created_at", "updated_at"}
	args := []interface{}{record.ID, record.PageID, record.CreatedAt, record.UpdatedAt}
	for _, name := range record.FieldNames() {
		columns = append(columns, pgx.Identifier{name}.Sanitize())
		args = append(args, record.Fields[name])
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return handlePostgresError("create record", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, typeName string, id uuid.UUID) (*simplepages.TypedRecord, error) {
	table, err := recordTable(typeName)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table), id)
	if err != nil {
		return nil, handlePostgresError("get record", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, handlePostgresError("get record", err)
		}
		return nil, simplepages.ErrRecordNotFound
	}
	return scanRecord(rows, typeName)
}

func (r *Repository) UpdateRecord(ctx context.Context, record *simplepages.TypedRecord) error {
	table, err := recordTable(record.TypeName)
	if err != nil {
		return err
	}

	assignments := []string{"updated_at = $2"}
	args := []interface{}{record.ID, record.UpdatedAt}
	for _, name := range record.FieldNames() {
		args = append(args, record.Fields[name])
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pgx.Identifier{name}.Sanitize(), len(args)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", table, strings.Join(assignments, ", "))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return handlePostgresError("update record", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, typeName string, id uuid.UUID) error {
	table, err := recordTable(typeName)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) ListRecords(ctx context.Context, typeName string) ([]*simplepages.TypedRecord, error) {
	table, err := recordTable(typeName)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", table))
	if err != nil {
		return nil, handlePostgresError("list records", err)
	}
	defer rows.Close()

	var result []*simplepages.TypedRecord
	for rows.Next() {
		record, err := scanRecord(rows, typeName)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// scanRecord builds a TypedRecord from a SELECT * row, splitting the fixed
// columns from the declared field columns.
func scanRecord(rows pgx.Rows, typeName string) (*simplepages.TypedRecord, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, handlePostgresError("scan record", err)
	}

	record := &simplepages.TypedRecord{
		TypeName: typeName,
		Fields:   make(map[string]interface{}),
	}
	for i, fd := range rows.FieldDescriptions() {
		switch fd.Name {
		case "id":
			record.ID = coerceUUID(values[i])
		case "page_id":
			record.PageID = coerceUUID(values[i])
		case "created_at":
			if t, ok := values[i].(time.Time); ok {
				record.CreatedAt = t
			}
		case "updated_at":
			if t, ok := values[i].(time.Time); ok {
				record.UpdatedAt = t
			}
		default:
			record.Fields[fd.Name] = values[i]
		}
	}
	return record, nil
}

func coerceUUID(v interface{}) uuid.UUID {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val)
	case string:
		if id, err := uuid.Parse(val); err == nil {
			return id
		}
	case uuid.UUID:
		return val
	}
	return uuid.Nil
}

// Child collection operations

func (r *Repository) CreateChildRecord(ctx context.Context, child *simplepages.ChildRecord) error {
	fields, err := json.Marshal(child.Fields)
	if err != nil {
		return fmt.Errorf("marshal child fields: %w", err)
	}

	query := `
		INSERT INTO page_children (id, record_id, relation, fields, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query, child.ID, child.RecordID, child.Relation, fields, child.CreatedAt); err != nil {
		return handlePostgresError("create child record", err)
	}
	return nil
}

func (r *Repository) ListChildRecords(ctx context.Context, recordID uuid.UUID) ([]*simplepages.ChildRecord, error) {
	query := `
		SELECT id, record_id, relation, fields, created_at
		FROM page_children WHERE record_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, recordID)
	if err != nil {
		return nil, handlePostgresError("list child records", err)
	}
	defer rows.Close()

	var result []*simplepages.ChildRecord
	for rows.Next() {
		var child simplepages.ChildRecord
		var fields []byte
		if err := rows.Scan(&child.ID, &child.RecordID, &child.Relation, &fields, &child.CreatedAt); err != nil {
			return nil, handlePostgresError("list child records", err)
		}
		if err := json.Unmarshal(fields, &child.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal child fields: %w", err)
		}
		result = append(result, &child)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteChildRecords(ctx context.Context, recordID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM page_children WHERE record_id = $1`, recordID); err != nil {
		return handlePostgresError("delete child records", err)
	}
	return nil
}

// Navigation operations

func (r *Repository) CreateNavigationItem(ctx context.Context, item *simplepages.NavigationItem) error {
	query := `
		INSERT INTO navigation_items (id, site_id, page_id, label, url, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		item.ID, item.SiteID, item.PageID, item.Label, item.URL, item.Position, item.CreatedAt)
	if err != nil {
		return handlePostgresError("create navigation item", err)
	}
	return nil
}

func (r *Repository) ListNavigationItems(ctx context.Context, siteID uuid.UUID) ([]*simplepages.NavigationItem, error) {
	query := `
		SELECT id, site_id, page_id, label, url, position, created_at
		FROM navigation_items WHERE site_id = $1 ORDER BY position, url`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, handlePostgresError("list navigation items", err)
	}
	defer rows.Close()

	var result []*simplepages.NavigationItem
	for rows.Next() {
		var item simplepages.NavigationItem
		if err := rows.Scan(&item.ID, &item.SiteID, &item.PageID, &item.Label,
			&item.URL, &item.Position, &item.CreatedAt); err != nil {
			return nil, handlePostgresError("list navigation items", err)
		}
		result = append(result, &item)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteNavigationItemsByPage(ctx context.Context, pageID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM navigation_items WHERE page_id = $1`, pageID); err != nil {
		return handlePostgresError("delete navigation items", err)
	}
	return nil
}

// Type activation operations

func (r *Repository) CreateTypeActivation(ctx context.Context, activation *simplepages.TypeActivation) error {
	query := `
		INSERT INTO type_activations (id, type_name, site_id, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query,
		activation.ID, activation.TypeName, activation.SiteID, activation.CreatedAt)
	if err != nil {
		return handlePostgresError("create type activation", err)
	}
	return nil
}

func (r *Repository) GetTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) (*simplepages.TypeActivation, error) {
	query := `
		SELECT id, type_name, site_id, created_at
		FROM type_activations WHERE type_name = $1 AND site_id = $2`

	var activation simplepages.TypeActivation
	err := r.db.QueryRow(ctx, query, typeName, siteID).Scan(
		&activation.ID, &activation.TypeName, &activation.SiteID, &activation.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepages.ErrActivationNotFound
		}
		return nil, handlePostgresError("get type activation", err)
	}
	return &activation, nil
}

func (r *Repository) DeleteTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM type_activations WHERE type_name = $1 AND site_id = $2`, typeName, siteID)
	if err != nil {
		return handlePostgresError("delete type activation", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepages.ErrActivationNotFound
	}
	return nil
}

// Schema lifecycle

func (r *Repository) EnsureTypeSchema(ctx context.Context, desc *simplepages.TypeDescriptor) error {
	table, err := recordTable(desc.Name)
	if err != nil {
		return err
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		page_id UUID,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, table)
	if _, err := r.db.Exec(ctx, create); err != nil {
		return handlePostgresError("ensure type schema", err)
	}

	// Additive reconciliation only: new fields become new columns, existing
	// columns are never dropped or retyped.
	for _, f := range desc.Fields {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			table, pgx.Identifier{f.Name}.Sanitize(), columnType(f.Kind))
		if _, err := r.db.Exec(ctx, alter); err != nil {
			return handlePostgresError("ensure type schema", err)
		}
	}
	return nil
}

func (r *Repository) DropTypeSchema(ctx context.Context, typeName string) error {
	table, err := recordTable(typeName)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return handlePostgresError("drop type schema", err)
	}
	return nil
}

func columnType(kind simplepages.FieldKind) string {
	switch kind {
	case simplepages.FieldKindInt:
		return "BIGINT"
	case simplepages.FieldKindFloat:
		return "DOUBLE PRECISION"
	case simplepages.FieldKindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

var typeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// recordTable maps a type name to its table. Type names feed into DDL, so
// anything outside the safe identifier set is rejected outright.
func recordTable(typeName string) (string, error) {
	if !typeNamePattern.MatchString(typeName) {
		return "", fmt.Errorf("invalid type name %q", typeName)
	}
	return pgx.Identifier{"pt_" + typeName}.Sanitize(), nil
}

// WithTx runs fn inside a database transaction. When the repository is
// already transaction-scoped, fn joins the enclosing transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(simplepages.Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
