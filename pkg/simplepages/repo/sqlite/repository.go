package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository implements simplepages.Repository using SQLite
type Repository struct {
	q  querier
	db *sql.DB
}

// Open initializes or connects to a SQLite database at path and applies the
// base schema. Per-type record tables are provisioned by EnsureTypeSchema at
// install time.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	repo := &Repository{q: db, db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			type_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			site_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (type_name, record_id)
		)`,
		`CREATE TABLE IF NOT EXISTS page_children (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			relation TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_page_children_record ON page_children (record_id)`,
		`CREATE TABLE IF NOT EXISTS navigation_items (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			page_id TEXT,
			label TEXT NOT NULL,
			url TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS type_activations (
			id TEXT PRIMARY KEY,
			type_name TEXT NOT NULL,
			site_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (type_name, site_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isConstraintErr(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text;
	// SQLITE_CONSTRAINT covers unique and foreign key violations alike.
	return err != nil && strings.Contains(err.Error(), "constraint")
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Page operations

func (r *Repository) CreatePage(ctx context.Context, page *simplepages.Page) error {
	query := `
		INSERT INTO pages (id, url, type_name, record_id, site_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, query,
		page.ID.String(), page.URL, page.TypeName, page.RecordID.String(),
		page.SiteID.String(), encodeTime(page.CreatedAt), encodeTime(page.UpdatedAt))
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("create page: %w", simplepages.ErrConstraintViolation)
		}
		return fmt.Errorf("create page: %w", err)
	}
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplepages.Page, error) {
	query := `
		SELECT id, url, type_name, record_id, site_id, created_at, updated_at
		FROM pages WHERE id = ?`
	return scanPage(r.q.QueryRowContext(ctx, query, id.String()))
}

func (r *Repository) GetPageByURL(ctx context.Context, url string) (*simplepages.Page, error) {
	query := `
		SELECT id, url, type_name, record_id, site_id, created_at, updated_at
		FROM pages WHERE url = ?`
	return scanPage(r.q.QueryRowContext(ctx, query, url))
}

func scanPage(row *sql.Row) (*simplepages.Page, error) {
	var page simplepages.Page
	var id, recordID, siteID, createdAt, updatedAt string
	err := row.Scan(&id, &page.URL, &page.TypeName, &recordID, &siteID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simplepages.ErrPageNotFound
		}
		return nil, fmt.Errorf("get page: %w", err)
	}
	page.ID, _ = uuid.Parse(id)
	page.RecordID, _ = uuid.Parse(recordID)
	page.SiteID, _ = uuid.Parse(siteID)
	page.CreatedAt = decodeTime(createdAt)
	page.UpdatedAt = decodeTime(updatedAt)
	return &page, nil
}

func (r *Repository) UpdatePage(ctx context.Context, page *simplepages.Page) error {
	query := `UPDATE pages SET url = ?, site_id = ?, updated_at = ? WHERE id = ?`

	res, err := r.q.ExecContext(ctx, query,
		page.URL, page.SiteID.String(), encodeTime(page.UpdatedAt), page.ID.String())
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("update page: %w", simplepages.ErrConstraintViolation)
		}
		return fmt.Errorf("update page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return simplepages.ErrPageNotFound
	}
	return nil
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return simplepages.ErrPageNotFound
	}
	return nil
}

func (r *Repository) ListPagesByType(ctx context.Context, typeName string, siteID uuid.UUID) ([]*simplepages.Page, error) {
	query := `
		SELECT id, url, type_name, record_id, site_id, created_at, updated_at
		FROM pages WHERE type_name = ? AND site_id = ? ORDER BY url`

	rows, err := r.q.QueryContext(ctx, query, typeName, siteID.String())
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var result []*simplepages.Page
	for rows.Next() {
		var page simplepages.Page
		var id, recordID, site, createdAt, updatedAt string
		if err := rows.Scan(&id, &page.URL, &page.TypeName, &recordID, &site, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		page.ID, _ = uuid.Parse(id)
		page.RecordID, _ = uuid.Parse(recordID)
		page.SiteID, _ = uuid.Parse(site)
		page.CreatedAt = decodeTime(createdAt)
		page.UpdatedAt = decodeTime(updatedAt)
		result = append(result, &page)
	}
	return result, rows.Err()
}

// Typed record operations

func (r *Repository) CreateRecord(ctx context.Context, record *simplepages.TypedRecord) error {
	table, err := recordTable(record.TypeName)
	if err != nil {
		return err
	}

	columns := []string{"id", "page_id", "created_at", "updated_at"}
	args := []interface{}{
		record.ID.String(), record.PageID.String(),
		encodeTime(record.CreatedAt), encodeTime(record.UpdatedAt),
	}
	for _, name := range record.FieldNames() {
		columns = append(columns, quoteIdent(name))
		args = append(args, record.Fields[name])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "))
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("create record: %w", simplepages.ErrConstraintViolation)
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, typeName string, id uuid.UUID) (*simplepages.TypedRecord, error) {
	table, err := recordTable(typeName)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id.String())
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get record: %w", err)
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

	assignments := []string{"updated_at = ?"}
	args := []interface{}{encodeTime(record.UpdatedAt)}
	for _, name := range record.FieldNames() {
		assignments = append(assignments, quoteIdent(name)+" = ?")
		args = append(args, record.Fields[name])
	}
	args = append(args, record.ID.String())

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(assignments, ", "))
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return simplepages.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, typeName string, id uuid.UUID) error {
	table, err := recordTable(typeName)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id.String())
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return simplepages.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) ListRecords(ctx context.Context, typeName string) ([]*simplepages.TypedRecord, error) {
	table, err := recordTable(typeName)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", table))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
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

func scanRecord(rows *sql.Rows, typeName string) (*simplepages.TypedRecord, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	values := make([]interface{}, len(columns))
	targets := make([]interface{}, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	record := &simplepages.TypedRecord{
		TypeName: typeName,
		Fields:   make(map[string]interface{}),
	}
	for i, column := range columns {
		value := values[i]
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		switch column {
		case "id":
			if s, ok := value.(string); ok {
				record.ID, _ = uuid.Parse(s)
			}
		case "page_id":
			if s, ok := value.(string); ok {
				record.PageID, _ = uuid.Parse(s)
			}
		case "created_at":
			if s, ok := value.(string); ok {
				record.CreatedAt = decodeTime(s)
			}
		case "updated_at":
			if s, ok := value.(string); ok {
				record.UpdatedAt = decodeTime(s)
			}
		default:
			record.Fields[column] = value
		}
	}
	return record, nil
}

// Child collection operations

func (r *Repository) CreateChildRecord(ctx context.Context, child *simplepages.ChildRecord) error {
	fields, err := json.Marshal(child.Fields)
	if err != nil {
		return fmt.Errorf("marshal child fields: %w", err)
	}

	query := `
		INSERT INTO page_children (id, record_id, relation, fields, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, query,
		child.ID.String(), child.RecordID.String(), child.Relation, string(fields), encodeTime(child.CreatedAt))
	if err != nil {
		return fmt.Errorf("create child record: %w", err)
	}
	return nil
}

func (r *Repository) ListChildRecords(ctx context.Context, recordID uuid.UUID) ([]*simplepages.ChildRecord, error) {
	query := `
		SELECT id, record_id, relation, fields, created_at
		FROM page_children WHERE record_id = ? ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query, recordID.String())
	if err != nil {
		return nil, fmt.Errorf("list child records: %w", err)
	}
	defer rows.Close()

	var result []*simplepages.ChildRecord
	for rows.Next() {
		var child simplepages.ChildRecord
		var id, record, fields, createdAt string
		if err := rows.Scan(&id, &record, &child.Relation, &fields, &createdAt); err != nil {
			return nil, fmt.Errorf("list child records: %w", err)
		}
		child.ID, _ = uuid.Parse(id)
		child.RecordID, _ = uuid.Parse(record)
		child.CreatedAt = decodeTime(createdAt)
		if err := json.Unmarshal([]byte(fields), &child.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal child fields: %w", err)
		}
		result = append(result, &child)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteChildRecords(ctx context.Context, recordID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM page_children WHERE record_id = ?`, recordID.String()); err != nil {
		return fmt.Errorf("delete child records: %w", err)
	}
	return nil
}

// Navigation operations

func (r *Repository) CreateNavigationItem(ctx context.Context, item *simplepages.NavigationItem) error {
	query := `
		INSERT INTO navigation_items (id, site_id, page_id, label, url, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		item.ID.String(), item.SiteID.String(), item.PageID.String(),
		item.Label, item.URL, item.Position, encodeTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("create navigation item: %w", err)
	}
	return nil
}

func (r *Repository) ListNavigationItems(ctx context.Context, siteID uuid.UUID) ([]*simplepages.NavigationItem, error) {
	query := `
		SELECT id, site_id, page_id, label, url, position, created_at
		FROM navigation_items WHERE site_id = ? ORDER BY position, url`

	rows, err := r.q.QueryContext(ctx, query, siteID.String())
	if err != nil {
		return nil, fmt.Errorf("list navigation items: %w", err)
	}
	defer rows.Close()

	var result []*simplepages.NavigationItem
	for rows.Next() {
		var item simplepages.NavigationItem
		var id, site, pageID, createdAt string
		if err := rows.Scan(&id, &site, &pageID, &item.Label, &item.URL, &item.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("list navigation items: %w", err)
		}
		item.ID, _ = uuid.Parse(id)
		item.SiteID, _ = uuid.Parse(site)
		item.PageID, _ = uuid.Parse(pageID)
		item.CreatedAt = decodeTime(createdAt)
		result = append(result, &item)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteNavigationItemsByPage(ctx context.Context, pageID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM navigation_items WHERE page_id = ?`, pageID.String()); err != nil {
		return fmt.Errorf("delete navigation items: %w", err)
	}
	return nil
}

// Type activation operations

func (r *Repository) CreateTypeActivation(ctx context.Context, activation *simplepages.TypeActivation) error {
	query := `
		INSERT INTO type_activations (id, type_name, site_id, created_at)
		VALUES (?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		activation.ID.String(), activation.TypeName, activation.SiteID.String(), encodeTime(activation.CreatedAt))
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("create type activation: %w", simplepages.ErrConstraintViolation)
		}
		return fmt.Errorf("create type activation: %w", err)
	}
	return nil
}

func (r *Repository) GetTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) (*simplepages.TypeActivation, error) {
	query := `
		SELECT id, type_name, site_id, created_at
		FROM type_activations WHERE type_name = ? AND site_id = ?`

	var activation simplepages.TypeActivation
	var id, site, createdAt string
	err := r.q.QueryRowContext(ctx, query, typeName, siteID.String()).Scan(
		&id, &activation.TypeName, &site, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, simplepages.ErrActivationNotFound
		}
		return nil, fmt.Errorf("get type activation: %w", err)
	}
	activation.ID, _ = uuid.Parse(id)
	activation.SiteID, _ = uuid.Parse(site)
	activation.CreatedAt = decodeTime(createdAt)
	return &activation, nil
}

func (r *Repository) DeleteTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM type_activations WHERE type_name = ? AND site_id = ?`, typeName, siteID.String())
	if err != nil {
		return fmt.Errorf("delete type activation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
		id TEXT PRIMARY KEY,
		page_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, table)
	if _, err := r.q.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ensure type schema: %w", err)
	}

	existing, err := r.tableColumns(ctx, table)
	if err != nil {
		return err
	}

	// Additive reconciliation only: new fields become new columns, existing
	// columns are never dropped or retyped.
	for _, f := range desc.Fields {
		if existing[f.Name] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, quoteIdent(f.Name), columnType(f.Kind))
		if _, err := r.q.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("ensure type schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

func (r *Repository) DropTypeSchema(ctx context.Context, typeName string) error {
	table, err := recordTable(typeName)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("drop type schema: %w", err)
	}
	return nil
}

func columnType(kind simplepages.FieldKind) string {
	switch kind {
	case simplepages.FieldKindInt, simplepages.FieldKindBool:
		return "INTEGER"
	case simplepages.FieldKindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

var typeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func recordTable(typeName string) (string, error) {
	if !typeNamePattern.MatchString(typeName) {
		return "", fmt.Errorf("invalid type name %q", typeName)
	}
	return quoteIdent("pt_" + typeName), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// WithTx runs fn inside a database transaction. When the repository is
// already transaction-scoped, fn joins the enclosing transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(simplepages.Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Repository{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
