package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// Repository implements simplepages.Repository using in-memory storage
type Repository struct {
	mu          sync.RWMutex
	pages       map[uuid.UUID]*simplepages.Page
	pagesByURL  map[string]uuid.UUID
	bindings    map[string]uuid.UUID // "type:record_id" -> page_id
	records     map[string]map[uuid.UUID]*simplepages.TypedRecord
	children    map[uuid.UUID][]*simplepages.ChildRecord
	navigation  map[uuid.UUID]*simplepages.NavigationItem
	activations map[string]*simplepages.TypeActivation // "type:site_id"
	schemas     map[string]*simplepages.TypeDescriptor
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		pages:       make(map[uuid.UUID]*simplepages.Page),
		pagesByURL:  make(map[string]uuid.UUID),
		bindings:    make(map[string]uuid.UUID),
		records:     make(map[string]map[uuid.UUID]*simplepages.TypedRecord),
		children:    make(map[uuid.UUID][]*simplepages.ChildRecord),
		navigation:  make(map[uuid.UUID]*simplepages.NavigationItem),
		activations: make(map[string]*simplepages.TypeActivation),
		schemas:     make(map[string]*simplepages.TypeDescriptor),
	}
}

func bindingKey(typeName string, recordID uuid.UUID) string {
	return typeName + ":" + recordID.String()
}

func activationKey(typeName string, siteID uuid.UUID) string {
	return typeName + ":" + siteID.String()
}

// Page operations

func (r *Repository) CreatePage(ctx context.Context, page *simplepages.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createPageLocked(page)
}

func (r *Repository) createPageLocked(page *simplepages.Page) error {
	if _, exists := r.pagesByURL[page.URL]; exists {
		return fmt.Errorf("duplicate url %q: %w", page.URL, simplepages.ErrConstraintViolation)
	}
	if page.RecordID != uuid.Nil {
		key := bindingKey(page.TypeName, page.RecordID)
		if _, exists := r.bindings[key]; exists {
			return fmt.Errorf("duplicate binding %s: %w", key, simplepages.ErrConstraintViolation)
		}
		r.bindings[key] = page.ID
	}

	pageCopy := *page
	r.pages[page.ID] = &pageCopy
	r.pagesByURL[page.URL] = page.ID
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplepages.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page, exists := r.pages[id]
	if !exists {
		return nil, simplepages.ErrPageNotFound
	}
	pageCopy := *page
	return &pageCopy, nil
}

func (r *Repository) GetPageByURL(ctx context.Context, url string) (*simplepages.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.pagesByURL[url]
	if !exists {
		return nil, simplepages.ErrPageNotFound
	}
	pageCopy := *r.pages[id]
	return &pageCopy, nil
}

func (r *Repository) UpdatePage(ctx context.Context, page *simplepages.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.pages[page.ID]
	if !exists {
		return simplepages.ErrPageNotFound
	}
	if existing.URL != page.URL {
		if _, taken := r.pagesByURL[page.URL]; taken {
			return fmt.Errorf("duplicate url %q: %w", page.URL, simplepages.ErrConstraintViolation)
		}
		delete(r.pagesByURL, existing.URL)
		r.pagesByURL[page.URL] = page.ID
	}

	pageCopy := *page
	r.pages[page.ID] = &pageCopy
	return nil
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	page, exists := r.pages[id]
	if !exists {
		return simplepages.ErrPageNotFound
	}
	delete(r.pagesByURL, page.URL)
	delete(r.bindings, bindingKey(page.TypeName, page.RecordID))
	delete(r.pages, id)
	return nil
}

func (r *Repository) ListPagesByType(ctx context.Context, typeName string, siteID uuid.UUID) ([]*simplepages.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplepages.Page
	for _, page := range r.pages {
		if page.TypeName == typeName && page.SiteID == siteID {
			pageCopy := *page
			result = append(result, &pageCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].URL < result[j].URL
	})
	return result, nil
}

// Typed record operations

func (r *Repository) CreateRecord(ctx context.Context, record *simplepages.TypedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.records[record.TypeName]
	if store == nil {
		store = make(map[uuid.UUID]*simplepages.TypedRecord)
		r.records[record.TypeName] = store
	}
	if _, exists := store[record.ID]; exists {
		return fmt.Errorf("duplicate record %s: %w", record.ID, simplepages.ErrConstraintViolation)
	}
	store[record.ID] = copyRecord(record)
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, typeName string, id uuid.UUID) (*simplepages.TypedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[typeName][id]
	if !exists {
		return nil, simplepages.ErrRecordNotFound
	}
	return copyRecord(record), nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *simplepages.TypedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.TypeName][record.ID]; !exists {
		return simplepages.ErrRecordNotFound
	}
	r.records[record.TypeName][record.ID] = copyRecord(record)
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, typeName string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[typeName][id]; !exists {
		return simplepages.ErrRecordNotFound
	}
	delete(r.records[typeName], id)
	return nil
}

func (r *Repository) ListRecords(ctx context.Context, typeName string) ([]*simplepages.TypedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplepages.TypedRecord
	for _, record := range r.records[typeName] {
		result = append(result, copyRecord(record))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// Child collection operations

func (r *Repository) CreateChildRecord(ctx context.Context, child *simplepages.ChildRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.children[child.RecordID] = append(r.children[child.RecordID], copyChild(child))
	return nil
}

func (r *Repository) ListChildRecords(ctx context.Context, recordID uuid.UUID) ([]*simplepages.ChildRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := r.children[recordID]
	result := make([]*simplepages.ChildRecord, 0, len(children))
	for _, child := range children {
		result = append(result, copyChild(child))
	}
	return result, nil
}

func (r *Repository) DeleteChildRecords(ctx context.Context, recordID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.children, recordID)
	return nil
}

// Navigation operations

func (r *Repository) CreateNavigationItem(ctx context.Context, item *simplepages.NavigationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	itemCopy := *item
	r.navigation[item.ID] = &itemCopy
	return nil
}

func (r *Repository) ListNavigationItems(ctx context.Context, siteID uuid.UUID) ([]*simplepages.NavigationItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplepages.NavigationItem
	for _, item := range r.navigation {
		if item.SiteID == siteID {
			itemCopy := *item
			result = append(result, &itemCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].URL < result[j].URL
	})
	return result, nil
}

func (r *Repository) DeleteNavigationItemsByPage(ctx context.Context, pageID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, item := range r.navigation {
		if item.PageID == pageID {
			delete(r.navigation, id)
		}
	}
	return nil
}

// Type activation operations

func (r *Repository) CreateTypeActivation(ctx context.Context, activation *simplepages.TypeActivation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := activationKey(activation.TypeName, activation.SiteID)
	if _, exists := r.activations[key]; exists {
		return fmt.Errorf("duplicate activation %s: %w", key, simplepages.ErrConstraintViolation)
	}
	activationCopy := *activation
	r.activations[key] = &activationCopy
	return nil
}

func (r *Repository) GetTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) (*simplepages.TypeActivation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activation, exists := r.activations[activationKey(typeName, siteID)]
	if !exists {
		return nil, simplepages.ErrActivationNotFound
	}
	activationCopy := *activation
	return &activationCopy, nil
}

func (r *Repository) DeleteTypeActivation(ctx context.Context, typeName string, siteID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := activationKey(typeName, siteID)
	if _, exists := r.activations[key]; !exists {
		return simplepages.ErrActivationNotFound
	}
	delete(r.activations, key)
	return nil
}

// Schema lifecycle

func (r *Repository) EnsureTypeSchema(ctx context.Context, desc *simplepages.TypeDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.schemas[desc.Name]
	if !exists {
		descCopy := *desc
		descCopy.Fields = append([]simplepages.FieldDefinition(nil), desc.Fields...)
		r.schemas[desc.Name] = &descCopy
		if r.records[desc.Name] == nil {
			r.records[desc.Name] = make(map[uuid.UUID]*simplepages.TypedRecord)
		}
		return nil
	}

	// Additive reconciliation: append newly declared fields, keep the rest.
	for _, f := range desc.Fields {
		if _, ok := stored.Field(f.Name); !ok {
			stored.Fields = append(stored.Fields, f)
		}
	}
	return nil
}

func (r *Repository) DropTypeSchema(ctx context.Context, typeName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.schemas, typeName)
	delete(r.records, typeName)
	return nil
}

// WithTx runs fn against a snapshot of the repository and adopts the
// snapshot's state only when fn succeeds. The repository lock is held for
// the whole transaction, which also serializes concurrent installs.
func (r *Repository) WithTx(ctx context.Context, fn func(simplepages.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.cloneLocked()
	if err := fn(tx); err != nil {
		return err
	}

	r.pages = tx.pages
	r.pagesByURL = tx.pagesByURL
	r.bindings = tx.bindings
	r.records = tx.records
	r.children = tx.children
	r.navigation = tx.navigation
	r.activations = tx.activations
	r.schemas = tx.schemas
	return nil
}

func (r *Repository) cloneLocked() *Repository {
	tx := New()
	for id, page := range r.pages {
		pageCopy := *page
		tx.pages[id] = &pageCopy
	}
	for url, id := range r.pagesByURL {
		tx.pagesByURL[url] = id
	}
	for key, id := range r.bindings {
		tx.bindings[key] = id
	}
	for typeName, store := range r.records {
		storeCopy := make(map[uuid.UUID]*simplepages.TypedRecord, len(store))
		for id, record := range store {
			storeCopy[id] = copyRecord(record)
		}
		tx.records[typeName] = storeCopy
	}
	for recordID, children := range r.children {
		list := make([]*simplepages.ChildRecord, 0, len(children))
		for _, child := range children {
			list = append(list, copyChild(child))
		}
		tx.children[recordID] = list
	}
	for id, item := range r.navigation {
		itemCopy := *item
		tx.navigation[id] = &itemCopy
	}
	for key, activation := range r.activations {
		activationCopy := *activation
		tx.activations[key] = &activationCopy
	}
	for name, desc := range r.schemas {
		descCopy := *desc
		descCopy.Fields = append([]simplepages.FieldDefinition(nil), desc.Fields...)
		tx.schemas[name] = &descCopy
	}
	return tx
}

func copyRecord(record *simplepages.TypedRecord) *simplepages.TypedRecord {
	recordCopy := *record
	recordCopy.Fields = make(map[string]interface{}, len(record.Fields))
	for k, v := range record.Fields {
		recordCopy.Fields[k] = v
	}
	return &recordCopy
}

func copyChild(child *simplepages.ChildRecord) *simplepages.ChildRecord {
	childCopy := *child
	childCopy.Fields = make(map[string]interface{}, len(child.Fields))
	for k, v := range child.Fields {
		childCopy.Fields[k] = v
	}
	return &childCopy
}
