package simplepages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope member names. Members not in this set delegate to the typed
// record; members in it never do, even when the type declares a field with
// the same name.
const (
	MemberID        = "id"
	MemberURL       = "url"
	MemberType      = "type"
	MemberRecordID  = "record_id"
	MemberSiteID    = "site_id"
	MemberCreatedAt = "created_at"
	MemberUpdatedAt = "updated_at"
)

func isEnvelopeMember(name string) bool {
	switch strings.ToLower(name) {
	case MemberID, MemberURL, MemberType, MemberRecordID, MemberSiteID, MemberCreatedAt, MemberUpdatedAt:
		return true
	}
	return false
}

// Proxy presents one Page envelope and its typed record as a single logical
// object. Member access resolves against the envelope first and falls back to
// the typed record, which is fetched lazily and cached for the proxy's
// lifetime. A proxy is not safe for concurrent use and carries no
// cross-request cache.
type Proxy struct {
	repo     Repository
	registry *TypeRegistry

	page   *Page
	desc   *TypeDescriptor
	record *TypedRecord
}

// Page returns a copy of the underlying envelope record.
func (p *Proxy) Page() Page {
	return *p.page
}

// Record returns the resolved typed record, fetching it on first use.
func (p *Proxy) Record(ctx context.Context) (*TypedRecord, error) {
	if err := p.resolveRecord(ctx); err != nil {
		return nil, err
	}
	return p.record, nil
}

// Get resolves a member by name: envelope members first, then the typed
// record's declared fields. A member absent on both sides is
// ErrUnknownMember.
func (p *Proxy) Get(ctx context.Context, member string) (interface{}, error) {
	switch strings.ToLower(member) {
	case MemberID:
		return p.page.ID, nil
	case MemberURL:
		return p.page.URL, nil
	case MemberType:
		return p.page.TypeName, nil
	case MemberRecordID:
		return p.page.RecordID, nil
	case MemberSiteID:
		return p.page.SiteID, nil
	case MemberCreatedAt:
		return p.page.CreatedAt, nil
	case MemberUpdatedAt:
		return p.page.UpdatedAt, nil
	}

	if err := p.resolveRecord(ctx); err != nil {
		return nil, err
	}
	if _, declared := p.desc.Field(member); !declared {
		return nil, &PageError{PageID: p.page.ID, Member: member, Op: "get", Err: ErrUnknownMember}
	}
	v, _ := p.record.Get(member)
	return v, nil
}

// Set writes a member by name. Envelope members url and site_id are written
// to the envelope; identity and timestamps are read-only. All other members
// are forwarded to the typed record's in-memory state and persisted only by
// Save.
func (p *Proxy) Set(ctx context.Context, member string, value interface{}) error {
	switch strings.ToLower(member) {
	case MemberURL:
		s, ok := value.(string)
		if !ok {
			return &PageError{PageID: p.page.ID, Member: member, Op: "set", Err: ErrInvalidFieldValue}
		}
		p.page.URL = s
		return nil
	case MemberSiteID:
		id, ok := value.(uuid.UUID)
		if !ok {
			return &PageError{PageID: p.page.ID, Member: member, Op: "set", Err: ErrInvalidFieldValue}
		}
		p.page.SiteID = id
		return nil
	case MemberID, MemberType, MemberRecordID, MemberCreatedAt, MemberUpdatedAt:
		return &PageError{PageID: p.page.ID, Member: member, Op: "set", Err: ErrReadOnlyMember}
	}

	if err := p.resolveRecord(ctx); err != nil {
		return err
	}
	if _, declared := p.desc.Field(member); !declared {
		return &PageError{PageID: p.page.ID, Member: member, Op: "set", Err: ErrUnknownMember}
	}
	if err := p.desc.ValidateValue(member, value); err != nil {
		return &PageError{PageID: p.page.ID, Member: member, Op: "set", Err: err}
	}
	p.record.Set(member, value)
	return nil
}

// Bind associates an unbound proxy with an existing typed record. The record
// must be of the proxy's type.
func (p *Proxy) Bind(record *TypedRecord) error {
	if record.TypeName != p.page.TypeName {
		return &PageError{
			PageID: p.page.ID,
			Op:     "bind",
			Err:    fmt.Errorf("record type %q does not match page type %q: %w", record.TypeName, p.page.TypeName, ErrTypeMismatch),
		}
	}
	p.record = record
	p.page.RecordID = record.ID
	return nil
}

// Save persists both sides of the proxy as one unit. For a new proxy it
// creates the typed record and the envelope with the foreign-key binding set;
// for an existing one it persists pending changes to each side. Either both
// sides commit or the whole operation is rolled back and reported as a
// partial-persistence failure.
func (p *Proxy) Save(ctx context.Context) error {
	if err := p.resolveRecord(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()

	if p.page.ID == uuid.Nil {
		if p.page.URL == "" {
			return &PageError{Op: "save", Err: fmt.Errorf("url is required before first save")}
		}

		p.page.ID = uuid.New()
		p.page.CreatedAt = now
		p.page.UpdatedAt = now
		if p.record.ID == uuid.Nil {
			p.record.ID = uuid.New()
			p.record.CreatedAt = now
		}
		p.record.PageID = p.page.ID
		p.record.UpdatedAt = now
		p.page.RecordID = p.record.ID

		err := p.repo.WithTx(ctx, func(tx Repository) error {
			if err := tx.CreateRecord(ctx, p.record); err != nil {
				return err
			}
			return tx.CreatePage(ctx, p.page)
		})
		if err != nil {
			// Undo the in-memory identity assignment so a retry starts clean.
			p.page.ID = uuid.Nil
			p.page.RecordID = uuid.Nil
			p.record.ID = uuid.Nil
			p.record.PageID = uuid.Nil
			return &PageError{Op: "save", Err: fmt.Errorf("%w: %w", ErrPartialPersistence, err)}
		}
		return nil
	}

	p.page.UpdatedAt = now
	p.record.UpdatedAt = now
	err := p.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.UpdateRecord(ctx, p.record); err != nil {
			return err
		}
		return tx.UpdatePage(ctx, p.page)
	})
	if err != nil {
		return &PageError{PageID: p.page.ID, Op: "save", Err: fmt.Errorf("%w: %w", ErrPartialPersistence, err)}
	}
	return nil
}

// resolveRecord fetches (or, for an unbound proxy, builds) the typed side and
// caches it. Resolution fails with ErrTypeNotRegistered when the envelope
// names a type the registry does not know.
func (p *Proxy) resolveRecord(ctx context.Context) error {
	if p.record != nil {
		return nil
	}

	if p.desc == nil {
		desc, err := p.registry.Get(p.page.TypeName)
		if err != nil {
			return &PageError{PageID: p.page.ID, Op: "resolve", Err: err}
		}
		p.desc = desc
	}

	if p.page.RecordID == uuid.Nil {
		// Unbound proxy from NewPage: start from declared defaults.
		p.record = &TypedRecord{
			TypeName: p.page.TypeName,
			Fields:   p.desc.DefaultFields(),
		}
		return nil
	}

	record, err := p.repo.GetRecord(ctx, p.page.TypeName, p.page.RecordID)
	if err != nil {
		return &PageError{PageID: p.page.ID, Op: "resolve", Err: err}
	}
	if record.TypeName != p.page.TypeName {
		return &PageError{
			PageID: p.page.ID,
			Op:     "resolve",
			Err:    fmt.Errorf("record type %q does not match page type %q: %w", record.TypeName, p.page.TypeName, ErrTypeMismatch),
		}
	}
	normalizeRecordFields(p.desc, record)
	p.record = record
	return nil
}

// normalizeRecordFields coerces driver-native values (int64 booleans, byte
// slices) back to the kinds the descriptor declares.
func normalizeRecordFields(desc *TypeDescriptor, record *TypedRecord) {
	for name, value := range record.Fields {
		def, ok := desc.Field(name)
		if !ok {
			continue
		}
		switch def.Kind {
		case FieldKindBool:
			switch v := value.(type) {
			case int64:
				record.Fields[name] = v != 0
			case int:
				record.Fields[name] = v != 0
			}
		case FieldKindText, FieldKindString, FieldKindEnum:
			if b, ok := value.([]byte); ok {
				record.Fields[name] = string(b)
			}
		case FieldKindInt:
			if f, ok := value.(float64); ok {
				record.Fields[name] = int64(f)
			}
		case FieldKindFloat:
			if i, ok := value.(int64); ok {
				record.Fields[name] = float64(i)
			}
		}
	}
}
