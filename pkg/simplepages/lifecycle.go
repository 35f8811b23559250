package simplepages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Install provisions a registered type for a site: it reconciles the type's
// record schema, then seeds the sample envelope/record pair, the navigation
// entry and the type-activation record as one transaction.
//
// Re-running install reconciles the schema again (additive only) but never
// duplicates the sample data; presence of a TypeActivation for
// (type name, site id) is the detection key, and its unique constraint is the
// serialization point for concurrent installs.
func (s *service) Install(ctx context.Context, typeName string, siteID uuid.UUID) error {
	desc, err := s.registry.Get(typeName)
	if err != nil {
		return &LifecycleError{TypeName: typeName, SiteID: siteID, Op: "install", Err: err}
	}

	if err := s.repository.EnsureTypeSchema(ctx, desc); err != nil {
		return &LifecycleError{TypeName: typeName, SiteID: siteID, Op: "install", Err: err}
	}

	if _, err := s.repository.GetTypeActivation(ctx, typeName, siteID); err == nil {
		s.logger.Info("type already installed, schema reconciled", "type", typeName, "site", siteID)
		return nil
	} else if !errors.Is(err, ErrActivationNotFound) {
		return &LifecycleError{TypeName: typeName, SiteID: siteID, Op: "install", Err: err}
	}

	vars := buildInstallVars(desc, siteID)

	err = s.repository.WithTx(ctx, func(tx Repository) error {
		if err := s.hooksFor(typeName).CustomInstall(ctx, tx, vars); err != nil {
			return fmt.Errorf("custom install hook: %w", err)
		}
		return persistInstallVars(ctx, tx, vars)
	})
	if err != nil {
		return &LifecycleError{
			TypeName: typeName,
			SiteID:   siteID,
			Op:       "install",
			Err:      fmt.Errorf("%w: %w", ErrPartialPersistence, err),
		}
	}

	s.logger.Info("type installed", "type", typeName, "site", siteID)
	return nil
}

// buildInstallVars assembles the unsaved default artifacts for an install
// run. Identifiers stay zero until the persistence step commits them, so a
// hook that persists an artifact itself is detectable.
func buildInstallVars(desc *TypeDescriptor, siteID uuid.UUID) *InstallVars {
	vars := &InstallVars{
		Record: &TypedRecord{
			TypeName: desc.Name,
			Fields:   desc.DefaultFields(),
		},
		Activation: &TypeActivation{
			TypeName: desc.Name,
			SiteID:   siteID,
		},
		Extras: make(map[string]interface{}),
	}

	if desc.RequiresPage {
		vars.Page = &Page{
			URL:      samplePath(desc.Name),
			TypeName: desc.Name,
			SiteID:   siteID,
		}
		vars.Navigation = &NavigationItem{
			SiteID: siteID,
			Label:  navigationLabel(desc.Name),
			URL:    listingPath(desc.Name),
		}
	}

	return vars
}

// persistInstallVars commits whatever the hook left unsaved, in dependency
// order: typed record, envelope, activation, navigation. Artifacts that
// already carry a committed identifier, or that the hook set to nil, are
// skipped.
func persistInstallVars(ctx context.Context, tx Repository, vars *InstallVars) error {
	now := time.Now().UTC()

	// A zero identifier means the hook neither persisted the artifact nor
	// declined it; those are ours to commit.
	recordUnsaved := vars.Record != nil && vars.Record.ID == uuid.Nil
	pageUnsaved := vars.Page != nil && vars.Page.ID == uuid.Nil

	if recordUnsaved {
		vars.Record.ID = uuid.New()
		vars.Record.CreatedAt = now
		vars.Record.UpdatedAt = now
	}
	if pageUnsaved {
		vars.Page.ID = uuid.New()
		vars.Page.CreatedAt = now
		vars.Page.UpdatedAt = now
	}
	if vars.Page != nil && vars.Record != nil {
		if pageUnsaved {
			vars.Page.RecordID = vars.Record.ID
		}
		if recordUnsaved {
			vars.Record.PageID = vars.Page.ID
		}
	}

	if recordUnsaved {
		if err := tx.CreateRecord(ctx, vars.Record); err != nil {
			return fmt.Errorf("create sample record: %w", err)
		}
	}
	if pageUnsaved {
		if err := tx.CreatePage(ctx, vars.Page); err != nil {
			return fmt.Errorf("create sample page: %w", err)
		}
	}

	if vars.Activation != nil && vars.Activation.ID == uuid.Nil {
		vars.Activation.ID = uuid.New()
		vars.Activation.CreatedAt = now
		if err := tx.CreateTypeActivation(ctx, vars.Activation); err != nil {
			return fmt.Errorf("create type activation: %w", err)
		}
	}

	if vars.Navigation != nil && vars.Navigation.ID == uuid.Nil {
		vars.Navigation.ID = uuid.New()
		vars.Navigation.CreatedAt = now
		if vars.Page != nil {
			vars.Navigation.PageID = vars.Page.ID
		}
		if err := tx.CreateNavigationItem(ctx, vars.Navigation); err != nil {
			return fmt.Errorf("create navigation item: %w", err)
		}
	}

	return nil
}

// Uninstall tears a type down for a site. The optional CustomUninstall hook
// runs first and may abort the whole operation. Deletion happens in
// dependency order (children, typed records, pages, navigation entries,
// activation) inside one transaction; the flag-gated schema drop is a
// separate final step attempted only after the data deletion committed.
func (s *service) Uninstall(ctx context.Context, typeName string, siteID uuid.UUID, dropSchema bool) error {
	desc, err := s.registry.Get(typeName)
	if err != nil {
		return &LifecycleError{TypeName: typeName, SiteID: siteID, Op: "uninstall", Err: err}
	}

	if err := s.hooksFor(typeName).CustomUninstall(ctx, s.repository, desc, siteID); err != nil {
		return &LifecycleError{
			TypeName: typeName,
			SiteID:   siteID,
			Op:       "uninstall",
			Err:      fmt.Errorf("custom uninstall hook: %w", err),
		}
	}

	err = s.repository.WithTx(ctx, func(tx Repository) error {
		pages, err := tx.ListPagesByType(ctx, typeName, siteID)
		if err != nil {
			return err
		}

		for _, page := range pages {
			if page.RecordID != uuid.Nil {
				if err := tx.DeleteChildRecords(ctx, page.RecordID); err != nil {
					return fmt.Errorf("delete child records: %w", err)
				}
				if err := tx.DeleteRecord(ctx, typeName, page.RecordID); err != nil {
					return fmt.Errorf("delete record: %w", err)
				}
			}
		}
		for _, page := range pages {
			if err := tx.DeletePage(ctx, page.ID); err != nil {
				return fmt.Errorf("delete page: %w", err)
			}
		}
		for _, page := range pages {
			if err := tx.DeleteNavigationItemsByPage(ctx, page.ID); err != nil {
				return fmt.Errorf("delete navigation items: %w", err)
			}
		}

		if !desc.RequiresPage {
			// Envelope-free types keep their records outside any site
			// scope; remove whatever is left of them.
			records, err := tx.ListRecords(ctx, typeName)
			if err != nil {
				return err
			}
			for _, record := range records {
				if err := tx.DeleteChildRecords(ctx, record.ID); err != nil {
					return fmt.Errorf("delete child records: %w", err)
				}
				if err := tx.DeleteRecord(ctx, typeName, record.ID); err != nil {
					return fmt.Errorf("delete record: %w", err)
				}
			}
		}

		if err := tx.DeleteTypeActivation(ctx, typeName, siteID); err != nil && !errors.Is(err, ErrActivationNotFound) {
			return fmt.Errorf("delete type activation: %w", err)
		}
		return nil
	})
	if err != nil {
		return &LifecycleError{
			TypeName: typeName,
			SiteID:   siteID,
			Op:       "uninstall",
			Err:      fmt.Errorf("%w: %w", ErrPartialPersistence, err),
		}
	}

	if dropSchema {
		if err := s.repository.DropTypeSchema(ctx, typeName); err != nil {
			return &LifecycleError{TypeName: typeName, SiteID: siteID, Op: "uninstall", Err: err}
		}
	}

	s.logger.Info("type uninstalled", "type", typeName, "site", siteID, "schema_dropped", dropSchema)
	return nil
}

// samplePath is the generated lookup key of the sample page seeded at
// install time, e.g. /articles/sample-article.
func samplePath(typeName string) string {
	return "/" + pluralize(typeName) + "/sample-" + typeName
}

// listingPath is the generated listing lookup key the navigation entry
// points at, e.g. /articles.
func listingPath(typeName string) string {
	return "/" + pluralize(typeName)
}

func navigationLabel(typeName string) string {
	if typeName == "" {
		return ""
	}
	return strings.ToUpper(typeName[:1]) + typeName[1:] + "s"
}

func pluralize(name string) string {
	if strings.HasSuffix(name, "s") {
		return name
	}
	return name + "s"
}
