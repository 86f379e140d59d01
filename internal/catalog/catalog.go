// Package catalog exposes the workflow template catalog to run
// coordination: published-version lookup and per-run pricing.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
)

// ErrNotPublished is returned when a template exists but is not visible
// in the catalog, or has no current version.
var ErrNotPublished = errors.New("template is not published or has no current version")

// Catalog resolves templates and versions with catalog visibility rules.
type Catalog struct {
	templates *repository.TemplateRepository
}

// New creates a Catalog over the template repository.
func New(templates *repository.TemplateRepository) *Catalog {
	return &Catalog{templates: templates}
}

// FindPublishedVersion returns the template and its current version,
// enforcing catalog visibility: unpublished or soft-deleted templates and
// templates without a current version fail.
func (c *Catalog) FindPublishedVersion(ctx context.Context, templateID, tenantID string) (*models.Template, *models.TemplateVersion, error) {
	template, version, err := c.templates.GetPublished(ctx, templateID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Distinguish a missing template from an unpublished one.
			if _, lookupErr := c.templates.GetByID(ctx, templateID, tenantID); lookupErr == nil {
				return nil, nil, ErrNotPublished
			}
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("finding published version of template %s: %w", templateID, err)
	}
	return template, version, nil
}

// PriceForVersion returns the per-run credit price of the template owning
// the given version. Soft-deleted templates are included: a template may
// have been withdrawn after a run was created, but its original price
// still applies to retries of that run.
func (c *Catalog) PriceForVersion(ctx context.Context, versionID, tenantID string) (int64, error) {
	template, err := c.templates.GetTemplateByVersion(ctx, versionID, tenantID, true)
	if err != nil {
		return 0, fmt.Errorf("pricing version %s: %w", versionID, err)
	}
	return template.CreditsPerRun, nil
}
