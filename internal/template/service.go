package template

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scorecard.org/internal/ids"
	"scorecard.org/internal/validate"
)

// Store describes persistence operations required by the registry.
type Store interface {
	CreateTemplate(ctx context.Context, tmpl *Template) error
	// UpdateTemplate replaces the template row and its entire category and
	// parameter subtree inside one transaction.
	UpdateTemplate(ctx context.Context, tmpl *Template) error
	SetTemplatePublished(ctx context.Context, id string, published bool) error
	DeleteTemplate(ctx context.Context, id string) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
}

// Service enforces template definition rules and the publish workflow.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs the registry service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source. Only intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Create validates and stores a new draft template.
func (s *Service) Create(ctx context.Context, createdBy string, tmpl *Template) (*Template, error) {
	if err := normalize(tmpl); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	tmpl.ID = ids.New()
	tmpl.CreatedBy = createdBy
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	tmpl.Published = false
	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Update replaces the template's fields and its full category/parameter
// subtree. Caller-supplied category and parameter identifiers are preserved
// so sheet evaluations keep pointing at the same parameters across an edit;
// children without an id receive a fresh one.
func (s *Service) Update(ctx context.Context, id string, tmpl *Template) (*Template, error) {
	existing, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := normalize(tmpl); err != nil {
		return nil, err
	}
	tmpl.ID = existing.ID
	tmpl.CreatedBy = existing.CreatedBy
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.Published = existing.Published
	tmpl.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Publish marks the template as selectable for new sheets. It fails with
// ErrConflict unless the total weightage across all categories is exactly 100.
func (s *Service) Publish(ctx context.Context, id string) (*Template, error) {
	tmpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if total := tmpl.TotalWeightage(); total != 100 {
		return nil, fmt.Errorf("%w: total weightage is %d, must be exactly 100", ErrConflict, total)
	}
	if err := s.store.SetTemplatePublished(ctx, id, true); err != nil {
		return nil, err
	}
	tmpl.Published = true
	return tmpl, nil
}

// Unpublish reverts the template to draft. Always succeeds for an existing
// template; sheets already created from it are unaffected.
func (s *Service) Unpublish(ctx context.Context, id string) (*Template, error) {
	tmpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetTemplatePublished(ctx, id, false); err != nil {
		return nil, err
	}
	tmpl.Published = false
	return tmpl, nil
}

// Delete removes the template. The store refuses with ErrConflict while any
// sheet still references it; deletion never cascades to sheets.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteTemplate(ctx, id)
}

// Get returns one template with its full subtree.
func (s *Service) Get(ctx context.Context, id string) (*Template, error) {
	return s.store.GetTemplate(ctx, id)
}

// List returns all templates.
func (s *Service) List(ctx context.Context) ([]*Template, error) {
	return s.store.ListTemplates(ctx)
}

// normalize trims input, checks the definition rules and assigns identifiers
// to new categories and parameters.
func normalize(tmpl *Template) error {
	var verr validate.Error

	tmpl.Name = strings.TrimSpace(tmpl.Name)
	if tmpl.Name == "" {
		verr.Add("name", "name is required")
	}
	if !tmpl.Type.Valid() {
		verr.Add("type", "unknown template type %q", tmpl.Type)
	}

	for i := range tmpl.Categories {
		cat := &tmpl.Categories[i]
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Name == "" {
			verr.Add(fmt.Sprintf("categories[%d].name", i), "name is required")
		}
		if strings.TrimSpace(cat.ID) == "" {
			cat.ID = uuid.NewString()
		}
		for j := range cat.Parameters {
			param := &cat.Parameters[j]
			param.Name = strings.TrimSpace(param.Name)
			if param.Name == "" {
				verr.Add(fmt.Sprintf("categories[%d].parameters[%d].name", i, j), "name is required")
			}
			if !WeightageAllowed(param.Weightage) {
				verr.Add(fmt.Sprintf("categories[%d].parameters[%d].weightage", i, j),
					"weightage %d is not one of %v", param.Weightage, AllowedWeightages)
			}
			if strings.TrimSpace(param.ID) == "" {
				param.ID = uuid.NewString()
			}
		}
	}
	return verr.Err()
}
