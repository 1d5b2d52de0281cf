package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scorecard.org/internal/auth"
	"scorecard.org/internal/ids"
	"scorecard.org/internal/template"
	"scorecard.org/internal/validate"
)

// ListFilter narrows and pages the sheet listing. A non-admin viewer only
// sees sheets they own or that are shared with their email, as one distinct
// set.
type ListFilter struct {
	Type   template.Type
	Status Status
	Search string
	Limit  int
	Offset int
}

// Store describes persistence operations required by the sheet service.
type Store interface {
	CreateSheet(ctx context.Context, s *Sheet) error
	// GetSheet loads the sheet with its vendors, evaluations and shares.
	GetSheet(ctx context.Context, id string) (*Sheet, error)
	// UpdateSheet writes the sheet row and replaces the whole
	// vendor/evaluation subtree, all in one transaction.
	UpdateSheet(ctx context.Context, s *Sheet) error
	DeleteSheet(ctx context.Context, id string) error
	// ListSheets returns one page plus the total count. When viewer is
	// non-admin the result is restricted to owned-or-shared sheets.
	ListSheets(ctx context.Context, viewer auth.Principal, filter ListFilter) ([]*Sheet, int, error)
	UpsertShare(ctx context.Context, share *SharedAccess) error
	DeleteShare(ctx context.Context, sheetID, email string) error
}

// TemplateSource provides template state for scoring derivation.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (*template.Template, error)
}

// UpdatePatch is a partial update of a sheet. Nil fields are left untouched.
// Vendors, when present, replaces all vendors and their evaluations
// wholesale. ExpectedVersion, when present, makes the update conditional:
// a mismatch with the stored version fails with ErrConflict instead of
// silently overwriting a concurrent edit.
type UpdatePatch struct {
	Name            *string
	Status          *Status
	Notes           *string
	Vendors         *[]Vendor
	ExpectedVersion *int
}

// Service owns decision sheets, their vendors and per-parameter evaluations.
type Service struct {
	store     Store
	templates TemplateSource
	now       func() time.Time
}

// NewService constructs the sheet service.
func NewService(store Store, templates TemplateSource) *Service {
	return &Service{store: store, templates: templates, now: time.Now}
}

// WithClock overrides the time source. Only intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Create builds a new draft sheet from a published template. Vendors without
// an evaluation matrix get one slot per parameter in every category of the
// template's current state, scored zero.
func (s *Service) Create(ctx context.Context, principal auth.Principal, sh *Sheet) (*Sheet, error) {
	var verr validate.Error
	sh.Name = strings.TrimSpace(sh.Name)
	if sh.Name == "" {
		verr.Add("name", "name is required")
	}
	if !sh.Type.Valid() {
		verr.Add("type", "unknown sheet type %q", sh.Type)
	}
	if strings.TrimSpace(sh.TemplateID) == "" {
		verr.Add("template_id", "template_id is required")
	}
	for i := range sh.Vendors {
		if strings.TrimSpace(sh.Vendors[i].Name) == "" {
			verr.Add(fmt.Sprintf("vendors[%d].name", i), "name is required")
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.GetTemplate(ctx, sh.TemplateID)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			return nil, fmt.Errorf("%w: template %s", ErrNotFound, sh.TemplateID)
		}
		return nil, err
	}
	if !tmpl.Published {
		return nil, fmt.Errorf("%w: template %s is not published", ErrConflict, tmpl.ID)
	}

	now := s.now().UTC()
	sh.ID = ids.New()
	sh.Status = StatusDraft
	sh.Version = 1
	sh.CreatedBy = principal.User.ID
	sh.ApprovedBy = nil
	sh.ApprovedAt = nil
	sh.CreatedAt = now
	sh.UpdatedAt = now
	sh.Shares = nil

	for i := range sh.Vendors {
		vendor := &sh.Vendors[i]
		vendor.ID = ids.New()
		if len(vendor.Blocks) == 0 {
			vendor.Blocks = emptyMatrix(tmpl)
		}
		assignEvaluationIDs(vendor)
	}
	Recompute(tmpl.WeightageByParameter(), sh.Vendors)

	if err := s.store.CreateSheet(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// Get returns the sheet when the principal has at least view access.
func (s *Service) Get(ctx context.Context, principal auth.Principal, id string) (*Sheet, error) {
	sh, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Resolve(sh, principal, LevelView) {
		return nil, ErrForbidden
	}
	return sh, nil
}

// List returns the sheets visible to the principal, filtered and paged.
func (s *Service) List(ctx context.Context, principal auth.Principal, filter ListFilter) ([]*Sheet, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListSheets(ctx, principal, filter)
}

// Update applies a partial patch under edit access. Scores are clamped and
// every derived value is recomputed server-side from the template's current
// weightages; client-submitted results are never trusted. The version
// increments by exactly one on every successful update regardless of which
// fields changed.
func (s *Service) Update(ctx context.Context, principal auth.Principal, id string, patch UpdatePatch) (*Sheet, error) {
	sh, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Resolve(sh, principal, LevelEdit) {
		return nil, ErrForbidden
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != sh.Version {
		return nil, fmt.Errorf("%w: expected version %d, sheet is at %d",
			ErrConflict, *patch.ExpectedVersion, sh.Version)
	}

	var verr validate.Error
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			verr.Add("name", "name is required")
		}
		sh.Name = name
	}
	if patch.Notes != nil {
		sh.Notes = *patch.Notes
	}
	if patch.Status != nil {
		next := *patch.Status
		if !next.Valid() {
			verr.Add("status", "unknown status %q", next)
		} else if !sh.Status.CanTransitionTo(next) {
			return nil, fmt.Errorf("%w: cannot move status from %s back to %s", ErrConflict, sh.Status, next)
		} else if next == StatusApproved && sh.Status != StatusApproved {
			approver := principal.User.ID
			approvedAt := s.now().UTC()
			sh.ApprovedBy = &approver
			sh.ApprovedAt = &approvedAt
		}
		if next.Valid() {
			sh.Status = next
		}
	}

	if patch.Vendors != nil {
		vendors := *patch.Vendors
		for i := range vendors {
			if strings.TrimSpace(vendors[i].Name) == "" {
				verr.Add(fmt.Sprintf("vendors[%d].name", i), "name is required")
			}
			if strings.TrimSpace(vendors[i].ID) == "" {
				vendors[i].ID = ids.New()
			}
			assignEvaluationIDs(&vendors[i])
		}
		sh.Vendors = vendors
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.GetTemplate(ctx, sh.TemplateID)
	if err != nil {
		return nil, err
	}
	Recompute(tmpl.WeightageByParameter(), sh.Vendors)

	sh.Version++
	sh.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSheet(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// Duplicate deep-copies the sheet, its vendors and evaluations under new
// identifiers. The copy belongs to the caller, starts as a Draft at version 1
// and carries no approver and no shares, regardless of the source's state.
func (s *Service) Duplicate(ctx context.Context, principal auth.Principal, id string) (*Sheet, error) {
	src, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Resolve(src, principal, LevelView) {
		return nil, ErrForbidden
	}

	now := s.now().UTC()
	dup := &Sheet{
		ID:         ids.New(),
		Name:       src.Name,
		Type:       src.Type,
		Status:     StatusDraft,
		TemplateID: src.TemplateID,
		Notes:      src.Notes,
		Version:    1,
		CreatedBy:  principal.User.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	dup.Vendors = make([]Vendor, len(src.Vendors))
	for i, vendor := range src.Vendors {
		copied := Vendor{
			ID:           ids.New(),
			Name:         vendor.Name,
			Notes:        vendor.Notes,
			OverallScore: vendor.OverallScore,
			Blocks:       make([]EvaluationBlock, len(vendor.Blocks)),
		}
		for j, block := range vendor.Blocks {
			copiedBlock := EvaluationBlock{
				CategoryID:  block.CategoryID,
				Subtotal:    block.Subtotal,
				Evaluations: make([]Evaluation, len(block.Evaluations)),
			}
			for k, eval := range block.Evaluations {
				eval.ID = uuid.NewString()
				copiedBlock.Evaluations[k] = eval
			}
			copied.Blocks[j] = copiedBlock
		}
		dup.Vendors[i] = copied
	}

	if err := s.store.CreateSheet(ctx, dup); err != nil {
		return nil, err
	}
	return dup, nil
}

// Delete removes the sheet and everything it owns. Only the owning creator
// or an admin may delete; shared edit access is not enough.
func (s *Service) Delete(ctx context.Context, principal auth.Principal, id string) error {
	sh, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return err
	}
	if !ResolveOwner(sh, principal) {
		return ErrForbidden
	}
	return s.store.DeleteSheet(ctx, id)
}

// Share grants or updates access for an email. Upsert keyed by
// (sheet, email): re-sharing the same address changes the level.
func (s *Service) Share(ctx context.Context, principal auth.Principal, id, email string, level AccessLevel) (*SharedAccess, error) {
	var verr validate.Error
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		verr.Add("email", "valid email is required")
	}
	if !level.Valid() {
		verr.Add("level", "level must be %q or %q", LevelView, LevelEdit)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	sh, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ResolveOwner(sh, principal) {
		return nil, ErrForbidden
	}

	share := &SharedAccess{
		SheetID:   sh.ID,
		Email:     email,
		Level:     level,
		GrantedAt: s.now().UTC(),
	}
	if err := s.store.UpsertShare(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// Unshare revokes an email's access.
func (s *Service) Unshare(ctx context.Context, principal auth.Principal, id, email string) error {
	sh, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return err
	}
	if !ResolveOwner(sh, principal) {
		return ErrForbidden
	}
	return s.store.DeleteShare(ctx, id, strings.TrimSpace(strings.ToLower(email)))
}

// emptyMatrix builds one zero-scored evaluation slot per parameter in every
// category of the template's current state.
func emptyMatrix(tmpl *template.Template) []EvaluationBlock {
	blocks := make([]EvaluationBlock, 0, len(tmpl.Categories))
	for _, cat := range tmpl.Categories {
		block := EvaluationBlock{
			CategoryID:  cat.ID,
			Evaluations: make([]Evaluation, 0, len(cat.Parameters)),
		}
		for _, param := range cat.Parameters {
			block.Evaluations = append(block.Evaluations, Evaluation{
				ID:          uuid.NewString(),
				ParameterID: param.ID,
			})
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func assignEvaluationIDs(vendor *Vendor) {
	for bi := range vendor.Blocks {
		for ei := range vendor.Blocks[bi].Evaluations {
			if strings.TrimSpace(vendor.Blocks[bi].Evaluations[ei].ID) == "" {
				vendor.Blocks[bi].Evaluations[ei].ID = uuid.NewString()
			}
		}
	}
}
