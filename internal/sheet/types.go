package sheet

import (
	"errors"
	"time"

	"scorecard.org/internal/template"
)

var (
	ErrNotFound = errors.New("sheet: not found")
	// ErrForbidden means the caller is authenticated but is neither owner,
	// admin, nor holder of a sufficient shared-access level.
	ErrForbidden = errors.New("sheet: access denied")
	// ErrConflict covers stale expected-version updates and illegal status
	// regressions.
	ErrConflict = errors.New("sheet: conflict")
)

// Status is the sheet lifecycle state. Transitions are forward-only.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusSubmitted || s == StatusApproved
}

func (s Status) rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSubmitted:
		return 1
	case StatusApproved:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is allowed. Staying
// on the same status is a no-op and always permitted.
func (s Status) CanTransitionTo(next Status) bool {
	return next.rank() >= s.rank()
}

// AccessLevel is a sharing grant level.
type AccessLevel string

const (
	LevelView AccessLevel = "view"
	LevelEdit AccessLevel = "edit"
)

// Valid reports whether the level is one of the known values.
func (l AccessLevel) Valid() bool {
	return l == LevelView || l == LevelEdit
}

// Evaluation scores one judgment parameter for one vendor. Result is derived
// as score × weightage and is never settable by a caller.
type Evaluation struct {
	ID          string `json:"id"`
	ParameterID string `json:"parameter_id"`
	Score       int    `json:"score"`
	Result      int    `json:"result"`
	Comment     string `json:"comment,omitempty"`
}

// EvaluationBlock holds one category's evaluations and their derived subtotal.
type EvaluationBlock struct {
	CategoryID  string       `json:"category_id"`
	Subtotal    int          `json:"subtotal"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Vendor is one competing proposal on a sheet.
type Vendor struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Notes        string            `json:"notes,omitempty"`
	OverallScore int               `json:"overall_score"`
	Blocks       []EvaluationBlock `json:"evaluations"`
}

// SharedAccess grants a non-owner view or edit access by email. Unique per
// (sheet, email); re-sharing upserts the level.
type SharedAccess struct {
	SheetID   string      `json:"sheet_id"`
	Email     string      `json:"email"`
	Level     AccessLevel `json:"level"`
	GrantedAt time.Time   `json:"granted_at"`
}

// Sheet is a decision-analysis worksheet scoring vendors against a template.
// Version increments by exactly one on every successful update.
type Sheet struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       template.Type  `json:"type"`
	Status     Status         `json:"status"`
	TemplateID string         `json:"template_id"`
	Notes      string         `json:"notes,omitempty"`
	Version    int            `json:"version"`
	CreatedBy  string         `json:"created_by"`
	ApprovedBy *string        `json:"approved_by,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Vendors    []Vendor       `json:"vendors"`
	Shares     []SharedAccess `json:"shares,omitempty"`
}
