package template

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("template: not found")
	// ErrConflict covers publish with total weightage != 100 and deletion of
	// a template still referenced by sheets.
	ErrConflict = errors.New("template: conflict")
)

// Type is the closed set of template kinds.
type Type string

const (
	TypeRFP     Type = "rfp"
	TypeRFQ     Type = "rfq"
	TypeGeneral Type = "general"
)

// Valid reports whether the type is one of the known values.
func (t Type) Valid() bool {
	return t == TypeRFP || t == TypeRFQ || t == TypeGeneral
}

// AllowedWeightages is the full set of legal parameter weightages.
var AllowedWeightages = []int{5, 10, 15, 20, 25, 30}

// WeightageAllowed reports whether w is one of the enumerated steps.
func WeightageAllowed(w int) bool {
	for _, allowed := range AllowedWeightages {
		if w == allowed {
			return true
		}
	}
	return false
}

// Parameter is a single weighted judgment criterion.
type Parameter struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Weightage int    `json:"weightage"`
	Criteria  string `json:"criteria,omitempty"`
}

// Category groups parameters. Its weightage is derived, never stored.
type Category struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
}

// Weightage is the sum of the category's parameter weightages.
func (c Category) Weightage() int {
	total := 0
	for _, p := range c.Parameters {
		total += p.Weightage
	}
	return total
}

// Template defines the judgment criteria a decision sheet scores against.
// Drafts may carry any weightage total; publishing requires exactly 100.
type Template struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        Type       `json:"type"`
	Description string     `json:"description,omitempty"`
	Published   bool       `json:"published"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Categories  []Category `json:"categories"`
}

// TotalWeightage is the sum over all categories.
func (t *Template) TotalWeightage() int {
	total := 0
	for _, c := range t.Categories {
		total += c.Weightage()
	}
	return total
}

// WeightageByParameter returns a lookup of parameter id to weightage across
// every category. Sheet scoring derives results from this.
func (t *Template) WeightageByParameter() map[string]int {
	out := make(map[string]int)
	for _, c := range t.Categories {
		for _, p := range c.Parameters {
			out[p.ID] = p.Weightage
		}
	}
	return out
}
