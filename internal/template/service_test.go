package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	templates  map[string]*Template
	referenced map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		templates:  make(map[string]*Template),
		referenced: make(map[string]bool),
	}
}

func cloneTemplate(t *Template) *Template {
	cp := *t
	cp.Categories = make([]Category, len(t.Categories))
	for i, c := range t.Categories {
		cc := c
		cc.Parameters = append([]Parameter(nil), c.Parameters...)
		cp.Categories[i] = cc
	}
	return &cp
}

func (m *memStore) CreateTemplate(ctx context.Context, tmpl *Template) error {
	m.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

func (m *memStore) UpdateTemplate(ctx context.Context, tmpl *Template) error {
	if _, ok := m.templates[tmpl.ID]; !ok {
		return ErrNotFound
	}
	m.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

func (m *memStore) SetTemplatePublished(ctx context.Context, id string, published bool) error {
	tmpl, ok := m.templates[id]
	if !ok {
		return ErrNotFound
	}
	tmpl.Published = published
	return nil
}

func (m *memStore) DeleteTemplate(ctx context.Context, id string) error {
	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	if m.referenced[id] {
		return ErrConflict
	}
	delete(m.templates, id)
	return nil
}

func (m *memStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	tmpl, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTemplate(tmpl), nil
}

func (m *memStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	out := make([]*Template, 0, len(m.templates))
	for _, tmpl := range m.templates {
		out = append(out, cloneTemplate(tmpl))
	}
	return out, nil
}

func draftTemplate() *Template {
	return &Template{
		Name: "Cloud Provider Selection",
		Type: TypeRFP,
		Categories: []Category{
			{
				Name: "Technical",
				Parameters: []Parameter{
					{Name: "Scalability", Weightage: 30},
					{Name: "Security", Weightage: 20},
				},
			},
			{
				Name: "Commercial",
				Parameters: []Parameter{
					{Name: "Pricing", Weightage: 25},
					{Name: "Support", Weightage: 25},
				},
			},
		},
	}
}

func TestCreateAssignsIDsAndDraftState(t *testing.T) {
	svc := NewService(newMemStore())

	tmpl, err := svc.Create(context.Background(), "admin-id", draftTemplate())
	require.NoError(t, err)

	assert.NotEmpty(t, tmpl.ID)
	assert.False(t, tmpl.Published)
	assert.Equal(t, "admin-id", tmpl.CreatedBy)
	for _, cat := range tmpl.Categories {
		assert.NotEmpty(t, cat.ID)
		for _, param := range cat.Parameters {
			assert.NotEmpty(t, param.ID)
		}
	}
}

func TestCreateRejectsBadWeightage(t *testing.T) {
	svc := NewService(newMemStore())

	for _, w := range []int{0, 1, 7, 35, 100, -5} {
		tmpl := draftTemplate()
		tmpl.Categories[0].Parameters[0].Weightage = w
		_, err := svc.Create(context.Background(), "admin-id", tmpl)
		require.Errorf(t, err, "weightage %d accepted", w)
	}
	for _, w := range AllowedWeightages {
		tmpl := draftTemplate()
		tmpl.Categories[0].Parameters[0].Weightage = w
		_, err := svc.Create(context.Background(), "admin-id", tmpl)
		require.NoErrorf(t, err, "weightage %d rejected", w)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemStore())

	cases := []struct {
		name   string
		mutate func(*Template)
	}{
		{"blank name", func(tmpl *Template) { tmpl.Name = "  " }},
		{"bad type", func(tmpl *Template) { tmpl.Type = Type("tender") }},
		{"blank category name", func(tmpl *Template) { tmpl.Categories[0].Name = "" }},
		{"blank parameter name", func(tmpl *Template) { tmpl.Categories[1].Parameters[0].Name = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := draftTemplate()
			tc.mutate(tmpl)
			_, err := svc.Create(context.Background(), "admin-id", tmpl)
			require.Error(t, err)
		})
	}
}

func TestUpdatePreservesIdentityAndPublishState(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	created, err := svc.Create(context.Background(), "admin-id", draftTemplate())
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	next := draftTemplate()
	next.Name = "Cloud Provider Selection v2"
	// Keep one parameter id to verify caller-supplied ids survive the edit.
	next.Categories[0].Parameters[0].ID = created.Categories[0].Parameters[0].ID

	updated, err := svc.Update(context.Background(), created.ID, next)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedBy, updated.CreatedBy)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.Published, "publish state lost on update")
	assert.Equal(t, created.Categories[0].Parameters[0].ID, updated.Categories[0].Parameters[0].ID)
	assert.NotEmpty(t, updated.Categories[1].Parameters[0].ID)
}

func TestPublishRequiresTotalExactly100(t *testing.T) {
	svc := NewService(newMemStore())

	under := draftTemplate()
	under.Categories[1].Parameters = under.Categories[1].Parameters[:1] // total 75
	created, err := svc.Create(context.Background(), "admin-id", under)
	require.NoError(t, err)

	_, err = svc.Publish(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrConflict)
	assert.ErrorContains(t, err, "75")

	exact, err := svc.Create(context.Background(), "admin-id", draftTemplate())
	require.NoError(t, err)
	published, err := svc.Publish(context.Background(), exact.ID)
	require.NoError(t, err)
	assert.True(t, published.Published)
}

func TestUnpublish(t *testing.T) {
	svc := NewService(newMemStore())

	created, err := svc.Create(context.Background(), "admin-id", draftTemplate())
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	reverted, err := svc.Unpublish(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, reverted.Published)
}

func TestDeleteReferencedTemplate(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	created, err := svc.Create(context.Background(), "admin-id", draftTemplate())
	require.NoError(t, err)
	store.referenced[created.ID] = true

	require.ErrorIs(t, svc.Delete(context.Background(), created.ID), ErrConflict)

	store.referenced[created.ID] = false
	require.NoError(t, svc.Delete(context.Background(), created.ID))
	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWeightageDerivation(t *testing.T) {
	tmpl := draftTemplate()
	assert.Equal(t, 50, tmpl.Categories[0].Weightage())
	assert.Equal(t, 50, tmpl.Categories[1].Weightage())
	assert.Equal(t, 100, tmpl.TotalWeightage())

	tmpl.Categories[0].Parameters[0].ID = "p1"
	tmpl.Categories[0].Parameters[1].ID = "p2"
	by := tmpl.WeightageByParameter()
	assert.Equal(t, 30, by["p1"])
	assert.Equal(t, 20, by["p2"])
}
