package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scorecard.org/internal/template"
)

func (s *Store) CreateTemplate(ctx context.Context, tmpl *template.Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into templates (id, name, type, description, published, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tmpl.ID, tmpl.Name, string(tmpl.Type), tmpl.Description, tmpl.Published,
		tmpl.CreatedBy, tmpl.CreatedAt, tmpl.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return template.ErrConflict
		}
		return fmt.Errorf("create template: %w", err)
	}
	if err := insertTemplateSubtree(ctx, tx, tmpl); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateTemplate rewrites the template row and replaces the whole category
// and parameter subtree inside one transaction. Caller-supplied child
// identifiers arrive already fixed by the service, so reinserting keeps
// references stable across the edit.
func (s *Store) UpdateTemplate(ctx context.Context, tmpl *template.Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update templates set name = $2, type = $3, description = $4, updated_at = $5
		where id = $1
	`, tmpl.ID, tmpl.Name, string(tmpl.Type), tmpl.Description, tmpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return template.ErrNotFound
	}

	// Cascade removes the parameters with their categories.
	if _, err := tx.ExecContext(ctx, `delete from categories where template_id = $1`, tmpl.ID); err != nil {
		return err
	}
	if err := insertTemplateSubtree(ctx, tx, tmpl); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTemplateSubtree(ctx context.Context, tx *sql.Tx, tmpl *template.Template) error {
	for ci, cat := range tmpl.Categories {
		if _, err := tx.ExecContext(ctx, `
			insert into categories (id, template_id, name, position)
			values ($1, $2, $3, $4)
		`, cat.ID, tmpl.ID, cat.Name, ci); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
		for pi, param := range cat.Parameters {
			if _, err := tx.ExecContext(ctx, `
				insert into judgment_parameters (id, category_id, name, weightage, criteria, position)
				values ($1, $2, $3, $4, $5, $6)
			`, param.ID, cat.ID, param.Name, param.Weightage, param.Criteria, pi); err != nil {
				return fmt.Errorf("insert parameter: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) SetTemplatePublished(ctx context.Context, id string, published bool) error {
	res, err := s.db.ExecContext(ctx, `
		update templates set published = $2, updated_at = now() where id = $1
	`, id, published)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return template.ErrNotFound
	}
	return nil
}

// DeleteTemplate removes the template and its subtree. The non-cascading
// sheet reference makes the database refuse while any sheet still points at
// it, which surfaces as ErrConflict.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from templates where id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: template is referenced by existing sheets", template.ErrConflict)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*template.Template, error) {
	var (
		tmpl  template.Template
		ttype string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, type, description, published, created_by, created_at, updated_at
		from templates where id = $1
	`, id).Scan(&tmpl.ID, &tmpl.Name, &ttype, &tmpl.Description, &tmpl.Published,
		&tmpl.CreatedBy, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tmpl.Type = template.Type(ttype)

	if err := s.loadTemplateSubtrees(ctx, map[string]*template.Template{tmpl.ID: &tmpl}); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]*template.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, type, description, published, created_by, created_at, updated_at
		from templates order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		result []*template.Template
		byID   = make(map[string]*template.Template)
	)
	for rows.Next() {
		var (
			tmpl  template.Template
			ttype string
		)
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &ttype, &tmpl.Description, &tmpl.Published,
			&tmpl.CreatedBy, &tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
			return nil, err
		}
		tmpl.Type = template.Type(ttype)
		result = append(result, &tmpl)
		byID[tmpl.ID] = &tmpl
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}
	if err := s.loadTemplateSubtrees(ctx, byID); err != nil {
		return nil, err
	}
	return result, nil
}

// loadTemplateSubtrees fills categories and parameters for every template in
// the map, preserving stored ordering.
func (s *Store) loadTemplateSubtrees(ctx context.Context, templates map[string]*template.Template) error {
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}

	catRows, err := s.db.QueryContext(ctx, `
		select c.id, c.template_id, c.name
		from categories c
		where c.template_id = any($1)
		order by c.template_id, c.position
	`, ids)
	if err != nil {
		return err
	}
	defer catRows.Close()

	catOwner := make(map[string]string)
	for catRows.Next() {
		var id, templateID, name string
		if err := catRows.Scan(&id, &templateID, &name); err != nil {
			return err
		}
		tmpl, ok := templates[templateID]
		if !ok {
			continue
		}
		tmpl.Categories = append(tmpl.Categories, template.Category{ID: id, Name: name})
		catOwner[id] = templateID
	}
	if err := catRows.Err(); err != nil {
		return err
	}

	paramRows, err := s.db.QueryContext(ctx, `
		select p.id, p.category_id, p.name, p.weightage, p.criteria
		from judgment_parameters p
		join categories c on c.id = p.category_id
		where c.template_id = any($1)
		order by p.category_id, p.position
	`, ids)
	if err != nil {
		return err
	}
	defer paramRows.Close()

	for paramRows.Next() {
		var (
			param      template.Parameter
			categoryID string
		)
		if err := paramRows.Scan(&param.ID, &categoryID, &param.Name, &param.Weightage, &param.Criteria); err != nil {
			return err
		}
		templateID, ok := catOwner[categoryID]
		if !ok {
			continue
		}
		tmpl := templates[templateID]
		for i := range tmpl.Categories {
			if tmpl.Categories[i].ID == categoryID {
				tmpl.Categories[i].Parameters = append(tmpl.Categories[i].Parameters, param)
				break
			}
		}
	}
	return paramRows.Err()
}
