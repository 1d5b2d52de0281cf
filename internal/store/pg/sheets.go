package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"scorecard.org/internal/auth"
	"scorecard.org/internal/sheet"
	"scorecard.org/internal/template"
)

func (s *Store) CreateSheet(ctx context.Context, sh *sheet.Sheet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into da_sheets (id, name, type, status, template_id, notes, version,
			created_by, approved_by, approved_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, sh.ID, sh.Name, string(sh.Type), string(sh.Status), sh.TemplateID, sh.Notes,
		sh.Version, sh.CreatedBy, sh.ApprovedBy, sh.ApprovedAt, sh.CreatedAt, sh.UpdatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: template %s", sheet.ErrNotFound, sh.TemplateID)
		}
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := insertVendorSubtree(ctx, tx, sh); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateSheet rewrites the sheet row and replaces its whole vendor and
// evaluation subtree in one transaction, so a reader never observes a
// half-applied update.
func (s *Store) UpdateSheet(ctx context.Context, sh *sheet.Sheet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update da_sheets set name = $2, type = $3, status = $4, notes = $5,
			version = $6, approved_by = $7, approved_at = $8, updated_at = $9
		where id = $1
	`, sh.ID, sh.Name, string(sh.Type), string(sh.Status), sh.Notes,
		sh.Version, sh.ApprovedBy, sh.ApprovedAt, sh.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update sheet: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return sheet.ErrNotFound
	}

	// Cascade removes the evaluations with their vendors.
	if _, err := tx.ExecContext(ctx, `delete from vendors where sheet_id = $1`, sh.ID); err != nil {
		return err
	}
	if err := insertVendorSubtree(ctx, tx, sh); err != nil {
		return err
	}
	return tx.Commit()
}

func insertVendorSubtree(ctx context.Context, tx *sql.Tx, sh *sheet.Sheet) error {
	for vi, vendor := range sh.Vendors {
		if _, err := tx.ExecContext(ctx, `
			insert into vendors (id, sheet_id, name, notes, overall_score, position)
			values ($1, $2, $3, $4, $5, $6)
		`, vendor.ID, sh.ID, vendor.Name, vendor.Notes, vendor.OverallScore, vi); err != nil {
			return fmt.Errorf("insert vendor: %w", err)
		}
		for bi, block := range vendor.Blocks {
			for ei, eval := range block.Evaluations {
				if _, err := tx.ExecContext(ctx, `
					insert into vendor_evaluations (id, vendor_id, category_id, parameter_id,
						score, result, comment, block_position, position)
					values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				`, eval.ID, vendor.ID, block.CategoryID, eval.ParameterID,
					eval.Score, eval.Result, eval.Comment, bi, ei); err != nil {
					return fmt.Errorf("insert evaluation: %w", err)
				}
			}
		}
	}
	return nil
}

func (s *Store) GetSheet(ctx context.Context, id string) (*sheet.Sheet, error) {
	sh, err := s.scanSheetRow(s.db.QueryRowContext(ctx, `
		select id, name, type, status, template_id, notes, version,
			created_by, approved_by, approved_at, created_at, updated_at
		from da_sheets where id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	if err := s.loadVendors(ctx, sh); err != nil {
		return nil, err
	}
	if err := s.loadShares(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Store) DeleteSheet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from da_sheets where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sheet.ErrNotFound
	}
	return nil
}

// ListSheets pages sheet rows without their vendor subtrees. Visibility for a
// non-admin viewer is owned-or-shared expressed in one predicate, so the
// result is a single distinct set.
func (s *Store) ListSheets(ctx context.Context, viewer auth.Principal, filter sheet.ListFilter) ([]*sheet.Sheet, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !viewer.IsAdmin() {
		where = append(where, fmt.Sprintf(
			"(s.created_by = %s or exists (select 1 from shared_access sa where sa.sheet_id = s.id and sa.email = %s))",
			arg(viewer.User.ID), arg(strings.ToLower(viewer.User.Email))))
	}
	if filter.Type != "" {
		where = append(where, "s.type = "+arg(string(filter.Type)))
	}
	if filter.Status != "" {
		where = append(where, "s.status = "+arg(string(filter.Status)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		where = append(where, fmt.Sprintf("(s.name ilike %s or s.notes ilike %s)", arg(pattern), arg(pattern)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from da_sheets s`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		select s.id, s.name, s.type, s.status, s.template_id, s.notes, s.version,
			s.created_by, s.approved_by, s.approved_at, s.created_at, s.updated_at
		from da_sheets s` + clause + `
		order by s.updated_at desc
		limit ` + arg(filter.Limit) + ` offset ` + arg(filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*sheet.Sheet
	for rows.Next() {
		sh, err := s.scanSheetRow(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *Store) UpsertShare(ctx context.Context, share *sheet.SharedAccess) error {
	_, err := s.db.ExecContext(ctx, `
		insert into shared_access (sheet_id, email, level, granted_at)
		values ($1, $2, $3, $4)
		on conflict (sheet_id, email) do update
		set level = excluded.level, granted_at = excluded.granted_at
	`, share.SheetID, share.Email, string(share.Level), share.GrantedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return sheet.ErrNotFound
		}
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

func (s *Store) DeleteShare(ctx context.Context, sheetID, email string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from shared_access where sheet_id = $1 and email = $2
	`, sheetID, email)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sheet.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSheetRow(row rowScanner) (*sheet.Sheet, error) {
	var (
		sh     sheet.Sheet
		stype  string
		status string
	)
	err := row.Scan(&sh.ID, &sh.Name, &stype, &status, &sh.TemplateID, &sh.Notes,
		&sh.Version, &sh.CreatedBy, &sh.ApprovedBy, &sh.ApprovedAt, &sh.CreatedAt, &sh.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sheet.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sh.Type = template.Type(stype)
	sh.Status = sheet.Status(status)
	return &sh, nil
}

func (s *Store) loadVendors(ctx context.Context, sh *sheet.Sheet) error {
	vendorRows, err := s.db.QueryContext(ctx, `
		select id, name, notes, overall_score
		from vendors where sheet_id = $1 order by position
	`, sh.ID)
	if err != nil {
		return err
	}
	defer vendorRows.Close()

	for vendorRows.Next() {
		var vendor sheet.Vendor
		if err := vendorRows.Scan(&vendor.ID, &vendor.Name, &vendor.Notes, &vendor.OverallScore); err != nil {
			return err
		}
		sh.Vendors = append(sh.Vendors, vendor)
	}
	if err := vendorRows.Err(); err != nil {
		return err
	}
	if len(sh.Vendors) == 0 {
		return nil
	}

	// Index only after the slice stops growing; appends above reallocate the
	// backing array and would orphan earlier pointers.
	byID := make(map[string]*sheet.Vendor, len(sh.Vendors))
	for i := range sh.Vendors {
		byID[sh.Vendors[i].ID] = &sh.Vendors[i]
	}

	evalRows, err := s.db.QueryContext(ctx, `
		select e.id, e.vendor_id, e.category_id, e.parameter_id, e.score, e.result, e.comment
		from vendor_evaluations e
		join vendors v on v.id = e.vendor_id
		where v.sheet_id = $1
		order by e.vendor_id, e.block_position, e.position
	`, sh.ID)
	if err != nil {
		return err
	}
	defer evalRows.Close()

	for evalRows.Next() {
		var (
			eval       sheet.Evaluation
			vendorID   string
			categoryID string
		)
		if err := evalRows.Scan(&eval.ID, &vendorID, &categoryID, &eval.ParameterID,
			&eval.Score, &eval.Result, &eval.Comment); err != nil {
			return err
		}
		vendor, ok := byID[vendorID]
		if !ok {
			continue
		}
		n := len(vendor.Blocks)
		if n == 0 || vendor.Blocks[n-1].CategoryID != categoryID {
			vendor.Blocks = append(vendor.Blocks, sheet.EvaluationBlock{CategoryID: categoryID})
			n++
		}
		block := &vendor.Blocks[n-1]
		block.Evaluations = append(block.Evaluations, eval)
		block.Subtotal += eval.Result
	}
	return evalRows.Err()
}

func (s *Store) loadShares(ctx context.Context, sh *sheet.Sheet) error {
	rows, err := s.db.QueryContext(ctx, `
		select sheet_id, email, level, granted_at
		from shared_access where sheet_id = $1 order by granted_at
	`, sh.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			share sheet.SharedAccess
			level string
		)
		if err := rows.Scan(&share.SheetID, &share.Email, &level, &share.GrantedAt); err != nil {
			return err
		}
		share.Level = sheet.AccessLevel(level)
		sh.Shares = append(sh.Shares, share)
	}
	return rows.Err()
}
