package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"scorecard.org/internal/sheet"
	"scorecard.org/internal/template"
)

type createSheetRequest struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	TemplateID string         `json:"template_id"`
	Notes      string         `json:"notes"`
	Vendors    []sheet.Vendor `json:"vendors"`
}

type updateSheetRequest struct {
	Name            *string         `json:"name"`
	Status          *string         `json:"status"`
	Notes           *string         `json:"notes"`
	Vendors         *[]sheet.Vendor `json:"vendors"`
	ExpectedVersion *int            `json:"expected_version"`
}

type shareRequest struct {
	Email string `json:"email"`
	Level string `json:"level"`
}

type sheetListResponse struct {
	Items  []*sheet.Sheet `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (a *API) handleSheetsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listSheets(w, r)
	case http.MethodPost:
		a.createSheet(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSheetScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sheets/"), "/")
	if path == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getSheet(w, r, id)
		case http.MethodPut, http.MethodPatch:
			a.updateSheet(w, r, id)
		case http.MethodDelete:
			a.deleteSheet(w, r, id)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "duplicate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		a.duplicateSheet(w, r, id)
	case len(parts) == 2 && parts[1] == "share":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		a.shareSheet(w, r, id)
	case len(parts) == 3 && parts[1] == "share":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		a.unshareSheet(w, r, id, parts[2])
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listSheets(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	q := r.URL.Query()

	limit, err := parsePageParam(q.Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	offset, err := parsePageParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	filter := sheet.ListFilter{
		Type:   template.Type(q.Get("type")),
		Status: sheet.Status(q.Get("status")),
		Search: q.Get("q"),
		Limit:  limit,
		Offset: offset,
	}
	items, total, err := a.sheets.List(r.Context(), principal, filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []*sheet.Sheet{}
	}
	writeJSON(w, http.StatusOK, sheetListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (a *API) getSheet(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	sh, err := a.sheets.Get(r.Context(), principal, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (a *API) createSheet(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	var req createSheetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sh, err := a.sheets.Create(r.Context(), principal, &sheet.Sheet{
		Name:       req.Name,
		Type:       template.Type(req.Type),
		TemplateID: req.TemplateID,
		Notes:      req.Notes,
		Vendors:    req.Vendors,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "CREATE", "sheet", sh.ID, map[string]any{
		"name":        sh.Name,
		"template_id": sh.TemplateID,
	})
	writeJSON(w, http.StatusCreated, sh)
}

func (a *API) updateSheet(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	var req updateSheetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := sheet.UpdatePatch{
		Name:            req.Name,
		Notes:           req.Notes,
		Vendors:         req.Vendors,
		ExpectedVersion: req.ExpectedVersion,
	}
	if req.Status != nil {
		status := sheet.Status(*req.Status)
		patch.Status = &status
	}
	sh, err := a.sheets.Update(r.Context(), principal, id, patch)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "UPDATE", "sheet", sh.ID, map[string]any{
		"version": sh.Version,
	})
	writeJSON(w, http.StatusOK, sh)
}

func (a *API) duplicateSheet(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	dup, err := a.sheets.Duplicate(r.Context(), principal, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "DUPLICATE", "sheet", dup.ID, map[string]any{
		"source_id": id,
	})
	writeJSON(w, http.StatusCreated, dup)
}

func (a *API) deleteSheet(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	if err := a.sheets.Delete(r.Context(), principal, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "DELETE", "sheet", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) shareSheet(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	share, err := a.sheets.Share(r.Context(), principal, id, req.Email, sheet.AccessLevel(req.Level))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "SHARE", "sheet", id, map[string]any{
		"email": share.Email,
		"level": string(share.Level),
	})
	writeJSON(w, http.StatusOK, share)
}

func (a *API) unshareSheet(w http.ResponseWriter, r *http.Request, id, email string) {
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	if err := a.sheets.Unshare(r.Context(), principal, id, email); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "UNSHARE", "sheet", id, map[string]any{"email": email})
	writeJSON(w, http.StatusOK, map[string]any{"status": "unshared"})
}

func parsePageParam(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, errors.New("invalid paging parameter")
	}
	return val, nil
}
