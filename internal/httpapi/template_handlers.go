package httpapi

import (
	"net/http"
	"strings"

	"scorecard.org/internal/template"
)

type templateRequest struct {
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Description string              `json:"description"`
	Categories  []template.Category `json:"categories"`
}

type categoryWeightage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Weightage int    `json:"weightage"`
}

type templateResponse struct {
	*template.Template
	CategoryWeightages []categoryWeightage `json:"category_weightages"`
	TotalWeightage     int                 `json:"total_weightage"`
}

func toTemplateResponse(tmpl *template.Template) templateResponse {
	weightages := make([]categoryWeightage, 0, len(tmpl.Categories))
	for _, cat := range tmpl.Categories {
		weightages = append(weightages, categoryWeightage{
			ID:        cat.ID,
			Name:      cat.Name,
			Weightage: cat.Weightage(),
		})
	}
	return templateResponse{
		Template:           tmpl,
		CategoryWeightages: weightages,
		TotalWeightage:     tmpl.TotalWeightage(),
	}
}

func (a *API) handleTemplatesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTemplates(w, r)
	case http.MethodPost:
		a.createTemplate(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTemplateScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/templates/"), "/")
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
			a.getTemplate(w, r, id)
		case http.MethodPut:
			a.updateTemplate(w, r, id)
		case http.MethodDelete:
			a.deleteTemplate(w, r, id)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "publish":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		a.publishTemplate(w, r, id, true)
	case len(parts) == 2 && parts[1] == "unpublish":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		a.publishTemplate(w, r, id, false)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(r.Context(), w); !ok {
		return
	}
	templates, err := a.templates.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]templateResponse, 0, len(templates))
	for _, tmpl := range templates {
		items = append(items, toTemplateResponse(tmpl))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requirePrincipal(r.Context(), w); !ok {
		return
	}
	tmpl, err := a.templates.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireAdmin(r.Context(), w)
	if !ok {
		return
	}
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tmpl, err := a.templates.Create(r.Context(), principal.User.ID, &template.Template{
		Name:        req.Name,
		Type:        template.Type(req.Type),
		Description: req.Description,
		Categories:  req.Categories,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "CREATE", "template", tmpl.ID, map[string]any{"name": tmpl.Name})
	writeJSON(w, http.StatusCreated, toTemplateResponse(tmpl))
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireAdmin(r.Context(), w); !ok {
		return
	}
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tmpl, err := a.templates.Update(r.Context(), id, &template.Template{
		Name:        req.Name,
		Type:        template.Type(req.Type),
		Description: req.Description,
		Categories:  req.Categories,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "UPDATE", "template", tmpl.ID, map[string]any{"name": tmpl.Name})
	writeJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

func (a *API) publishTemplate(w http.ResponseWriter, r *http.Request, id string, publish bool) {
	if _, ok := requireAdmin(r.Context(), w); !ok {
		return
	}
	var (
		tmpl *template.Template
		err  error
	)
	action := "PUBLISH"
	if publish {
		tmpl, err = a.templates.Publish(r.Context(), id)
	} else {
		tmpl, err = a.templates.Unpublish(r.Context(), id)
		action = "UNPUBLISH"
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), action, "template", tmpl.ID, nil)
	writeJSON(w, http.StatusOK, toTemplateResponse(tmpl))
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireAdmin(r.Context(), w); !ok {
		return
	}
	if err := a.templates.Delete(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "DELETE", "template", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
