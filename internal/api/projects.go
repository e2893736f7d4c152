package api

import "net/http"

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, r, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// CreateProject handles POST /api/projects.
//
//	@Summary		Create a project
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProjectRequest	true	"Project"
//	@Success		201		{object}	store.Project
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects [post]
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	req := ProjectRequest{requireName: true}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.CreateProject(r.Context(), owner(r), req.input())
	if err != nil {
		h.writeError(w, r, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/projects/{id}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProject(r.Context(), owner(r), id)
	if err != nil {
		h.writeError(w, r, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProject handles PUT /api/projects/{id}.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req ProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateProject(r.Context(), owner(r), id, req.input())
	if err != nil {
		h.writeError(w, r, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProjectLayout handles PUT /api/projects/{id}/layout.
func (h *Handler) UpdateProjectLayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req LayoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateProjectLayout(r.Context(), owner(r), id, req.input())
	if err != nil {
		h.writeError(w, r, "update project layout", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject handles DELETE /api/projects/{id}. Its captures are kept
// without a project.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteProject(r.Context(), owner(r), id); err != nil {
		h.writeError(w, r, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
