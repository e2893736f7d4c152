package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zettel/internal/noteservice"
	"github.com/starford/zettel/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// owner returns the id resolved by AuthMiddleware. Routes are only mounted
// behind it, so a missing owner is a wiring bug.
func owner(r *http.Request) int64 {
	id, _ := OwnerFrom(r.Context())
	return id
}

// idParam parses a positive integer URL parameter, writing 400 when it is not one.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid "+name))
		return 0, false
	}
	return id, true
}

// ListCaptures handles GET /api/captures.
//
//	@Summary		List the caller's captures, newest first
//	@Tags			captures
//	@Produce		json
//	@Success		200	{array}	CaptureDetail
//	@Security		BearerAuth
//	@Router			/captures [get]
func (h *Handler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotes(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, r, "list captures", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateCapture handles POST /api/captures.
//
//	@Summary		Create a capture
//	@Tags			captures
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCaptureRequest	true	"Capture to create"
//	@Success		201		{object}	CaptureDetail
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures [post]
func (h *Handler) CreateCapture(w http.ResponseWriter, r *http.Request) {
	var req CreateCaptureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.CreateNote(r.Context(), owner(r), req.input())
	if err != nil {
		h.writeError(w, r, "create capture", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetCapture handles GET /api/captures/{id}.
//
//	@Summary		Get a capture with its tags and links
//	@Tags			captures
//	@Produce		json
//	@Param			id	path		int	true	"Capture id"
//	@Success		200	{object}	CaptureDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/{id} [get]
func (h *Handler) GetCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetNote(r.Context(), owner(r), id)
	if err != nil {
		h.writeError(w, r, "get capture", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateCapture handles PUT /api/captures/{id}.
//
//	@Summary		Update a capture with optional optimistic concurrency
//	@Tags			captures
//	@Accept			json
//	@Produce		json
//	@Param			id			path		int						true	"Capture id"
//	@Param			If-Match	header		string					false	"SHA-256 checksum of the current content"
//	@Param			body		body		UpdateCaptureRequest	true	"Changed fields"
//	@Success		200			{object}	CaptureDetail
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/{id} [put]
func (h *Handler) UpdateCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateCaptureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	d, err := h.svc.UpdateNote(r.Context(), owner(r), id, req.input(ifMatch))
	if err != nil {
		h.writeError(w, r, "update capture", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteCapture handles DELETE /api/captures/{id}.
//
//	@Summary		Delete a capture and its links
//	@Tags			captures
//	@Param			id	path	int	true	"Capture id"
//	@Success		204	"Capture deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/{id} [delete]
func (h *Handler) DeleteCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteNote(r.Context(), owner(r), id); err != nil {
		h.writeError(w, r, "delete capture", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Links handles GET /api/captures/{id}/links.
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	links, err := h.svc.Links(r.Context(), owner(r), id)
	if err != nil {
		h.writeError(w, r, "capture links", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// SetPosition handles PUT /api/captures/{id}/position.
func (h *Handler) SetPosition(w http.ResponseWriter, r *http.Request) {
	h.setPosition(w, r, "Position updated successfully", h.svc.SetGraphPosition)
}

// SetProjectPosition handles PUT /api/captures/{id}/project-position.
func (h *Handler) SetProjectPosition(w http.ResponseWriter, r *http.Request) {
	h.setPosition(w, r, "Project position updated successfully", h.svc.SetProjectPosition)
}

func (h *Handler) setPosition(w http.ResponseWriter, r *http.Request, msg string,
	set func(ctx context.Context, owner, id int64, x, y float64) (*store.Note, error),
) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req PositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := set(r.Context(), owner(r), id, *req.X, *req.Y)
	if err != nil {
		h.writeError(w, r, "set position", err)
		return
	}
	writeJSON(w, http.StatusOK, PositionResponse{Message: msg, Capture: n})
}

// CreateLink handles POST /api/captures/links. It answers 201 when the edge
// is new and 200 when it already existed.
//
//	@Summary		Link two captures by appending a reference marker
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkRequest	true	"Source and target"
//	@Success		201		{object}	LinkResponse
//	@Success		200		{object}	LinkResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/captures/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CreateLink(r.Context(), owner(r), req.SourceCaptureID, req.TargetCaptureID)
	if err != nil {
		h.writeError(w, r, "create link", err)
		return
	}
	src, err := h.svc.GetNote(r.Context(), owner(r), req.SourceCaptureID)
	if err != nil {
		h.writeError(w, r, "create link", err)
		return
	}
	status, msg := http.StatusOK, "Link already exists."
	if res.Created {
		status, msg = http.StatusCreated, "Link created successfully."
	}
	writeJSON(w, status, LinkResponse{Message: msg, Link: res.Link, SourceCapture: src})
}

// DeleteLink handles DELETE /api/captures/links/{linkId}.
//
//	@Summary		Remove a link by deleting its markers from the source
//	@Tags			links
//	@Param			linkId	path	int	true	"Link id"
//	@Success		204		"Link removed"
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse	"Marker could not be removed"
//	@Security		BearerAuth
//	@Router			/captures/links/{linkId} [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "linkId")
	if !ok {
		return
	}
	removed, err := h.svc.DeleteLink(r.Context(), owner(r), id)
	if err != nil {
		h.writeError(w, r, "delete link", err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusConflict, errorBody("link is still referenced by the source content"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Graph handles GET /api/captures/graph.
//
//	@Summary		Get the capture graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	noteservice.Graph
//	@Security		BearerAuth
//	@Router			/captures/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Graph(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, r, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Types handles GET /api/captures/types.
func (h *Handler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.ListTypes(r.Context())
	if err != nil {
		h.writeError(w, r, "list types", err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// Statuses handles GET /api/captures/statuses.
func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.ListStatuses(r.Context())
	if err != nil {
		h.writeError(w, r, "list statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Tags handles GET /api/captures/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context(), owner(r))
	if err != nil {
		h.writeError(w, r, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
