package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbweb/internal/noteservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// wildcardPath extracts the logical path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. notes%2Fpage.md).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return noteservice.Clean(decoded)
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a document with its cross references
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Logical path; extensionless and .html names are resolved"
//	@Success		200		{object}	noteservice.Page
//	@Failure		300		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Document(r.Context(), wildcardPath(r), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "get document", err)
		return
	}
	w.Header().Set("ETag", `"`+page.Checksum+`"`)
	writeJSON(w, http.StatusOK, page)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a new document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	noteservice.Page
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		415		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	page, err := h.svc.Create(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, r, "create document", err)
		return
	}
	w.Header().Set("ETag", `"`+page.Checksum+`"`)
	writeJSON(w, http.StatusCreated, page)
}

// UpdateDocument handles PUT /api/documents/*.
//
//	@Summary		Update a document with optimistic concurrency
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string					true	"Logical path"
//	@Param			If-Match	header		string					false	"SHA-256 checksum of the content being replaced"
//	@Param			body		body		UpdateDocumentRequest	true	"Updated content"
//	@Success		200			{object}	noteservice.Page
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		415			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	var req UpdateDocumentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	page, err := h.svc.Update(r.Context(), wildcardPath(r), []byte(req.Content), r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, r, "update document", err)
		return
	}
	w.Header().Set("ETag", `"`+page.Checksum+`"`)
	writeJSON(w, http.StatusOK, page)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Param			path	path	string	true	"Logical path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), wildcardPath(r)); err != nil {
		writeError(w, r, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveDocument handles POST /api/move.
func (h *Handler) MoveDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req MoveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	page, err := h.svc.Move(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, r, "move document", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListDirectory handles GET /api/dirs and /api/dirs/*.
//
//	@Summary		List a directory sorted by the configured sort type
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	false	"Logical directory"
//	@Success		200		{object}	noteservice.Listing
//	@Failure		404		{object}	errResponse
//	@Router			/dirs/{path} [get]
func (h *Handler) ListDirectory(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.ListDirectory(r.Context(), wildcardPath(r), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "list directory", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Search handles GET /api/search.
//
// An empty or stop-word-only query is not an error: the result carries the
// insufficient status and its message.
//
//	@Summary		Ranked search across documents
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	search.Result
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Todos handles GET /api/todo?dir=.
func (h *Handler) Todos(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Todos(r.Context(), r.URL.Query().Get("dir"), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "todos", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// TodoText handles GET /api/todo.txt?dir=.
func (h *Handler) TodoText(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Todos(r.Context(), r.URL.Query().Get("dir"), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "todos", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, board.Text())
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	cloud, err := h.svc.Tags(r.Context(), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, cloud)
}

// Blog handles GET /api/blog and /api/blog/{page}.
func (h *Handler) Blog(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := chi.URLParam(r, "page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("page must be a number"))
			return
		}
		page = n
	}
	blog, err := h.svc.Blog(r.Context(), page, ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "blog", err)
		return
	}
	writeJSON(w, http.StatusOK, blog)
}

// ForwardID handles GET /api/id/{id} by redirecting to the document.
func (h *Handler) ForwardID(w http.ResponseWriter, r *http.Request) {
	href, err := h.svc.ForwardID(r.Context(), chi.URLParam(r, "id"), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "forward id", err)
		return
	}
	http.Redirect(w, r, href, http.StatusFound)
}

// NewID handles GET /api/new-id.
func (h *Handler) NewID(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NewID(r.Context())
	if err != nil {
		writeError(w, r, "new id", err)
		return
	}
	writeJSON(w, http.StatusOK, NewIDResponse{ID: id})
}

// Refresh handles POST /api/refresh?force=1&reset=1.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parsed, err := h.svc.Refresh(r.Context(), isTrue(q.Get("force")), isTrue(q.Get("reset")))
	if err != nil {
		writeError(w, r, "refresh", err)
		return
	}
	total, err := h.svc.Syncer().DB().Count(r.Context())
	if err != nil {
		writeError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Parsed: parsed, Documents: total})
}
