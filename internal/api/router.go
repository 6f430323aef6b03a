package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbweb/internal/noteservice"
	"github.com/starford/nbweb/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *noteservice.Service, auth Auth, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(svc)

	r := chi.NewRouter()
	r.Use(ViewerMiddleware(auth))

	// Documents.
	r.Get("/documents/*", h.GetDocument)
	r.Get("/dirs", h.ListDirectory)
	r.Get("/dirs/*", h.ListDirectory)
	r.Get("/raw/*", ah.ServeFile)

	// Views over the whole notebook.
	r.Get("/search", h.Search)
	r.Get("/todo", h.Todos)
	r.Get("/todo.txt", h.TodoText)
	r.Get("/tags", h.Tags)
	r.Get("/blog", h.Blog)
	r.Get("/blog/{page}", h.Blog)
	r.Get("/id/{id}", h.ForwardID)

	// Editing.
	r.Group(func(r chi.Router) {
		r.Use(RequireEditor)
		r.Post("/documents", h.CreateDocument)
		r.Put("/documents/*", h.UpdateDocument)
		r.Delete("/documents/*", h.DeleteDocument)
		r.Post("/move", h.MoveDocument)
		r.Post("/attachments", ah.Upload)
		r.Get("/new-id", h.NewID)
		r.Post("/refresh", h.Refresh)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// EventFilter hides events about protected documents from viewers that are
// not authenticated. It is meant for sse.WithRequestFilter behind
// ViewerMiddleware.
func EventFilter(svc *noteservice.Service) func(*http.Request) sse.Filter {
	paths := svc.Syncer().Paths()
	return func(r *http.Request) sse.Filter {
		v := ViewerFrom(r.Context())
		if v.Authenticated || v.Editor {
			return nil
		}
		return func(p string) bool { return !paths.Protected(p) }
	}
}
