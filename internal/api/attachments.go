package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/starford/nbweb/internal/noteservice"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AttachmentHandler serves raw notebook files and accepts uploads.
type AttachmentHandler struct {
	svc *noteservice.Service
}

// NewAttachmentHandler creates a handler over the notebook service.
func NewAttachmentHandler(svc *noteservice.Service) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// ServeFile handles GET /api/raw/*.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.svc.Raw(r.Context(), wildcardPath(r), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "raw file", err)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/attachments (multipart/form-data, field "file").
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("file too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	logical, err := h.svc.SaveAttachment(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, r, "upload attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{
		Path: logical,
		Size: int64(len(data)),
		URL:  "/api/raw" + logical,
	})
}
