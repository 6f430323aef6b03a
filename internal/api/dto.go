package api

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"/notes/hello.md"`
	Content string `json:"content" example:"# Hello\nWorld"`
}

// UpdateDocumentRequest is the request body for updating a document.
type UpdateDocumentRequest struct {
	Content string `json:"content" example:"# Updated\nContent"`
}

// MoveDocumentRequest is the request body for renaming a document.
type MoveDocumentRequest struct {
	From string `json:"from" example:"/notes/hello.md"`
	To   string `json:"to" example:"/archive/hello.md"`
}

// NewIDResponse carries an unused numeric document id.
type NewIDResponse struct {
	ID int `json:"id" example:"42"`
}

// RefreshResponse reports a reconcile pass.
type RefreshResponse struct {
	Parsed    int `json:"parsed" example:"3"`
	Documents int `json:"documents" example:"120"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Path string `json:"path" example:"/media/image.png"`
	Size int64  `json:"size" example:"12345"`
	URL  string `json:"url" example:"/api/raw/media/image.png"`
}
