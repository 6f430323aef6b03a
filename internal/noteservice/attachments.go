package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/nbweb/internal/apperr"
)

// AttachmentDir is where uploaded files land. It is excluded from the index
// by default and served through Raw.
const AttachmentDir = "/media"

// SaveAttachment stores an uploaded file under AttachmentDir and returns its
// logical path. name must be a plain file name whose extension is not one
// the notebook indexes as a document.
func (s *Service) SaveAttachment(_ context.Context, name string, data []byte) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("notebook: attachment name %q: %w", name, apperr.ErrInvalidInput)
	}
	if s.paths.Recognized(path.Ext(name)) {
		return "", fmt.Errorf("notebook: attachment %q has a document extension: %w", name, apperr.ErrInvalidInput)
	}
	logical := path.Join(AttachmentDir, name)
	if _, err := s.store.Read(logical); err == nil {
		return "", fmt.Errorf("notebook: %s: %w", logical, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	if err := s.store.Write(logical, data); err != nil {
		return "", err
	}
	s.logger.Info("notebook: attachment saved", slog.String("path", logical), slog.Int("size", len(data)))
	return logical, nil
}
