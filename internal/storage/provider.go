// Package storage performs the file writes behind document edits. Paths are
// logical ("/dir/page.md") and never leave the notebook root.
package storage

// Provider is the interface for notebook file operations.
type Provider interface {
	// Read returns the raw bytes of the file at a logical path.
	Read(logical string) ([]byte, error)
	// Write atomically replaces the file at a logical path, creating parents.
	Write(logical string, content []byte) error
	// Delete removes the file at a logical path.
	Delete(logical string) error
	// Move renames a file, creating the parents of the new path.
	Move(oldLogical, newLogical string) error
}
