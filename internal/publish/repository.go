// Package publish commits finished export artifacts to a destination
// repository without buffering them in memory.
package publish

import "context"

// FileRef names a file to commit and the URL its bytes are streamed from.
type FileRef struct {
	Path      string `json:"path"`
	SourceURL string `json:"source_url"`
}

// Repository is a destination for export artifacts. CreateRepository
// returns domain.ErrAlreadyExists (possibly wrapped) when id already exists.
type Repository interface {
	CreateRepository(ctx context.Context, token, id, license string) error
	UploadByReference(ctx context.Context, token, id string, files []FileRef) error
}
