package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
	"github.com/timmy/hubexport/internal/storage"
)

const markerName = ".repository.json"

// ObjectRepository lays repositories out as key prefixes in an object store.
// A marker object records that a repository exists.
type ObjectRepository struct {
	store  storage.ObjectStorage
	prefix string
	source *sourceFetcher
	now    func() time.Time
}

// NewObjectRepository creates a repository client over store. Keys are
// written under prefix/<namespace>/<name>/.
func NewObjectRepository(store storage.ObjectStorage, prefix string) *ObjectRepository {
	return &ObjectRepository{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		source: newSourceFetcher(0),
		now:    time.Now,
	}
}

type repositoryMarker struct {
	ID        string    `json:"id"`
	License   string    `json:"license"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *ObjectRepository) key(id, name string) string {
	return path.Join(o.prefix, id, name)
}

// CreateRepository writes the marker of id, or reports
// domain.ErrAlreadyExists when it is already there.
func (o *ObjectRepository) CreateRepository(ctx context.Context, _ string, id, license string) error {
	if _, _, err := splitRepositoryID(id); err != nil {
		return err
	}

	marker := o.key(id, markerName)
	exists, err := o.store.Exists(ctx, marker)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", id, domain.ErrAlreadyExists)
	}

	data, err := json.Marshal(repositoryMarker{ID: id, License: license, CreatedAt: o.now().UTC()})
	if err != nil {
		return err
	}
	if err := o.store.Upload(ctx, marker, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return err
	}

	logger.CtxInfo(ctx, "Created repository %s at %s", id, o.store.GetURL(o.key(id, "")))
	return nil
}

// UploadByReference copies every file from its source URL into the store.
// The length comes from a HEAD request so the body can be streamed.
func (o *ObjectRepository) UploadByReference(ctx context.Context, _ string, id string, files []FileRef) error {
	for _, f := range files {
		if err := o.upload(ctx, id, f); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObjectRepository) upload(ctx context.Context, id string, f FileRef) error {
	size, err := o.source.length(ctx, f.SourceURL)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}
	if size < 0 {
		return fmt.Errorf("upload %s: source did not report a Content-Length", f.Path)
	}

	art, err := o.source.open(ctx, f.SourceURL)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}
	defer art.body.Close()

	start := time.Now()
	key := o.key(id, f.Path)
	if err := o.store.Upload(ctx, key, art.body, size, art.contentType); err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}

	logger.With(logger.Fields{"key": key}).
		WithDuration(time.Since(start).Milliseconds()).
		WithSize(int(size)).
		Info(ctx, "Uploaded %s", o.store.GetURL(key))
	return nil
}
