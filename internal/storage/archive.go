package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Archive copies a session's audio file into a bucket under
// <sessionID>/<file name>.
type Archive struct {
	store  Storage
	bucket string
}

func NewArchive(store Storage, bucket string) *Archive {
	return &Archive{store: store, bucket: bucket}
}

// Archive uploads the file at localPath and returns its public URL.
func (a *Archive) Archive(ctx context.Context, sessionID, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	object := path.Join(sessionID, filepath.Base(localPath))
	if err := a.store.Upload(ctx, a.bucket, object, f, contentType); err != nil {
		return "", fmt.Errorf("archive %s: %w", object, err)
	}
	return a.store.PublicURL(a.bucket, object), nil
}
