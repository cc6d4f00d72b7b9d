package object

import (
	"context"
	"fmt"
	"io"
	"path"

	"clinical-review-backend/internal/shared/util"
)

// ObjectStore archives raw uploaded documents under a tenant namespace.
type ObjectStore interface {
	Save(ctx context.Context, tenantID, documentID, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// Key returns the storage key for a document: a hashed tenant directory and the document id
// prefixed onto the sanitized file name.
func Key(tenantID, documentID, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(util.HashTenantKey(tenantID), documentID+"_"+name), nil
}
