package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// backend is the blob and sidecar I/O a FileStore implementation provides.
// Every method resolving a missing blob returns an error wrapping ErrObjectNotFound.
type backend interface {
	putBlob(ctx context.Context, id string, body io.Reader, contentType string) (int64, error)
	openBlob(ctx context.Context, id string) (io.ReadCloser, int64, error)
	// statBlob describes a blob that has no sidecar yet.
	statBlob(ctx context.Context, id string) (*ObjectMeta, error)
	removeBlob(ctx context.Context, id string) error

	readSidecar(ctx context.Context, id string) ([]byte, error)
	writeSidecar(ctx context.Context, id string, data []byte) error
	removeSidecar(ctx context.Context, id string) error
	listSidecars(ctx context.Context) ([]sidecarEntry, error)
}

// tempCleaner is implemented by backends that stage sidecar writes in
// temporary files a crash can leave behind.
type tempCleaner interface {
	purgeTemp(ctx context.Context, cutoff time.Time) (int, error)
}

type sidecarEntry struct {
	ID      string
	ModTime time.Time
}

// objects implements the FileStore operations shared by both stores on top of a backend.
type objects struct {
	backend backend
	log     zerolog.Logger
	now     func() time.Time
}

func newObjects(b backend, log zerolog.Logger) objects {
	return objects{backend: b, log: log, now: time.Now}
}

func (o objects) SaveFile(ctx context.Context, body io.Reader, info ObjectInfo, ownerID string) (string, error) {
	id := newObjectID(info.FileName)

	uploadedAt := info.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = o.now()
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	meta := &ObjectMeta{
		ContentType: contentType,
		Size:        info.Size,
		UploadedAt:  uploadedAt.UTC(),
		Visibility:  VisibilityPrivate,
		Owner:       ownerID,
		Pending:     true,
	}
	if ownerID != "" {
		meta.AllowedUsers = []string{ownerID}
	}

	if err := o.writeMeta(ctx, id, meta); err != nil {
		return "", fmt.Errorf("write pending metadata: %w", err)
	}

	n, err := o.backend.putBlob(ctx, id, body, contentType)
	if err != nil {
		if rmErr := o.backend.removeSidecar(ctx, id); rmErr != nil {
			o.log.Warn().Err(rmErr).Str("object", id).Msg("remove pending metadata after failed write")
		}
		return "", fmt.Errorf("write blob: %w", err)
	}
	if meta.Size <= 0 {
		meta.Size = n
	}

	meta.Pending = false
	if err := o.writeMeta(ctx, id, meta); err != nil {
		return "", fmt.Errorf("commit metadata: %w", err)
	}

	o.log.Debug().Str("object", id).Int64("size", meta.Size).Str("owner", ownerID).Msg("object saved")
	return logicalPath(id), nil
}

func (o objects) CanAccessFile(ctx context.Context, path, userID string, perm Permission) bool {
	id, err := objectID(path)
	if err != nil {
		return false
	}
	return o.readMeta(ctx, id).allows(userID, perm)
}

func (o objects) SetAclPolicy(ctx context.Context, path string, patch AclPatch) error {
	id, err := objectID(path)
	if err != nil {
		return err
	}

	meta := o.readMeta(ctx, id)
	if meta != nil && meta.Pending {
		return fmt.Errorf("%s: %w", path, ErrObjectNotFound)
	}
	if meta == nil {
		// Blobs uploaded straight to the backing store get their record here.
		meta, err = o.backend.statBlob(ctx, id)
		if err != nil {
			return err
		}
		meta.Visibility = VisibilityPrivate
	}

	meta.apply(patch)
	if err := o.writeMeta(ctx, id, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (o objects) Metadata(ctx context.Context, path string) (*ObjectMeta, error) {
	id, err := objectID(path)
	if err != nil {
		return nil, err
	}
	meta := o.readMeta(ctx, id)
	if meta == nil || meta.Pending {
		return nil, fmt.Errorf("%s: %w", path, ErrObjectNotFound)
	}
	return meta, nil
}

func (o objects) DownloadFile(c *fiber.Ctx, path string, cacheTTL time.Duration) error {
	ctx := c.UserContext()
	id, err := objectID(path)
	if err != nil {
		return err
	}

	meta := o.readMeta(ctx, id)
	if meta != nil && meta.Pending {
		return fmt.Errorf("%s: %w", path, ErrObjectNotFound)
	}

	body, size, err := o.backend.openBlob(ctx, id)
	if err != nil {
		return err
	}

	contentType := defaultContentType
	if meta != nil && meta.ContentType != "" {
		contentType = meta.ContentType
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, fmt.Sprintf("%s, max-age=%d", meta.CacheScope(), int64(cacheTTL/time.Second)))

	// fasthttp closes body once the response is written.
	if size < 0 {
		return c.SendStream(body)
	}
	return c.SendStream(body, int(size))
}

func (o objects) DeleteFile(ctx context.Context, path string) error {
	id, err := objectID(path)
	if err != nil {
		return err
	}
	blobErr := o.backend.removeBlob(ctx, id)
	if blobErr != nil && !errors.Is(blobErr, ErrObjectNotFound) {
		return fmt.Errorf("delete blob: %w", blobErr)
	}
	// The sidecar goes even when the blob is already gone.
	if err := o.backend.removeSidecar(ctx, id); err != nil {
		o.log.Debug().Err(err).Str("object", id).Msg("metadata already gone")
	}
	if blobErr != nil {
		return fmt.Errorf("delete blob: %w", blobErr)
	}
	return nil
}

func (o objects) PurgePending(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := o.backend.listSidecars(ctx)
	if err != nil {
		return 0, fmt.Errorf("list metadata: %w", err)
	}

	cutoff := o.now().Add(-maxAge)
	purged := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if e.ModTime.After(cutoff) {
			continue
		}
		meta := o.readMeta(ctx, e.ID)
		if meta == nil || !meta.Pending {
			continue
		}
		if err := o.backend.removeBlob(ctx, e.ID); err != nil && !errors.Is(err, ErrObjectNotFound) {
			o.log.Warn().Err(err).Str("object", e.ID).Msg("purge pending blob")
			continue
		}
		if err := o.backend.removeSidecar(ctx, e.ID); err != nil {
			o.log.Warn().Err(err).Str("object", e.ID).Msg("purge pending metadata")
			continue
		}
		purged++
	}

	if tc, ok := o.backend.(tempCleaner); ok {
		n, err := tc.purgeTemp(ctx, cutoff)
		if err != nil {
			o.log.Warn().Err(err).Msg("purge temporary metadata files")
		} else if n > 0 {
			o.log.Debug().Int("removed", n).Msg("purged temporary metadata files")
		}
	}
	return purged, nil
}

// readMeta returns nil when the sidecar is missing, unreadable or corrupt.
func (o objects) readMeta(ctx context.Context, id string) *ObjectMeta {
	data, err := o.backend.readSidecar(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrObjectNotFound) {
			o.log.Warn().Err(err).Str("object", id).Msg("read metadata")
		}
		return nil
	}
	var meta ObjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		o.log.Warn().Err(err).Str("object", id).Msg("corrupt metadata")
		return nil
	}
	return &meta
}

func (o objects) writeMeta(ctx context.Context, id string, meta *ObjectMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return o.backend.writeSidecar(ctx, id, data)
}
