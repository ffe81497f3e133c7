package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	documentsDir = "documents"
	aclDir       = "acl"
	sidecarExt   = ".json"
	tempMarker   = sidecarExt + ".tmp-"
)

// LocalFileStore stores blobs under documents/ and their ACL sidecars under acl/
// on a local filesystem.
type LocalFileStore struct {
	objects
	fs afero.Fs
}

// NewLocalFileStore creates the store on fs, creating its directories if needed.
func NewLocalFileStore(fs afero.Fs, log zerolog.Logger) (*LocalFileStore, error) {
	for _, dir := range []string{documentsDir, aclDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	s := &LocalFileStore{fs: fs}
	s.objects = newObjects(s, log.With().Str("store", "local").Logger())
	return s, nil
}

// NewLocalFileStoreAt roots a LocalFileStore at basePath on the OS filesystem.
func NewLocalFileStoreAt(basePath string, log zerolog.Logger) (*LocalFileStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", basePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	return NewLocalFileStore(afero.NewBasePathFs(afero.NewOsFs(), abs), log)
}

func (s *LocalFileStore) UploadURL(context.Context) (string, error) {
	return LocalUploadURL, nil
}

func (s *LocalFileStore) NormalizeObjectPath(raw string) string {
	return normalizeObjectPath(raw)
}

// UploadPath returns a fresh location under the documents directory, keeping
// the extension of originalFileName.
func (s *LocalFileStore) UploadPath(originalFileName string) string {
	return s.blobPath(newObjectID(originalFileName))
}

func (s *LocalFileStore) blobPath(id string) string {
	return filepath.Join(documentsDir, filepath.FromSlash(id))
}

func (s *LocalFileStore) sidecarPath(id string) string {
	return filepath.Join(aclDir, filepath.FromSlash(id)+sidecarExt)
}

func (s *LocalFileStore) putBlob(_ context.Context, id string, body io.Reader, _ string) (int64, error) {
	p := s.blobPath(id)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(p)
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}

func (s *LocalFileStore) openBlob(_ context.Context, id string) (io.ReadCloser, int64, error) {
	f, err := s.fs.Open(s.blobPath(id))
	if err != nil {
		return nil, 0, s.notFound(id, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", id, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: %w", id, ErrObjectNotFound)
	}
	return f, st.Size(), nil
}

func (s *LocalFileStore) statBlob(_ context.Context, id string) (*ObjectMeta, error) {
	f, err := s.fs.Open(s.blobPath(id))
	if err != nil {
		return nil, s.notFound(id, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s: %w", id, ErrObjectNotFound)
	}
	mt, err := mimetype.DetectReader(f)
	contentType := defaultContentType
	if err == nil {
		contentType = mt.String()
	}
	return &ObjectMeta{
		ContentType: contentType,
		Size:        st.Size(),
		UploadedAt:  st.ModTime().UTC(),
	}, nil
}

func (s *LocalFileStore) removeBlob(_ context.Context, id string) error {
	if err := s.fs.Remove(s.blobPath(id)); err != nil {
		return s.notFound(id, err)
	}
	return nil
}

func (s *LocalFileStore) readSidecar(_ context.Context, id string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.sidecarPath(id))
	if err != nil {
		return nil, s.notFound(id, err)
	}
	return data, nil
}

// writeSidecar replaces the sidecar through a rename so readers never see a partial record.
func (s *LocalFileStore) writeSidecar(_ context.Context, id string, data []byte) error {
	p := s.sidecarPath(id)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := strings.TrimSuffix(p, sidecarExt) + tempMarker + uuid.NewString()
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

func (s *LocalFileStore) removeSidecar(_ context.Context, id string) error {
	if err := s.fs.Remove(s.sidecarPath(id)); err != nil {
		return s.notFound(id, err)
	}
	return nil
}

func (s *LocalFileStore) listSidecars(ctx context.Context) ([]sidecarEntry, error) {
	var entries []sidecarEntry
	err := afero.Walk(s.fs, aclDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(p, sidecarExt) {
			return nil
		}
		rel, err := filepath.Rel(aclDir, p)
		if err != nil {
			return err
		}
		entries = append(entries, sidecarEntry{
			ID:      filepath.ToSlash(strings.TrimSuffix(rel, sidecarExt)),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// purgeTemp removes staged sidecar writes last modified at or before cutoff.
func (s *LocalFileStore) purgeTemp(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []string
	err := afero.Walk(s.fs, aclDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !strings.Contains(filepath.Base(p), tempMarker) {
			return nil
		}
		if !info.ModTime().After(cutoff) {
			stale = append(stale, p)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range stale {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *LocalFileStore) notFound(id string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, ErrObjectNotFound)
	}
	return err
}

var _ FileStore = (*LocalFileStore)(nil)
