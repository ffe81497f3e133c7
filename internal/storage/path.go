package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// newObjectID returns a fresh UUID, keeping the extension of fileName if it has one.
func newObjectID(fileName string) string {
	id := uuid.New().String()
	if ext := path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))); ext != "" && ext != "." {
		id += strings.ToLower(ext)
	}
	return id
}

// objectID resolves a logical path to the object id behind it.
// Ids may contain '/' but must stay inside the store.
func objectID(logicalPath string) (string, error) {
	if !strings.HasPrefix(logicalPath, ObjectPrefix) {
		return "", fmt.Errorf("%q: %w", logicalPath, ErrObjectNotFound)
	}
	id := strings.TrimPrefix(logicalPath, ObjectPrefix)
	if id == "" || strings.HasPrefix(id, "/") || path.Clean(id) != id ||
		id == ".." || strings.HasPrefix(id, "../") {
		return "", fmt.Errorf("%q: %w", logicalPath, ErrObjectNotFound)
	}
	return id, nil
}

func logicalPath(id string) string {
	return ObjectPrefix + id
}

// normalizeObjectPath handles the shapes both stores share: canonical paths
// (query and fragment dropped) and absolute URLs whose path is canonical.
// Anything else, malformed URLs included, comes back unchanged.
func normalizeObjectPath(raw string) string {
	if strings.HasPrefix(raw, ObjectPrefix) {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	if strings.HasPrefix(u.Path, ObjectPrefix) && len(u.Path) > len(ObjectPrefix) {
		return u.Path
	}
	return raw
}
