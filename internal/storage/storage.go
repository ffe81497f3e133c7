package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ErrObjectNotFound is returned when a logical path does not resolve to a stored blob.
var ErrObjectNotFound = errors.New("object not found")

// ObjectPrefix is the prefix of every logical object path.
const ObjectPrefix = "/objects/"

// LocalUploadURL is where clients post multipart uploads when files are kept on local disk.
const LocalUploadURL = "/api/documents/upload-local"

const defaultContentType = "application/octet-stream"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// ObjectInfo describes a payload handed to SaveFile.
type ObjectInfo struct {
	ContentType string
	Size        int64
	UploadedAt  time.Time
	// FileName is optional; only its extension is kept.
	FileName string
}

// ObjectMeta is the ACL sidecar stored next to every blob.
type ObjectMeta struct {
	ContentType  string     `json:"contentType"`
	Size         int64      `json:"size"`
	UploadedAt   time.Time  `json:"uploadedAt"`
	Visibility   Visibility `json:"visibility"`
	Owner        string     `json:"owner,omitempty"`
	AllowedUsers []string   `json:"allowedUsers,omitempty"`
	// Pending marks a save whose blob write has not been confirmed yet.
	Pending bool `json:"pending,omitempty"`
}

// AclPatch is a partial ACL update. Nil fields are left untouched.
type AclPatch struct {
	Visibility   *Visibility `json:"visibility,omitempty" validate:"omitempty,oneof=private public"`
	AllowedUsers *[]string   `json:"allowedUsers,omitempty" validate:"omitempty,dive,required"`
	// Owner is applied only when the record has no owner yet.
	Owner string `json:"owner,omitempty"`
}

// FileStore persists document blobs together with their ACL sidecars.
// Local-disk and S3 implementations are selected at startup.
type FileStore interface {
	// UploadURL returns the target a client should upload a new document to.
	UploadURL(ctx context.Context) (string, error)
	// NormalizeObjectPath maps URLs and paths to the canonical /objects/<id> form,
	// returning raw unchanged when no mapping applies.
	NormalizeObjectPath(raw string) string
	// SaveFile writes a private object and returns its logical path.
	SaveFile(ctx context.Context, body io.Reader, info ObjectInfo, ownerID string) (string, error)
	// CanAccessFile reports whether userID (empty for anonymous) holds perm on the object.
	CanAccessFile(ctx context.Context, logicalPath, userID string, perm Permission) bool
	// SetAclPolicy merges patch into the object's sidecar.
	SetAclPolicy(ctx context.Context, logicalPath string, patch AclPatch) error
	// Metadata returns the committed sidecar of an object.
	Metadata(ctx context.Context, logicalPath string) (*ObjectMeta, error)
	// DownloadFile streams the blob to the response with cache headers.
	DownloadFile(c *fiber.Ctx, logicalPath string, cacheTTL time.Duration) error
	// DeleteFile removes the blob and, best-effort, its sidecar.
	DeleteFile(ctx context.Context, logicalPath string) error
	// PurgePending removes objects whose save never completed and that are older than maxAge.
	PurgePending(ctx context.Context, maxAge time.Duration) (int, error)
}
