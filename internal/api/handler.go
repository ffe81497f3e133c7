package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"mediator-backend/internal/storage"
	"mediator-backend/internal/store"
)

// DocumentRepository persists document rows.
type DocumentRepository interface {
	Insert(ctx context.Context, d *store.Document) error
	Get(ctx context.Context, id string) (*store.Document, error)
	ListByUploader(ctx context.Context, uploaderID, caseID string) ([]store.Document, error)
	Delete(ctx context.Context, id string) error
}

// PendingSweeper purges abandoned uploads on demand.
type PendingSweeper interface {
	Sweep(ctx context.Context) int
}

type Handler struct {
	files    storage.FileStore
	docs     DocumentRepository
	policy   *UploadPolicy
	sweeper  PendingSweeper
	cacheTTL time.Duration
	log      zerolog.Logger
}

type HandlerConfig struct {
	Files    storage.FileStore
	Docs     DocumentRepository
	Policy   *UploadPolicy
	Sweeper  PendingSweeper
	CacheTTL time.Duration
	Log      zerolog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		files:    cfg.Files,
		docs:     cfg.Docs,
		policy:   cfg.Policy,
		sweeper:  cfg.Sweeper,
		cacheTTL: cfg.CacheTTL,
		log:      cfg.Log,
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// SweepPending handles POST /api/admin/storage/sweep.
func (h *Handler) SweepPending(c *fiber.Ctx) error {
	if h.sweeper == nil {
		return NewAppError("NOT_CONFIGURED", fiber.StatusServiceUnavailable, "Pending sweeper is not configured")
	}
	purged := h.sweeper.Sweep(c.UserContext())
	return c.JSON(fiber.Map{"data": fiber.Map{"purged": purged}})
}

// objectPathFrom normalises raw and rejects anything that is not a logical path.
func (h *Handler) objectPathFrom(raw string) (string, error) {
	path := h.files.NormalizeObjectPath(raw)
	if !strings.HasPrefix(path, storage.ObjectPrefix) || path == storage.ObjectPrefix {
		return "", &AppError{
			Code:    "INVALID_OBJECT_PATH",
			Status:  fiber.StatusBadRequest,
			Message: fmt.Sprintf("%q is not an object path or URL", raw),
			Details: []ErrorDetail{{Field: "objectPath", Rule: "objectPath", Message: "must resolve to " + storage.ObjectPrefix + "<id>"}},
		}
	}
	return path, nil
}

// handleWriteError maps repository and storage errors to client errors.
func handleWriteError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, store.ErrUniqueViolation) {
		msg := "A record with this value already exists"
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			msg = pgErr.Detail
		}
		return NewAppError("CONFLICT", fiber.StatusConflict, msg)
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		return NewAppError("NOT_FOUND", fiber.StatusNotFound, "Object not found")
	}

	return err
}
