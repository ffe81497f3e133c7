package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"mediator-backend/internal/identity"
	"mediator-backend/internal/storage"
	"mediator-backend/internal/store"
)

// UploadLocal handles POST /api/documents/upload-local.
func (h *Handler) UploadLocal(c *fiber.Ctx) error {
	user := identity.FromCtx(c)

	file, err := c.FormFile("file")
	if err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Missing file in form data")
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	contentType := file.Header.Get(fiber.HeaderContentType)
	sniffed, err := mimetype.DetectReader(src)
	if err != nil {
		return fmt.Errorf("sniff uploaded file: %w", err)
	}
	if contentType == "" || !sniffed.Is("application/octet-stream") {
		contentType = sniffed.String()
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind uploaded file: %w", err)
	}

	if appErr := h.policy.Check(UploadCandidate{
		Size:        file.Size,
		ContentType: contentType,
		FileName:    file.Filename,
	}); appErr != nil {
		return appErr
	}

	ctx := c.UserContext()
	objectPath, err := h.files.SaveFile(ctx, src, storage.ObjectInfo{
		ContentType: contentType,
		Size:        file.Size,
		FileName:    file.Filename,
	}, user.ID)
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	doc := &store.Document{
		ID:          uuid.NewString(),
		CaseID:      optional(utils.CopyString(c.FormValue("caseId"))),
		Name:        file.Filename,
		ObjectPath:  objectPath,
		ContentType: contentType,
		Size:        file.Size,
		UploadedBy:  user.ID,
	}
	if err := h.docs.Insert(ctx, doc); err != nil {
		if rmErr := h.files.DeleteFile(ctx, objectPath); rmErr != nil {
			h.log.Warn().Err(rmErr).Str("object", objectPath).Msg("remove object after failed insert")
		}
		return handleWriteError(err)
	}

	h.log.Info().Str("document", doc.ID).Str("object", objectPath).Str("user_id", user.ID).Msg("document uploaded")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": doc})
}

type registerRequest struct {
	ObjectPath  string `json:"objectPath" validate:"required"`
	Name        string `json:"name" validate:"required,max=255"`
	CaseID      string `json:"caseId" validate:"max=128"`
	ContentType string `json:"contentType" validate:"max=255"`
	Size        int64  `json:"size" validate:"gte=0"`
}

// Register handles POST /api/documents for objects uploaded through an upload URL.
func (h *Handler) Register(c *fiber.Ctx) error {
	user := identity.FromCtx(c)

	var body registerRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	objectPath, err := h.objectPathFrom(body.ObjectPath)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if meta, err := h.files.Metadata(ctx, objectPath); err == nil && meta.Owner != "" && meta.Owner != user.ID {
		return ForbiddenError("Object belongs to another user")
	}
	if err := h.files.SetAclPolicy(ctx, objectPath, storage.AclPatch{Owner: user.ID}); err != nil {
		return handleWriteError(err)
	}

	doc := &store.Document{
		ID:          uuid.NewString(),
		CaseID:      optional(body.CaseID),
		Name:        body.Name,
		ObjectPath:  objectPath,
		ContentType: body.ContentType,
		Size:        body.Size,
		UploadedBy:  user.ID,
	}
	if meta, err := h.files.Metadata(ctx, objectPath); err == nil {
		if doc.ContentType == "" {
			doc.ContentType = meta.ContentType
		}
		if doc.Size == 0 {
			doc.Size = meta.Size
		}
	}
	if doc.ContentType == "" {
		doc.ContentType = "application/octet-stream"
	}

	if err := h.docs.Insert(ctx, doc); err != nil {
		return handleWriteError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": doc})
}

// List handles GET /api/documents.
func (h *Handler) List(c *fiber.Ctx) error {
	docs, err := h.docs.ListByUploader(c.UserContext(), identity.ID(c), c.Query("caseId"))
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return c.JSON(fiber.Map{"data": docs})
}

// Get handles GET /api/documents/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	doc, err := h.findDocument(c)
	if err != nil {
		return err
	}
	if !h.files.CanAccessFile(c.UserContext(), doc.ObjectPath, identity.ID(c), storage.PermissionRead) {
		return ForbiddenError("You do not have access to this document")
	}
	return c.JSON(fiber.Map{"data": doc})
}

// Delete handles DELETE /api/documents/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	doc, err := h.findDocument(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if !h.files.CanAccessFile(ctx, doc.ObjectPath, identity.ID(c), storage.PermissionWrite) {
		return ForbiddenError("Only the owner can delete this document")
	}

	if err := h.files.DeleteFile(ctx, doc.ObjectPath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := h.docs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete document row: %w", err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func (h *Handler) findDocument(c *fiber.Ctx) (*store.Document, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, NotFoundError("Document", id)
	}
	doc, err := h.docs.Get(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError("Document", id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
