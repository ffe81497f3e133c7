package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"mediator-backend/internal/identity"
	"mediator-backend/internal/storage"
)

// UploadURL handles POST /api/objects/upload.
func (h *Handler) UploadURL(c *fiber.Ctx) error {
	url, err := h.files.UploadURL(c.UserContext())
	if err != nil {
		return fmt.Errorf("upload url: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"uploadURL": url}})
}

type aclRequest struct {
	ObjectPath   string              `json:"objectPath" validate:"required"`
	Visibility   *storage.Visibility `json:"visibility" validate:"omitempty,oneof=private public"`
	AllowedUsers *[]string           `json:"allowedUsers" validate:"omitempty,dive,required"`
}

// SetACL handles PUT /api/objects/acl. Only the owner may change the policy.
func (h *Handler) SetACL(c *fiber.Ctx) error {
	var body aclRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	objectPath, err := h.objectPathFrom(body.ObjectPath)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if _, err := h.files.Metadata(ctx, objectPath); err != nil {
		return handleWriteError(err)
	}
	if !h.files.CanAccessFile(ctx, objectPath, identity.ID(c), storage.PermissionWrite) {
		return ForbiddenError("Only the owner can change access to this object")
	}

	patch := storage.AclPatch{Visibility: body.Visibility, AllowedUsers: body.AllowedUsers}
	if err := h.files.SetAclPolicy(ctx, objectPath, patch); err != nil {
		return handleWriteError(err)
	}

	meta, err := h.files.Metadata(ctx, objectPath)
	if err != nil {
		return handleWriteError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"objectPath":   objectPath,
		"visibility":   meta.Visibility,
		"owner":        meta.Owner,
		"allowedUsers": meta.AllowedUsers,
	}})
}

// Download handles GET /objects/*.
func (h *Handler) Download(c *fiber.Ctx) error {
	objectPath := storage.ObjectPrefix + c.Params("*")
	ctx := c.UserContext()

	if !h.files.CanAccessFile(ctx, objectPath, identity.ID(c), storage.PermissionRead) {
		if _, err := h.files.Metadata(ctx, objectPath); errors.Is(err, storage.ErrObjectNotFound) {
			return NotFoundError("Object", objectPath)
		}
		return UnauthorizedError("You do not have access to this object")
	}

	err := h.files.DownloadFile(c, objectPath, h.cacheTTL)
	if err == nil {
		return nil
	}
	if c.Response().IsBodyStream() {
		h.log.Error().Err(err).Str("object", objectPath).Msg("download failed after streaming started")
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		return NotFoundError("Object", objectPath)
	}
	h.log.Error().Err(err).Str("object", objectPath).Msg("download failed")
	return NewAppError("DOWNLOAD_FAILED", fiber.StatusInternalServerError, "Error downloading file")
}
