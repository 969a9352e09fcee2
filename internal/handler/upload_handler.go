package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/middleware"
	"github.com/linkfield/linkfield-api/internal/service"
	"github.com/linkfield/linkfield-api/internal/utils"
)

// UploadHandler accepts one or many files and returns their stored shapes.
type UploadHandler struct {
	service service.UploadService
	logger  zerolog.Logger
}

// NewUploadHandler creates an upload handler instance.
func NewUploadHandler(service service.UploadService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		service: service,
		logger:  logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register binds the upload route under the provided router group.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("/", h.upload)
}

// upload stores every file in the "files" field. Individual failures are
// reported per file; the request succeeds if at least one file stored.
func (h *UploadHandler) upload(c *fiber.Ctx) error {
	if _, ok := middleware.CurrentUserID(c); !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	form, err := c.MultipartForm()
	if err != nil || form == nil || len(form.File["files"]) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "at least one file is required")
	}

	results := make([]dto.UploadResponse, 0, len(form.File["files"]))
	stored := 0
	var lastErr error
	for _, header := range form.File["files"] {
		response, err := h.service.Upload(c.UserContext(), header)
		if err != nil {
			h.logger.Warn().Err(err).Str("file", header.Filename).Msg("upload failed")
			results = append(results, dto.UploadResponse{FileName: header.Filename, Error: err.Error()})
			lastErr = err
			continue
		}
		stored++
		results = append(results, response)
	}

	if stored == 0 {
		if errors.Is(lastErr, service.ErrUploadTooLarge) {
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, lastErr.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, "no file could be stored")
	}

	return utils.SendSuccess(c, "files uploaded", results)
}
