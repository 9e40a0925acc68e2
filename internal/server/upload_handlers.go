package server

import (
	"io"

	"billboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UploadResponse is returned after an image is stored.
type UploadResponse struct {
	URL string `json:"url"`
}

// UploadImage handles POST /api/uploads (multipart field "image"). The
// returned URL goes into a listing's images.
// @Summary Upload a listing image
// @Description Decodes the image, bounds its dimensions, re-encodes it as WebP and stores it.
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Image file"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /uploads [post]
func (s *Server) UploadImage(c *fiber.Ctx) error {
	if s.uploader == nil {
		return respondError(c, models.NewUpstreamError("Image storage", nil))
	}

	file, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	if file.Size > s.uploader.MaxBytes() {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("File too large"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	url, err := s.uploader.Upload(c.UserContext(), currentUserID(c), content, file.Header.Get("Content-Type"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(UploadResponse{URL: url})
}
