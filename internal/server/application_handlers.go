package server

import (
	"billboard/internal/models"
	"billboard/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Apply handles POST /api/listings/:id/applications
// @Summary Apply to a listing
// @Description Seekers may apply once per listing and a limited number of times per UTC day.
// @Tags applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Param request body object{message=string} false "Optional message"
// @Success 201 {object} models.Application
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id}/applications [post]
func (s *Server) Apply(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Message string `json:"message"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c)
		}
	}

	app, err := s.applicationService.Apply(c.UserContext(), service.ApplyInput{
		ListingID:   listingID,
		ApplicantID: currentUserID(c),
		Message:     req.Message,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(app)
}

// GetListingApplications handles GET /api/listings/:id/applications (owner only)
func (s *Server) GetListingApplications(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page, err := s.applicationService.ListForListing(c.UserContext(), listingID, currentUserID(c), parsePagination(c, 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetMyApplications handles GET /api/applications/me
func (s *Server) GetMyApplications(c *fiber.Ctx) error {
	page, err := s.applicationService.ListMine(c.UserContext(), currentUserID(c), parsePagination(c, 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetApplication handles GET /api/applications/:id (applicant or listing owner)
func (s *Server) GetApplication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	app, err := s.applicationService.GetApplication(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(app)
}

// UpdateApplicationStatus handles PUT /api/applications/:id/status
// @Summary Accept or reject an application
// @Tags applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Param request body object{status=string} true "accepted or rejected"
// @Success 200 {object} models.Application
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /applications/{id}/status [put]
func (s *Server) UpdateApplicationStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Status models.ApplicationStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	app, err := s.applicationService.UpdateStatus(c.UserContext(), service.UpdateApplicationStatusInput{
		ApplicationID: id,
		ActorID:       currentUserID(c),
		Status:        req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(app)
}
