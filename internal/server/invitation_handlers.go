package server

import (
	"billboard/internal/models"
	"billboard/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Invite handles POST /api/listings/:id/invitations
// @Summary Invite a prior applicant
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Param request body object{invitee_id=int,message=string} true "Invitation"
// @Success 201 {object} models.Invitation
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /listings/{id}/invitations [post]
func (s *Server) Invite(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		InviteeID uint   `json:"invitee_id"`
		Message   string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if req.InviteeID == 0 {
		return respondError(c, models.NewValidationError("invitee_id is required"))
	}

	inv, err := s.invitationService.Invite(c.UserContext(), service.InviteInput{
		ListingID: listingID,
		ActorID:   currentUserID(c),
		InviteeID: req.InviteeID,
		Message:   req.Message,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// GetListingInvitations handles GET /api/listings/:id/invitations (owner only)
func (s *Server) GetListingInvitations(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page, err := s.invitationService.ListForListing(c.UserContext(), listingID, currentUserID(c), parsePagination(c, 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetMyInvitations handles GET /api/invitations/me
func (s *Server) GetMyInvitations(c *fiber.Ctx) error {
	page, err := s.invitationService.ListMine(c.UserContext(), currentUserID(c), parsePagination(c, 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// RespondInvitation handles PUT /api/invitations/:id/status
func (s *Server) RespondInvitation(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Status models.InvitationStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	inv, err := s.invitationService.Respond(c.UserContext(), service.RespondInvitationInput{
		InvitationID: id,
		ActorID:      currentUserID(c),
		Status:       req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}
