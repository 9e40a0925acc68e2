package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/listings/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	viewerID, _ := s.optionalUserID(c)

	comments, err := s.commentService.ListComments(c.UserContext(), listingID, viewerID, parsePagination(c, 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/listings/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	comment, err := s.commentService.CreateComment(c.UserContext(), listingID, currentUserID(c), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/listings/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	listingID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	commentID, err := s.parseID(c, "commentId")
	if err != nil {
		return nil
	}

	if err := s.commentService.DeleteComment(c.UserContext(), listingID, commentID, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
