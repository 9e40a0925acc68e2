package server

import (
	"billboard/internal/models"
	"billboard/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createListingRequest struct {
	service.ListingInput
	Draft bool `json:"draft"`
}

type updateListingRequest struct {
	service.ListingInput
	Status models.ListingStatus `json:"status"`
}

// GetListings handles GET /api/listings
// @Summary Browse listings
// @Description Filtered, sorted and paged listing query. Text search and filters are combined.
// @Tags listings
// @Produce json
// @Param q query string false "Free-text search"
// @Param category query string false "offer or search"
// @Param sort query string false "newest, oldest, price_asc, price_desc, popular, most_liked, deadline"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} models.PagedListings
// @Failure 400 {object} models.ErrorResponse
// @Router /listings [get]
func (s *Server) GetListings(c *fiber.Ctx) error {
	filter, err := parseListingFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	viewerID, _ := s.optionalUserID(c)

	page, err := s.listingService.FindListings(c.UserContext(), service.FindListingsInput{
		Filter:   filter,
		Page:     parsePagination(c, 20),
		Sort:     c.Query("sort"),
		ViewerID: viewerID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetListing handles GET /api/listings/:id and counts one view.
// @Summary Get a listing
// @Tags listings
// @Produce json
// @Param id path int true "Listing ID"
// @Success 200 {object} models.Listing
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id} [get]
func (s *Server) GetListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	viewerID, _ := s.optionalUserID(c)

	listing, err := s.listingService.GetListing(c.UserContext(), service.GetListingInput{
		ListingID: id,
		ViewerID:  viewerID,
		CountView: true,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing)
}

// CreateListing handles POST /api/listings
// @Summary Create a listing
// @Description Creates an active listing, or a draft when draft is true.
// @Tags listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} models.Listing
// @Failure 400 {object} models.ErrorResponse
// @Router /listings [post]
func (s *Server) CreateListing(c *fiber.Ctx) error {
	var req createListingRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	listing, err := s.listingService.CreateListing(c.UserContext(), service.CreateListingInput{
		ActorID:      currentUserID(c),
		Draft:        req.Draft,
		ListingInput: req.ListingInput,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

// CreateListingsBulk handles POST /api/listings/bulk
func (s *Server) CreateListingsBulk(c *fiber.Ctx) error {
	var req struct {
		Listings []service.ListingInput `json:"listings"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	listings, err := s.listingService.CreateListings(c.UserContext(), currentUserID(c), req.Listings)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"listings": listings,
		"count":    len(listings),
	})
}

// UpdateListing handles PUT /api/listings/:id
func (s *Server) UpdateListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req updateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	listing, err := s.listingService.UpdateListing(c.UserContext(), service.UpdateListingInput{
		ActorID:      currentUserID(c),
		ListingID:    id,
		Status:       req.Status,
		ListingInput: req.ListingInput,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing)
}

// DeleteListing handles DELETE /api/listings/:id
func (s *Server) DeleteListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.listingService.DeleteListing(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PublishListing handles POST /api/listings/:id/publish
func (s *Server) PublishListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	listing, err := s.listingService.PublishListing(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing)
}

// ToggleLike handles POST /api/listings/:id/like
// @Summary Like or unlike a listing
// @Tags listings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Success 200 {object} service.LikeResult
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	result, err := s.listingService.ToggleLike(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// FindSimilarListings handles GET /api/listings/similar?q=&k=
// @Summary Semantic listing search
// @Description Ranks active listings by similarity to q. Falls back to text search when the vector path has no answer.
// @Tags listings
// @Produce json
// @Param q query string true "Query text"
// @Param k query int false "Result count (max 50)"
// @Success 200 {object} service.SimilarResult
// @Failure 400 {object} models.ErrorResponse
// @Router /listings/similar [get]
func (s *Server) FindSimilarListings(c *fiber.Ctx) error {
	filter, err := parseListingFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	query := filter.Query
	filter.Query = ""

	result, err := s.similarityService.FindSimilar(c.UserContext(), query, c.QueryInt("k", 0), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// GetSimilarListings handles GET /api/listings/:id/similar
func (s *Server) GetSimilarListings(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	result, err := s.similarityService.SimilarToListing(c.UserContext(), id, c.QueryInt("k", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
