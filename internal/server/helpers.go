package server

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"billboard/internal/middleware"
	"billboard/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const maxPaginationLimit = 100

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) models.Page {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if page := c.QueryInt("page", 0); page > 1 && c.Query("offset") == "" {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}

	return models.Page{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// The message is derived from the parameter name ("id" -> "Invalid ID",
// "commentId" -> "Invalid comment ID").
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

// statusFor maps an error to its HTTP status by AppError code.
func statusFor(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeBadRequest, models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status its code implies. Errors without
// a code are logged and hidden behind INTERNAL_ERROR.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"path", c.Path(), "error", err)
		if models.ErrorCode(err) == "" {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

func invalidBody(c *fiber.Ctx) error {
	return models.RespondWithError(c, fiber.StatusBadRequest,
		models.NewValidationError("Invalid request body"))
}

func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// parseListingFilter reads the optional listing predicates from the query
// string. Malformed values are rejected rather than ignored.
func parseListingFilter(c *fiber.Ctx) (models.ListingFilter, error) {
	f := models.ListingFilter{
		Category: models.ListingCategory(c.Query("category")),
		Type:     models.ListingType(c.Query("type")),
		Status:   models.ListingStatus(c.Query("status")),
		City:     strings.TrimSpace(c.Query("city")),
		Location: strings.TrimSpace(c.Query("location")),
		Hashtag:  strings.TrimPrefix(strings.TrimSpace(c.Query("hashtag")), "#"),
		Query:    strings.TrimSpace(c.Query("q")),
	}
	if f.Category != "" && !f.Category.Valid() {
		return f, models.NewValidationError("Invalid category")
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, models.NewValidationError("Invalid type")
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, models.NewValidationError("Invalid status")
	}
	if owner := c.Query("owner_id"); owner != "" {
		id, err := strconv.ParseUint(owner, 10, 32)
		if err != nil || id == 0 {
			return f, models.NewValidationError("Invalid owner_id")
		}
		f.OwnerID = uint(id)
	}

	flags := []struct {
		name string
		dst  **bool
	}{
		{"furnished", &f.Furnished},
		{"balcony", &f.Balcony},
		{"garden", &f.Garden},
		{"parking", &f.Parking},
		{"elevator", &f.Elevator},
		{"pets_allowed", &f.PetsAllowed},
		{"smoking_allowed", &f.SmokingAllowed},
		{"accessible", &f.Accessible},
	}
	for _, flag := range flags {
		v, err := queryBool(c, flag.name)
		if err != nil {
			return f, err
		}
		*flag.dst = v
	}

	floats := []struct {
		name string
		dst  **float64
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
		{"min_size", &f.MinSize},
		{"max_size", &f.MaxSize},
	}
	for _, fl := range floats {
		v, err := queryFloat(c, fl.name)
		if err != nil {
			return f, err
		}
		*fl.dst = v
	}

	var err error
	if f.MinRooms, err = queryInt(c, "min_rooms"); err != nil {
		return f, err
	}
	if f.MaxRooms, err = queryInt(c, "max_rooms"); err != nil {
		return f, err
	}
	return f, nil
}

func queryBool(c *fiber.Ctx, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, models.NewValidationError("Invalid " + name)
	}
	return &v, nil
}

func queryFloat(c *fiber.Ctx, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, models.NewValidationError("Invalid " + name)
	}
	return &v, nil
}

func queryInt(c *fiber.Ctx, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, models.NewValidationError("Invalid " + name)
	}
	return &v, nil
}
