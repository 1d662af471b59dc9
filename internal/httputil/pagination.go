package httputil

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/admissions/internal/errors"
)

// Listing window bounds shared by the transition history and outbox event endpoints.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int
	Limit  int
}

// ParsePagination reads the offset and limit query parameters. Errors wrap ErrInvalidInput.
func ParsePagination(c *gin.Context) (Page, error) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return Page{}, apperrors.Wrap(apperrors.ErrInvalidInput, "offset must be a non-negative integer")
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPageLimit)))
	if err != nil || limit < 1 || limit > MaxPageLimit {
		return Page{}, apperrors.Wrapf(apperrors.ErrInvalidInput, "limit must be between 1 and %d", MaxPageLimit)
	}

	return Page{Offset: offset, Limit: limit}, nil
}
