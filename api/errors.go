package api

import (
	"errors"
	"net/http"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps every workflow error kind to its own status code and an
// actionable message, so the client never has to show a generic failure
// banner.
func respondError(c *gin.Context, err error) {
	var subErr *domain.SubmissionError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "we couldn't find that - check the identifier and try again", "detail": err.Error()})
	case errors.Is(err, domain.ErrIncompatible):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "one or more selected services don't apply to the chosen device - please re-select", "detail": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "some details are missing or invalid - please correct them and retry", "detail": err.Error()})
	case errors.Is(err, domain.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "that appointment time was just taken - please choose another", "detail": err.Error()})
	case errors.Is(err, domain.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "this appointment belongs to a different booking session", "detail": err.Error()})
	case errors.Is(err, domain.ErrStepOrder):
		c.JSON(http.StatusConflict, gin.H{"error": "this action isn't available at the current booking step", "detail": err.Error()})
	case errors.As(err, &subErr) && subErr.Retryable:
		c.JSON(http.StatusBadGateway, gin.H{"error": "we couldn't reach the booking system - please try again in a moment", "detail": err.Error()})
	case errors.Is(err, domain.ErrSubmissionFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "the booking system rejected this request - please review your details", "detail": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong on our side - please try again", "detail": err.Error()})
	}
}
