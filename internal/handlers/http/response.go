package http

import (
	"errors"
	"net/http"

	"bemore/internal/core/domain"
	"bemore/internal/core/services"
	apperrors "bemore/pkg/errors"

	"github.com/gin-gonic/gin"
)

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

// abortWithError hands err to ErrorHandlerMiddleware as an AppError.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
	c.Abort()
}

func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NewNotFoundError("session")
	case errors.Is(err, domain.ErrUnknownChannel):
		return apperrors.NewNotFoundError("channel")
	case errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrSessionEnded),
		errors.Is(err, domain.ErrFeedbackNotOpen),
		errors.Is(err, domain.ErrFeedbackSubmitted):
		return apperrors.NewConflictError(err.Error())
	case errors.Is(err, domain.ErrInvalidRating):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrExpiredToken),
		errors.Is(err, services.ErrUnauthorized):
		return apperrors.NewUnauthorizedError(err.Error())
	}
	return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
}
