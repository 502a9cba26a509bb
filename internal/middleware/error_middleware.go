package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
	"github.com/yigit/classsetup/internal/pkg/logger"
)

// HandleAPIError handles common API errors and returns appropriate responses
func HandleAPIError(c *gin.Context, err error) {
	var detail *dto.ErrorDetail
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperrors.ErrUnresolvedParentReference):
		status = http.StatusBadRequest
		detail = dto.NewErrorDetail(dto.ErrorCodeUnresolvedParent, "Parent class reference could not be resolved")
	case errors.Is(err, apperrors.ErrMalformedSubmission):
		status = http.StatusBadRequest
		detail = dto.NewErrorDetail(dto.ErrorCodeMalformedSubmission, "Class setup submission is malformed")
	case errors.Is(err, apperrors.ErrIncompleteConfiguration):
		status = http.StatusBadRequest
		detail = dto.NewErrorDetail(dto.ErrorCodeIncompleteSetup, "Configuration setup is incomplete")
	case errors.Is(err, apperrors.ErrBadRequest), errors.Is(err, apperrors.ErrValidationFailed):
		status = http.StatusBadRequest
		detail = dto.NewErrorDetail(dto.ErrorCodeBadRequest, "Bad request")
	case errors.Is(err, apperrors.ErrPermissionDenied):
		status = http.StatusForbidden
		detail = dto.NewErrorDetail(dto.ErrorCodeForbidden, "Permission denied")
	case errors.Is(err, apperrors.ErrResourceNotFound):
		status = http.StatusNotFound
		detail = dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, "Resource not found")
	case errors.Is(err, apperrors.ErrValidationRejected):
		status = http.StatusConflict
		detail = dto.NewErrorDetail(dto.ErrorCodeChangeRejected, "Configuration change rejected")
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
		detail = dto.NewErrorDetail(dto.ErrorCodeConflict, "Conflict")
	case errors.Is(err, apperrors.ErrTokenExpired):
		status = http.StatusUnauthorized
		detail = dto.NewErrorDetail(dto.ErrorCodeExpiredToken, "Token expired")
	case errors.Is(err, apperrors.ErrTokenInvalid):
		status = http.StatusUnauthorized
		detail = dto.NewErrorDetail(dto.ErrorCodeInvalidToken, "Invalid token")
	case errors.Is(err, apperrors.ErrPersistenceFailure):
		detail = dto.NewErrorDetail(dto.ErrorCodeDatabaseError, "Storage failure")
	default:
		detail = dto.NewErrorDetail(dto.ErrorCodeInternalServer, "Internal server error")
	}

	var subErr *apperrors.SubmissionError
	var custom *apperrors.CustomError
	switch {
	case errors.As(err, &subErr):
		detail = detail.WithDetails(subErr.Fields)
	case errors.As(err, &custom) && status != http.StatusInternalServerError:
		detail = detail.WithDetails(custom.Message)
	case status != http.StatusInternalServerError:
		detail = detail.WithDetails(err.Error())
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	RespondError(c, status, detail)
}
