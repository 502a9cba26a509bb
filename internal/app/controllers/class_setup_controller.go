package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/app/services"
	"github.com/yigit/classsetup/internal/middleware"
)

// ClassSetupService is what the controller needs from the reconciliation engine.
type ClassSetupService interface {
	LoadClassSetup(ctx context.Context, actor models.ActorContext, configID int64) (*services.ClassSetupView, error)
	UpdateClassSetup(ctx context.Context, actor models.ActorContext, configID int64, req *dto.ClassSetupRequest) (*services.ReconcileResult, error)
	ChangeLog(ctx context.Context, actor models.ActorContext, configID int64, limit int) ([]*models.ChangeLogEntry, error)
}

// ClassSetupController handles the multiple class setup page
type ClassSetupController struct {
	classSetupService ClassSetupService
}

// NewClassSetupController creates a new ClassSetupController
func NewClassSetupController(classSetupService ClassSetupService) *ClassSetupController {
	return &ClassSetupController{
		classSetupService: classSetupService,
	}
}

// GetClassSetup returns the class tree of a configuration
// @Summary Get class setup
// @Description Returns the configuration with its subparts and classes, flagged with what the caller may change
// @Tags class-setup
// @Produce json
// @Security BearerAuth
// @Param id path int true "Configuration ID"
// @Success 200 {object} dto.StructuredResponse{data=dto.ClassSetupResponse} "Class setup retrieved successfully"
// @Failure 400 {object} dto.ErrorResponse "Invalid configuration ID or incomplete setup"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized - Invalid or missing token"
// @Failure 403 {object} dto.ErrorResponse "Forbidden - User does not have permission"
// @Failure 404 {object} dto.ErrorResponse "Configuration not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /configurations/{id}/class-setup [get]
func (c *ClassSetupController) GetClassSetup(ctx *gin.Context) {
	configID, actor, ok := configRequest(ctx)
	if !ok {
		return
	}

	view, err := c.classSetupService.LoadClassSetup(ctx.Request.Context(), actor, configID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	middleware.Respond(ctx, http.StatusOK, view.Response(), "Class setup retrieved successfully")
}

// UpdateClassSetup reconciles the configuration with the submitted rows
// @Summary Update class setup
// @Description Creates, updates and deletes classes so the configuration matches the submission, in one transaction
// @Tags class-setup
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Configuration ID"
// @Param request body dto.ClassSetupRequest true "Class rows"
// @Success 200 {object} dto.StructuredResponse{data=dto.ClassSetupUpdateResponse} "Class setup updated successfully"
// @Failure 400 {object} dto.ErrorResponse "Malformed submission"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized - Invalid or missing token"
// @Failure 403 {object} dto.ErrorResponse "Forbidden - User does not have permission"
// @Failure 404 {object} dto.ErrorResponse "Configuration not found"
// @Failure 409 {object} dto.ErrorResponse "Change rejected by validation"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /configurations/{id}/class-setup [put]
func (c *ClassSetupController) UpdateClassSetup(ctx *gin.Context) {
	configID, actor, ok := configRequest(ctx)
	if !ok {
		return
	}

	var req dto.ClassSetupRequest
	if !middleware.BindAndValidate(ctx, &req) {
		return
	}

	result, err := c.classSetupService.UpdateClassSetup(ctx.Request.Context(), actor, configID, &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	resp := dto.ClassSetupUpdateResponse{
		Summary: dto.ClassSetupChangeSummary{
			TxID:            result.Summary.TxID,
			Created:         len(result.Summary.CreatedIDs),
			Updated:         len(result.Summary.UpdatedIDs),
			Deleted:         len(result.Summary.DeletedIDs),
			SubpartsReowned: len(result.Summary.ReownedSubparts),
		},
		Setup: result.View.Response(),
	}
	middleware.Respond(ctx, http.StatusOK, resp, "Class setup updated successfully")
}

// GetChangeLog lists recent class setup changes
// @Summary Get class setup change log
// @Description Returns the newest change-log entries recorded for the configuration
// @Tags class-setup
// @Produce json
// @Security BearerAuth
// @Param id path int true "Configuration ID"
// @Param limit query int false "Maximum number of entries"
// @Success 200 {object} dto.StructuredResponse{data=[]dto.ChangeLogEntryResponse} "Change log retrieved successfully"
// @Failure 400 {object} dto.ErrorResponse "Invalid request parameters"
// @Failure 403 {object} dto.ErrorResponse "Forbidden - User does not have permission"
// @Failure 404 {object} dto.ErrorResponse "Configuration not found"
// @Router /configurations/{id}/change-log [get]
func (c *ClassSetupController) GetChangeLog(ctx *gin.Context) {
	configID, actor, ok := configRequest(ctx)
	if !ok {
		return
	}

	limit := 0
	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid limit")
			errorDetail = errorDetail.WithField("limit").WithDetails("Limit must be a non-negative number")
			middleware.RespondError(ctx, http.StatusBadRequest, errorDetail)
			return
		}
		limit = n
	}

	entries, err := c.classSetupService.ChangeLog(ctx.Request.Context(), actor, configID, limit)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	middleware.Respond(ctx, http.StatusOK, services.ChangeLogResponses(entries), "Change log retrieved successfully")
}

// configRequest reads the configuration id and the authenticated actor.
func configRequest(ctx *gin.Context) (int64, models.ActorContext, bool) {
	configID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || configID <= 0 {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid configuration ID")
		errorDetail = errorDetail.WithDetails("Configuration ID must be a valid number")
		middleware.RespondError(ctx, http.StatusBadRequest, errorDetail)
		return 0, models.ActorContext{}, false
	}

	actor, ok := middleware.GetActor(ctx)
	if !ok {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
		middleware.RespondError(ctx, http.StatusUnauthorized, errorDetail)
		return 0, models.ActorContext{}, false
	}
	return configID, actor, true
}
