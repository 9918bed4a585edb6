package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cake-order-system/internal/dto"
	"cake-order-system/internal/services"
	"cake-order-system/pkg/utils"
)

type AuditLogController struct {
	auditService services.AuditLogServiceInterface
	logger       *zap.Logger
}

func NewAuditLogController(auditService services.AuditLogServiceInterface, logger *zap.Logger) *AuditLogController {
	return &AuditLogController{auditService: auditService, logger: logger}
}

// RecordMessage - хук для чат-подсистемы: фиксация MESSAGE_SENT в аудите.
func (c *AuditLogController) RecordMessage(ctx echo.Context) error {
	var messageData dto.RecordMessageDTO
	if err := ctx.Bind(&messageData); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "некорректное тело запроса"), c.logger)
	}
	if err := ctx.Validate(&messageData); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	if err := c.auditService.RecordMessage(ctx.Request().Context(), ctx.Param("id"), messageData.Content); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, struct{}{}, "Сообщение зафиксировано в аудите", http.StatusCreated)
}
