package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cake-order-system/internal/dto"
	"cake-order-system/internal/services"
	"cake-order-system/pkg/utils"
)

type OrderController struct {
	orderService services.OrderServiceInterface
	logger       *zap.Logger
}

func NewOrderController(orderService services.OrderServiceInterface, logger *zap.Logger) *OrderController {
	return &OrderController{orderService: orderService, logger: logger}
}

func (c *OrderController) CreateOrder(ctx echo.Context) error {
	var orderData dto.CreateOrderDTO
	if err := ctx.Bind(&orderData); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "некорректное тело запроса"), c.logger)
	}
	if err := ctx.Validate(&orderData); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.CreateOrder(ctx.Request().Context(), orderData)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Заказ успешно создан", http.StatusCreated)
}

func (c *OrderController) GetOrders(ctx echo.Context) error {
	limit, _ := strconv.ParseUint(ctx.QueryParam("limit"), 10, 64)
	offset, _ := strconv.ParseUint(ctx.QueryParam("offset"), 10, 64)
	status := ctx.QueryParam("status")

	res, total, err := c.orderService.GetOrders(ctx.Request().Context(), status, limit, offset)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	body := map[string]interface{}{"list": res, "total_count": total}
	return utils.SuccessResponse(ctx, body, "Заказы успешно получены", http.StatusOK)
}

func (c *OrderController) FindOrder(ctx echo.Context) error {
	res, err := c.orderService.FindOrder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Заказ успешно получен", http.StatusOK)
}

func (c *OrderController) RevisePrice(ctx echo.Context) error {
	var priceData dto.RevisePriceDTO
	if err := ctx.Bind(&priceData); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "некорректное тело запроса"), c.logger)
	}
	if err := ctx.Validate(&priceData); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.ReviseProposedPrice(ctx.Request().Context(), ctx.Param("id"), priceData)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Цена заказа обновлена", http.StatusOK)
}

func (c *OrderController) ConfirmAgreement(ctx echo.Context) error {
	res, err := c.orderService.ConfirmAgreement(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Согласие зафиксировано", http.StatusOK)
}

func (c *OrderController) SetStatus(ctx echo.Context) error {
	var statusData dto.SetStatusDTO
	if err := ctx.Bind(&statusData); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "некорректное тело запроса"), c.logger)
	}
	if err := ctx.Validate(&statusData); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.SetStatus(ctx.Request().Context(), ctx.Param("id"), statusData)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Статус заказа обновлен", http.StatusOK)
}

func (c *OrderController) GetAuditTrail(ctx echo.Context) error {
	limit, _ := strconv.ParseUint(ctx.QueryParam("limit"), 10, 64)
	typeFilter := ctx.QueryParam("type")

	res, err := c.orderService.GetAuditTrail(ctx.Request().Context(), ctx.Param("id"), typeFilter, limit)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Журнал аудита получен", http.StatusOK)
}
