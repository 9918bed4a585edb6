package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"cake-order-system/pkg/constants"
	"cake-order-system/pkg/contextkeys"
	apperrors "cake-order-system/pkg/errors"
	"cake-order-system/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ActorMiddleware извлекает личность вызывающего из заголовков.
// Сама аутентификация (телефон + документ + PIN) живет во внешнем сервисе,
// ядру нужен только непрозрачный actor id + роль.
type ActorMiddleware struct {
	logger *zap.Logger
}

func NewActorMiddleware(logger *zap.Logger) *ActorMiddleware {
	return &ActorMiddleware{logger: logger}
}

func (m *ActorMiddleware) Actor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		idHeader := c.Request().Header.Get("X-Actor-ID")
		if idHeader == "" {
			m.logger.Warn("ActorMiddleware: Пустой заголовок X-Actor-ID")
			return utils.ErrorResponse(c, apperrors.NewHttpError(http.StatusUnauthorized, "Заголовок X-Actor-ID обязателен", apperrors.ErrActorNotFoundInContext, nil), m.logger)
		}

		actorID, err := strconv.ParseUint(idHeader, 10, 64)
		if err != nil || actorID == 0 {
			m.logger.Warn("ActorMiddleware: Некорректный X-Actor-ID", zap.String("value", idHeader))
			return utils.ErrorResponse(c, apperrors.NewHttpError(http.StatusUnauthorized, "Некорректный X-Actor-ID", apperrors.ErrInvalidActorID, nil), m.logger)
		}

		var role constants.AuditActor
		switch strings.ToUpper(c.Request().Header.Get("X-Actor-Role")) {
		case "CUSTOMER":
			role = constants.ActorCustomer
		case "ADMIN":
			role = constants.ActorAdmin
		default:
			m.logger.Warn("ActorMiddleware: Некорректная роль", zap.String("value", c.Request().Header.Get("X-Actor-Role")))
			return utils.ErrorResponse(c, apperrors.NewHttpError(http.StatusUnauthorized, "Заголовок X-Actor-Role должен быть CUSTOMER или ADMIN", apperrors.ErrInvalidActorRole, nil), m.logger)
		}

		ctx := context.WithValue(c.Request().Context(), contextkeys.ActorIDKey, actorID)
		ctx = context.WithValue(ctx, contextkeys.ActorRoleKey, role)
		c.SetRequest(c.Request().WithContext(ctx))

		return next(c)
	}
}
