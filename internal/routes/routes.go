package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cake-order-system/internal/listeners"
	"cake-order-system/pkg/config"
	"cake-order-system/pkg/eventbus"
	custommiddleware "cake-order-system/pkg/middleware"
)

// InitRouter собирает зависимости и регистрирует все маршруты.
func InitRouter(
	e *echo.Echo,
	dbConn *pgxpool.Pool,
	redisClient *redis.Client,
	bus *eventbus.Bus,
	logger *zap.Logger,
	cfg *config.Config,
) {
	actorMW := custommiddleware.NewActorMiddleware(logger)
	api := e.Group("/api", actorMW.Actor)

	orderDeps := runOrderRouter(api, dbConn, redisClient, bus, logger, cfg)

	notificationListener := listeners.NewNotificationListener(orderDeps.notificationService, orderDeps.auditRepo, logger)
	notificationListener.Register(bus)
}
