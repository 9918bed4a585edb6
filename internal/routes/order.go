package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cake-order-system/internal/controllers"
	"cake-order-system/internal/repositories"
	"cake-order-system/internal/services"
	"cake-order-system/pkg/config"
	"cake-order-system/pkg/eventbus"
)

type orderRouterDeps struct {
	auditRepo           repositories.AuditLogRepositoryInterface
	notificationService services.NotificationServiceInterface
}

func runOrderRouter(api *echo.Group, dbConn *pgxpool.Pool, redisClient *redis.Client, bus *eventbus.Bus, logger *zap.Logger, cfg *config.Config) orderRouterDeps {
	txManager := repositories.NewTxManager(dbConn)
	orderRepo := repositories.NewOrderRepository(dbConn)
	revisionRepo := repositories.NewPriceRevisionRepository(dbConn)
	auditRepo := repositories.NewAuditLogRepository(dbConn)
	cacheRepo := repositories.NewRedisCacheRepository(redisClient)

	notificationService := services.NewWebhookNotificationService(cfg.Notification, logger)
	orderService := services.NewOrderService(txManager, orderRepo, revisionRepo, auditRepo, cacheRepo, bus, cfg.Audit, logger)
	auditService := services.NewAuditLogService(auditRepo, orderRepo, logger)

	orderCtrl := controllers.NewOrderController(orderService, logger)
	auditCtrl := controllers.NewAuditLogController(auditService, logger)
	{
		api.POST("/orders", orderCtrl.CreateOrder)
		api.GET("/orders", orderCtrl.GetOrders)
		api.GET("/orders/:id", orderCtrl.FindOrder)
		api.PUT("/orders/:id/price", orderCtrl.RevisePrice)
		api.POST("/orders/:id/agreement", orderCtrl.ConfirmAgreement)
		api.PUT("/orders/:id/status", orderCtrl.SetStatus)
		api.GET("/orders/:id/audit", orderCtrl.GetAuditTrail)
		api.POST("/orders/:id/messages/audit", auditCtrl.RecordMessage)
	}

	return orderRouterDeps{auditRepo: auditRepo, notificationService: notificationService}
}
