package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cake-order-system/pkg/config"
)

// NotificationService - внешний best-effort приемник уведомлений
// (WhatsApp-шлюз продавца). Сбои здесь никогда не поднимаются наверх:
// слушатель фиксирует исход в аудите и идет дальше.
type NotificationServiceInterface interface {
	Enabled() bool
	Send(ctx context.Context, orderID uuid.UUID, summary string) error
}

type WebhookNotificationService struct {
	cfg    config.NotificationConfig
	client *http.Client
	logger *zap.Logger
}

func NewWebhookNotificationService(cfg config.NotificationConfig, logger *zap.Logger) NotificationServiceInterface {
	return &WebhookNotificationService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (s *WebhookNotificationService) Enabled() bool {
	return s.cfg.WebhookURL != ""
}

func (s *WebhookNotificationService) Send(ctx context.Context, orderID uuid.UUID, summary string) error {
	payload, err := json.Marshal(map[string]string{
		"order_id": orderID.String(),
		"summary":  summary,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка вызова шлюза уведомлений: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("шлюз уведомлений вернул статус %d", resp.StatusCode)
	}

	s.logger.Info("Уведомление отправлено", zap.String("orderID", orderID.String()))
	return nil
}
