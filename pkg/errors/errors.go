package errors

import (
	"fmt"
	"net/http"
)

var (
	// Контекст запроса
	ErrActorNotFoundInContext = fmt.Errorf("ActorID не найден в контексте запроса")
	ErrInvalidActorID         = fmt.Errorf("недопустимый ActorID")
	ErrInvalidActorRole       = fmt.Errorf("недопустимая роль актора")

	// Доменные виды ошибок (см. маппинг в utils.ErrorResponse)
	ErrNotFound                = fmt.Errorf("заказ не найден")
	ErrInvalidArgument         = fmt.Errorf("неверные параметры запроса")
	ErrInvalidTransition       = fmt.Errorf("недопустимый переход статуса")
	ErrConcurrencyConflict     = fmt.Errorf("конфликт одновременного изменения заказа, повторите запрос")
	ErrAuditPersistenceFailure = fmt.Errorf("не удалось сохранить запись аудита")
)

// HttpError - ошибка с HTTP-кодом и сообщением для клиента.
// Err хранит исходную причину для логов, Details - структурированные детали для ответа.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Details interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func NewHttpError(code int, message string, err error, details interface{}) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Details: details}
}

// --- Конструкторы доменных ошибок ---

func NewNotFoundError(format string, args ...interface{}) error {
	return &HttpError{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

func NewInvalidArgumentError(format string, args ...interface{}) error {
	return &HttpError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...), Err: ErrInvalidArgument}
}

func NewInvalidTransitionError(format string, args ...interface{}) error {
	return &HttpError{Code: http.StatusConflict, Message: fmt.Sprintf(format, args...), Err: ErrInvalidTransition}
}

func NewConcurrencyConflictError(err error) error {
	return &HttpError{
		Code:    http.StatusConflict,
		Message: "Заказ изменяется другим запросом, повторите попытку",
		Err:     fmt.Errorf("%w: %v", ErrConcurrencyConflict, err),
	}
}

// NewAuditPersistenceError - инфраструктурный сбой записи аудита. Парная
// мутация состояния обязана откатиться, клиенту отдаем retryable 503.
func NewAuditPersistenceError(err error) error {
	return &HttpError{
		Code:    http.StatusServiceUnavailable,
		Message: "Не удалось зафиксировать запись аудита, операция отменена",
		Err:     fmt.Errorf("%w: %v", ErrAuditPersistenceFailure, err),
	}
}
