package constants

// --- СТАТУСЫ ЗАКАЗОВ (Совпадает с кодами в БД) ---
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusNegotiating     OrderStatus = "NEGOTIATING"
	StatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	StatusPaid            OrderStatus = "PAID"
	StatusCompleted       OrderStatus = "COMPLETED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// TransitionTrigger - что именно запускает переход. Автоматические переходы
// (пересмотр цены, обоюдное согласие) нельзя выполнить ручным запросом setStatus.
type TransitionTrigger string

const (
	TriggerPriceRevised    TransitionTrigger = "PRICE_REVISED"
	TriggerMutualAgreement TransitionTrigger = "MUTUAL_AGREEMENT"
	TriggerManual          TransitionTrigger = "MANUAL"
)

// Финальные статусы: из них нет ни одного перехода.
var FinalStatuses = []OrderStatus{
	StatusCompleted,
	StatusCancelled,
}

// Единая таблица легальных переходов. Все проверки идут через CanTransition,
// а не разбросаны по обработчикам.
var allowedTransitions = map[OrderStatus]map[OrderStatus]TransitionTrigger{
	StatusPending: {
		StatusNegotiating: TriggerPriceRevised,
		StatusCancelled:   TriggerManual,
	},
	StatusNegotiating: {
		StatusAwaitingPayment: TriggerMutualAgreement,
		StatusCancelled:       TriggerManual,
	},
	StatusAwaitingPayment: {
		StatusNegotiating: TriggerPriceRevised,
		StatusPaid:        TriggerManual,
		StatusCancelled:   TriggerManual,
	},
	StatusPaid: {
		StatusCompleted: TriggerManual,
		StatusCancelled: TriggerManual,
	},
}

func IsFinalStatus(code OrderStatus) bool {
	for _, s := range FinalStatuses {
		if s == code {
			return true
		}
	}
	return false
}

func IsValidStatus(code OrderStatus) bool {
	switch code {
	case StatusPending, StatusNegotiating, StatusAwaitingPayment, StatusPaid, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition проверяет, разрешен ли переход from -> to для данного триггера.
func CanTransition(from, to OrderStatus, trigger TransitionTrigger) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	required, ok := targets[to]
	if !ok {
		return false
	}
	return required == trigger
}
