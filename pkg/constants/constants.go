package constants

// --- ТИПЫ ЗАПИСЕЙ АУДИТА ---
type AuditLogType string

const (
	AuditOrderCreated       AuditLogType = "ORDER_CREATED"
	AuditPriceUpdated       AuditLogType = "PRICE_UPDATED"
	AuditStatusChanged      AuditLogType = "STATUS_CHANGED"
	AuditAgreementConfirmed AuditLogType = "AGREEMENT_CONFIRMED"
	AuditMessageSent        AuditLogType = "MESSAGE_SENT"
	AuditNotificationSent   AuditLogType = "NOTIFICATION_SENT"
)

// --- КТО СОВЕРШИЛ ДЕЙСТВИЕ ---
type AuditActor string

const (
	ActorCustomer AuditActor = "CUSTOMER"
	ActorAdmin    AuditActor = "ADMIN"
	ActorSystem   AuditActor = "SYSTEM"
)

func IsValidAuditType(t AuditLogType) bool {
	switch t {
	case AuditOrderCreated, AuditPriceUpdated, AuditStatusChanged,
		AuditAgreementConfirmed, AuditMessageSent, AuditNotificationSent:
		return true
	}
	return false
}

func IsValidActor(a AuditActor) bool {
	return a == ActorCustomer || a == ActorAdmin || a == ActorSystem
}
