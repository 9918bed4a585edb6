package utils

import (
	"context"

	"cake-order-system/pkg/constants"
	"cake-order-system/pkg/contextkeys"
	apperrors "cake-order-system/pkg/errors"
)

// GetActorIDFromCtx достает ID актора, положенный middleware.
func GetActorIDFromCtx(ctx context.Context) (uint64, error) {
	actorID, ok := ctx.Value(contextkeys.ActorIDKey).(uint64)
	if !ok || actorID == 0 {
		return 0, apperrors.ErrActorNotFoundInContext
	}
	return actorID, nil
}

func GetActorRoleFromCtx(ctx context.Context) (constants.AuditActor, error) {
	role, ok := ctx.Value(contextkeys.ActorRoleKey).(constants.AuditActor)
	if !ok || (role != constants.ActorCustomer && role != constants.ActorAdmin) {
		return "", apperrors.ErrInvalidActorRole
	}
	return role, nil
}
