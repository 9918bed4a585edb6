package customvalidator

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// RegisterCustomValidations регистрирует кастомные правила валидации
// в переданном экземпляре валидатора.
func RegisterCustomValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("future_date", isFutureDate); err != nil {
		return err
	}
	if err := v.RegisterValidation("decimal_gt_zero", isDecimalGreaterThanZero); err != nil {
		return err
	}
	return nil
}

// isFutureDate - дата доставки не может быть в прошлом (сегодня - можно).
func isFutureDate(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	today := time.Now().Truncate(24 * time.Hour)
	return !date.Before(today)
}

func isDecimalGreaterThanZero(fl validator.FieldLevel) bool {
	d, ok := fl.Field().Interface().(decimal.Decimal)
	if !ok {
		return false
	}
	return d.GreaterThan(decimal.Zero)
}
