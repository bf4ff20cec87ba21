package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"chainvend.com/internal/purchase/domain"
)

var (
	phonePattern = regexp.MustCompile(`^(\+?234|0)[789][01]\d{8}$`)
	meterPattern = regexp.MustCompile(`^\d{6,13}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("ngphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("meter", func(fl validator.FieldLevel) bool {
		return meterPattern.MatchString(fl.Field().String())
	})
	return v
}

// check runs the struct tags and turns the first violation into an input error.
func (e *Engine) check(req interface{}) error {
	err := e.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		switch f.Tag() {
		case "required":
			return domain.InputValidationError(f.Field() + " is required")
		case "oneof":
			return domain.InputValidationError(f.Field() + " must be one of: " + f.Param())
		default:
			return domain.InputValidationError(f.Field() + " is invalid")
		}
	}
	return domain.InputValidationError(err.Error())
}

func checkBounds(amount, min, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.InputValidationError("amount must be positive")
	}
	if amount.LessThan(min) || amount.GreaterThan(max) {
		return domain.InputValidationError("amount must be between " + min.String() + " and " + max.String())
	}
	return nil
}

func normalizePayment(p *domain.Payment) {
	p.Chain = strings.ToLower(strings.TrimSpace(p.Chain))
	p.TransactionHash = strings.TrimSpace(p.TransactionHash)
}
