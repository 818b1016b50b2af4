package application

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-payment-service/internal/order/domain"
)

// ValidationError lists the rejected input fields with one or more messages each.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Message is the headline shown next to the field errors.
func (e *ValidationError) Message() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "The given data was invalid."
	}
	first := e.Fields[names[0]][0]
	extra := 0
	for _, n := range names {
		extra += len(e.Fields[n])
	}
	extra--
	switch extra {
	case 0:
		return first
	case 1:
		return fmt.Sprintf("%s (and 1 more error)", first)
	default:
		return fmt.Sprintf("%s (and %d more errors)", first, extra)
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("money", validMoney); err != nil {
		panic(fmt.Sprintf("register money validation: %v", err))
	}
	return v
}

func validMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.GreaterThanOrEqual(domain.MinAmount) && d.LessThanOrEqual(domain.MaxAmount)
}

func toValidationError(errs validator.ValidationErrors) *ValidationError {
	out := &ValidationError{}
	for _, fe := range errs {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", label, fe.Param())
	case "numeric":
		return fmt.Sprintf("The %s field must be a number.", label)
	case "money":
		return fmt.Sprintf("The %s field must be between %s and %s.", label, domain.MinAmount.StringFixed(2), domain.MaxAmount.StringFixed(2))
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}
