package validation

/*
Файл validation.go — общий валидатор тел запросов и строк массовой загрузки.
Все нарушения собираются сразу, поле называется по json-тегу (совпадает с заголовком колонки).
*/

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xela07ax/compliance-console/internal/domain"
)

var reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Validator struct{ v *validator.Validate }

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// имя поля — json-тег, иначе имя Go-поля
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// YYYY-MM-DD и реальная календарная дата
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if !reISODate.MatchString(s) {
			return false
		}
		_, err := time.Parse(time.DateOnly, s)
		return err == nil
	})
	// decimal — строка парсится shopspring/decimal
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	// decrange=min:max — включительный диапазон, границы тоже decimal
	_ = v.RegisterValidation("decrange", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		if err != nil {
			return false
		}
		lo, hi, ok := parseRange(fl.Param())
		if !ok {
			return false
		}
		return d.GreaterThanOrEqual(lo) && d.LessThanOrEqual(hi)
	})

	return &Validator{v: v}
}

func parseRange(param string) (decimal.Decimal, decimal.Decimal, bool) {
	lo, hi, found := strings.Cut(param, ":")
	if !found {
		return decimal.Zero, decimal.Zero, false
	}
	l, err1 := decimal.NewFromString(lo)
	h, err2 := decimal.NewFromString(hi)
	return l, h, err1 == nil && err2 == nil
}

// Struct возвращает все нарушения структуры; nil — структура валидна.
// row > 0 проставляется в каждое нарушение (номер строки файла).
func (v *Validator) Struct(s interface{}, row int) []domain.FieldViolation {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []domain.FieldViolation{{Row: row, Field: "_", Message: err.Error()}}
	}

	out := make([]domain.FieldViolation, 0, len(ve))
	for _, e := range ve {
		out = append(out, domain.FieldViolation{Row: row, Field: fieldPath(e), Message: message(e)})
	}
	return out
}

// Validate — то же самое, но в виде ошибки *domain.ValidationError.
func (v *Validator) Validate(s interface{}) error {
	if violations := v.Struct(s, 0); len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

// fieldPath — путь без имени корневой структуры: person.first_name
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "json":
		return "must be valid JSON"
	case "decimal":
		return "must be a number"
	case "decrange":
		lo, hi, _ := strings.Cut(e.Param(), ":")
		return "must be a number between " + lo + " and " + hi
	case "email":
		return "must be a valid email"
	case "len":
		return "must be exactly " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	default:
		return e.Tag() + " validation failed"
	}
}
