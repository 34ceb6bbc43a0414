package httpgin

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/kirinyoku/tix-events/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds the domain rules to gin's validator and makes
// error field names follow the JSON names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		_ = v.RegisterValidation("notblank", validators.NotBlank)

		_ = v.RegisterValidation("future", func(fl validator.FieldLevel) bool {
			t, ok := fl.Field().Interface().(time.Time)
			return ok && t.After(time.Now())
		})

		_ = v.RegisterValidation("tickettype", func(fl validator.FieldLevel) bool {
			switch domain.TicketType(normalizeTicketType(fl.Field().String())) {
			case domain.TicketStandard, domain.TicketVIP:
				return true
			}
			return false
		})
	})
}

func normalizeTicketType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bindJSON decodes the body into dst and writes a 400 describing what was
// wrong when it cannot.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var (
		verrs   validator.ValidationErrors
		typeErr *json.UnmarshalTypeError
		timeErr *time.ParseError
	)

	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fe.Tag()
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: fields,
		})
	case errors.As(err, &typeErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: map[string]string{typeErr.Field: "type"},
		})
	case errors.As(err, &timeErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: map[string]string{"date": "rfc3339"},
		})
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	return false
}

// fieldPath drops the struct name from the namespace:
// "EventRequest.tickets[0].priceCents" -> "tickets[0].priceCents".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
