package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
)

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()
	// report json/query names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return &Validator{validate: v}
}

// Validate validates s and reports failures as apperr.ErrValidation.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	sort.Strings(msgs)
	return apperr.Validation("%s", strings.Join(msgs, ", "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

var defaultValidator = NewValidator()

// BindBody parses the request body into a fresh T and validates it.
func BindBody[T any](c *fiber.Ctx) (*T, error) {
	var v T
	if err := c.BodyParser(&v); err != nil {
		return nil, apperr.Validation("invalid request body: %v", err)
	}
	if err := defaultValidator.Validate(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// BindQuery parses the query string into a fresh T and validates it.
func BindQuery[T any](c *fiber.Ctx) (*T, error) {
	var v T
	if err := c.QueryParser(&v); err != nil {
		return nil, apperr.Validation("invalid query parameters: %v", err)
	}
	if err := defaultValidator.Validate(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// StatusOf maps an error to the HTTP status it is answered with.
func StatusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrPayloadTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrConfiguration):
		return fiber.StatusInternalServerError
	case errors.Is(err, apperr.ErrStore):
		var se *apperr.StoreError
		if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
			return se.Status
		}
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ErrorHandler answers errors as {"error": ...} JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusOf(err)
	body := ErrorBody{Error: err.Error()}

	switch {
	case errors.Is(err, apperr.ErrConfiguration):
		// details stay in the log
		body = ErrorBody{Error: "server is not configured", Code: "configuration"}
	case code == fiber.StatusInternalServerError:
		body.Error = http.StatusText(code)
	case errors.Is(err, apperr.ErrStore):
		var se *apperr.StoreError
		if errors.As(err, &se) && se.Message != "" {
			body.Error = se.Message
		}
	}

	if code >= 500 {
		logger.Get().Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", code).
			Msg("HTTP error")
	}

	return c.Status(code).JSON(body)
}
