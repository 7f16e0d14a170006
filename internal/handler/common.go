package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventease/internal/middleware"
	"github.com/iliyamo/eventease/internal/service"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// validationMessage renders the first failed field as a short message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid body"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	}
	return field + " is invalid"
}

// bindValid binds the request body into dst and validates it.  On failure
// it writes the 400 response itself and returns false.
func bindValid(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, errorJSON(c, http.StatusBadRequest, service.CodeInvalidInput, "invalid body")
	}
	if err := c.Validate(dst); err != nil {
		return false, errorJSON(c, http.StatusBadRequest, service.CodeInvalidInput, validationMessage(err))
	}
	return true, nil
}

func errorJSON(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

// writeAppError renders any service error as {"error", "code"}.
func writeAppError(c echo.Context, err error) error {
	appErr := service.AsAppError(err)
	if appErr.Retriable() {
		c.Response().Header().Set("Retry-After", "1")
	}
	return errorJSON(c, appErr.HTTPStatus, appErr.Code, appErr.Message)
}

// getUserID returns the authenticated user id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("unauthenticated")
	}
	return id, nil
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}
