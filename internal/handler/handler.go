// Package handler holds the echo handlers.  Handlers decode and validate
// the request, call one service operation and return its error unchanged;
// ErrorHandler turns domain errors into HTTP statuses.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/liveness"
	"github.com/iliyamo/anythought/internal/logging"
	"github.com/iliyamo/anythought/internal/middleware"
	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/service"
)

const requestTimeout = 5 * time.Second

// Validator adapts go-playground/validator to echo.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Validate(i any) error { return v.v.Struct(i) }

// ErrorHandler writes {"error": ...} with the status matching err.
// Server-side failures are logged; client errors are not.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	log = logging.Component(log, "http")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Error("request failed")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			log.WithError(err).Warn("write error response")
		}
	}
}

func statusFor(err error) (int, string) {
	var (
		he *echo.HTTPError
		ve validator.ValidationErrors
	)
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case repository.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case repository.IsAlreadyExists(err), errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, err.Error()
	case liveness.IsConnectionLost(err):
		return http.StatusServiceUnavailable, "service unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// bind decodes the request into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return c.Validate(req)
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// caller returns the authenticated user.  Routes using it sit behind
// middleware.SessionAuth.
func caller(c echo.Context) model.User {
	u, _ := middleware.CurrentUser(c)
	return u
}
