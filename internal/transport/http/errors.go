package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

const (
	codeValidation = "VALIDATION_FAILED"
	codeNotFound   = "NOT_FOUND"
	codeConflict   = "AREA_LOCKED"
	codePersist    = "PERSISTENCE_FAILED"
	codeInternal   = "INTERNAL_ERROR"
)

// statusFor maps an error category to a status code and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, codePersist
	}
	return http.StatusInternalServerError, codeInternal
}

// errorHandler renders handler errors as ErrorResponse. Server-side
// failures are logged with their goerr values and answered without details.
func errorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			resp   ErrorResponse
		)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			resp = ErrorResponse{Error: http.StatusText(he.Code), Code: codeFromStatus(he.Code)}
			if msg, ok := he.Message.(string); ok {
				resp.Details = msg
			}
		} else {
			var code string
			status, code = statusFor(err)
			resp = ErrorResponse{Error: http.StatusText(status), Code: code}
			if status < http.StatusInternalServerError {
				resp.Details = err.Error()
			}
		}

		l := log.WithContext(c.Request().Context())
		if status >= http.StatusInternalServerError {
			fields := []zap.Field{
				logger.StringField("method", c.Request().Method),
				logger.StringField("path", c.Path()),
				logger.ErrorField(err),
			}
			var ge *goerr.Error
			if errors.As(err, &ge) {
				fields = append(fields, zap.Any("values", ge.Values()))
			}
			l.Error("Request failed", fields...)
		} else {
			l.Debug("Request rejected",
				logger.StringField("path", c.Path()),
				logger.IntField("status", status),
				logger.ErrorField(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return codeValidation
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return codeNotFound
	case http.StatusConflict:
		return codeConflict
	}
	return codeInternal
}
