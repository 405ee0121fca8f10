package handler

import (
	"errors"
	"net/http"
	"order-settlement/internal/apperror"
	"order-settlement/internal/dto"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var statusByCode = map[apperror.Code]int{
	apperror.CodeValidation:   http.StatusBadRequest,
	apperror.CodeNotFound:     http.StatusNotFound,
	apperror.CodeConflict:     http.StatusConflict,
	apperror.CodeInsufficient: http.StatusUnprocessableEntity,
	apperror.CodeGateway:      http.StatusBadGateway,
}

// ErrorHandler renders apperror codes as JSON; anything else is a 500.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := dto.ErrorResponse{Code: "internal", Message: "internal server error"}

		var httpErr *echo.HTTPError
		var appErr *apperror.Error
		switch {
		case errors.As(err, &appErr):
			if code, ok := statusByCode[appErr.Code]; ok {
				status = code
			}
			body = dto.ErrorResponse{Code: string(appErr.Code), Message: appErr.Error(), Retryable: apperror.IsRetryable(err)}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body = dto.ErrorResponse{Code: http.StatusText(status), Message: httpErr.Error()}
			if msg, ok := httpErr.Message.(string); ok {
				body.Message = msg
			}
		default:
			log.Error("unhandled error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
