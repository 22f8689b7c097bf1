package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/model"
	"github.com/leontalbot/caribou/internal/store"
)

type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// errorHandler maps engine errors onto the response envelope. Handlers mostly
// return errors as they come; the sentinel checks here decide the status.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		switch {
		case errors.Is(err, model.ErrModelMissing):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error: &AppError{Code: "UNKNOWN_MODEL", Message: err.Error()},
			})
		case errors.Is(err, model.ErrRowMissing):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error: &AppError{Code: "NOT_FOUND", Message: err.Error()},
			})
		case errors.Is(err, store.ErrUniqueViolation):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Error: &AppError{Code: "CONFLICT", Message: err.Error()},
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
			})
		}

		log.Error("request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{Code: "INTERNAL_ERROR", Message: "internal server error"},
		})
	}
}
