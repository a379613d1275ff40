package apperror

import (
	"fmt"

	"book-indexer/config"
	"book-indexer/pkg/apperror/status"
	"book-indexer/pkg/logger"

	"github.com/gofiber/fiber/v3"
)

// maxLoggedBody keeps uploads out of the logs.
const maxLoggedBody = 4 << 10

type FiberSuccessMessage struct {
	Code       status.SuccessCode `json:"code"`
	Message    string             `json:"message"`
	TrackingID string             `json:"tracking_id"`
	Data       any                `json:"data"`
}

// WriteError logs a structured warning and returns a standardized JSON error
func WriteError(module config.Module, c fiber.Ctx, httpStatus int, code string, message string) error {
	body := c.Body()
	fields := map[string]interface{}{
		"module":        module,
		"status_code":   httpStatus,
		"error_code":    code,
		"error_message": message,
		"http_method":   c.Method(),
		"path":          c.Path(),
		"url":           c.OriginalURL(),
		"ip":            c.IP(),
	}
	if len(body) <= maxLoggedBody {
		fields["body"] = string(body)
	}
	logger.WithFields(fields).Warnf("http error")

	return c.Status(httpStatus).JSON(ErrorResponse{
		Error:      message,
		ErrorCode:  code,
		TrackingID: c.Get("X-Request-ID"),
	})
}

func errorCode(code status.ErrorCode) string {
	return fmt.Sprintf("BI-%d", code)
}

// Shorthands for common error responses
func BadRequest(module config.Module, c fiber.Ctx, code status.ErrorCode, message string) error {
	return WriteError(module, c, fiber.StatusBadRequest, errorCode(code), message)
}

func NotFound(module config.Module, c fiber.Ctx, code status.ErrorCode, message string) error {
	return WriteError(module, c, fiber.StatusNotFound, errorCode(code), message)
}

// Unavailable is used when the server is at capacity.
func Unavailable(module config.Module, c fiber.Ctx, code status.ErrorCode, message string) error {
	return WriteError(module, c, fiber.StatusServiceUnavailable, errorCode(code), message)
}

// InternalError writes a structured warning and returns a standardized JSON error
func InternalError(module config.Module, c fiber.Ctx, err error) error {
	return WriteError(module, c, fiber.StatusInternalServerError, errorCode(CodeOf(err, status.ErrorCodeInternal)), err.Error())
}

// Success writes a standardized JSON success response
func Success(module config.Module, fiberCtx fiber.Ctx, response FiberSuccessMessage) error {
	if response.TrackingID == "" {
		response.TrackingID = fiberCtx.Get("X-Request-ID")
	}
	return fiberCtx.Status(fiber.StatusOK).JSON(response)
}

// Accepted acknowledges work that continues in the background.
func Accepted(module config.Module, fiberCtx fiber.Ctx, response FiberSuccessMessage) error {
	if response.TrackingID == "" {
		response.TrackingID = fiberCtx.Get("X-Request-ID")
	}
	logger.WithField("module", module).Debugf("accepted %s", fiberCtx.Path())
	return fiberCtx.Status(fiber.StatusAccepted).JSON(response)
}
