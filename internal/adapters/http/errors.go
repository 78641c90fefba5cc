package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/overlapscan/internal/core/domain"
	"github.com/samirrijal/overlapscan/internal/pkg/logging"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // out_of_range, degenerate_box, not_found, upstream_error, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "invalid_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errFromDomain maps service errors onto HTTP responses. Deadline errors are returned
// as-is so the timeout middleware can answer 408.
func errFromDomain(c *fiber.Ctx, err error) error {
	var (
		ve *domain.ValidationError
		ue *domain.UpstreamError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrOutOfRange):
		return newError(c, fiber.StatusBadRequest, "out_of_range", err.Error())
	case errors.Is(err, domain.ErrDegenerateBox):
		return newError(c, fiber.StatusBadRequest, "degenerate_box", err.Error())
	case errors.Is(err, domain.ErrBBoxTooLarge):
		return newError(c, fiber.StatusBadRequest, "bbox_too_large", err.Error())
	case errors.As(err, &ve):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrUnknownSource):
		return newError(c, fiber.StatusBadRequest, "unknown_source", err.Error())
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrRunNotFound):
		return errNotFound(c, err.Error())
	case errors.As(err, &ue):
		return newError(c, fiber.StatusBadGateway, "upstream_error", err.Error())
	default:
		logging.FromContext(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
		return errInternal(c, "internal error")
	}
}
