package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/impactlens/internal/errors"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// upstreamProblem maps a domain error onto a problem response.
func upstreamProblem(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, perrors.ErrConfigurationInvalid):
		return problemResponse(c, fiber.StatusServiceUnavailable, "configuration_invalid", "Service Unavailable", err.Error())
	case errors.Is(err, perrors.ErrAuthFailure), errors.Is(err, perrors.ErrDenied):
		return problemResponse(c, fiber.StatusBadGateway, "upstream_auth_failed", "Bad Gateway", err.Error())
	case errors.Is(err, perrors.ErrRateLimit):
		return problemResponse(c, fiber.StatusTooManyRequests, "upstream_rate_limited", "Too Many Requests", err.Error())
	case errors.Is(err, perrors.ErrTimeout):
		return problemResponse(c, fiber.StatusGatewayTimeout, "upstream_timeout", "Gateway Timeout", err.Error())
	case perrors.IsUpstream(err), errors.Is(err, perrors.ErrDecodeFailure), errors.Is(err, perrors.ErrUpstreamNonSuccess):
		return problemResponse(c, fiber.StatusBadGateway, "upstream_error", "Bad Gateway", err.Error())
	}
	return err
}

func notFound(c *fiber.Ctx, detail string) error {
	return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", detail)
}

func badRequest(c *fiber.Ctx, detail string) error {
	return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", detail)
}
