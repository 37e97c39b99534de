package server

import (
	"errors"
	"log/slog"
	"time"

	"streamcode/internal/middleware"
	"streamcode/internal/models"
	"streamcode/internal/observability"
	"streamcode/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
)

// IssueStreamCodeResponse is returned when a code is issued or reused.
type IssueStreamCodeResponse struct {
	Code      string    `json:"code"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResolveStreamCodeResponse carries the descriptor a live code points to.
type ResolveStreamCodeResponse struct {
	Code       string                  `json:"code"`
	Descriptor models.StreamDescriptor `json:"descriptor"`
	ExpiresAt  time.Time               `json:"expires_at"`
}

// IssueStreamCode returns a shareable code for a stream descriptor
// @Summary Issue a stream code
// @Description Returns the existing live code for the same stream, or a new one.
// @Tags Codes
// @Accept json
// @Produce json
// @Param descriptor body models.StreamDescriptor true "Stream descriptor"
// @Success 201 {object} IssueStreamCodeResponse
// @Success 200 {object} IssueStreamCodeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /codes [post]
func (s *Server) IssueStreamCode(c *fiber.Ctx) error {
	var d models.StreamDescriptor
	if err := c.BodyParser(&d); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			&models.AppError{Code: "VALIDATION_ERROR", Message: "Invalid request body", Err: err})
	}

	result, err := s.registry.Issue(c.UserContext(), d)
	if err != nil {
		return s.respondWithRegistryError(c, err)
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	observability.AddTraceAttributesToContext(c.UserContext(),
		attribute.String("stream_code.code", result.Code),
		attribute.Bool("stream_code.created", result.Created),
	)
	return c.Status(status).JSON(IssueStreamCodeResponse{
		Code:      result.Code,
		URL:       s.shareURL(result.Code),
		ExpiresAt: result.ExpiresAt,
	})
}

// ResolveStreamCode returns the descriptor for a live code
// @Summary Resolve a stream code
// @Tags Codes
// @Produce json
// @Param code path string true "Stream code (case-insensitive)"
// @Success 200 {object} ResolveStreamCodeResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /codes/{code} [get]
func (s *Server) ResolveStreamCode(c *fiber.Ctx) error {
	return s.resolve(c, c.Params("code"))
}

// ResolveStreamCodeQuery resolves a code given as ?code=XXXX or the legacy ?=XXXX
// @Summary Resolve a stream code from the query string
// @Tags Codes
// @Produce json
// @Param code query string false "Stream code"
// @Success 200 {object} ResolveStreamCodeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /codes [get]
func (s *Server) ResolveStreamCodeQuery(c *fiber.Ctx) error {
	code := codeFromQuery(c)
	if code == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Missing stream code"))
	}
	return s.resolve(c, code)
}

func (s *Server) resolve(c *fiber.Ctx, code string) error {
	observability.AddTraceAttributesToContext(c.UserContext(), attribute.String("stream_code.code", code))

	record, ok, err := s.registry.Resolve(c.UserContext(), code)
	if err != nil {
		return s.respondWithRegistryError(c, err)
	}
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Stream not found or expired"))
	}

	return c.JSON(ResolveStreamCodeResponse{
		Code:       record.Code,
		Descriptor: record.Descriptor,
		ExpiresAt:  record.ExpiresAt,
	})
}

// DeactivateStreamCode stops a code from resolving
// @Summary Deactivate a stream code
// @Tags Codes
// @Param code path string true "Stream code"
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /codes/{code} [delete]
func (s *Server) DeactivateStreamCode(c *fiber.Ctx) error {
	changed, err := s.registry.Deactivate(c.UserContext(), c.Params("code"))
	if err != nil {
		return s.respondWithRegistryError(c, err)
	}
	if !changed {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Stream not found or expired"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// respondWithRegistryError maps registry failures onto HTTP responses. Storage
// failures are logged and reported as a generic 500.
func (s *Server) respondWithRegistryError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	var storageErr *service.StorageError

	switch {
	case errors.As(err, &appErr) && appErr.Code == "VALIDATION_ERROR":
		return models.RespondWithError(c, fiber.StatusBadRequest, appErr)
	case errors.Is(err, service.ErrCodeSpaceExhausted):
		middleware.Logger.WarnContext(c.UserContext(), "stream code space exhausted", slog.String("error", err.Error()))
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewCodeSpaceExhaustedError(err))
	case errors.As(err, &storageErr):
		middleware.Logger.ErrorContext(c.UserContext(), "stream code storage failure",
			slog.String("op", storageErr.Op),
			slog.String("error", storageErr.Err.Error()),
		)
	default:
		middleware.Logger.ErrorContext(c.UserContext(), "stream code request failed", slog.String("error", err.Error()))
	}
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}
