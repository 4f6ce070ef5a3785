package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/credport/reset-service/internal/service"
)

// PasswordResetter is the slice of the reset service the handlers need.
type PasswordResetter interface {
	Issue(ctx context.Context, email string) (string, time.Time, error)
	Redeem(ctx context.Context, token, newPassword string) error
}

type ResetHandler struct {
	resets PasswordResetter
}

func NewResetHandler(resets PasswordResetter) *ResetHandler {
	return &ResetHandler{resets: resets}
}

func (h *ResetHandler) Register(e *echo.Echo) {
	g := e.Group("/api/password-reset")
	g.POST("/initiate", h.Initiate)
	g.POST("/execute", h.Execute)
}

func (h *ResetHandler) Initiate(c echo.Context) error {
	var req InitiateResetRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "email is required")
	}

	token, expiresAt, err := h.resets.Issue(c.Request().Context(), req.Email)
	if err != nil {
		return resetErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, InitiateResetResponse{ResetToken: token, ExpiresAt: expiresAt})
}

func (h *ResetHandler) Execute(c echo.Context) error {
	var req ExecuteResetRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
	}
	if strings.TrimSpace(req.ResetToken) == "" {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "reset token is required")
	}
	if req.NewPassword == "" {
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "new password is required")
	}

	if err := h.resets.Redeem(c.Request().Context(), req.ResetToken, req.NewPassword); err != nil {
		return resetErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, ExecuteResetResponse{Message: "password successfully reset"})
}

func resetErrorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		return errorJSON(c, http.StatusBadRequest, "INVALID_EMAIL", err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		return errorJSON(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrActiveRequestExists):
		return errorJSON(c, http.StatusConflict, "ACTIVE_REQUEST_EXISTS", err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		return errorJSON(c, http.StatusBadRequest, "INVALID_TOKEN", err.Error())
	case errors.Is(err, service.ErrPasswordTooWeak):
		return errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
	}
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
