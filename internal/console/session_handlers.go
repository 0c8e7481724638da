package console

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tunneldeck-console/internal/models"
)

// login handles POST /api/session/login
func (h *Handler) login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "username and password are required",
		})
	}

	if !h.store.Login(c.Request().Context(), req.Username, req.Password) {
		status := h.store.Status()
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": status.LastError,
		})
	}

	return c.JSON(http.StatusOK, h.store.Status())
}

// logout handles POST /api/session/logout
func (h *Handler) logout(c echo.Context) error {
	h.store.Logout()
	return c.JSON(http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// sessionStatus handles GET /api/session
func (h *Handler) sessionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Status())
}

// changePassword handles POST /api/session/password
func (h *Handler) changePassword(c echo.Context) error {
	var req models.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "current and new password are required",
		})
	}

	strength := models.PasswordStrength(req.NewPassword)
	if strength < models.StrengthFair {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":    "new password is too weak",
			"strength": strength,
		})
	}

	if !h.store.ChangePassword(c.Request().Context(), req.CurrentPassword, req.NewPassword) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": h.store.Status().LastError,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "password changed",
		"strength": strength,
	})
}

// dismissError handles DELETE /api/session/error
func (h *Handler) dismissError(c echo.Context) error {
	h.store.DismissError()
	return c.JSON(http.StatusOK, map[string]string{
		"message": "dismissed",
	})
}

// health handles GET /api/health: console liveness plus the most recent
// upstream health snapshot the session store has seen
func (h *Handler) health(c echo.Context) error {
	status := h.store.Status()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"connected": status.Connected,
		"upstream":  status.LastHealth,
	})
}
