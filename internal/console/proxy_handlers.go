package console

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"tunneldeck-console/internal/models"
	"tunneldeck-console/internal/upstream"
)

// writeUpstreamError maps a classified upstream failure onto the console's
// own response. The caller-local failures (plain 4xx, network) stay local
// per the error-propagation policy; session-fatal ones were already
// broadcast by the transport.
func writeUpstreamError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "session expired, please log in again",
		})
	case errors.Is(err, upstream.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "you do not have permission for this action",
		})
	case errors.Is(err, upstream.ErrServer):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "proxy backend error",
		})
	case errors.Is(err, upstream.ErrBadStatus):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request rejected by proxy backend",
		})
	default:
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "proxy backend unreachable",
		})
	}
}

// listServices handles GET /api/services
func (h *Handler) listServices(c echo.Context) error {
	services, err := h.client.ListServices(c.Request().Context())
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, services)
}

// serviceAction handles POST /api/services/:name/:action
func (h *Handler) serviceAction(c echo.Context) error {
	name := c.Param("name")
	action := c.Param("action")
	switch action {
	case "start", "stop", "restart":
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "action must be start, stop, or restart",
		})
	}

	if err := h.client.ServiceAction(c.Request().Context(), name, action); err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": action + " requested for " + name,
	})
}

// listConfigFiles handles GET /api/configs
func (h *Handler) listConfigFiles(c echo.Context) error {
	files, err := h.client.ListConfigFiles(c.Request().Context())
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, files)
}

// getConfigFile handles GET /api/configs/:name
func (h *Handler) getConfigFile(c echo.Context) error {
	content, err := h.client.GetConfigFile(c.Request().Context(), c.Param("name"))
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"name":    c.Param("name"),
		"content": content,
	})
}

// listTunnelUsers handles GET /api/tunnel-users
func (h *Handler) listTunnelUsers(c echo.Context) error {
	users, err := h.client.ListTunnelUsers(c.Request().Context())
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// createTunnelUser handles POST /api/tunnel-users
func (h *Handler) createTunnelUser(c echo.Context) error {
	var user models.TunnelUser
	if err := c.Bind(&user); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if user.Email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "email is required",
		})
	}

	created, err := h.client.CreateTunnelUser(c.Request().Context(), user)
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// deleteTunnelUser handles DELETE /api/tunnel-users/:email
func (h *Handler) deleteTunnelUser(c echo.Context) error {
	if err := h.client.DeleteTunnelUser(c.Request().Context(), c.Param("email")); err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "tunnel user removed",
	})
}

// listUsers handles GET /api/users
func (h *Handler) listUsers(c echo.Context) error {
	users, err := h.client.ListUsers(c.Request().Context())
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// createUser handles POST /api/users
func (h *Handler) createUser(c echo.Context) error {
	var req models.CreateUserRequest
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
	if models.PasswordStrength(req.Password) < models.StrengthFair {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "password is too weak",
		})
	}

	user, err := h.client.CreateUser(c.Request().Context(), req)
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// updateUser handles PUT /api/users/:id
func (h *Handler) updateUser(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid user ID",
		})
	}

	var req models.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if req.Password != nil && models.PasswordStrength(*req.Password) < models.StrengthFair {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "password is too weak",
		})
	}

	user, err := h.client.UpdateUser(c.Request().Context(), id, req)
	if err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// deleteUser handles DELETE /api/users/:id
func (h *Handler) deleteUser(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid user ID",
		})
	}

	if err := h.client.DeleteUser(c.Request().Context(), id); err != nil {
		return writeUpstreamError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "user deleted",
	})
}
