// Package console exposes the browser-facing REST and WebSocket surface.
// Handlers are thin: session operations delegate to the session store, and
// resource reads/writes pass through the shared upstream client.
package console

import (
	"github.com/labstack/echo/v4"

	"tunneldeck-console/internal/session"
	"tunneldeck-console/internal/upstream"
)

// Handler bundles the collaborators the console surface needs
type Handler struct {
	store  *session.Store
	client *upstream.Client
}

// NewHandler creates the console handler set
func NewHandler(store *session.Store, client *upstream.Client) *Handler {
	return &Handler{store: store, client: client}
}

// RegisterRoutes sets up all console routes
func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Health (public)
	api.GET("/health", h.health)

	// Session lifecycle
	sess := api.Group("/session")
	sess.POST("/login", h.login)
	sess.POST("/logout", h.logout)
	sess.GET("", h.sessionStatus)
	sess.POST("/password", h.changePassword)
	sess.DELETE("/error", h.dismissError)

	// Proxied backend resources
	api.GET("/services", h.listServices)
	api.POST("/services/:name/:action", h.serviceAction)
	api.GET("/configs", h.listConfigFiles)
	api.GET("/configs/:name", h.getConfigFile)
	api.GET("/tunnel-users", h.listTunnelUsers)
	api.POST("/tunnel-users", h.createTunnelUser)
	api.DELETE("/tunnel-users/:email", h.deleteTunnelUser)
	api.GET("/users", h.listUsers)
	api.POST("/users", h.createUser)
	api.PUT("/users/:id", h.updateUser)
	api.DELETE("/users/:id", h.deleteUser)

	// Live log tail
	api.GET("/logs/stream", h.streamLogs)
}
