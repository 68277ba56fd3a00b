// Package server wires HTTP handlers into a gin engine for the relay.
package server

import "github.com/gin-gonic/gin"

// SetupRoutes configures and returns the engine with all application routes.
// Paths without a route fall through to the static asset responder.
func SetupRoutes(h *Handlers, mode string) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()
	if mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	r.GET("/api/rooms", h.Rooms)
	r.Any("/ws", h.WebSocket)
	r.NoRoute(h.Static)

	return r
}
