// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the room listing and the static asset responder.
package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/registry"
)

const healthBody = "roomchat server is running!"

// Handlers groups the HTTP endpoints of the relay.
type Handlers struct {
	listener  *Listener
	reg       *registry.Registry
	upgrader  websocket.Upgrader
	staticDir string
	log       zerolog.Logger
}

// NewHandlers wires the endpoints to their collaborators.
func NewHandlers(listener *Listener, reg *registry.Registry, origins *OriginPolicy, staticDir string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		listener: listener,
		reg:      reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		staticDir: staticDir,
		log:       logger.With().Str("module", "server").Logger(),
	}
}

// WebSocket upgrades the request and serves the connection until it closes.
// Only GET is accepted.
func (h *Handlers) WebSocket(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.String(http.StatusMethodNotAllowed, "Method not allowed. WebSocket endpoint only accepts GET requests.")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("addr", c.Request.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	h.listener.Serve(conn, c.Request.RemoteAddr)
}

// Health reports that the process is up.
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, healthBody)
}

// Rooms lists live rooms with their member counts.
func (h *Handlers) Rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rooms":       h.reg.Rooms(),
		"connections": h.listener.Count(),
	})
}

// Static serves files from the static directory by request path, mapping
// "/" to "/index.html". Scripts are sent as application/javascript and every
// other file as text/html. Paths cannot escape the directory.
func (h *Handlers) Static(c *gin.Context) {
	urlPath := c.Request.URL.Path
	if urlPath == "/" {
		urlPath = "/index.html"
	}
	filePath := filepath.Join(h.staticDir, filepath.FromSlash(path.Clean("/"+urlPath)))

	data, err := os.ReadFile(filePath)
	if err != nil {
		c.String(http.StatusNotFound, "Not found")
		return
	}

	contentType := "text/html"
	if filepath.Ext(filePath) == ".js" {
		contentType = "application/javascript"
	}
	c.Data(http.StatusOK, contentType, data)
}
