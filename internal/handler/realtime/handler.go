package realtime

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/rch-registry/internal/broadcast"
)

type Config struct {
	Path          string
	AllowedOrigin string
	Development   bool
}

// Handler upgrades viewer connections and hands them to the hub
type Handler struct {
	hub      *broadcast.Hub
	path     string
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(hub *broadcast.Hub, cfg Config, log zerolog.Logger) *Handler {
	if cfg.Path == "" {
		cfg.Path = "/socket"
	}
	log = log.With().Str("component", "realtime").Logger()
	return &Handler{
		hub:  hub,
		path: cfg.Path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigin, cfg.Development, log),
		},
		log: log,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET(h.path, h.Connect)
}

// Connect blocks for the lifetime of the viewer connection
func (h *Handler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	// A rejected subscription has already had its connection closed
	session, err := h.hub.Subscribe(conn)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", c.ClientIP()).Msg("rejecting viewer")
		return
	}

	h.log.Debug().Str("session_id", session.ID().String()).Str("remote_addr", c.ClientIP()).Msg("viewer connected")
	h.hub.ServeSession(session)
	h.log.Debug().Str("session_id", session.ID().String()).Msg("viewer disconnected")
}
