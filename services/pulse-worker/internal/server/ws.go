package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	helpers "go-pulse/pkg/shared"
	"go-pulse/services/pulse-worker/internal/agent"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	// Ignore Origin header, same as the CORS policy on /status
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsHandler pushes the status document once per pulse interval. A text "PING" from the
// client is answered with "PONG"; anything else is ignored.
func wsHandler(state *agent.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With("component", "ws", "remoteAddr", r.RemoteAddr)

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Problem with HTTP upgrade", "error", err)
			return
		}
		defer helpers.CloseOrLog(c)
		logger.Debug("Status stream opened")

		pings := make(chan struct{}, 1)
		closed := make(chan struct{})

		// gorilla/websocket allows one concurrent reader and one concurrent writer, so
		// the reader only signals and all writes happen below
		go func() {
			defer close(closed)
			for {
				messageType, message, err := c.ReadMessage()
				if err != nil {
					logger.Debug("Status stream closed", "error", err)
					return
				}
				if messageType == websocket.TextMessage && string(message) == "PING" {
					select {
					case pings <- struct{}{}:
					default:
					}
					continue
				}
				logger.Debug("Ignoring message", "type", messageType)
			}
		}()

		ticker := time.NewTicker(state.PulseInterval)
		defer ticker.Stop()

		if err := writeStatus(c, state); err != nil {
			logger.Warn("Failed to send status", "error", err)
			return
		}

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case <-pings:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.TextMessage, []byte("PONG")); err != nil {
					logger.Warn("Failed to send pong message", "error", err)
					return
				}
			case <-ticker.C:
				if err := writeStatus(c, state); err != nil {
					logger.Warn("Failed to send status", "error", err)
					return
				}
			}
		}
	}
}

func writeStatus(c *websocket.Conn, state *agent.State) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(state.Document(time.Now()))
}
