package console

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// logPollInterval is how often the upstream log tail is polled while a
// browser is connected.
const logPollInterval = 2 * time.Second

// streamLogs handles GET /api/logs/stream: upgrades to WebSocket and pushes
// new upstream log lines as they appear. The poll loop ends when the browser
// disconnects or an upstream call fails terminally.
func (h *Handler) streamLogs(c echo.Context) error {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// Detect browser disconnect; the read loop fails when the peer goes away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	var offset int64

	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		chunk, err := h.client.TailLog(ctx, offset)
		if err != nil {
			ws.WriteJSON(map[string]interface{}{
				"error": "log tail unavailable",
			})
			log.Printf("console: log tail failed: %v", err)
			return nil
		}

		if len(chunk.Lines) > 0 {
			if err := ws.WriteJSON(map[string]interface{}{
				"lines":  chunk.Lines,
				"offset": chunk.Offset,
			}); err != nil {
				return nil
			}
			offset = chunk.Offset
		}

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
