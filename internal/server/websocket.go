package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cairndb/cairn/core/db"
	"github.com/cairndb/cairn/internal/logging"
)

const (
	wsReadLimit  = 1 << 20 // 1MiB per message
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
)

// wsClient is one open /ws connection: readPump decodes batchEnvelope
// messages and runs them against the shared database; writePump drains
// send and keeps the connection alive with pings, mirroring the teacher's
// Hub/Client split but replying per-request instead of broadcasting.
type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte
}

// wsHub tracks the set of open /ws connections purely for connection-count
// logging (logging.WebSocketEvent); unlike the teacher's Hub it never
// broadcasts, since each client's batches are its own request/response pair.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]bool)}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	logging.WebSocketEvent("client_connected", n)
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	logging.WebSocketEvent("client_disconnected", n)
	close(c.send)
}

// WebSocketHandler serves /ws: each text message is a JSON batchEnvelope,
// each reply a JSON batchResult, implementing the host Request collaborator
// (spec §6.2) over the wire for callers that want one long-lived connection
// instead of a POST per batch. allowedOrigins lists the accepted Origin
// header values: pass {"*"} to allow any origin.
func WebSocketHandler(database *db.Database, allowedOrigins []string) http.Handler {
	hub := newWSHub()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("websocket upgrade failed", "error", err)
			return
		}

		client := &wsClient{hub: hub, conn: conn, send: make(chan []byte, 16)}
		hub.add(client)

		go client.writePump()
		go client.readPump(database)
	})
}

// originChecker allows any origin when allowed contains "*", otherwise only
// exact Origin header matches.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (c *wsClient) readPump(database *db.Database) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			return
		}

		var env batchEnvelope
		result := batchResult{}
		if err := json.Unmarshal(payload, &env); err != nil {
			result.Status = http.StatusBadRequest
			result.Error = "malformed message: " + err.Error()
		} else {
			result = runBatch(database, env, nil)
		}

		data, err := json.Marshal(result)
		if err != nil {
			logging.Error("failed to marshal batch result", "error", err)
			continue
		}
		select {
		case c.send <- data:
		default:
			logging.Warn("websocket send buffer full, dropping result")
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
