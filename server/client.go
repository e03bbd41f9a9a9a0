package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aecoa/aecoa/gate"
)

// WebSocket timeouts follow the gorilla chat example
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one /ws connection
type Client struct {
	server    *Server
	conn      *websocket.Conn
	sendMsg   chan interface{}
	id        string
	done      chan struct{}
	closeOnce sync.Once

	// runID filters events to a single run; empty means all runs
	filterMu sync.RWMutex
	runID    string
}

// ClientMessage is sent by clients to narrow the event stream
type ClientMessage struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
}

// EventMessage carries one gate event to clients
type EventMessage struct {
	Type  string     `json:"type"`
	Event gate.Event `json:"event"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
}

// HandleWebSocket upgrades the connection and registers it with the hub
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Failed to upgrade WebSocket", "error", err)
		return
	}

	client := &Client{
		server:  s,
		conn:    conn,
		sendMsg: make(chan interface{}, sendBuffer),
		id:      uuid.NewString(),
		done:    make(chan struct{}),
		runID:   r.URL.Query().Get("run_id"),
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

func (c *Client) wants(runID string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.runID == "" || c.runID == runID
}

// close closes the connection once; the pumps exit on the resulting errors
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Debugw("Ignoring malformed client message", "client_id", c.id, "error", err)
			continue
		}
		if msg.Type == "subscribe" {
			c.filterMu.Lock()
			c.runID = msg.RunID
			c.filterMu.Unlock()
			c.server.logger.Debugw("Client filter updated", "client_id", c.id, "run_id", msg.RunID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.sendMsg:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("WebSocket write error", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
