/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 1 << 20
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Serve upgrades the request and attaches the connection to the room for
// code until the device disconnects.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, code, addr string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logf("SYNC: Upgrade failed for %s: %v", addr, err)
		return
	}

	room := m.Acquire(code)
	defer m.Release(room)

	client := NewClient(conn, addr, sendBuffer)

	if !room.Join(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump(room)
}

func (c *Client) readPump(r *Room) {
	defer func() {
		r.Leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		r.Deliver(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
