package room

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"sketchsync/pkg/logger"

	"github.com/gorilla/websocket"
)

// RoomPrefix is the fixed prefix clients put on room names; stripping it
// yields the logical drawing id.
const RoomPrefix = "drawing-"

const (
	CursorType   = "CURSOR"   // user moved their pointer
	PresenceType = "PRESENCE" // user joined or left
)

// WSMessage is the JSON envelope for text frames (presence, cursors).
// Drawing updates travel as raw binary frames and never take this shape.
type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"drawing_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

type outFrame struct {
	kind int // websocket message type
	data []byte
}

type Client struct {
	Registry *Registry
	Conn     *websocket.Conn
	Doc      *Doc
	UserID   string
	Send     chan outFrame
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the canvas dev server.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades an already-authenticated request and attaches the
// connection to the drawing named by the room query parameter. Anything
// wrong with the request is rejected before the handshake.
func ServeWs(reg *Registry, w http.ResponseWriter, r *http.Request, userID string) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "Missing room", http.StatusBadRequest)
		return
	}
	id := strings.TrimPrefix(room, RoomPrefix)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Registry: reg,
		Conn:     conn,
		UserID:   userID,
		Send:     make(chan outFrame, 256),
	}
	client.Doc = reg.ResolveAndAttach(r.Context(), id, client)
	doc := client.Doc

	// The new client's editor catches up from the full current state.
	client.Send <- outFrame{websocket.BinaryMessage, doc.state.EncodeState()}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Registry.Detach(context.Background(), c.Doc, c)
		c.Conn.Close()
	}()

	for {
		mt, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		switch mt {
		case websocket.BinaryMessage:
			// An engine-native update frame: merge it into the resident
			// doc (which schedules a coalesced save) and relay to peers
			// in arrival order.
			if err := c.Doc.state.ApplyUpdate(raw); err != nil {
				logger.Sugar.Errorf("Rejected update for drawing %s from %s: %v", c.Doc.ID, c.UserID, err)
				continue
			}
			c.Doc.broadcast(outFrame{websocket.BinaryMessage, raw}, c)

		case websocket.TextMessage:
			var msg WSMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				logger.Sugar.Errorf("Error unmarshalling message: %v", err)
				continue
			}
			// Set server-authoritative fields to prevent spoofing.
			msg.DocID = c.Doc.ID
			msg.UserID = c.UserID
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			// Presence and cursors are relayed, never persisted.
			c.Doc.broadcast(outFrame{websocket.TextMessage, payload}, c)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // keepalive ping
	defer ticker.Stop()

	for {
		select {
		case f := <-c.Send:
			if err := c.Conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // connection is dead
			}
		}
	}
}
