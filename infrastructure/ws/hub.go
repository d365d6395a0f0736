// Package ws pushes chat views and send status to browser observers.
// The feed is one-way: frames are written, anything read is discarded.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pixel-chat/contract"
	"pixel-chat/domain/chat"
	"pixel-chat/domain/event"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var (
	_ contract.EventSink = (*Hub)(nil)
	_ contract.Worker    = (*Hub)(nil)
)

type messageFrame struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	Nickname   string    `json:"nickname"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text,omitempty"`
	PhotoRef   string    `json:"photoRef,omitempty"`
	Visibility string    `json:"visibility"`
	PixelSize  int       `json:"pixelSize,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type frame struct {
	Type      event.Type     `json:"type"`
	Messages  []messageFrame `json:"messages,omitempty"`
	IsSending *bool          `json:"isSending,omitempty"`
	Percent   *int           `json:"percent,omitempty"`
	Uploading *bool          `json:"uploading,omitempty"`
}

// Hub keeps the connected observers and broadcasts frames to them.
// New observers first receive the latest view and status.
type Hub struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	latest     map[event.Type][]byte

	// done belongs to the current or last Run and is replaced on restart
	mu   sync.Mutex
	done chan struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done <-chan struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		latest:     make(map[event.Type][]byte),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done or it panics.
// Observers attached to a run are closed with it; a later Run serves again.
func (h *Hub) Run(ctx context.Context) error {
	done := h.start()
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			for _, kind := range []event.Type{event.ViewReplacedType, event.StatusChangedType} {
				if payload, ok := h.latest[kind]; ok {
					c.send <- payload
				}
			}
		case c := <-h.unregister:
			h.drop(c)
		case payload := <-h.broadcast:
			var head struct {
				Type event.Type `json:"type"`
			}
			if json.Unmarshal(payload, &head) == nil {
				h.latest[head.Type] = payload
			}
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					h.log.Warn("Slow websocket observer dropped", "remote", c.conn.RemoteAddr().String())
					h.drop(c)
				}
			}
		}
	}
}

// start opens a new run, unless the current one has not ended yet.
func (h *Hub) start() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		h.done = make(chan struct{})
	default:
	}
	return h.done
}

func (h *Hub) stopped() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Consume queues an event for every observer.
func (h *Hub) Consume(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(toFrame(e))
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped():
		return nil
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", "error", err)
		return
	}
	done := h.stopped()
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), done: done}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	case <-done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("Websocket observer left", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

func toFrame(e event.Event) frame {
	switch ev := e.(type) {
	case event.ViewReplaced:
		messages := lo.Map(ev.View.Messages(), func(m chat.ChatMessage, _ int) messageFrame {
			return messageFrame{
				ID:         m.ID,
				AuthorID:   m.AuthorID,
				Nickname:   m.Nickname,
				Kind:       string(m.Kind),
				Text:       m.Text,
				PhotoRef:   m.PhotoRef,
				Visibility: string(m.Visibility),
				PixelSize:  m.PixelSize,
				CreatedAt:  m.CreatedAt,
			}
		})
		return frame{Type: ev.EventType(), Messages: messages}
	case event.StatusChanged:
		return frame{
			Type:      ev.EventType(),
			IsSending: lo.ToPtr(ev.Status.IsSending),
			Percent:   lo.ToPtr(ev.Status.Progress.Percent),
			Uploading: lo.ToPtr(ev.Status.Progress.Active),
		}
	default:
		return frame{Type: e.EventType()}
	}
}
