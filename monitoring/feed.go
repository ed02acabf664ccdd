// Package monitoring provides the live event feed and request
// counters for the prediction service.
package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType distinguishes feed messages.
type EventType string

const (
	EventPrediction EventType = "prediction"
	EventLabel      EventType = "label"
)

// Event is one feed message: a fresh prediction or an attached label.
type Event struct {
	Type          EventType `json:"type"`
	ObservationID int64     `json:"observation_id"`
	Prediction    *bool     `json:"prediction,omitempty"`
	Probability   *float64  `json:"probability,omitempty"`
	TrueClass     *int64    `json:"true_class,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Feed broadcasts prediction events to connected websocket clients.
type Feed struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	once       sync.Once
	upgrader   websocket.Upgrader
}

// NewFeed creates the feed hub. Call Start in a goroutine before
// serving connections.
func NewFeed() *Feed {
	return &Feed{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop until Stop is called.
func (f *Feed) Start() {
	for {
		select {
		case c := <-f.register:
			f.clients[c] = true
			zap.S().Debugw("feed client connected", "total", len(f.clients))

		case c := <-f.unregister:
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}

		case message := <-f.broadcast:
			for c := range f.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(f.clients, c)
				}
			}

		case <-f.done:
			for c := range f.clients {
				close(c.send)
				delete(f.clients, c)
			}
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (f *Feed) Stop() {
	f.once.Do(func() { close(f.done) })
}

// HandleWS upgrades the request and attaches the client to the feed.
func (f *Feed) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	select {
	case f.register <- c:
	case <-f.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(f)
}

// Publish queues an event for broadcast. Messages are dropped rather
// than blocking a request handler when the queue is full.
func (f *Feed) Publish(event Event) {
	event.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorw("marshal feed event", "err", err)
		return
	}
	select {
	case f.broadcast <- payload:
	default:
		zap.S().Warn("feed queue full, dropping event")
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pings/closes are processed; the
// feed is one-way.
func (c *client) readPump(f *Feed) {
	defer func() {
		select {
		case f.unregister <- c:
		case <-f.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.S().Debugw("websocket read error", "err", err)
			}
			return
		}
	}
}
