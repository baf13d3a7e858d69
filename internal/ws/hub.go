package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/obsidianstack/pitchwatch/internal/store"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10 // must stay below pongWait
	queueDepth   = 16

	// alertsPerMessage is how many recent alerts each push carries.
	alertsPerMessage = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// Origin policy is left to the API's CORS configuration and any proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Snapshot is the payload of every push.
type Snapshot struct {
	Fixtures    []*types.FixtureSnapshot `json:"fixtures"`
	Alerts      []types.Alert            `json:"alerts"`
	GeneratedAt string                   `json:"generated_at"` // RFC3339
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string   `json:"event"`
	Data  Snapshot `json:"data"`
}

// Hub pushes the fixture and alert snapshot to every connected client on a
// fixed interval, on connect, and whenever Notify is called. The client set
// is owned by the Run loop; handlers talk to it over channels.
type Hub struct {
	fixtures *store.Fixtures
	history  *store.Alerts
	interval time.Duration

	join  chan *subscriber
	leave chan *subscriber
	kick  chan struct{}
	done  chan struct{}

	connected atomic.Int64
}

type subscriber struct {
	id    string
	conn  *websocket.Conn
	queue chan []byte
}

// New creates a Hub reading from fixtures and history.
func New(fixtures *store.Fixtures, history *store.Alerts, interval time.Duration) *Hub {
	return &Hub{
		fixtures: fixtures,
		history:  history,
		interval: interval,
		join:     make(chan *subscriber),
		leave:    make(chan *subscriber),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Run owns the subscriber set and broadcasts until ctx is cancelled, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*subscriber]struct{})
	drop := func(s *subscriber) {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			close(s.queue)
		}
		h.connected.Store(int64(len(subs)))
	}

	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			for s := range subs {
				drop(s)
			}
			close(h.done)
			return
		case s := <-h.join:
			subs[s] = struct{}{}
			h.connected.Store(int64(len(subs)))
		case s := <-h.leave:
			drop(s)
		case <-t.C:
			h.publish(subs, drop)
		case <-h.kick:
			h.publish(subs, drop)
		}
	}
}

func (h *Hub) publish(subs map[*subscriber]struct{}, drop func(*subscriber)) {
	if len(subs) == 0 {
		return
	}
	msg, err := h.encode()
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}
	for s := range subs {
		select {
		case s.queue <- msg:
		default:
			slog.Warn("ws: dropping slow client", "client", s.id)
			drop(s)
		}
	}
}

// Notify requests an out-of-band broadcast, typically after a scan. It never
// blocks; requests made while one is pending are merged.
func (h *Hub) Notify() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int { return int(h.connected.Load()) }

// ServeHTTP upgrades the connection, queues the current snapshot and serves
// the client until it disconnects or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader already replied
	}
	s := &subscriber{id: uuid.NewString(), conn: conn, queue: make(chan []byte, queueDepth)}
	if msg, err := h.encode(); err == nil {
		s.queue <- msg
	}

	select {
	case h.join <- s:
	case <-h.done:
		conn.Close()
		return
	}
	slog.Debug("ws: client connected", "client", s.id, "remote", r.RemoteAddr)

	go s.writeLoop()
	s.readLoop()

	select {
	case h.leave <- s:
	case <-h.done:
	}
	slog.Debug("ws: client disconnected", "client", s.id)
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{
		Event: "snapshot",
		Data: Snapshot{
			Fixtures:    h.fixtures.List(),
			Alerts:      h.history.Recent(alertsPerMessage),
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *subscriber) write(kind int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, data)
}

// writeLoop drains the queue and keeps the connection alive with pings. A
// closed queue means the hub dropped the client.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer s.conn.Close()

	for {
		var err error
		select {
		case msg, ok := <-s.queue:
			if !ok {
				s.write(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			err = s.write(websocket.TextMessage, msg)
		case <-ping.C:
			err = s.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// readLoop only services control frames; it returns once the peer goes away.
func (s *subscriber) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend("") //nolint:errcheck
	s.conn.SetPongHandler(extend)
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}
