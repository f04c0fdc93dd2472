package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

const sendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TraceEvent is one player transition as streamed to websocket clients.
type TraceEvent struct {
	Kind   string    `json:"kind"`
	Agent  uuid.UUID `json:"agent"`
	Node   int       `json:"node"`
	Type   string    `json:"type,omitempty"`
	From   int       `json:"from,omitempty"`
	Status string    `json:"status,omitempty"`
	Time   time.Time `json:"time"`
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	agent uuid.UUID
}

// Tracer broadcasts player transitions to websocket subscribers. Clients that
// fall behind lose events rather than stalling the simulation.
type Tracer struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     log.Log
	dropped atomic.Uint64
}

var _ bt.Observer = (*Tracer)(nil)

func NewTracer(logger log.Log) *Tracer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Tracer{clients: make(map[*client]struct{}), log: logger.Named("trace")}
}

func (t *Tracer) OnActivate(agent uuid.UUID, node int, typ string) {
	t.broadcast(TraceEvent{Kind: "activate", Agent: agent, Node: node, Type: typ})
}

func (t *Tracer) OnDeactivate(agent uuid.UUID, node int, typ string) {
	t.broadcast(TraceEvent{Kind: "deactivate", Agent: agent, Node: node, Type: typ})
}

func (t *Tracer) OnPreempt(agent uuid.UUID, from, to int) {
	t.broadcast(TraceEvent{Kind: "preempt", Agent: agent, Node: to, From: from})
}

func (t *Tracer) OnFinish(agent uuid.UUID, status bt.Status) {
	t.broadcast(TraceEvent{Kind: "finish", Agent: agent, Node: -1, Status: status.String()})
}

func (t *Tracer) OnTick(uuid.UUID, time.Duration) {}

// Clients is the number of connected subscribers.
func (t *Tracer) Clients() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// Dropped counts events discarded for slow clients.
func (t *Tracer) Dropped() uint64 { return t.dropped.Load() }

func (t *Tracer) broadcast(ev TraceEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.clients) == 0 {
		return
	}
	ev.Time = time.Now()
	b, err := json.Marshal(ev)
	if err != nil {
		t.log.Error("encode trace event", log.Error(err))
		return
	}
	for c := range t.clients {
		if c.agent != uuid.Nil && c.agent != ev.Agent {
			continue
		}
		select {
		case c.send <- b:
		default:
			t.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams trace events until the peer
// disconnects. ?agent=<id> restricts the stream to one agent.
func (t *Tracer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var agent uuid.UUID
	if q := r.URL.Query().Get("agent"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid agent id", http.StatusBadRequest)
			return
		}
		agent = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Debug("websocket upgrade failed", log.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), agent: agent}

	t.mu.Lock()
	t.clients[c] = struct{}{}
	t.mu.Unlock()

	go t.write(c)
	t.read(c)
}

// read discards inbound frames and unregisters c once the connection fails.
func (t *Tracer) read(c *client) {
	defer func() {
		t.mu.Lock()
		delete(t.clients, c)
		close(c.send)
		t.mu.Unlock()
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (t *Tracer) write(c *client) {
	for b := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
