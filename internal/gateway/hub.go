// Package gateway is the transport around the signal engine: a WebSocket hub
// answering client requests, a broadcaster fanning signals out to every
// client, the background scanner and the debug REST endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"binarysignal/internal/model"
	"binarysignal/internal/signalengine"

	"github.com/gorilla/websocket"
)

// Engine is the slice of the signal engine the gateway drives.
type Engine interface {
	ComputeSignal(ctx context.Context, pair string, mode model.Mode) signalengine.Outcome
	ForceSignal(ctx context.Context, pair string, mode model.Mode) signalengine.Outcome
	AutoPick(ctx context.Context, mode model.Mode) signalengine.Outcome
	WatchList() []string
}

// Bus relays broadcast messages between gateway instances.
type Bus interface {
	Publish(ctx context.Context, msg model.Message) error
	Subscribe(ctx context.Context, handler func(model.Message)) error
}

// Observer receives gateway telemetry.
type Observer interface {
	ObserveBroadcast(msgType string)
	ObserveClients(n int)
}

const (
	replayCapacity = 500
	sendBuffer     = 256
)

// Hub manages WebSocket clients and broadcast fan-out.
type Hub struct {
	engine Engine
	owner  string
	now    func() time.Time
	log    *slog.Logger

	bus      Bus
	observer Observer
	onSignal func(model.Signal)

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithBus routes broadcasts through bus; RunBus must then be running for
// local clients to receive them.
func WithBus(b Bus) HubOption { return func(h *Hub) { h.bus = b } }

// WithObserver attaches gateway telemetry.
func WithObserver(o Observer) HubOption { return func(h *Hub) { h.observer = o } }

// WithSignalHook is called once for every signal this instance originates
// (not for signals relayed from other instances).
func WithSignalHook(fn func(model.Signal)) HubOption { return func(h *Hub) { h.onSignal = fn } }

// WithHubClock replaces the wall clock.
func WithHubClock(now func() time.Time) HubOption { return func(h *Hub) { h.now = now } }

// WithHubLogger sets the structured logger.
func WithHubLogger(l *slog.Logger) HubOption { return func(h *Hub) { h.log = l } }

// NewHub creates a Hub serving engine. owner is echoed in the hello message.
func NewHub(engine Engine, owner string, opts ...HubOption) *Hub {
	h := &Hub{
		engine:  engine,
		owner:   owner,
		now:     time.Now,
		log:     slog.Default().With(slog.String("component", "gateway")),
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replayCapacity),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HandleWSRequest registers an upgraded connection. The client gets a hello
// first, then any buffered broadcasts newer than lastSeq (0 skips replay).
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
	}

	hello, _ := json.Marshal(model.NewHello(h.now(), h.engine.WatchList(), h.owner))
	client.enqueue(hello)
	if lastSeq > 0 {
		missed := h.replay.Since(lastSeq)
		if len(missed) > sendBuffer-1 {
			missed = missed[len(missed)-(sendBuffer-1):]
		}
		for _, env := range missed {
			client.enqueue(env)
		}
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.observeClients(count)

	h.log.Info("ws client connected", slog.Int("clients", count))

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.cancel()
	close(c.send)
	h.observeClients(count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastSignal sends s to every connected client, across instances when a
// bus is configured. A bus failure falls back to local delivery.
func (h *Hub) BroadcastSignal(ctx context.Context, s model.Signal) {
	if h.onSignal != nil {
		h.onSignal(s)
	}
	msg := model.SignalMessage(s)
	if h.bus != nil {
		err := h.bus.Publish(ctx, msg)
		if err == nil {
			return
		}
		h.log.Warn("bus publish failed, delivering locally", slog.String("error", err.Error()))
	}
	h.Deliver(msg)
}

// RunBus relays bus messages to local clients. Blocks until ctx is cancelled.
func (h *Hub) RunBus(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	return h.bus.Subscribe(ctx, h.Deliver)
}

func (h *Hub) observeClients(n int) {
	if h.observer != nil {
		h.observer.ObserveClients(n)
	}
}
