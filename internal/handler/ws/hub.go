package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	defaultSendBuffer = 64

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Engine is the subscription surface the hub drives on behalf of clients.
type Engine interface {
	Subscribe(session entity.SessionID, instruments []string)
	Unsubscribe(session entity.SessionID)
	OnDisconnect(session entity.SessionID)
}

// Hub owns the websocket sessions. It mints session IDs on connect, pumps
// outbound envelopes through a per-session buffered channel so one slow
// client never blocks another, and maps disconnects to engine cleanup.
type Hub struct {
	engine     Engine
	catalog    entity.InstrumentCatalog
	sendBuffer int

	mu      sync.RWMutex
	clients map[entity.SessionID]*client
}

func NewHub(catalog entity.InstrumentCatalog, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	return &Hub{
		catalog:    catalog,
		sendBuffer: sendBuffer,
		clients:    make(map[entity.SessionID]*client),
	}
}

// BindEngine wires the subscription engine. The engine needs the hub as its
// transport, so the hub is constructed first and bound before serving.
func (h *Hub) BindEngine(engine Engine) {
	h.engine = engine
}

// ServeHTTP upgrades the connection and runs the session until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed: %v", err)
		return
	}

	session := entity.SessionID(uuid.NewString())
	c := &client{
		session: session,
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		closed:  make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[session] = c
	h.mu.Unlock()

	logrus.WithField("session", session).Info("session connected")

	go c.writePump()
	h.readPump(c)
}

// SendToSession delivers one envelope to one session. It never blocks: a
// missing session or a full send buffer (slow client) returns a
// DeliveryFailure and the client is dropped.
func (h *Hub) SendToSession(session entity.SessionID, envelope entity.PriceUpdateEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return &entity.DeliveryFailure{Session: session, Reason: err.Error()}
	}

	h.mu.RLock()
	c, ok := h.clients[session]
	if !ok {
		h.mu.RUnlock()
		return &entity.DeliveryFailure{Session: session, Reason: "unknown session"}
	}

	select {
	case c.send <- payload:
		h.mu.RUnlock()
		return nil
	default:
		h.mu.RUnlock()
		h.dropClient(session, "send buffer full")
		return &entity.DeliveryFailure{Session: session, Reason: "send buffer full"}
	}
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close drops every connected session. Used during graceful shutdown.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[entity.SessionID]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	return nil
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.dropClient(c.session, "connection closed")
		h.engine.OnDisconnect(c.session)
		logrus.WithField("session", c.session).Info("session disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithField("session", c.session).Warnf("websocket read failed: %v", err)
			}
			return
		}

		h.handleClientMessage(c, message)
	}
}

type clientRequest struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

type controlResponse struct {
	Event       string   `json:"event"`
	Instruments []string `json:"instruments,omitempty"`
	Rejected    []string `json:"rejected,omitempty"`
	Message     string   `json:"message,omitempty"`
}

func (h *Hub) handleClientMessage(c *client, message []byte) {
	var req clientRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.sendControl(controlResponse{Event: "error", Message: "malformed request"})
		return
	}

	switch req.Action {
	case "subscribe":
		accepted, rejected := h.filterInstruments(req.Instruments)
		if len(accepted) == 0 {
			c.sendControl(controlResponse{Event: "error", Rejected: rejected, Message: "no valid instruments"})
			return
		}

		c.sendControl(controlResponse{Event: "subscribed", Instruments: accepted, Rejected: rejected})

		// snapshot delivery happens inside Subscribe, after the ack
		h.engine.Subscribe(c.session, accepted)
	case "unsubscribe":
		h.engine.Unsubscribe(c.session)
		c.sendControl(controlResponse{Event: "unsubscribed"})
	default:
		c.sendControl(controlResponse{Event: "error", Message: "unknown action"})
	}
}

// filterInstruments validates requested symbols against the instrument
// catalog so unknown/inactive symbols never reach the registry. An empty
// catalog disables validation.
func (h *Hub) filterInstruments(requested []string) (accepted, rejected []string) {
	for _, raw := range requested {
		instrument := entity.NormalizeInstrument(raw)
		if instrument == "" {
			continue
		}

		if len(h.catalog) > 0 && !h.catalog.Contains(instrument) {
			rejected = append(rejected, instrument)
			continue
		}

		accepted = append(accepted, instrument)
	}

	return accepted, rejected
}

func (h *Hub) dropClient(session entity.SessionID, reason string) {
	h.mu.Lock()
	c, ok := h.clients[session]
	if ok {
		delete(h.clients, session)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	logrus.WithFields(logrus.Fields{
		"session": session,
		"reason":  reason,
	}).Info("dropping session")

	c.close()
}
