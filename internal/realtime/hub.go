// Package realtime fans events out to connected websocket clients.
// It is an EventSink like any other: the messaging core does not know
// sockets exist.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/events"
	"github.com/lalith-99/parley/internal/middleware"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/observ"
	"github.com/lalith-99/parley/internal/repository"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The JWT on the upgrade request is the access control; origin
	// checking is the host app's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connected clients by participant identity and routes each
// event to the clients whose identity holds an active membership in
// the event's room.
type Hub struct {
	memberships repository.MembershipStore
	logger      *zap.Logger

	mu      sync.RWMutex
	clients map[models.Identity]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(memberships repository.MembershipStore, logger *zap.Logger) *Hub {
	return &Hub{
		memberships: memberships,
		logger:      logger,
		clients:     make(map[models.Identity]map[*client]struct{}),
	}
}

var _ chat.EventSink = (*Hub)(nil)

// ServeWS handles GET /v1/ws: upgrades the connection and binds it to
// the authenticated identity. One identity may hold many connections
// (several tabs, several devices).
func (h *Hub) ServeWS(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	if identity.IsZero() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(identity, cl)
	observ.WSClients.Inc()

	go h.writePump(cl)
	go h.readPump(identity, cl)
}

func (h *Hub) register(identity models.Identity, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[identity]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[identity] = set
	}
	set[cl] = struct{}{}
}

func (h *Hub) unregister(identity models.Identity, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[identity]; ok {
		if _, present := set[cl]; present {
			delete(set, cl)
			close(cl.send)
			observ.WSClients.Dec()
		}
		if len(set) == 0 {
			delete(h.clients, identity)
		}
	}
}

// readPump drains (and discards) client frames so pings/pongs and
// close handshakes work. The stream is server-to-client only.
func (h *Hub) readPump(identity models.Identity, cl *client) {
	defer func() {
		h.unregister(identity, cl)
		cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliverToRoom sends the envelope to every connected client whose
// identity is an active participant of the room. A full send buffer
// drops the frame for that client — a stuck reader must not stall the
// send path.
func (h *Hub) deliverToRoom(env events.Envelope, members []models.Membership) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("marshal ws event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range members {
		for cl := range h.clients[m.Participant] {
			select {
			case cl.send <- payload:
			default:
				h.logger.Debug("ws client buffer full, dropping frame",
					zap.String("participant", m.Participant.Key()),
				)
			}
		}
	}
}

func (h *Hub) emit(ctx context.Context, env events.Envelope, m models.Membership) {
	members, err := h.memberships.ListByRoom(ctx, m.RoomID, false)
	if err != nil {
		h.logger.Warn("list room members for ws fanout", zap.Error(err))
		return
	}
	h.deliverToRoom(env, members)
}

func (h *Hub) MessageCreated(ctx context.Context, msg models.Message) {
	members, err := h.memberships.ListByRoom(ctx, msg.RoomID, false)
	if err != nil {
		h.logger.Warn("list room members for ws fanout", zap.Error(err))
		return
	}
	env := events.Envelope{Type: events.TypeMessageCreated, RoomID: msg.RoomID.String(), Payload: msg}
	h.deliverToRoom(env, members)
}

func (h *Hub) ParticipantAdded(ctx context.Context, m models.Membership) {
	h.emit(ctx, events.Envelope{Type: events.TypeParticipantAdded, RoomID: m.RoomID.String(), Payload: m}, m)
}

func (h *Hub) ParticipantRemoved(ctx context.Context, m models.Membership) {
	env := events.Envelope{Type: events.TypeParticipantRemoved, RoomID: m.RoomID.String(), Payload: m}
	members, err := h.memberships.ListByRoom(ctx, m.RoomID, false)
	if err != nil {
		h.logger.Warn("list room members for ws fanout", zap.Error(err))
		return
	}
	// By this point the row is departed and the active listing misses
	// it; the leaver still has to hear they were removed.
	h.deliverToRoom(env, append(members, m))
}
