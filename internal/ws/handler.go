package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/karaoke-session-system/internal/auth"
	"github.com/karaoke-session-system/internal/middleware"
	"github.com/karaoke-session-system/internal/queue"
	"github.com/karaoke-session-system/internal/session"
	"github.com/karaoke-session-system/pkg/events"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

const (
	TypeChange     = "change"
	TypeRoster     = "roster"
	TypeQueue      = "queue"
	TypeUserOnline = "user_online"
	TypeUserLeft   = "user_offline"
)

// Message is the envelope for everything pushed to clients.
type Message struct {
	Type   string                    `json:"type"`
	Event  *events.ChangeEvent       `json:"event,omitempty"`
	Roster []models.User             `json:"roster,omitempty"`
	Queue  []models.QueueItemDetails `json:"queue,omitempty"`
	UserID string                    `json:"user_id,omitempty"`
}

type RosterWatcher interface {
	RequireMember(ctx context.Context, sessionID, userID uuid.UUID) error
	Watch(ctx context.Context, feed events.Subscriber, sessionID uuid.UUID) (*session.RosterView, error)
}

type QueueWatcher interface {
	Watch(ctx context.Context, feed events.Subscriber, sessionID uuid.UUID) (*queue.QueueView, error)
}

type client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan Message
}

type Handler struct {
	// Map of sessionID -> set of connected clients
	sessions map[uuid.UUID]map[*client]struct{}
	mu       sync.RWMutex

	feed     events.Subscriber
	roster   RosterWatcher
	queue    QueueWatcher
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHandler(feed events.Subscriber, roster RosterWatcher, queue QueueWatcher, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Handler{
		sessions: make(map[uuid.UUID]map[*client]struct{}),
		feed:     feed,
		roster:   roster,
		queue:    queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID, ok := middleware.UUIDParam(c, "sessionId")
	if !ok {
		return
	}
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	if err := h.roster.RequireMember(c.Request.Context(), sessionID, userID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("failed to upgrade connection: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	roster, err := h.roster.Watch(ctx, h.feed, sessionID)
	if err != nil {
		h.log.Errorf("ws %s: failed to load roster: %v", sessionID, err)
		conn.Close()
		return
	}
	queueView, err := h.queue.Watch(ctx, h.feed, sessionID)
	if err != nil {
		h.log.Errorf("ws %s: failed to load queue: %v", sessionID, err)
		conn.Close()
		return
	}
	changes, unsubscribe := h.feed.OnChange("", events.ForSession(sessionID))
	defer unsubscribe()

	cl := &client{userID: userID, conn: conn, send: make(chan Message, sendBuffer)}
	cl.send <- Message{Type: TypeRoster, Roster: roster.Snapshot()}
	cl.send <- Message{Type: TypeQueue, Queue: queueView.Snapshot()}
	h.addConnection(sessionID, cl)
	defer h.removeConnection(sessionID, cl)

	go h.writePump(ctx, cl, changes, roster, queueView)
	h.readPump(cl)
}

// readPump keeps the connection alive and returns once the client goes
// away. Clients do not send commands over the socket; mutations go through
// the HTTP API.
func (h *Handler) readPump(cl *client) {
	cl.conn.SetReadLimit(4096)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warnf("websocket error: %v", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, cl *client, changes <-chan events.ChangeEvent, roster *session.RosterView, q *queue.QueueView) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	rosterUpdates := roster.Updates()
	queueUpdates := q.Updates()

	for {
		var msg Message
		select {
		case <-ctx.Done():
			return
		case m := <-cl.send:
			msg = m
		case event, ok := <-changes:
			if !ok {
				return
			}
			msg = Message{Type: TypeChange, Event: &event}
		case users, ok := <-rosterUpdates:
			if !ok {
				rosterUpdates = nil
				continue
			}
			msg = Message{Type: TypeRoster, Roster: users}
		case items, ok := <-queueUpdates:
			if !ok {
				queueUpdates = nil
				continue
			}
			msg = Message{Type: TypeQueue, Queue: items}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.conn.Close()
				return
			}
			continue
		}

		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteJSON(msg); err != nil {
			h.log.Warnf("failed to send message: %v", err)
			cl.conn.Close()
			return
		}
	}
}

func (h *Handler) addConnection(sessionID uuid.UUID, cl *client) {
	h.mu.Lock()
	if _, exists := h.sessions[sessionID]; !exists {
		h.sessions[sessionID] = make(map[*client]struct{})
	}
	h.sessions[sessionID][cl] = struct{}{}
	h.mu.Unlock()

	// Notify others that a user is online
	h.broadcast(sessionID, Message{Type: TypeUserOnline, UserID: cl.userID.String()}, cl)
}

func (h *Handler) removeConnection(sessionID uuid.UUID, cl *client) {
	h.mu.Lock()
	if clients, exists := h.sessions[sessionID]; exists {
		delete(clients, cl)
		if len(clients) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()
	cl.conn.Close()

	h.broadcast(sessionID, Message{Type: TypeUserLeft, UserID: cl.userID.String()}, nil)
}

// broadcast queues msg for every client of the session except skip. Clients
// with a full buffer miss the message.
func (h *Handler) broadcast(sessionID uuid.UUID, msg Message, skip *client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for cl := range h.sessions[sessionID] {
		if cl == skip {
			continue
		}
		select {
		case cl.send <- msg:
		default:
			h.log.Warnf("dropping %s message for a slow client", msg.Type)
		}
	}
}

// Online returns the users with an open connection to the session.
func (h *Handler) Online(sessionID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var users []uuid.UUID
	for cl := range h.sessions[sessionID] {
		if !seen[cl.userID] {
			seen[cl.userID] = true
			users = append(users, cl.userID)
		}
	}
	return users
}

func (h *Handler) HandleOnline(c *gin.Context) {
	sessionID, ok := middleware.UUIDParam(c, "sessionId")
	if !ok {
		return
	}
	online := h.Online(sessionID)
	if online == nil {
		online = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, gin.H{"online": online})
}
