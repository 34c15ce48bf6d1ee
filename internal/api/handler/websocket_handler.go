package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parking_garage/internal/api/middleware"
	"parking_garage/internal/domain"
	"parking_garage/internal/logger"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn   *websocket.Conn
	userID int
	staff  bool
}

// outbound addresses one user, or every staff connection when userID is 0.
type outbound struct {
	userID  int
	payload []byte
}

func (c *wsClient) wants(msg outbound) bool {
	if msg.userID == 0 {
		return c.staff
	}
	return c.userID == msg.userID
}

// WebSocketManager fans gate events out to operator dashboards and
// notifications out to their user.
type WebSocketManager struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan outbound
	done       chan struct{}
	mutex      sync.RWMutex
	log        *logger.Logger
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		log:        logger.Named("websocket"),
	}
}

// Start runs the hub until ctx is cancelled, then closes every connection.
func (wsm *WebSocketManager) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(wsm.done)
			wsm.mutex.Lock()
			for client := range wsm.clients {
				client.conn.Close()
				delete(wsm.clients, client)
			}
			wsm.mutex.Unlock()
			return

		case client := <-wsm.register:
			wsm.mutex.Lock()
			wsm.clients[client] = true
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Info("client connected", zap.Int("user_id", client.userID), zap.Int("total", total))

		case client := <-wsm.unregister:
			wsm.mutex.Lock()
			if _, ok := wsm.clients[client]; ok {
				delete(wsm.clients, client)
				client.conn.Close()
			}
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Info("client disconnected", zap.Int("user_id", client.userID), zap.Int("total", total))

		case msg := <-wsm.broadcast:
			wsm.mutex.Lock()
			for client := range wsm.clients {
				if !client.wants(msg) {
					continue
				}
				_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					wsm.log.Warn("write failed, dropping client", zap.Int("user_id", client.userID), zap.Error(err))
					client.conn.Close()
					delete(wsm.clients, client)
				}
			}
			wsm.mutex.Unlock()
		}
	}
}

func (wsm *WebSocketManager) ClientCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.clients)
}

// BroadcastGateEvent pushes a detection outcome to every staff connection.
func (wsm *WebSocketManager) BroadcastGateEvent(event domain.GateEventNotification) {
	wsm.send(0, event)
}

// SendToUser pushes a notification to the connections of one user.
func (wsm *WebSocketManager) SendToUser(userID int, event domain.UserNotificationEvent) {
	if userID <= 0 {
		return
	}
	wsm.send(userID, event)
}

func (wsm *WebSocketManager) send(userID int, event any) {
	message, err := json.Marshal(event)
	if err != nil {
		wsm.log.Error("could not marshal push event", zap.Error(err))
		return
	}
	select {
	case wsm.broadcast <- outbound{userID: userID, payload: message}:
	default:
		wsm.log.Warn("broadcast channel is full, dropping message", zap.Int("user_id", userID))
	}
}

type WebSocketHandler struct {
	wsManager *WebSocketManager
	tokens    middleware.TokenValidator
}

func NewWebSocketHandler(wsManager *WebSocketManager, tokens middleware.TokenValidator) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager, tokens: tokens}
}

// GET /ws?token=<jwt>. Browsers cannot set headers on upgrade requests, so the
// token may come from the query string.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader(middleware.AuthorizationHeaderKey), middleware.AuthorizationTypeBearer))
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.wsManager.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{
		conn:   conn,
		userID: claims.UserID,
		staff:  domain.Actor{UserID: claims.UserID, Role: claims.Role}.IsStaff(),
	}
	select {
	case h.wsManager.register <- client:
	case <-h.wsManager.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.wsManager.unregister <- client:
			case <-h.wsManager.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.wsManager.log.Warn("read failed", zap.Error(err))
				}
				return
			}
		}
	}()
}
