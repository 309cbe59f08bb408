package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sheetflow/backend/internal/auth"
	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/storage"
	"go.uber.org/zap"
)

// WebSocket message types for the status feed
const (
	// Client -> Server messages
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePing        = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeStatus    = "status"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope of every message in both directions. ID is the
// file id for subscribe, unsubscribe, status and file errors.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorPayload is the payload of an error message.
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StatusSocket implements StatusSocketHandler. Each connection watches the
// files it subscribed to and gets a status message whenever one changes,
// until the file is terminal.
type StatusSocket struct {
	store    storage.Store
	upgrader websocket.Upgrader
	interval time.Duration
	log      *zap.Logger
}

// NewStatusSocket creates the status feed handler. interval is how often
// watched files are re-read. allowedOrigins lists the browser origins that
// may open the feed besides the server's own; "*" allows any.
func NewStatusSocket(store storage.Store, interval time.Duration, allowedOrigins []string, log *zap.Logger) StatusSocketHandler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &StatusSocket{
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		interval: interval,
		log:      log,
	}
}

// HandleWebSocket upgrades the connection and runs the feed until the
// client disconnects.
func (s *StatusSocket) HandleWebSocket(c echo.Context) error {
	userID := auth.UserID(c)
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := s.log.With(zap.String("user_id", userID))
	log.Debug("status feed connected")
	defer log.Debug("status feed disconnected")

	s.send(ws, WSMessage{Type: MsgTypeConnected})

	incoming := make(chan WSMessage)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)

	// Reader: the only goroutine calling ReadJSON. Writes stay on this one.
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("status feed read failed", zap.Error(err))
				}
				return
			}
			select {
			case incoming <- msg:
			case <-quit:
				return
			}
		}
	}()

	ctx := c.Request().Context()
	watched := make(map[string]models.FileStatusView)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil

		case msg := <-incoming:
			switch msg.Type {
			case MsgTypePing:
				s.send(ws, WSMessage{Type: MsgTypePong})
			case MsgTypeSubscribe:
				file, err := s.store.GetDataFile(ctx, msg.ID)
				if err != nil || file.UserID != userID {
					s.sendError(ws, msg.ID, "file not found", "NOT_FOUND")
					continue
				}
				view := file.StatusView()
				s.sendStatus(ws, file.ID, view)
				if !view.Status.IsTerminal() {
					watched[file.ID] = view
				}
			case MsgTypeUnsubscribe:
				delete(watched, msg.ID)
			default:
				s.sendError(ws, msg.ID, "unknown message type: "+msg.Type, "INVALID_TYPE")
			}

		case <-ticker.C:
			for id, last := range watched {
				file, err := s.store.GetDataFile(ctx, id)
				if err != nil {
					s.sendError(ws, id, "file not found", "NOT_FOUND")
					delete(watched, id)
					continue
				}
				view := file.StatusView()
				if !sameStatus(view, last) {
					s.sendStatus(ws, id, view)
				}
				if view.Status.IsTerminal() {
					delete(watched, id)
				} else {
					watched[id] = view
				}
			}
		}
	}
}

func (s *StatusSocket) sendStatus(ws *websocket.Conn, id string, view models.FileStatusView) {
	payload, _ := json.Marshal(view)
	s.send(ws, WSMessage{Type: MsgTypeStatus, ID: id, Payload: payload})
}

func (s *StatusSocket) sendError(ws *websocket.Conn, id, message, code string) {
	payload, _ := json.Marshal(WSErrorPayload{Message: message, Code: code})
	s.send(ws, WSMessage{Type: MsgTypeError, ID: id, Payload: payload})
}

func (s *StatusSocket) send(ws *websocket.Conn, msg WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	if err := ws.WriteJSON(msg); err != nil {
		s.log.Debug("status feed write failed", zap.Error(err))
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients), same-origin requests and the listed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get(echo.HeaderOrigin)
		if origin == "" {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func sameStatus(a, b models.FileStatusView) bool {
	if a.Status != b.Status || a.RecordCount != b.RecordCount {
		return false
	}
	if a.ErrorMessage == nil || b.ErrorMessage == nil {
		return a.ErrorMessage == b.ErrorMessage
	}
	return *a.ErrorMessage == *b.ErrorMessage
}
