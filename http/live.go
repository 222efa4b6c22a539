package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartfail/apperr"
	"heartfail/logger"
	"heartfail/ml"
	"heartfail/monitoring"
	"heartfail/report"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 30 * time.Second
	liveMaxMessage = 16 << 10
)

// liveRequest is one form change. The report is always returned, the
// classification only when Classify is set, like pressing the button.
type liveRequest struct {
	Classify     bool            `json:"classify"`
	Measurements json.RawMessage `json:"measurements"`
}

type liveMessage struct {
	Type         string           `json:"type"`
	Report       *report.Report   `json:"report,omitempty"`
	Result       *predictResponse `json:"result,omitempty"`
	Error        *apperr.AppError `json:"error,omitempty"`
	ModelVersion string           `json:"model_version,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

type liveClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *liveClient) close() {
	c.once.Do(func() { close(c.done) })
}

// queue hands a message to the write pump unless the client is gone.
func (c *liveClient) queue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

// LiveHub tracks connected live-form clients and fans out model reload notices.
type LiveHub struct {
	clients    map[*liveClient]bool
	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewLiveHub() *LiveHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &LiveHub{
		clients:    make(map[*liveClient]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *LiveHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.WebSocketClients.Inc()
			logger.Log.Debug("live client connected", zap.String("client", client.id), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				monitoring.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					logger.Log.Warn("live client too slow, dropping message", zap.String("client", client.id))
				}
			}
			h.mu.RUnlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
				monitoring.WebSocketClients.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *LiveHub) Stop() {
	h.cancel()
}

func (h *LiveHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyModel tells every connected client that a new model is serving.
func (h *LiveHub) NotifyModel(model *ml.Model) {
	msg := liveMessage{Type: "model_reloaded", Timestamp: time.Now().UTC()}
	if model != nil {
		msg.ModelVersion = model.Version
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logger.Log.Warn("live broadcast queue is full, dropping model notice")
	}
}

func RegisterLiveHandlers(mux *http.ServeMux, hub *LiveHub) {
	depsMu.Lock()
	liveHub = hub
	depsMu.Unlock()
	if hub == nil {
		return
	}
	handle(mux, http.MethodGet, "/ws/classify", hub.HandleWebSocket)
}

func (h *LiveHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithRequestID(GetRequestID(r.Context())).Info("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &liveClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Log.Debug("live write failed", zap.String("client", c.id), zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *liveClient) readPump(h *LiveHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.close()
	}()

	c.conn.SetReadLimit(liveMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Info("live client read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		payload, err := json.Marshal(c.answer(h.ctx, data))
		if err != nil {
			logger.Log.Warn("encoding live message", zap.Error(err))
			continue
		}
		if !c.queue(payload) {
			return
		}
	}
}

func (c *liveClient) answer(ctx context.Context, data []byte) liveMessage {
	msg := liveMessage{Type: "update", Timestamp: time.Now().UTC()}

	var req liveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		msg.Error = apperr.BadRequest("invalid message", err)
		return msg
	}
	m := ml.DefaultMeasurements()
	if len(req.Measurements) > 0 {
		decoded, err := decodeMeasurements(bytes.NewReader(req.Measurements))
		if err != nil {
			msg.Error = apperr.From(err)
			return msg
		}
		m = decoded
	}

	svc, err := currentClassifier()
	if err != nil {
		msg.Error = apperr.From(err)
		return msg
	}
	rep, err := svc.Report(m)
	if err != nil {
		msg.Error = apperr.From(err)
		return msg
	}
	msg.Report = &rep

	if req.Classify {
		result, err := svc.Classify(ctx, m)
		if err != nil {
			msg.Error = apperr.From(err)
			return msg
		}
		resp := newPredictResponse(result)
		msg.Result = &resp
	}
	return msg
}
