package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/session"
	"github.com/medlens/rxchat/backend/pkg/utils"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 54 * time.Second
	writeTimeout        = 10 * time.Second
	queueSize           = 8
)

// Handler WebSocket 聊天处理器，每条入站消息对应一次模型回复
type Handler struct {
	svc          *pipeline.Service
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	pingInterval time.Duration
	logger       zerolog.Logger
}

// Option 配置 Handler
type Option func(*Handler)

// WithKeepAlive 设置读超时和 ping 间隔，pingInterval 应小于 readTimeout
func WithKeepAlive(readTimeout, pingInterval time.Duration) Option {
	return func(h *Handler) {
		h.readTimeout = readTimeout
		h.pingInterval = pingInterval
	}
}

// New 创建WebSocket处理器
func New(svc *pipeline.Service, opts ...Option) *Handler {
	h := &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultPingInterval,
		logger:       logging.Component("http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn 串行化写操作，gorilla 连接不支持并发写
type conn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.svc.Session(r.Context(), sessionID)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("websocket upgrade failed")
		return
	}
	c := &conn{Conn: raw}
	defer c.Close()

	h.logger.Info().Str("sessionId", sessionID).Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	jobs := make(chan inboundMessage, queueSize)
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()

	_ = c.SetReadDeadline(time.Now().Add(h.readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	_ = c.send(outgoingMessage{Type: "connected", SessionID: sessionID})

	// Model calls run on the worker so the read loop keeps answering pongs
	// while a reply is pending.
	go func() {
		defer close(done)
		if h.work(ctx, c, sess, jobs) {
			_ = c.Close()
		}
	}()
	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := c.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("websocket read failed")
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(h.readTimeout))

		switch msg.Type {
		case "message", "close":
			select {
			case jobs <- msg:
			default:
				_ = c.send(outgoingMessage{Type: "error", SessionID: sessionID, Error: "too many pending messages", Kind: utils.KindBadRequest})
			}
		case "ping":
			_ = c.send(outgoingMessage{Type: "pong", SessionID: sessionID})
		default:
			_ = c.send(outgoingMessage{Type: "error", SessionID: sessionID, Error: "unknown message type", Kind: utils.KindBadRequest})
		}
	}
}

// work 按顺序处理排队的消息，收到 close 并成功关闭会话后返回 true
func (h *Handler) work(ctx context.Context, c *conn, sess *session.Session, jobs <-chan inboundMessage) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg := <-jobs:
			if msg.Type == "message" {
				h.handleMessage(ctx, c, sess, msg.Content)
				continue
			}
			if err := h.svc.CloseSession(ctx, sess); err != nil {
				h.sendError(c, sess.ID, err)
				continue
			}
			_ = c.send(outgoingMessage{Type: "closed", SessionID: sess.ID})
			return true
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, sess *session.Session, content string) {
	var (
		reply string
		err   error
	)
	if h.svc.StreamingEnabled() {
		reply, err = h.svc.StreamMessage(ctx, sess, content, func(delta string) {
			_ = c.send(outgoingMessage{Type: "delta", SessionID: sess.ID, Content: delta})
		})
	} else {
		reply, err = h.svc.SendMessage(ctx, sess, content)
	}
	if err != nil {
		h.sendError(c, sess.ID, err)
		return
	}
	_ = c.send(outgoingMessage{Type: "reply", SessionID: sess.ID, Content: reply})
}

func (h *Handler) sendError(c *conn, sessionID string, err error) {
	_, kind := utils.Classify(err)
	if werr := c.send(outgoingMessage{Type: "error", SessionID: sessionID, Error: err.Error(), Kind: kind}); werr != nil {
		h.logger.Debug().Err(werr).Msg("websocket write error failed")
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
