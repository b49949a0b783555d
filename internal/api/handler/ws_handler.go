package handler

import (
	"Folio/internal/api/dto"
	"Folio/internal/pkg/response"
	"Folio/internal/pkg/security"
	"Folio/internal/realtime"
	"Folio/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	notificationService service.NotificationService
	bus                 service.NotifyBus
	revoker             security.Revoker
}

func NewWsHandler(ns service.NotificationService, bus service.NotifyBus, revoker security.Revoker) *WsHandler {
	return &WsHandler{
		notificationService: ns,
		bus:                 bus,
		revoker:             revoker,
	}
}

// Connect 建立实时通道：下发待读通知，转发用户频道，接收已读回执
func (s *WsHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = security.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Response{Code: response.Unauthorized, Message: "Token 缺失"})
		return
	}
	claims, err := security.Authenticate(c.Request.Context(), token, s.revoker)
	if err != nil {
		log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Response{Code: response.Unauthorized, Message: "Token 无效或已过期"})
		return
	}
	userID := claims.UserID

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 先订阅再下发，避免两者之间的推送丢失
	frames, unsubscribe, err := s.bus.Subscribe(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "WS 订阅失败", "userID", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.Response{Code: response.InternalServerError, Message: "实时服务不可用"})
		return
	}
	defer func() {
		_ = unsubscribe()
	}()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(ctx, "WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	log.InfoContext(ctx, "用户 WS 连接已建立", "userID", userID)

	if err = s.sendPending(ctx, conn, userID); err != nil {
		log.ErrorContext(ctx, "WS 下发待读通知失败", "userID", userID, "err", err)
		return
	}

	stop := make(chan struct{})
	go s.readLoop(ctx, conn, userID, stop)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.ErrorContext(ctx, "WS 推送失败", "userID", userID, "err", err)
				return
			}
		case <-ticker.C:
			if err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			log.InfoContext(ctx, "用户 WS 连接已断开", "userID", userID)
			return
		}
	}
}

func (s *WsHandler) sendPending(ctx context.Context, conn *websocket.Conn, userID uint64) error {
	pending, err := s.notificationService.GetPending(ctx, userID)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(dto.WsEnvelope{Event: realtime.EventPendingNotifications, Data: pending})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop 处理客户端回执，连接断开时关闭 stop
func (s *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, userID uint64, stop chan<- struct{}) {
	defer close(stop)

	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env realtime.Envelope
		if err = json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			log.WarnContext(ctx, "WS 丢弃格式错误的消息", "userID", userID)
			continue
		}
		if err = s.handleAck(ctx, userID, env); err != nil {
			log.WarnContext(ctx, "WS 回执处理失败", "userID", userID, "event", env.Event, "err", err)
		}
	}
}

func (s *WsHandler) handleAck(ctx context.Context, userID uint64, env realtime.Envelope) error {
	switch env.Event {
	case realtime.EventAckMarkRead:
		var p realtime.ReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ID == "" {
			return service.ErrParamInvalid
		}
		return s.notificationService.MarkRead(ctx, userID, p.ID)
	case realtime.EventAckClearAll:
		return s.notificationService.MarkAllRead(ctx, userID)
	}
	log.DebugContext(ctx, "WS 忽略未知事件", "event", env.Event)
	return nil
}
