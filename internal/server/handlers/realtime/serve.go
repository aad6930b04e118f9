package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/server/apimodel/request"
	"vendormonitor/pkg/errorx"
	"vendormonitor/pkg/logger"
)

// Serve 升级连接，等待会话注册后转发该会话的事件
// GET /ws
func (h *RealtimeHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf(c.Request.Context(), "[Realtime] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	// 1. 等待注册
	ctx := context.WithoutCancel(c.Request.Context())
	sessionID, err := h.register(ctx, conn)
	if err != nil {
		h.logger.Debugf(ctx, "[Realtime] Connection closed before registration: %v", err)
		return
	}
	ctx = logger.WithSessionID(ctx, sessionID)

	// 2. 订阅会话通道
	sub, err := h.hub.Subscribe(sessionID, h.cfg.BufferSize)
	if err != nil {
		_ = h.write(conn, h.message(EventError, sessionID, gin.H{"message": err.Error()}))
		return
	}
	if err := h.store.MarkConnected(ctx, sessionID); err != nil {
		_ = h.hub.Unsubscribe(sub.ID)
		_ = h.write(conn, h.message(EventError, sessionID, gin.H{"message": err.Error()}))
		return
	}
	if err := h.write(conn, h.message(EventRegistered, sessionID, gin.H{"session_id": sessionID})); err != nil {
		h.release(ctx, sub)
		return
	}
	h.logger.Infof(ctx, "[Realtime] Subscriber %s registered", sub.ID)

	// 3. 写协程负责推送与心跳，读循环负责保活与断开检测
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, sub, done)
	}()

	h.readLoop(ctx, conn, sessionID)
	close(done)
	wg.Wait()

	// 4. 断开
	h.release(ctx, sub)
	h.logger.Infof(ctx, "[Realtime] Subscriber %s disconnected", sub.ID)
}

// register 读取注册消息直到会话有效；无效时回复 session_error 并继续等待
func (h *RealtimeHandler) register(ctx context.Context, conn *websocket.Conn) (string, error) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(registerTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", err
		}

		var msg request.RegisterMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event != EventRegister {
			_ = h.write(conn, h.message(EventError, "", gin.H{"message": "expected register_session event"}))
			continue
		}
		id := msg.Data.SessionID
		if id == "" {
			_ = h.write(conn, h.message(EventError, "", gin.H{"message": "session_id is required"}))
			continue
		}

		if _, err := h.store.Touch(ctx, id); err != nil {
			text := err.Error()
			if errorx.IsSessionGone(err) {
				text = "session not found or expired, please upload the vendor list again"
			}
			_ = h.write(conn, h.message(EventError, id, gin.H{"message": text}))
			continue
		}
		return id, nil
	}
}

// readLoop 读到 pong 或任意消息都视为活跃；读失败即断开
func (h *RealtimeHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string) {
	pongWait := 2 * h.cfg.PingInterval
	alive := func() {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if _, err := h.store.Touch(ctx, sessionID); err != nil {
			h.logger.Debugf(ctx, "[Realtime] Keepalive touch failed: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		alive()
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debugf(ctx, "[Realtime] Read error: %v", err)
			}
			return
		}
		alive()
	}
}

// writeLoop 转发订阅消息并定时 ping；订阅被关闭时发送关闭帧
func (h *RealtimeHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			}
			if err := h.write(conn, msg); err != nil {
				h.logger.Debugf(ctx, "[Realtime] Write failed: %v", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// release 取消订阅并标记断开；会话已被关闭时忽略
func (h *RealtimeHandler) release(ctx context.Context, sub *broadcast.Subscription) {
	if err := h.hub.Unsubscribe(sub.ID); err != nil && !errors.Is(err, broadcast.ErrSubscriberNotFound) {
		h.logger.Warnf(ctx, "[Realtime] Unsubscribe failed: %v", err)
	}
	if err := h.store.MarkDisconnected(ctx, sub.SessionID); err != nil {
		h.logger.Debugf(ctx, "[Realtime] Mark disconnected skipped: %v", err)
	}
}

func (h *RealtimeHandler) write(conn *websocket.Conn, msg broadcast.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (h *RealtimeHandler) message(event, sessionID string, data interface{}) broadcast.Message {
	return broadcast.Message{Event: event, SessionID: sessionID, Data: data, Timestamp: time.Now()}
}
