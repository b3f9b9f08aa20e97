package service

import (
	"encoding/json"
	"gamehub_backend/internal/model"
	"gamehub_backend/pkg/logger"
	"gamehub_backend/pkg/monitoring"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	streamSendSize = 64
)

// 上下行消息类型
const (
	WSTypeSnapshot = "SNAPSHOT"
	WSTypeUpload   = "UPLOAD"
	WSTypeRemove   = "REMOVE"
	WSTypeError    = "ERROR"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type streamRequest struct {
	Type   string `json:"type"`
	UnitID string `json:"unitId"`
}

// uploadStreamClient 一个 WebSocket 连接，推送所属 tracker 的上传事件
type uploadStreamClient struct {
	tracker *UploadTracker
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	userID  uint
	limiter *rate.Limiter
}

// queue 非阻塞入队，发送缓冲满时丢弃，客户端可发送 SNAPSHOT 重新同步
func (c *uploadStreamClient) queue(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
		monitoring.UploadStreamMessages.WithLabelValues(msg.Type, "out").Inc()
	default:
	}
}

func (c *uploadStreamClient) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("Upload stream unexpected close", zap.Error(err), zap.Uint("userId", c.userID))
			}
			return
		}

		// 每秒最多 5 条请求，允许突发 10 条
		if !c.limiter.Allow() {
			continue
		}

		var req streamRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Type {
		case WSTypeSnapshot:
			monitoring.UploadStreamMessages.WithLabelValues(req.Type, "in").Inc()
			c.queue(WSMessage{Type: WSTypeSnapshot, Data: c.tracker.List()})
		case WSTypeRemove:
			monitoring.UploadStreamMessages.WithLabelValues(req.Type, "in").Inc()
			if err := c.tracker.RemoveUpload(req.UnitID); err != nil {
				c.queue(WSMessage{Type: WSTypeError, Data: map[string]string{
					"unitId": req.UnitID,
					"error":  err.Error(),
				}})
			}
		}
	}
}

func (c *uploadStreamClient) write(payload []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// writePump 连接上唯一的写者
func (c *uploadStreamClient) writePump(events <-chan model.UploadEvent, unsubscribe func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		c.conn.Close()
		monitoring.UploadStreamClients.Dec()
	}()

	snapshot, err := json.Marshal(WSMessage{Type: WSTypeSnapshot, Data: c.tracker.List()})
	if err != nil || c.write(snapshot) != nil {
		return
	}
	monitoring.UploadStreamMessages.WithLabelValues(WSTypeSnapshot, "out").Inc()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// tracker 已关闭
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "upload session closed"))
				return
			}
			payload, err := json.Marshal(WSMessage{Type: WSTypeUpload, Data: ev})
			if err != nil {
				continue
			}
			if err := c.write(payload); err != nil {
				return
			}
			monitoring.UploadStreamMessages.WithLabelValues(WSTypeUpload, "out").Inc()
		case payload := <-c.send:
			if err := c.write(payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeUploadWs 升级连接后先推送一次快照，再持续推送上传事件
func ServeUploadWs(tracker *UploadTracker, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}

	events, unsubscribe := tracker.Subscribe()
	client := &uploadStreamClient{
		tracker: tracker,
		conn:    conn,
		send:    make(chan []byte, streamSendSize),
		done:    make(chan struct{}),
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	monitoring.UploadStreamClients.Inc()

	go client.writePump(events, unsubscribe)
	go client.readPump()
}
