package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"optionsagent/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 本服务只在内网/本机使用，不校验 Origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// AlertHub 把扫描产生的告警实时推给所有 websocket 订阅者。
// 写失败即断开，慢消费者不会阻塞广播。
// gorilla 不允许并发写同一连接，每个连接配一把独立写锁。
type AlertHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
}

func NewAlertHub() *AlertHub {
	return &AlertHub{conns: make(map[*websocket.Conn]*sync.Mutex)}
}

// Serve 升级连接并保持到对端关闭。入站消息全部丢弃。
func (h *AlertHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.conns[conn] = &sync.Mutex{}
	n := len(h.conns)
	h.mu.Unlock()
	logger.Infof("[ws] subscriber connected (%d active)", n)

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast 把 payload 编码成 JSON 推给全部连接。
func (h *AlertHub) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("[ws] marshal broadcast: %v", err)
		return
	}
	type subscriber struct {
		conn *websocket.Conn
		wmu  *sync.Mutex
	}
	h.mu.Lock()
	subs := make([]subscriber, 0, len(h.conns))
	for c, wmu := range h.conns {
		subs = append(subs, subscriber{conn: c, wmu: wmu})
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.wmu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := s.conn.WriteMessage(websocket.TextMessage, data)
		s.wmu.Unlock()
		if err != nil {
			h.drop(s.conn)
		}
	}
}

// Subscribers 当前连接数。
func (h *AlertHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *AlertHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
