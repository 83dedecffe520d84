package events

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cron-counter/server/internal/runs"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Hub 把每次运行记录广播给所有已连接的观察者。
// 观察者只读；发送缓冲写满的观察者会被断开，不阻塞发布方。
type Hub struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	logger   *zap.SugaredLogger
}

type watcher struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (w *watcher) close() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		watchers: make(map[*watcher]struct{}),
		logger:   logger,
	}
}

// Len 返回当前连接的观察者数量。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Serve 注册连接并阻塞到连接关闭。
func (h *Hub) Serve(conn *websocket.Conn) {
	w := &watcher{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.watchers[w] = struct{}{}
	total := len(h.watchers)
	h.mu.Unlock()
	h.logger.Infow("watcher connected", "remote", conn.RemoteAddr().String(), "watchers", total)

	defer func() {
		h.remove(w)
		w.close()
		h.logger.Infow("watcher disconnected", "remote", conn.RemoteAddr().String())
	}()

	// 观察者不发业务消息，读循环只用来感知关闭与处理控制帧。
	go func() {
		defer w.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-w.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debugw("write to watcher failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Publish 广播一条记录。
func (h *Hub) Publish(rec *runs.Record) {
	msg, err := json.Marshal(rec)
	if err != nil {
		h.logger.Errorw("marshal run record", "error", err)
		return
	}

	h.mu.Lock()
	var slow []*watcher
	for w := range h.watchers {
		select {
		case w.send <- msg:
		default:
			slow = append(slow, w)
		}
	}
	for _, w := range slow {
		delete(h.watchers, w)
	}
	h.mu.Unlock()

	for _, w := range slow {
		h.logger.Warnw("dropping slow watcher", "remote", w.conn.RemoteAddr().String())
		w.close()
	}
}

// Close 断开所有观察者。
func (h *Hub) Close() {
	h.mu.Lock()
	ws := make([]*watcher, 0, len(h.watchers))
	for w := range h.watchers {
		ws = append(ws, w)
	}
	h.watchers = make(map[*watcher]struct{})
	h.mu.Unlock()

	for _, w := range ws {
		w.close()
	}
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	delete(h.watchers, w)
	h.mu.Unlock()
}
