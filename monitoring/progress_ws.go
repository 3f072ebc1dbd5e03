package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	EvaluationProgress MessageType = "evaluation_progress"
	ModelResult        MessageType = "model_result"
	RunComplete        MessageType = "run_complete"
	DatasetReload      MessageType = "dataset_reload"
	CategoryDrift      MessageType = "category_drift"
	Heartbeat          MessageType = "heartbeat"
)

// Message 监控消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// Client WebSocket客户端
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// WebSocketHub WebSocket中心
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
}

// ProgressMonitor 评估进度监控器
type ProgressMonitor struct {
	hub     *WebSocketHub
	mu      sync.RWMutex
	running bool
	stats   *MonitorStats
}

// MonitorStats 监控统计
type MonitorStats struct {
	ConnectedClients int64     `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	StartTime        time.Time `json:"start_time"`
	LastMessageTime  time.Time `json:"last_message_time"`
}

// NewWebSocketHub 创建WebSocket中心
func NewWebSocketHub() *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动WebSocket中心
func (h *WebSocketHub) Start() {
	defer func() {
		log.Printf("WebSocket hub stopped")
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client connected: %s (total: %d)", client.clientID, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client disconnected: %s (total: %d)", client.clientID, len(h.clients))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止WebSocket中心
func (h *WebSocketHub) Stop() {
	h.cancel()
}

// HandleWebSocket 处理WebSocket连接
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: generateClientID(),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

// Broadcast 广播消息
func (h *WebSocketHub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Printf("WebSocket broadcast queue is full, dropping message")
	}
}

// writePump WebSocket写入泵
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵
func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// NewProgressMonitor 创建进度监控器
func NewProgressMonitor() *ProgressMonitor {
	return &ProgressMonitor{
		hub: NewWebSocketHub(),
		stats: &MonitorStats{
			StartTime: time.Now(),
		},
	}
}

// Start 启动监控器
func (m *ProgressMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}

	go m.hub.Start()

	m.running = true
	m.stats.StartTime = time.Now()

	log.Printf("Progress monitor started")
	return nil
}

// Stop 停止监控器
func (m *ProgressMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return fmt.Errorf("monitor is not running")
	}

	m.running = false
	m.hub.Stop()

	log.Printf("Progress monitor stopped")
	return nil
}

// SendProgress 发送评估进度
func (m *ProgressMonitor) SendProgress(progress ProgressMessage) error {
	return m.send(EvaluationProgress, progress)
}

// SendModelResult 发送单个模型的评估结果
func (m *ProgressMonitor) SendModelResult(result ModelResultMessage) error {
	return m.send(ModelResult, result)
}

// SendRunComplete 发送整轮比较完成事件
func (m *ProgressMonitor) SendRunComplete(summary RunCompleteMessage) error {
	return m.send(RunComplete, summary)
}

// SendDatasetReload 发送数据集重载事件
func (m *ProgressMonitor) SendDatasetReload(reload DatasetReloadMessage) error {
	return m.send(DatasetReload, reload)
}

// SendCategoryDrift 发送类别漂移告警
func (m *ProgressMonitor) SendCategoryDrift(drift CategoryDriftMessage) error {
	return m.send(CategoryDrift, drift)
}

// SendHeartbeat 发送心跳
func (m *ProgressMonitor) SendHeartbeat() error {
	return m.send(Heartbeat, HeartbeatMessage{
		Timestamp: time.Now(),
		Status:    "alive",
	})
}

func (m *ProgressMonitor) send(msgType MessageType, payload interface{}) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()

	if !running {
		return fmt.Errorf("monitor is not running")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %v", msgType, err)
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
		ID:        generateMessageID(),
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %v", err)
	}

	m.hub.Broadcast(messageBytes)
	m.updateStats()
	return nil
}

// GetStats 获取监控统计
func (m *ProgressMonitor) GetStats() *MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := *m.stats
	m.hub.mu.RLock()
	stats.ConnectedClients = int64(len(m.hub.clients))
	m.hub.mu.RUnlock()

	return &stats
}

// GetWebSocketHub 获取WebSocket中心
func (m *ProgressMonitor) GetWebSocketHub() *WebSocketHub {
	return m.hub
}

func (m *ProgressMonitor) updateStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.MessagesSent++
	m.stats.LastMessageTime = time.Now()
}

// 消息结构体定义

// ProgressMessage 评估进度消息
type ProgressMessage struct {
	Model        string  `json:"model"`
	CurrentModel int     `json:"current_model"`
	TotalModels  int     `json:"total_models"`
	FoldsDone    int     `json:"folds_done"`
	FoldsTotal   int     `json:"folds_total"`
	Percent      float64 `json:"percent"`
}

// ModelResultMessage 模型评估结果消息
type ModelResultMessage struct {
	Model        string        `json:"model"`
	MeanRMSE     float64       `json:"mean_rmse"`
	MeanRSquared float64       `json:"mean_r_squared"`
	Duration     time.Duration `json:"duration"`
}

// RunCompleteMessage 比较完成消息
type RunCompleteMessage struct {
	BestModel string        `json:"best_model"`
	BestRMSE  float64       `json:"best_rmse"`
	Models    int           `json:"models"`
	Rows      int           `json:"rows"`
	Duration  time.Duration `json:"duration"`
}

// DatasetReloadMessage 数据集重载消息
type DatasetReloadMessage struct {
	Path      string    `json:"path"`
	Incidents int       `json:"incidents"`
	Timestamp time.Time `json:"timestamp"`
}

// CategoryDriftMessage 类别漂移消息
type CategoryDriftMessage struct {
	Expected []string `json:"expected"`
	Observed []string `json:"observed"`
}

// HeartbeatMessage 心跳消息
type HeartbeatMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// 工具函数

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
