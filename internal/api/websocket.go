// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/DocDeck/internal/navigation"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsSendBuffer   = 64
)

// 会话通道上的控制消息类型，其余类型按界面意图处理
const (
	MessagePing     = "ping"
	MessageState    = "state"
	MessageValidate = "validate"
	MessageConfirm  = "confirm"
	MessageCancel   = "cancel"
)

// 服务端下发的消息类型
const (
	FrameState    = "state"
	FrameError    = "error"
	FrameRedirect = "redirect"
	FrameValid    = "valid"
	FramePong     = "pong"
)

// ServerMessage 服务端下发的帧
type ServerMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Redirect  string      `json:"redirect,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 一个配置会话上的连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	userID    string
	send      chan []byte // nil 表示写完之前的消息后关闭
	closed    int32
	closing   int32
	done      chan struct{}
	lastPing  int64 // UnixNano
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, sessionID, userID string) *WebSocketClient {
	now := time.Now()
	return &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		userID:    userID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		lastPing:  now.UnixNano(),
		createdAt: now,
	}
}

// Close 关闭连接，可重复调用
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	atomic.StoreInt64(&client.lastPing, time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	last := time.Unix(0, atomic.LoadInt64(&client.lastPing))
	return time.Since(last) > timeout
}

// enqueue 非阻塞投递，队列已满返回 false
func (client *WebSocketClient) enqueue(message []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// closeAfterFlush 写协程发完队列中的消息后关闭连接
func (client *WebSocketClient) closeAfterFlush() {
	if !atomic.CompareAndSwapInt32(&client.closing, 0, 1) {
		return
	}
	if !client.enqueue(nil) {
		client.Close()
	}
}

func (client *WebSocketClient) isClosing() bool {
	return atomic.LoadInt32(&client.closing) == 1
}

// SendMessage 发送单条消息到客户端
func (client *WebSocketClient) SendMessage(message ServerMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		utils.GetLogger().Error("序列化 WebSocket 消息失败", map[string]interface{}{"error": err.Error()})
		return
	}
	if !client.enqueue(data) {
		utils.GetLogger().Warn("客户端消息队列已满，消息被丢弃", map[string]interface{}{
			"session_id": client.sessionID,
			"user_id":    client.userID,
		})
	}
}

// SendError 发送错误帧
func (client *WebSocketClient) SendError(err error) {
	_, apiError := errorToAPI(err)
	apiError.Message = sanitizeErrorMessage(apiError.Message)
	client.SendMessage(ServerMessage{Type: FrameError, Error: apiError, Redirect: apiError.Redirect})
}

// WebSocketManager 按配置会话管理 WebSocket 连接
type WebSocketManager struct {
	sessions *services.SessionService

	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
	register    chan *WebSocketClient
	unregister  chan *WebSocketClient
	mutex       sync.RWMutex

	pingTimeout     time.Duration
	cleanupInterval time.Duration

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}

	logger *utils.Logger
}

// NewWebSocketManager 创建连接管理器，调用 Start 之后开始工作
func NewWebSocketManager(sessions *services.SessionService) *WebSocketManager {
	return &WebSocketManager{
		sessions:        sessions,
		connections:     make(map[string]map[*WebSocketClient]struct{}),
		register:        make(chan *WebSocketClient, 256),
		unregister:      make(chan *WebSocketClient, 256),
		pingTimeout:     90 * time.Second,
		cleanupInterval: 30 * time.Second,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
		logger:          utils.GetLogger(),
	}
}

// Start 启动管理器主循环
func (manager *WebSocketManager) Start() {
	manager.startOnce.Do(func() {
		manager.started.Store(true)
		go manager.run()
	})
}

// Stop 关闭所有连接并退出主循环
func (manager *WebSocketManager) Stop() {
	manager.stopOnce.Do(func() {
		close(manager.stopChan)
	})
	if manager.started.Load() {
		<-manager.doneChan
		return
	}
	manager.shutdown()
}

func (manager *WebSocketManager) run() {
	defer close(manager.doneChan)

	ticker := time.NewTicker(manager.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.unregisterClient(client)

		case <-ticker.C:
			manager.cleanupExpiredConnections()

		case <-manager.stopChan:
			manager.shutdown()
			return
		}
	}
}

func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.sessionID][client] = struct{}{}

	manager.logger.Info("WebSocket 客户端已连接", map[string]interface{}{
		"session_id": client.sessionID,
		"user_id":    client.userID,
	})
}

func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	manager.mutex.Lock()
	manager.removeLocked(client)
	manager.mutex.Unlock()

	if !client.isClosing() {
		client.Close()
	}

	manager.logger.Info("WebSocket 客户端已断开", map[string]interface{}{
		"session_id": client.sessionID,
		"user_id":    client.userID,
	})
}

func (manager *WebSocketManager) removeLocked(client *WebSocketClient) {
	if clients, exists := manager.connections[client.sessionID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}
}

// cleanupExpiredConnections 清理超时连接，会话已关闭的连接收到跳转后断开
func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.RLock()
	sessionIDs := make([]string, 0, len(manager.connections))
	for sessionID := range manager.connections {
		sessionIDs = append(sessionIDs, sessionID)
	}
	manager.mutex.RUnlock()

	for _, sessionID := range sessionIDs {
		if !manager.sessions.Exists(sessionID) {
			manager.CloseSession(sessionID, navigation.DashboardRoute)
		}
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for sessionID, clients := range manager.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(clients, client)
				client.Close()
			}
		}
		if len(clients) == 0 {
			delete(manager.connections, sessionID)
		}
	}
}

func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for _, clients := range manager.connections {
		for client := range clients {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})

	manager.logger.Info("WebSocket 管理器已关闭", nil)
}

func (manager *WebSocketManager) clientsOf(sessionID string) []*WebSocketClient {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	clients := make([]*WebSocketClient, 0, len(manager.connections[sessionID]))
	for client := range manager.connections[sessionID] {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	return clients
}

// broadcast 向会话内全部连接投递，队列满的连接直接断开
func (manager *WebSocketManager) broadcast(sessionID string, message ServerMessage) {
	clients := manager.clientsOf(sessionID)
	if len(clients) == 0 {
		return
	}

	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		manager.logger.Error("序列化广播消息失败", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, client := range clients {
		if !client.enqueue(data) {
			client.Close()
		}
	}
}

// BroadcastState 把最新界面状态推送给会话内的全部连接
func (manager *WebSocketManager) BroadcastState(sessionID string, state services.ScreenState) {
	manager.broadcast(sessionID, ServerMessage{Type: FrameState, Data: state})
}

// CloseSession 通知会话内全部连接跳转，然后断开
func (manager *WebSocketManager) CloseSession(sessionID, route string) {
	manager.broadcast(sessionID, ServerMessage{Type: FrameRedirect, Redirect: route})

	manager.mutex.Lock()
	clients := manager.connections[sessionID]
	delete(manager.connections, sessionID)
	manager.mutex.Unlock()

	for client := range clients {
		client.closeAfterFlush()
	}
}

// ConnectionCount 会话上的连接数
func (manager *WebSocketManager) ConnectionCount(sessionID string) int {
	return len(manager.clientsOf(sessionID))
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	sessions := make(map[string]interface{}, len(manager.connections))
	total := 0
	for sessionID, clients := range manager.connections {
		users := make([]map[string]interface{}, 0, len(clients))
		for client := range clients {
			if client.IsClosed() {
				continue
			}
			users = append(users, map[string]interface{}{
				"user_id":      client.userID,
				"connected_at": client.createdAt.Format(time.RFC3339),
			})
		}
		sessions[sessionID] = map[string]interface{}{
			"client_count": len(users),
			"users":        users,
		}
		total += len(users)
	}

	return map[string]interface{}{
		"total_sessions":    len(manager.connections),
		"total_connections": total,
		"sessions":          sessions,
	}
}

// ServeSession 把请求升级为会话的 WebSocket 通道
func (manager *WebSocketManager) ServeSession(c *gin.Context) {
	userID, _ := GetUserFromContext(c)
	sessionID := c.Param("sid")

	session, err := manager.sessions.Get(userID, sessionID)
	if err != nil {
		NewResponseHelper().NotFound(c, "会话", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		manager.logger.Warn("WebSocket 升级失败", map[string]interface{}{"error": err.Error()})
		return
	}

	client := newWebSocketClient(conn, sessionID, userID)

	select {
	case manager.register <- client:
	case <-manager.stopChan:
		conn.Close()
		return
	}

	go manager.writePump(client)

	client.SendMessage(ServerMessage{Type: FrameState, Data: session.Screen.State()})

	manager.readPump(c.Request.Context(), client)
}

func (manager *WebSocketManager) readPump(ctx context.Context, client *WebSocketClient) {
	defer func() {
		select {
		case manager.unregister <- client:
		case <-manager.stopChan:
			client.Close()
		case <-time.After(time.Second):
			if !client.isClosing() {
				client.Close()
			}
		}
	}()

	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !client.IsClosed() {
				manager.logger.Warn("WebSocket 读取错误", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var intent services.Intent
		if err := json.Unmarshal(data, &intent); err != nil {
			client.SendMessage(ServerMessage{Type: FrameError, Error: &APIError{
				Code:    ErrorBadRequest,
				Message: "消息格式错误",
			}})
			continue
		}

		if !manager.handleMessage(ctx, client, intent) {
			return
		}
	}
}

// handleMessage 处理一条消息，返回 false 表示连接应结束读取
func (manager *WebSocketManager) handleMessage(ctx context.Context, client *WebSocketClient, intent services.Intent) bool {
	if intent.Type == MessagePing {
		client.SendMessage(ServerMessage{Type: FramePong})
		return true
	}

	session, err := manager.sessions.Get(client.userID, client.sessionID)
	if err != nil {
		client.SendMessage(ServerMessage{Type: FrameRedirect, Redirect: navigation.DashboardRoute})
		client.closeAfterFlush()
		return false
	}

	switch intent.Type {
	case MessageState:
		client.SendMessage(ServerMessage{Type: FrameState, Data: session.Screen.State()})

	case MessageValidate:
		if err := session.Screen.Validate(); err != nil {
			client.SendError(err)
			return true
		}
		client.SendMessage(ServerMessage{Type: FrameValid, Data: map[string]bool{"valid": true}})

	case MessageConfirm:
		route, err := manager.sessions.Confirm(ctx, session)
		if err != nil {
			client.SendError(err)
			return true
		}
		manager.CloseSession(session.ID, route)
		return false

	case MessageCancel:
		route := manager.sessions.Cancel(session)
		manager.CloseSession(session.ID, route)
		return false

	default:
		if err := session.Screen.Apply(intent); err != nil {
			client.SendError(err)
			return true
		}
		manager.BroadcastState(session.ID, session.Screen.State())
	}

	return true
}

func (manager *WebSocketManager) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if message == nil {
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				manager.logger.Warn("WebSocket 写入失败", map[string]interface{}{"error": err.Error()})
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
