// internal/services/session_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/DocDeck/internal/editor"
	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/navigation"
	"github.com/Corphon/DocDeck/internal/utils"
)

// 会话关闭原因
const (
	CloseConfirmed = "confirmed"
	CloseCancelled = "cancelled"
	CloseExpired   = "expired"
)

// Session 服务端的一个配置界面实例
type Session struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Screen    *ConfigScreen `json:"-"`
	CreatedAt time.Time     `json:"created_at"`

	lastActive time.Time
}

// SessionService 管理打开中的配置会话
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session

	projects ProjectGateway
	catalog  *VariantCatalog
	ttl      time.Duration
	metrics  *utils.APIMetrics
	logger   *utils.Logger
	now      func() time.Time
	editor   []editor.Option

	stopOnce sync.Once
	stopChan chan struct{}
}

// SessionOption 配置 SessionService
type SessionOption func(*SessionService)

// WithSessionClock 替换会话与编辑模型使用的时钟
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		s.now = now
		s.editor = append(s.editor, editor.WithClock(now))
	}
}

// WithSessionMetrics 使用指定的指标记录器
func WithSessionMetrics(metrics *utils.APIMetrics) SessionOption {
	return func(s *SessionService) {
		s.metrics = metrics
	}
}

// NewSessionService 创建会话服务
func NewSessionService(projects ProjectGateway, catalog *VariantCatalog, ttl time.Duration, opts ...SessionOption) *SessionService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &SessionService{
		sessions: make(map[string]*Session),
		projects: projects,
		catalog:  catalog,
		ttl:      ttl,
		logger:   utils.GetLogger(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = utils.NewAPIMetrics()
	}
	return s
}

// Catalog 变体目录
func (s *SessionService) Catalog() *VariantCatalog {
	return s.catalog
}

// Open 为项目打开一个配置会话
// kind 为空时按项目自身的文档类型选择变体。
func (s *SessionService) Open(ctx context.Context, userID, projectID string, kind models.DocType) (*Session, error) {
	if kind == "" {
		project, err := s.projects.GetProject(ctx, userID, projectID)
		if err != nil {
			return nil, apperrors.NewLoadError("无法加载项目", err).WithRedirect(navigation.DashboardRoute)
		}
		kind = project.DocType
	}

	variant, ok := s.catalog.Get(kind)
	if !ok {
		return nil, apperrors.NewValidationError("不支持的界面类型: "+string(kind), nil)
	}

	screen := NewConfigScreen(userID, projectID, variant, s.projects, s.metrics, s.editor...)
	if err := screen.Open(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Screen:     screen,
		CreatedAt:  now,
		lastActive: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Info("配置会话已打开", map[string]interface{}{
		"session_id": session.ID,
		"user_id":    userID,
		"project_id": projectID,
		"kind":       kind,
	})

	return session, nil
}

// Get 返回用户自己的会话并刷新活跃时间
// 会话不存在、已过期或属于其他用户时都返回 NotFound。
func (s *SessionService) Get(userID, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, apperrors.NewNotFoundError("会话不存在或已过期", nil)
	}

	session.lastActive = s.now()
	return session, nil
}

// Exists 会话是否仍然打开，不刷新活跃时间
func (s *SessionService) Exists(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Close 关闭会话
func (s *SessionService) Close(sessionID, reason string) bool {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		s.metrics.SessionClosed(reason)
		s.logger.Info("配置会话已关闭", map[string]interface{}{
			"session_id": sessionID,
			"reason":     reason,
		})
	}
	return ok
}

// Confirm 确认会话；成功后会话关闭
func (s *SessionService) Confirm(ctx context.Context, session *Session) (string, error) {
	if !s.Exists(session.ID) {
		return "", apperrors.NewNotFoundError("会话不存在或已结束: "+session.ID, nil)
	}
	route, err := session.Screen.Confirm(ctx)
	if err != nil {
		return "", err
	}
	s.Close(session.ID, CloseConfirmed)
	return route, nil
}

// Cancel 取消会话
func (s *SessionService) Cancel(session *Session) string {
	route := session.Screen.Cancel()
	s.Close(session.ID, CloseCancelled)
	return route
}

// Count 当前会话数
func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartCleanup 定期清理空闲超时的会话
func (s *SessionService) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}

// Stop 停止后台清理
func (s *SessionService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// CleanupExpired 关闭空闲超过 TTL 的会话，保存中的会话不清理
func (s *SessionService) CleanupExpired() int {
	now := s.now()

	s.mu.Lock()
	expired := make([]string, 0)
	for id, session := range s.sessions {
		if now.Sub(session.lastActive) > s.ttl && !session.Screen.Saving() {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.Close(id, CloseExpired)
	}
	return len(expired)
}
