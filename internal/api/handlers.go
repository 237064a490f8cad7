// internal/api/handlers.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	projects  *services.ProjectService
	sessions  *services.SessionService
	metrics   *utils.APIMetrics
	ws        *WebSocketManager
	response  *ResponseHelper
	startedAt time.Time
}

// NewHandler 创建API处理器
func NewHandler(projects *services.ProjectService, sessions *services.SessionService, metrics *utils.APIMetrics, ws *WebSocketManager) *Handler {
	return &Handler{
		projects:  projects,
		sessions:  sessions,
		metrics:   metrics,
		ws:        ws,
		response:  NewResponseHelper(),
		startedAt: time.Now(),
	}
}

// ------------------------------------------------
// 请求体

// CreateProjectRequest 创建项目
type CreateProjectRequest struct {
	Name    string `json:"name" binding:"required"`
	DocType string `json:"doc_type" binding:"required"`
}

// TopicRequest 修改主题
type TopicRequest struct {
	Topic string `json:"topic"`
}

// AddSectionRequest 添加章节
type AddSectionRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateSectionRequest 修改章节，未提供的字段保持不变
type UpdateSectionRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// ReorderRequest 重排章节
type ReorderRequest struct {
	Order []int `json:"order" binding:"required"`
}

// MoveRequest 移动单个章节
type MoveRequest struct {
	Index int `json:"index"`
}

// SessionResponse 打开会话的结果
type SessionResponse struct {
	SessionID string               `json:"session_id"`
	State     services.ScreenState `json:"state"`
}

// RouteResponse 客户端下一步跳转的路由
type RouteResponse struct {
	Redirect string `json:"redirect"`
}

// ------------------------------------------------
// 系统

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.response.Success(c, gin.H{
		"status":          "ok",
		"store_driver":    h.projects.Driver(),
		"active_sessions": h.sessions.Count(),
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
	})
}

// GetMetrics 返回进程内指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.response.Success(c, gin.H{
		"metrics":   h.metrics.Collector().GetMetrics(),
		"websocket": h.ws.GetStatus(),
	})
}

// ListVariants 返回可用的配置界面变体
func (h *Handler) ListVariants(c *gin.Context) {
	h.response.Success(c, h.sessions.Catalog().List())
}

// ------------------------------------------------
// 项目

// ListProjects 列出当前用户的项目
func (h *Handler) ListProjects(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	projects, err := h.projects.ListProjects(c.Request.Context(), userID)
	if err != nil {
		h.response.FromError(c, err)
		return
	}
	h.response.Success(c, projects)
}

// CreateProject 创建项目
func (h *Handler) CreateProject(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	docType, err := models.ParseDocType(req.DocType)
	if err != nil {
		h.response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projects.CreateProject(c.Request.Context(), userID, req.Name, docType)
	if err != nil {
		h.response.FromError(c, err)
		return
	}
	h.response.Created(c, project, "项目创建成功")
}

// GetProject 获取项目
func (h *Handler) GetProject(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	project, err := h.projects.GetProject(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.projectError(c, err)
		return
	}
	h.response.Success(c, project)
}

// DeleteProject 删除项目
func (h *Handler) DeleteProject(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	if err := h.projects.DeleteProject(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.projectError(c, err)
		return
	}
	h.response.Success(c, nil, "项目已删除")
}

func (h *Handler) projectError(c *gin.Context, err error) {
	if apperrors.IsNotFoundError(err) {
		h.response.NotFound(c, "项目", err.Error())
		return
	}
	h.response.FromError(c, err)
}

// ConfigureProject 为项目打开配置会话
func (h *Handler) ConfigureProject(c *gin.Context) {
	userID, _ := GetUserFromContext(c)

	var kind models.DocType
	if v := c.Query("variant"); v != "" {
		parsed, err := models.ParseDocType(v)
		if err != nil {
			h.response.Error(c, http.StatusBadRequest, ErrorUnknownVariant, err.Error())
			return
		}
		kind = parsed
	}

	session, err := h.sessions.Open(c.Request.Context(), userID, c.Param("id"), kind)
	if err != nil {
		h.response.FromError(c, err)
		return
	}

	h.response.Created(c, SessionResponse{
		SessionID: session.ID,
		State:     session.Screen.State(),
	}, "配置会话已打开")
}

// ------------------------------------------------
// 配置会话

// session 取出当前用户的会话，失败时已写出响应
func (h *Handler) session(c *gin.Context) (*services.Session, bool) {
	userID, _ := GetUserFromContext(c)

	session, err := h.sessions.Get(userID, c.Param("sid"))
	if err != nil {
		h.response.NotFound(c, "会话", err.Error())
		return nil, false
	}
	return session, true
}

func sectionIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("section_id"))
	if err != nil || id <= 0 {
		NewResponseHelper().BadRequest(c, "章节ID无效", c.Param("section_id"))
		return 0, false
	}
	return id, true
}

// 修改成功后返回最新状态并推送给同一会话的 WebSocket 连接
func (h *Handler) stateChanged(c *gin.Context, session *services.Session) {
	state := session.Screen.State()
	h.ws.BroadcastState(session.ID, state)
	h.response.Success(c, state)
}

func (h *Handler) sectionError(c *gin.Context, err error) {
	if apperrors.IsNotFoundError(err) {
		h.response.NotFound(c, "章节", err.Error())
		return
	}
	h.response.FromError(c, err)
}

// GetSession 返回会话状态
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.response.Success(c, session.Screen.State())
}

// SetTopic 修改主题
func (h *Handler) SetTopic(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req TopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	session.Screen.SetTopic(req.Topic)
	h.stateChanged(c, session)
}

// AddSection 添加章节
func (h *Handler) AddSection(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req AddSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	added := session.Screen.AddSection(req.Title, req.Content)
	state := session.Screen.State()
	h.ws.BroadcastState(session.ID, state)
	h.response.Created(c, gin.H{"section": added, "state": state}, "章节已添加")
}

// UpdateSection 修改章节标题或内容
func (h *Handler) UpdateSection(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	id, ok := sectionIDParam(c)
	if !ok {
		return
	}

	var req UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if req.Title == nil && req.Content == nil {
		h.response.BadRequest(c, "至少需要提供 title 或 content")
		return
	}

	if req.Title != nil {
		if err := session.Screen.UpdateTitle(id, *req.Title); err != nil {
			h.sectionError(c, err)
			return
		}
	}
	if req.Content != nil {
		if err := session.Screen.UpdateContent(id, *req.Content); err != nil {
			h.sectionError(c, err)
			return
		}
	}

	h.stateChanged(c, session)
}

// RemoveSection 删除章节
func (h *Handler) RemoveSection(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	id, ok := sectionIDParam(c)
	if !ok {
		return
	}

	if err := session.Screen.RemoveSection(id); err != nil {
		h.sectionError(c, err)
		return
	}
	h.stateChanged(c, session)
}

// ReorderSections 按ID顺序重排章节
func (h *Handler) ReorderSections(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	session.Screen.Reorder(req.Order)
	h.stateChanged(c, session)
}

// MoveSection 移动章节到指定位置
func (h *Handler) MoveSection(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	id, ok := sectionIDParam(c)
	if !ok {
		return
	}

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := session.Screen.Move(id, req.Index); err != nil {
		h.sectionError(c, err)
		return
	}
	h.stateChanged(c, session)
}

// ValidateSession 只校验不保存
func (h *Handler) ValidateSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.Screen.Validate(); err != nil {
		h.response.FromError(c, err)
		return
	}
	h.response.Success(c, gin.H{"valid": true})
}

// ConfirmSession 校验并保存，成功后返回生成页路由
func (h *Handler) ConfirmSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	route, err := h.sessions.Confirm(c.Request.Context(), session)
	if err != nil {
		h.response.FromError(c, err)
		return
	}

	h.ws.CloseSession(session.ID, route)
	h.response.Success(c, RouteResponse{Redirect: route}, "配置已保存")
}

// CancelSession 放弃编辑
func (h *Handler) CancelSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	route := h.sessions.Cancel(session)
	h.ws.CloseSession(session.ID, route)
	h.response.Success(c, RouteResponse{Redirect: route})
}
