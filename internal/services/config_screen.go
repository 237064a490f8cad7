// internal/services/config_screen.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Corphon/DocDeck/internal/editor"
	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/navigation"
	"github.com/Corphon/DocDeck/internal/utils"
)

// ErrAlreadyConfirmed 配置已确认，界面不再接受保存
var ErrAlreadyConfirmed = apperrors.NewNotFoundError("配置已确认，会话已结束", nil)

// ErrSaveInProgress 上一次确认仍在保存中
var ErrSaveInProgress = errors.New("正在保存，请勿重复提交")

// ProjectGateway 配置界面需要的项目读写能力
type ProjectGateway interface {
	GetProject(ctx context.Context, userID, projectID string) (*models.Project, error)
	SaveConfiguration(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error
}

// 界面意图类型
const (
	IntentSetTopic      = "set_topic"
	IntentAdd           = "add"
	IntentRemove        = "remove"
	IntentReorder       = "reorder"
	IntentMove          = "move"
	IntentUpdateTitle   = "update_title"
	IntentUpdateContent = "update_content"
)

// Intent 来自界面组件的一次编辑操作
type Intent struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	SectionID int    `json:"section_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	Order     []int  `json:"order,omitempty"`
	Index     int    `json:"index,omitempty"`
}

// ScreenState 渲染配置界面所需的全部数据
type ScreenState struct {
	ProjectID    string             `json:"project_id"`
	ProjectName  string             `json:"project_name"`
	Kind         models.DocType     `json:"kind"`
	Title        string             `json:"title"`
	TopicLabel   string             `json:"topic_label"`
	SectionLabel string             `json:"section_label"`
	AddLabel     string             `json:"add_label"`
	ConfirmLabel string             `json:"confirm_label"`
	Topic        string             `json:"topic"`
	Sections     models.SectionList `json:"sections"`
	Saving       bool               `json:"saving"`
}

// ConfigScreen 一个项目的配置界面，持有一个章节编辑模型
//
// HTTP 与 WebSocket 请求可能并发到达，模型访问由 mu 串行化；
// 保存在锁外基于序列化后的快照进行。
type ConfigScreen struct {
	userID    string
	projectID string
	variant   models.ScreenVariant
	projects  ProjectGateway

	mu          sync.Mutex
	model       *editor.Model
	projectName string

	saving    atomic.Bool
	confirmed atomic.Bool

	metrics *utils.APIMetrics
	logger  *utils.Logger
}

// NewConfigScreen 创建配置界面，调用 Open 之后才可使用
func NewConfigScreen(userID, projectID string, variant models.ScreenVariant, projects ProjectGateway, metrics *utils.APIMetrics, opts ...editor.Option) *ConfigScreen {
	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &ConfigScreen{
		userID:    userID,
		projectID: projectID,
		variant:   variant,
		projects:  projects,
		model:     editor.New(opts...),
		metrics:   metrics,
		logger: utils.GetLogger().With(map[string]interface{}{
			"user_id":    userID,
			"project_id": projectID,
		}),
	}
}

// ProjectID 所属项目
func (s *ConfigScreen) ProjectID() string { return s.projectID }

// UserID 所属用户
func (s *ConfigScreen) UserID() string { return s.userID }

// Saving 是否有保存正在进行
func (s *ConfigScreen) Saving() bool { return s.saving.Load() }

// Variant 界面变体
func (s *ConfigScreen) Variant() models.ScreenVariant { return s.variant }

// Open 先装入变体默认章节，再用已保存的项目覆盖
// 项目不存在或读取失败时返回带仪表盘跳转的加载错误。
func (s *ConfigScreen) Open(ctx context.Context) error {
	s.mu.Lock()
	s.model.Initialize(s.variant.Defaults)
	s.mu.Unlock()

	project, err := s.projects.GetProject(ctx, s.userID, s.projectID)
	if err != nil {
		s.logger.Error("加载项目失败", map[string]interface{}{"error": err.Error()})
		s.metrics.RecordError("load_failed", "config_screen")
		return apperrors.NewLoadError("无法加载项目", err).WithRedirect(navigation.DashboardRoute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Load(project.Topic, project.Sections)
	s.projectName = project.Name

	return nil
}

// Confirm 校验并保存当前配置，成功时返回生成页路由
// 校验失败返回 *editor.ValidationError；保存失败返回保存错误且不改动内存状态。
func (s *ConfigScreen) Confirm(ctx context.Context) (string, error) {
	if !s.saving.CompareAndSwap(false, true) {
		return "", ErrSaveInProgress
	}
	defer s.saving.Store(false)

	if s.confirmed.Load() {
		return "", ErrAlreadyConfirmed
	}

	s.mu.Lock()
	err := s.model.Validate()
	var update models.ProjectUpdate
	if err == nil {
		update = s.model.Serialize()
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.RecordScreenAction(string(s.variant.Kind), "confirm_invalid")
		return "", err
	}

	if err := s.projects.SaveConfiguration(ctx, s.userID, s.projectID, update); err != nil {
		s.logger.Error("保存配置失败", map[string]interface{}{"error": err.Error()})
		s.metrics.RecordError("save_failed", "config_screen")
		return "", apperrors.NewSaveError("保存配置失败，请重试", err)
	}

	s.confirmed.Store(true)
	s.metrics.RecordScreenAction(string(s.variant.Kind), "confirm")
	s.logger.Info("配置已保存", map[string]interface{}{"sections": len(update.Sections)})

	return navigation.GenerateRoute(s.projectID), nil
}

// Cancel 放弃编辑，返回仪表盘路由
func (s *ConfigScreen) Cancel() string {
	s.metrics.RecordScreenAction(string(s.variant.Kind), "cancel")
	return navigation.DashboardRoute
}

// Validate 只校验不保存
func (s *ConfigScreen) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Validate()
}

// SetTopic 修改主题
func (s *ConfigScreen) SetTopic(topic string) {
	s.mu.Lock()
	s.model.SetTopic(topic)
	s.mu.Unlock()
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentSetTopic)
}

// AddSection 追加章节，返回分配了 ID 的章节
func (s *ConfigScreen) AddSection(title, content string) models.Section {
	s.mu.Lock()
	added := s.model.Add(models.Section{Title: title, Content: content})
	s.mu.Unlock()
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentAdd)
	return added
}

// RemoveSection 删除章节
func (s *ConfigScreen) RemoveSection(id int) error {
	s.mu.Lock()
	ok := s.model.Remove(id)
	s.mu.Unlock()
	if !ok {
		return sectionNotFound(id)
	}
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentRemove)
	return nil
}

// UpdateTitle 修改章节标题
func (s *ConfigScreen) UpdateTitle(id int, title string) error {
	s.mu.Lock()
	ok := s.model.UpdateTitle(id, title)
	s.mu.Unlock()
	if !ok {
		return sectionNotFound(id)
	}
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentUpdateTitle)
	return nil
}

// UpdateContent 修改章节内容
func (s *ConfigScreen) UpdateContent(id int, content string) error {
	s.mu.Lock()
	ok := s.model.UpdateContent(id, content)
	s.mu.Unlock()
	if !ok {
		return sectionNotFound(id)
	}
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentUpdateContent)
	return nil
}

// Reorder 按给定 ID 顺序重排
func (s *ConfigScreen) Reorder(order []int) {
	s.mu.Lock()
	s.model.Reorder(order)
	s.mu.Unlock()
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentReorder)
}

// Move 把章节移动到指定位置
func (s *ConfigScreen) Move(id, index int) error {
	s.mu.Lock()
	ok := s.model.Move(id, index)
	s.mu.Unlock()
	if !ok {
		return sectionNotFound(id)
	}
	s.metrics.RecordScreenAction(string(s.variant.Kind), IntentMove)
	return nil
}

// Apply 分派一条界面意图
func (s *ConfigScreen) Apply(intent Intent) error {
	switch intent.Type {
	case IntentSetTopic:
		s.SetTopic(intent.Topic)
		return nil
	case IntentAdd:
		s.AddSection(intent.Title, intent.Content)
		return nil
	case IntentRemove:
		return s.RemoveSection(intent.SectionID)
	case IntentReorder:
		s.Reorder(intent.Order)
		return nil
	case IntentMove:
		return s.Move(intent.SectionID, intent.Index)
	case IntentUpdateTitle:
		return s.UpdateTitle(intent.SectionID, intent.Title)
	case IntentUpdateContent:
		return s.UpdateContent(intent.SectionID, intent.Content)
	default:
		return apperrors.NewValidationError("未知的操作类型: "+intent.Type, nil)
	}
}

// State 当前界面状态
func (s *ConfigScreen) State() ScreenState {
	s.mu.Lock()
	snapshot := s.model.Snapshot()
	name := s.projectName
	s.mu.Unlock()

	return ScreenState{
		ProjectID:    s.projectID,
		ProjectName:  name,
		Kind:         s.variant.Kind,
		Title:        s.variant.Title,
		TopicLabel:   s.variant.TopicLabel,
		SectionLabel: s.variant.SectionLabel,
		AddLabel:     s.variant.AddLabel,
		ConfirmLabel: s.variant.ConfirmLabel,
		Topic:        snapshot.Topic,
		Sections:     snapshot.Sections,
		Saving:       s.saving.Load(),
	}
}

func sectionNotFound(id int) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %d", id), nil)
}
