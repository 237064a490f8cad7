// internal/editor/editor.go
package editor

import (
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/DocDeck/internal/models"
)

// ValidationKind 校验失败的类别
type ValidationKind string

const (
	EmptyTopic ValidationKind = "empty_topic"
	EmptyTitle ValidationKind = "empty_title"
	NoSections ValidationKind = "no_sections"
)

// ValidationError 提交前的本地校验错误，用户修改后即可恢复
type ValidationError struct {
	Kind      ValidationKind
	SectionID int // 仅 EmptyTitle 时有效
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case EmptyTopic:
		return "请输入主题"
	case EmptyTitle:
		return fmt.Sprintf("所有章节都必须填写标题 (章节 %d)", e.SectionID)
	case NoSections:
		return "请至少添加一个章节"
	default:
		return string(e.Kind)
	}
}

// Model 章节列表编辑模型
//
// Model 不做并发保护，由持有者保证串行访问。
type Model struct {
	topic    string
	sections models.SectionList
	nextID   int

	now func() time.Time
}

// Option 配置 Model
type Option func(*Model)

// WithClock 替换 Serialize 使用的时钟
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// New 创建空的编辑模型
func New(opts ...Option) *Model {
	m := &Model{
		sections: models.SectionList{},
		nextID:   1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize 在加载完成前设置默认章节
func (m *Model) Initialize(defaults models.SectionList) {
	m.replaceSections(defaults)
}

// Load 用已保存的项目数据覆盖模型
// 主题总是被覆盖；章节列表只有在传入非空时才替换，否则保留默认值。
func (m *Model) Load(topic string, sections models.SectionList) {
	m.topic = topic
	if len(sections) > 0 {
		m.replaceSections(sections)
	}
}

// replaceSections 装入章节列表；重复或非正的ID改用新分配的ID，其余保持不变
func (m *Model) replaceSections(sections models.SectionList) {
	m.sections = sections.Clone()
	if next := m.sections.MaxID() + 1; next > m.nextID {
		m.nextID = next
	}

	seen := make(map[int]struct{}, len(m.sections))
	for i := range m.sections {
		id := m.sections[i].ID
		if _, dup := seen[id]; dup || id <= 0 {
			id = m.nextID
			m.nextID++
			m.sections[i].ID = id
		}
		seen[id] = struct{}{}
	}
}

// Topic 返回当前主题
func (m *Model) Topic() string {
	return m.topic
}

// SetTopic 修改主题
func (m *Model) SetTopic(topic string) {
	m.topic = topic
}

// Sections 返回章节列表副本
func (m *Model) Sections() models.SectionList {
	return m.sections.Clone()
}

// Len 返回章节数量
func (m *Model) Len() int {
	return len(m.sections)
}

// Add 追加章节并分配新ID，调用方传入的ID会被忽略
func (m *Model) Add(section models.Section) models.Section {
	if next := m.sections.MaxID() + 1; next > m.nextID {
		m.nextID = next
	}
	section.ID = m.nextID
	m.nextID++
	m.sections = append(m.sections, section)
	return section
}

// Remove 删除指定章节
func (m *Model) Remove(id int) bool {
	idx := m.sections.IndexOf(id)
	if idx < 0 {
		return false
	}
	m.sections = append(m.sections[:idx], m.sections[idx+1:]...)
	return true
}

// Reorder 按给定ID顺序重排
// 未知或重复的ID被忽略，未列出的章节保持原有相对顺序排在后面。
func (m *Model) Reorder(order []int) {
	reordered := make(models.SectionList, 0, len(m.sections))
	used := make(map[int]bool, len(m.sections))

	for _, id := range order {
		if used[id] {
			continue
		}
		idx := m.sections.IndexOf(id)
		if idx < 0 {
			continue
		}
		used[id] = true
		reordered = append(reordered, m.sections[idx])
	}

	for _, s := range m.sections {
		if !used[s.ID] {
			reordered = append(reordered, s)
		}
	}

	m.sections = reordered
}

// Move 将章节移动到指定位置，越界位置会被截断到两端
func (m *Model) Move(id int, index int) bool {
	from := m.sections.IndexOf(id)
	if from < 0 {
		return false
	}
	if index < 0 {
		index = 0
	}
	if index >= len(m.sections) {
		index = len(m.sections) - 1
	}
	if from == index {
		return true
	}

	s := m.sections[from]
	m.sections = append(m.sections[:from], m.sections[from+1:]...)
	m.sections = append(m.sections[:index], append(models.SectionList{s}, m.sections[index:]...)...)
	return true
}

// UpdateTitle 修改章节标题
func (m *Model) UpdateTitle(id int, title string) bool {
	idx := m.sections.IndexOf(id)
	if idx < 0 {
		return false
	}
	m.sections[idx].Title = title
	return true
}

// UpdateContent 修改章节内容
func (m *Model) UpdateContent(id int, content string) bool {
	idx := m.sections.IndexOf(id)
	if idx < 0 {
		return false
	}
	m.sections[idx].Content = content
	return true
}

// Validate 按 主题 -> 标题 -> 章节数量 的顺序校验，只报告第一个失败项
func (m *Model) Validate() error {
	if strings.TrimSpace(m.topic) == "" {
		return &ValidationError{Kind: EmptyTopic}
	}
	for _, s := range m.sections {
		if strings.TrimSpace(s.Title) == "" {
			return &ValidationError{Kind: EmptyTitle, SectionID: s.ID}
		}
	}
	if len(m.sections) == 0 {
		return &ValidationError{Kind: NoSections}
	}
	return nil
}

// Serialize 生成写回存储的数据，不修改模型
func (m *Model) Serialize() models.ProjectUpdate {
	return models.ProjectUpdate{
		Topic:        m.topic,
		Sections:     m.sections.Clone(),
		Status:       models.StatusConfigured,
		LastModified: m.now(),
	}
}

// Snapshot 当前编辑状态
type Snapshot struct {
	Topic    string             `json:"topic"`
	Sections models.SectionList `json:"sections"`
}

// Snapshot 返回当前状态副本
func (m *Model) Snapshot() Snapshot {
	return Snapshot{
		Topic:    m.topic,
		Sections: m.sections.Clone(),
	}
}
