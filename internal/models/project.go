// internal/models/project.go
package models

import (
	"fmt"
	"time"
)

// ProjectStatus 项目工作流状态
type ProjectStatus string

const (
	StatusDraft      ProjectStatus = "draft"
	StatusConfigured ProjectStatus = "configured"
	StatusGenerating ProjectStatus = "generating"
	StatusCompleted  ProjectStatus = "completed"
)

// DocType 项目输出文档类型
type DocType string

const (
	DocTypePresentation DocType = "presentation" // pptx
	DocTypeDocument     DocType = "document"     // docx
)

// ParseDocType 解析文档类型，兼容 pptx/docx 写法
func ParseDocType(s string) (DocType, error) {
	switch s {
	case "presentation", "pptx", "slides":
		return DocTypePresentation, nil
	case "document", "docx", "doc":
		return DocTypeDocument, nil
	default:
		return "", fmt.Errorf("不支持的文档类型: %q", s)
	}
}

// Project 用户的一个文档项目
type Project struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Name         string        `json:"name"`
	DocType      DocType       `json:"doc_type"`
	Topic        string        `json:"topic"`
	Sections     SectionList   `json:"sections"`
	Status       ProjectStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	LastModified time.Time     `json:"last_modified"`
}

// ProjectUpdate 配置界面确认后写回的字段（整字段覆盖）
type ProjectUpdate struct {
	Topic        string        `json:"topic"`
	Sections     SectionList   `json:"sections"`
	Status       ProjectStatus `json:"status"`
	LastModified time.Time     `json:"last_modified"`
}

// Apply 将更新写入项目
func (u ProjectUpdate) Apply(p *Project) {
	p.Topic = u.Topic
	p.Sections = u.Sections.Clone()
	p.Status = u.Status
	p.LastModified = u.LastModified
}

// ProjectMetadata 用于项目列表
type ProjectMetadata struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	DocType      DocType       `json:"doc_type"`
	Status       ProjectStatus `json:"status"`
	SectionCount int           `json:"section_count"`
	LastModified time.Time     `json:"last_modified"`
}

// Metadata 返回项目摘要
func (p *Project) Metadata() ProjectMetadata {
	return ProjectMetadata{
		ID:           p.ID,
		Name:         p.Name,
		DocType:      p.DocType,
		Status:       p.Status,
		SectionCount: len(p.Sections),
		LastModified: p.LastModified,
	}
}
