// internal/models/variant.go
package models

// ScreenVariant 配置界面的变体（演示文稿/文档），决定默认章节和界面文案
type ScreenVariant struct {
	Kind         DocType     `json:"kind" yaml:"kind"`
	Title        string      `json:"title" yaml:"title"`
	TopicLabel   string      `json:"topic_label" yaml:"topic_label"`
	SectionLabel string      `json:"section_label" yaml:"section_label"`
	AddLabel     string      `json:"add_label" yaml:"add_label"`
	ConfirmLabel string      `json:"confirm_label" yaml:"confirm_label"`
	Defaults     SectionList `json:"defaults" yaml:"defaults"`
}
