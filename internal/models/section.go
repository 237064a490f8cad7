// internal/models/section.go
package models

// Section 表示一个有序的内容单元（幻灯片或文档章节）
type Section struct {
	ID      int    `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"` // 由后续生成步骤填充
}

// SectionList 有序的章节列表，顺序即输出顺序
type SectionList []Section

// Clone 返回列表的独立副本
func (l SectionList) Clone() SectionList {
	if l == nil {
		return SectionList{}
	}
	out := make(SectionList, len(l))
	copy(out, l)
	return out
}

// IndexOf 返回指定ID所在位置，不存在时返回 -1
func (l SectionList) IndexOf(id int) int {
	for i, s := range l {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// MaxID 返回列表中最大的ID，空列表返回 0
func (l SectionList) MaxID() int {
	maxID := 0
	for _, s := range l {
		if s.ID > maxID {
			maxID = s.ID
		}
	}
	return maxID
}
