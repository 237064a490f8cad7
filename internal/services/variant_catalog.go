// internal/services/variant_catalog.go
package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/DocDeck/internal/models"
)

//go:embed variants.yaml
var builtinVariants []byte

// VariantCatalog 配置界面变体目录
type VariantCatalog struct {
	variants map[models.DocType]models.ScreenVariant
	order    []models.DocType
}

type variantFile struct {
	Variants []models.ScreenVariant `yaml:"variants"`
}

// LoadVariantCatalog 读取变体目录，path 为空时使用内置目录
func LoadVariantCatalog(path string) (*VariantCatalog, error) {
	if path == "" {
		return ParseVariantCatalog(builtinVariants)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取变体文件失败: %w", err)
	}
	return ParseVariantCatalog(data)
}

// ParseVariantCatalog 解析并校验 YAML 变体目录
func ParseVariantCatalog(data []byte) (*VariantCatalog, error) {
	var file variantFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析变体文件失败: %w", err)
	}
	if len(file.Variants) == 0 {
		return nil, fmt.Errorf("变体文件中没有任何变体")
	}

	catalog := &VariantCatalog{
		variants: make(map[models.DocType]models.ScreenVariant, len(file.Variants)),
	}

	for _, v := range file.Variants {
		kind, err := models.ParseDocType(string(v.Kind))
		if err != nil {
			return nil, err
		}
		v.Kind = kind

		if _, dup := catalog.variants[kind]; dup {
			return nil, fmt.Errorf("变体重复: %s", kind)
		}
		if err := checkDefaults(kind, v.Defaults); err != nil {
			return nil, err
		}
		if v.Defaults == nil {
			v.Defaults = models.SectionList{}
		}

		catalog.variants[kind] = v
		catalog.order = append(catalog.order, kind)
	}

	return catalog, nil
}

// 默认章节的 ID 必须为正且唯一，标题不能为空
func checkDefaults(kind models.DocType, defaults models.SectionList) error {
	seen := make(map[int]bool, len(defaults))
	for _, s := range defaults {
		if s.ID <= 0 {
			return fmt.Errorf("变体 %s 的默认章节ID必须为正数: %d", kind, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("变体 %s 的默认章节ID重复: %d", kind, s.ID)
		}
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("变体 %s 的默认章节 %d 缺少标题", kind, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Get 返回变体副本
func (c *VariantCatalog) Get(kind models.DocType) (models.ScreenVariant, bool) {
	v, ok := c.variants[kind]
	if !ok {
		return models.ScreenVariant{}, false
	}
	v.Defaults = v.Defaults.Clone()
	return v, true
}

// List 按文件中的顺序返回全部变体
func (c *VariantCatalog) List() []models.ScreenVariant {
	result := make([]models.ScreenVariant, 0, len(c.order))
	for _, kind := range c.order {
		v, _ := c.Get(kind)
		result = append(result, v)
	}
	return result
}
