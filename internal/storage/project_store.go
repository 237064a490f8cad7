// internal/storage/project_store.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corphon/DocDeck/internal/models"
)

// ErrProjectNotFound 项目不存在
var ErrProjectNotFound = errors.New("项目不存在")

// ProjectStore 按用户隔离的项目文档存储
// Update 只整字段覆盖 topic/sections/status/last_modified。
type ProjectStore interface {
	Get(ctx context.Context, userID, projectID string) (*models.Project, error)
	Update(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error
	Create(ctx context.Context, project *models.Project) error
	List(ctx context.Context, userID string) ([]*models.Project, error)
	Delete(ctx context.Context, userID, projectID string) error
	Driver() string
	Close() error
}

// Options 存储打开参数
type Options struct {
	Driver     string
	DataDir    string
	SQLitePath string
}

// Open 按驱动名创建存储
func Open(ctx context.Context, opts Options) (ProjectStore, error) {
	switch opts.Driver {
	case "", DriverFile:
		return NewFileProjectStore(opts.DataDir)
	case DriverSQLite:
		return NewSQLiteProjectStore(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", opts.Driver)
	}
}

func validateKeys(userID, projectID string) error {
	if userID == "" {
		return fmt.Errorf("用户ID不能为空")
	}
	if projectID == "" {
		return fmt.Errorf("项目ID不能为空")
	}
	return nil
}
