// internal/storage/file_project_store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Corphon/DocDeck/internal/models"
)

// DriverFile JSON 文件存储驱动名
const DriverFile = "file"

// FileProjectStore 以 users/{userId}/projects/{projectId}.json 布局保存项目
type FileProjectStore struct {
	fs *FileStorage
}

// NewFileProjectStore 创建文件项目存储
func NewFileProjectStore(dataDir string) (*FileProjectStore, error) {
	fs, err := NewFileStorage(dataDir)
	if err != nil {
		return nil, err
	}
	return &FileProjectStore{fs: fs}, nil
}

func projectDir(userID string) string {
	return filepath.Join("users", userID, "projects")
}

func projectFile(projectID string) string {
	return projectID + ".json"
}

// 拒绝带路径分隔符的 ID，防止越出用户目录
func checkPathSafe(ids ...string) error {
	for _, id := range ids {
		if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
			return fmt.Errorf("非法ID: %q", id)
		}
	}
	return nil
}

func (s *FileProjectStore) Driver() string { return DriverFile }

func (s *FileProjectStore) Get(ctx context.Context, userID, projectID string) (*models.Project, error) {
	if err := validateKeys(userID, projectID); err != nil {
		return nil, err
	}
	if err := checkPathSafe(userID, projectID); err != nil {
		return nil, err
	}

	var project models.Project
	if err := s.fs.LoadJSONFile(projectDir(userID), projectFile(projectID), &project); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("读取项目失败: %w", err)
	}
	if project.Sections == nil {
		project.Sections = models.SectionList{}
	}

	return &project, nil
}

func (s *FileProjectStore) Update(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return err
	}

	update.Apply(project)

	if err := s.fs.SaveJSONFile(projectDir(userID), projectFile(projectID), project); err != nil {
		return fmt.Errorf("写入项目失败: %w", err)
	}
	return nil
}

func (s *FileProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project == nil {
		return fmt.Errorf("项目不能为空")
	}
	if err := validateKeys(project.UserID, project.ID); err != nil {
		return err
	}
	if err := checkPathSafe(project.UserID, project.ID); err != nil {
		return err
	}
	if s.fs.FileExists(projectDir(project.UserID), projectFile(project.ID)) {
		return fmt.Errorf("项目已存在: %s", project.ID)
	}

	return s.fs.SaveJSONFile(projectDir(project.UserID), projectFile(project.ID), project)
}

// List 按最后修改时间倒序返回用户的全部项目，损坏的文件会被跳过
func (s *FileProjectStore) List(ctx context.Context, userID string) ([]*models.Project, error) {
	if err := checkPathSafe(userID); err != nil {
		return nil, err
	}

	files, err := s.fs.ListFiles(projectDir(userID), ".json")
	if err != nil {
		return nil, err
	}

	projects := make([]*models.Project, 0, len(files))
	for _, name := range files {
		project, err := s.Get(ctx, userID, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		projects = append(projects, project)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].LastModified.After(projects[j].LastModified)
	})

	return projects, nil
}

func (s *FileProjectStore) Delete(ctx context.Context, userID, projectID string) error {
	if err := validateKeys(userID, projectID); err != nil {
		return err
	}
	if err := checkPathSafe(userID, projectID); err != nil {
		return err
	}

	if err := s.fs.DeleteFile(projectDir(userID), projectFile(projectID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

func (s *FileProjectStore) Close() error {
	return s.fs.Close()
}
