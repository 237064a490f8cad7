// internal/services/project_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/storage"
	"github.com/Corphon/DocDeck/internal/tracing"
	"github.com/Corphon/DocDeck/internal/utils"
)

// ProjectService 项目的增删查与配置保存
type ProjectService struct {
	store   storage.ProjectStore
	locks   *LockManager
	metrics *utils.APIMetrics
	logger  *utils.Logger
	now     func() time.Time
}

// NewProjectService 创建项目服务
func NewProjectService(store storage.ProjectStore, locks *LockManager, metrics *utils.APIMetrics) *ProjectService {
	if locks == nil {
		locks = NewLockManager()
	}
	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &ProjectService{
		store:   store,
		locks:   locks,
		metrics: metrics,
		logger:  utils.GetLogger(),
		now:     time.Now,
	}
}

// Driver 底层存储驱动名
func (s *ProjectService) Driver() string {
	return s.store.Driver()
}

func projectAttrs(userID, projectID string) oteltrace.SpanStartOption {
	return oteltrace.WithAttributes(
		attribute.String("docdeck.user_id", userID),
		attribute.String("docdeck.project_id", projectID),
	)
}

// CreateProject 创建草稿项目：空主题、无章节
func (s *ProjectService) CreateProject(ctx context.Context, userID, name string, docType models.DocType) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("项目名称不能为空", nil)
	}
	if docType != models.DocTypePresentation && docType != models.DocTypeDocument {
		return nil, apperrors.NewValidationError("不支持的文档类型: "+string(docType), nil)
	}

	projectID := uuid.NewString()
	ctx, span := tracing.Start(ctx, "project.create", projectAttrs(userID, projectID))
	defer span.End()

	now := s.now()
	project := &models.Project{
		ID:           projectID,
		UserID:       userID,
		Name:         name,
		DocType:      docType,
		Sections:     models.SectionList{},
		Status:       models.StatusDraft,
		CreatedAt:    now,
		LastModified: now,
	}

	if err := s.store.Create(ctx, project); err != nil {
		tracing.RecordError(span, err)
		return nil, apperrors.NewProcessingError("创建项目失败", err)
	}

	s.logger.Info("项目已创建", map[string]interface{}{
		"user_id":    userID,
		"project_id": projectID,
		"doc_type":   docType,
	})

	return project, nil
}

// GetProject 读取项目，不存在时返回 NotFound 错误
func (s *ProjectService) GetProject(ctx context.Context, userID, projectID string) (*models.Project, error) {
	ctx, span := tracing.Start(ctx, "project.get", projectAttrs(userID, projectID))
	defer span.End()

	project, err := s.store.Get(ctx, userID, projectID)
	if err != nil {
		tracing.RecordError(span, err)
		if errors.Is(err, storage.ErrProjectNotFound) {
			return nil, apperrors.NewNotFoundError("项目不存在: "+projectID, err)
		}
		return nil, apperrors.NewProcessingError("读取项目失败", err)
	}

	return project, nil
}

// ListProjects 返回用户项目摘要，最近修改的在前
func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]models.ProjectMetadata, error) {
	ctx, span := tracing.Start(ctx, "project.list", oteltrace.WithAttributes(attribute.String("docdeck.user_id", userID)))
	defer span.End()

	projects, err := s.store.List(ctx, userID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, apperrors.NewProcessingError("查询项目列表失败", err)
	}

	result := make([]models.ProjectMetadata, 0, len(projects))
	for _, p := range projects {
		result = append(result, p.Metadata())
	}
	span.SetAttributes(attribute.Int("docdeck.project_count", len(result)))

	return result, nil
}

// DeleteProject 删除项目
func (s *ProjectService) DeleteProject(ctx context.Context, userID, projectID string) error {
	ctx, span := tracing.Start(ctx, "project.delete", projectAttrs(userID, projectID))
	defer span.End()

	err := s.locks.ExecuteWithLock(ProjectLockKey(userID, projectID), func() error {
		return s.store.Delete(ctx, userID, projectID)
	})
	if err != nil {
		tracing.RecordError(span, err)
		if errors.Is(err, storage.ErrProjectNotFound) {
			return apperrors.NewNotFoundError("项目不存在: "+projectID, err)
		}
		return apperrors.NewProcessingError("删除项目失败", err)
	}

	s.logger.Info("项目已删除", map[string]interface{}{
		"user_id":    userID,
		"project_id": projectID,
	})
	return nil
}

// SaveConfiguration 整字段覆盖写入配置界面的结果
func (s *ProjectService) SaveConfiguration(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error {
	ctx, span := tracing.Start(ctx, "project.save_configuration", projectAttrs(userID, projectID))
	defer span.End()
	span.SetAttributes(attribute.Int("docdeck.section_count", len(update.Sections)))

	start := time.Now()
	err := s.locks.ExecuteWithLock(ProjectLockKey(userID, projectID), func() error {
		return s.store.Update(ctx, userID, projectID, update)
	})
	s.metrics.RecordSave(s.store.Driver(), err == nil, time.Since(start))

	if err != nil {
		tracing.RecordError(span, err)
		if errors.Is(err, storage.ErrProjectNotFound) {
			return apperrors.NewNotFoundError("项目不存在: "+projectID, err)
		}
		return apperrors.NewProcessingError("保存项目失败", err)
	}

	return nil
}
