// internal/storage/sqlite_project_store.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/utils"

	_ "modernc.org/sqlite"
)

// DriverSQLite SQLite 存储驱动名
const DriverSQLite = "sqlite"

// SQLiteProjectStore 使用单表 projects 保存项目，sections 以 JSON 文本存储
type SQLiteProjectStore struct {
	db *sql.DB
}

// NewSQLiteProjectStore 打开数据库并执行迁移
// path 为 ":memory:" 时使用内存数据库。
func NewSQLiteProjectStore(ctx context.Context, path string) (*SQLiteProjectStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 单连接写入；内存库也必须只用一个连接，否则每个连接各自一份数据
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			closeQuietly(db)
			return nil, fmt.Errorf("设置 %s 失败: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("执行迁移失败: %w", err)
	}

	return &SQLiteProjectStore{db: db}, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		utils.GetLogger().Error("关闭数据库失败", map[string]interface{}{"error": err.Error()})
	}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			doc_type TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			sections TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_modified TEXT NOT NULL,
			PRIMARY KEY (user_id, id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_projects_user_modified
		ON projects(user_id, last_modified)
	`)
	return err
}

func (s *SQLiteProjectStore) Driver() string { return DriverSQLite }

const projectColumns = `id, user_id, name, doc_type, topic, sections, status, created_at, last_modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p                       models.Project
		docType, status         string
		sections                string
		createdAt, lastModified string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &docType, &p.Topic, &sections, &status, &createdAt, &lastModified); err != nil {
		return nil, err
	}

	p.DocType = models.DocType(docType)
	p.Status = models.ProjectStatus(status)

	if err := json.Unmarshal([]byte(sections), &p.Sections); err != nil {
		return nil, fmt.Errorf("解析章节失败: %w", err)
	}
	if p.Sections == nil {
		p.Sections = models.SectionList{}
	}

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("解析创建时间失败: %w", err)
	}
	if p.LastModified, err = time.Parse(time.RFC3339Nano, lastModified); err != nil {
		return nil, fmt.Errorf("解析修改时间失败: %w", err)
	}

	return &p, nil
}

func encodeSections(sections models.SectionList) (string, error) {
	if sections == nil {
		sections = models.SectionList{}
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("序列化章节失败: %w", err)
	}
	return string(data), nil
}

// 固定宽度的时间格式，保证按文本排序与按时间排序一致
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *SQLiteProjectStore) Get(ctx context.Context, userID, projectID string) (*models.Project, error) {
	if err := validateKeys(userID, projectID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? AND id = ?`,
		userID, projectID)

	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取项目失败: %w", err)
	}
	return project, nil
}

func (s *SQLiteProjectStore) Update(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error {
	if err := validateKeys(userID, projectID); err != nil {
		return err
	}

	sections, err := encodeSections(update.Sections)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET topic = ?, sections = ?, status = ?, last_modified = ?
		WHERE user_id = ? AND id = ?`,
		update.Topic, sections, string(update.Status), formatTime(update.LastModified),
		userID, projectID)
	if err != nil {
		return fmt.Errorf("写入项目失败: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("写入项目失败: %w", err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (s *SQLiteProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project == nil {
		return fmt.Errorf("项目不能为空")
	}
	if err := validateKeys(project.UserID, project.ID); err != nil {
		return err
	}

	sections, err := encodeSections(project.Sections)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.UserID, project.Name, string(project.DocType), project.Topic,
		sections, string(project.Status), formatTime(project.CreatedAt), formatTime(project.LastModified))
	if err != nil {
		return fmt.Errorf("创建项目失败: %w", err)
	}
	return nil
}

// List 按最后修改时间倒序返回用户的全部项目
func (s *SQLiteProjectStore) List(ctx context.Context, userID string) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY last_modified DESC, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}

	return projects, nil
}

func (s *SQLiteProjectStore) Delete(ctx context.Context, userID, projectID string) error {
	if err := validateKeys(userID, projectID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE user_id = ? AND id = ?`, userID, projectID)
	if err != nil {
		return fmt.Errorf("删除项目失败: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (s *SQLiteProjectStore) Close() error {
	return s.db.Close()
}
