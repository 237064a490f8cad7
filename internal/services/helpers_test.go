// internal/services/helpers_test.go
package services

import (
	"context"
	"io"
	"sync"
	"time"

	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/utils"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func quietMetrics() *utils.APIMetrics {
	return utils.NewAPIMetricsWith(utils.NewMetricsCollector(), utils.NewLogger(io.Discard))
}

// fakeGateway 内存中的项目读写，可注入错误和阻塞
type fakeGateway struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	getErr   error
	saveErr  error
	saves    []models.ProjectUpdate

	// 非空时 SaveConfiguration 先通知 entered 再等待 release
	entered chan struct{}
	release chan struct{}
}

func newFakeGateway(projects ...*models.Project) *fakeGateway {
	g := &fakeGateway{projects: make(map[string]*models.Project)}
	for _, p := range projects {
		g.projects[p.UserID+"/"+p.ID] = p
	}
	return g
}

func (g *fakeGateway) GetProject(ctx context.Context, userID, projectID string) (*models.Project, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	p, ok := g.projects[userID+"/"+projectID]
	if !ok {
		return nil, apperrors.NewNotFoundError("项目不存在: "+projectID, nil)
	}
	copied := *p
	copied.Sections = p.Sections.Clone()
	return &copied, nil
}

func (g *fakeGateway) SaveConfiguration(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error {
	if g.entered != nil {
		g.entered <- struct{}{}
		<-g.release
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.saves = append(g.saves, update)
	if p, ok := g.projects[userID+"/"+projectID]; ok {
		update.Apply(p)
	}
	return nil
}

func (g *fakeGateway) setSaveErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveErr = err
}

func (g *fakeGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saves)
}

func testProject(docType models.DocType, topic string, sections models.SectionList) *models.Project {
	return &models.Project{
		ID:           "p1",
		UserID:       "u1",
		Name:         "年度总结",
		DocType:      docType,
		Topic:        topic,
		Sections:     sections,
		Status:       models.StatusDraft,
		CreatedAt:    fixedNow.Add(-time.Hour),
		LastModified: fixedNow.Add(-time.Hour),
	}
}

func mustCatalog() *VariantCatalog {
	catalog, err := LoadVariantCatalog("")
	if err != nil {
		panic(err)
	}
	return catalog
}

func presentationVariant() models.ScreenVariant {
	v, _ := mustCatalog().Get(models.DocTypePresentation)
	return v
}
