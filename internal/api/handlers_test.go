// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DocDeck/internal/auth"
	"github.com/Corphon/DocDeck/internal/di"
	"github.com/Corphon/DocDeck/internal/models"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/storage"
	"github.com/Corphon/DocDeck/internal/utils"
)

// failingStore 可注入写入错误的存储
type failingStore struct {
	storage.ProjectStore

	mu        sync.Mutex
	updateErr error
}

func (s *failingStore) Update(ctx context.Context, userID, projectID string, update models.ProjectUpdate) error {
	s.mu.Lock()
	err := s.updateErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.ProjectStore.Update(ctx, userID, projectID, update)
}

func (s *failingStore) failUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

type testServer struct {
	router   *gin.Engine
	store    *failingStore
	projects *services.ProjectService
	sessions *services.SessionService
	ws       *WebSocketManager
	tokens   *auth.TokenConfig
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fileStore, err := storage.NewFileProjectStore(t.TempDir())
	require.NoError(t, err)
	store := &failingStore{ProjectStore: fileStore}

	metrics := utils.NewAPIMetricsWith(utils.NewMetricsCollector(), utils.NewLogger(io.Discard))
	locks := services.NewLockManager()
	projects := services.NewProjectService(store, locks, metrics)

	catalog, err := services.LoadVariantCatalog("")
	require.NoError(t, err)
	sessions := services.NewSessionService(projects, catalog, time.Hour, services.WithSessionMetrics(metrics))

	ws := NewWebSocketManager(sessions)
	ws.Start()

	tokens, err := auth.NewTokenConfig("test-secret", true, time.Hour)
	require.NoError(t, err)

	limiter := NewRateLimiter()

	container := di.NewContainer()
	container.Register("projects", projects)
	container.Register("sessions", sessions)
	container.Register("metrics", metrics)
	container.Register("websocket", ws)
	container.Register("tokens", tokens)
	container.Register("rate_limiter", limiter)

	router, err := SetupRouter(container)
	require.NoError(t, err)

	t.Cleanup(func() {
		ws.Stop()
		sessions.Stop()
		limiter.Stop()
		locks.Stop()
		store.Close()
	})

	return &testServer{
		router:   router,
		store:    store,
		projects: projects,
		sessions: sessions,
		ws:       ws,
		tokens:   tokens,
	}
}

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Message string          `json:"message"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, userID string) (int, testResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.GenerateToken(userID, s.tokens)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *testServer) createProject(t *testing.T, userID, name, docType string) models.Project {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{Name: name, DocType: docType}, userID)
	require.Equal(t, http.StatusCreated, code)
	return decode[models.Project](t, resp.Data)
}

func (s *testServer) openSession(t *testing.T, userID, projectID string) SessionResponse {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/projects/"+projectID+"/configure", nil, userID)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	return decode[SessionResponse](t, resp.Data)
}

func sectionTitles(sections models.SectionList) []string {
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	return titles
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, code)

	body := decode[map[string]interface{}](t, resp.Data)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, storage.DriverFile, body["store_driver"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"request_id":"req-42"`)
}

func TestListVariants(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/api/variants", nil, "")
	require.Equal(t, http.StatusOK, code)

	variants := decode[[]models.ScreenVariant](t, resp.Data)
	require.Len(t, variants, 2)
	assert.Equal(t, models.DocTypePresentation, variants[0].Kind)
	assert.Equal(t, models.DocTypeDocument, variants[1].Kind)
}

func TestProjectCRUD(t *testing.T) {
	s := newTestServer(t)

	project := s.createProject(t, "alice", "季度汇报", "pptx")
	assert.Equal(t, models.DocTypePresentation, project.DocType)
	assert.Equal(t, models.StatusDraft, project.Status)

	code, resp := s.do(t, http.MethodGet, "/api/projects/"+project.ID, nil, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "季度汇报", decode[models.Project](t, resp.Data).Name)

	code, resp = s.do(t, http.MethodGet, "/api/projects", nil, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.ProjectMetadata](t, resp.Data), 1)

	// 其他用户看不到
	code, resp = s.do(t, http.MethodGet, "/api/projects", nil, "bob")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]models.ProjectMetadata](t, resp.Data))

	code, _ = s.do(t, http.MethodDelete, "/api/projects/"+project.ID, nil, "alice")
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodGet, "/api/projects/"+project.ID, nil, "alice")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrorProjectNotFound, resp.Error.Code)
}

func TestCreateProjectRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{Name: "x", DocType: "xlsx"}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrorBadRequest, resp.Error.Code)

	code, resp = s.do(t, http.MethodPost, "/api/projects", map[string]string{"doc_type": "docx"}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrorBadRequest, resp.Error.Code)

	code, resp = s.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{Name: "   ", DocType: "docx"}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrorBadRequest, resp.Error.Code)
}

func TestConfigureEditAndConfirm(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "产品发布", "presentation")

	opened := s.openSession(t, "alice", project.ID)
	assert.Equal(t, "配置演示文稿", opened.State.Title)
	assert.Equal(t, []string{"Introduction", "Key Points", "Details", "Conclusion"}, sectionTitles(opened.State.Sections))

	base := "/api/sessions/" + opened.SessionID

	code, resp := s.do(t, http.MethodPut, base+"/topic", TopicRequest{Topic: "新产品发布会"}, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "新产品发布会", decode[services.ScreenState](t, resp.Data).Topic)

	code, resp = s.do(t, http.MethodPost, base+"/sections", AddSectionRequest{Title: "Q&A"}, "alice")
	require.Equal(t, http.StatusCreated, code)
	added := decode[struct {
		Section models.Section `json:"section"`
	}](t, resp.Data)
	assert.Equal(t, 5, added.Section.ID)

	title := "Agenda"
	code, _ = s.do(t, http.MethodPatch, base+"/sections/1", UpdateSectionRequest{Title: &title}, "alice")
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, base+"/sections/3", nil, "alice")
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPut, base+"/sections/order", ReorderRequest{Order: []int{5, 1, 2, 4}}, "alice")
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, base+"/sections/5/move", MoveRequest{Index: 3}, "alice")
	require.Equal(t, http.StatusOK, code)
	state := decode[services.ScreenState](t, resp.Data)
	assert.Equal(t, []string{"Agenda", "Key Points", "Conclusion", "Q&A"}, sectionTitles(state.Sections))

	code, _ = s.do(t, http.MethodPost, base+"/validate", nil, "alice")
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, base+"/confirm", nil, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/generate/"+project.ID, decode[RouteResponse](t, resp.Data).Redirect)

	saved, err := s.projects.GetProject(context.Background(), "alice", project.ID)
	require.NoError(t, err)
	assert.Equal(t, "新产品发布会", saved.Topic)
	assert.Equal(t, models.StatusConfigured, saved.Status)
	assert.Equal(t, []string{"Agenda", "Key Points", "Conclusion", "Q&A"}, sectionTitles(saved.Sections))

	// 确认后会话关闭
	code, resp = s.do(t, http.MethodGet, base, nil, "alice")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrorSessionNotFound, resp.Error.Code)
}

func TestReopenLoadsSavedConfiguration(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "年度报告", "document")

	opened := s.openSession(t, "alice", project.ID)
	assert.Equal(t, []string{"Introduction", "Main Content", "Conclusion"}, sectionTitles(opened.State.Sections))

	base := "/api/sessions/" + opened.SessionID
	s.do(t, http.MethodPut, base+"/topic", TopicRequest{Topic: "2025 年度回顾"}, "alice")
	s.do(t, http.MethodDelete, base+"/sections/2", nil, "alice")
	code, _ := s.do(t, http.MethodPost, base+"/confirm", nil, "alice")
	require.Equal(t, http.StatusOK, code)

	reopened := s.openSession(t, "alice", project.ID)
	assert.Equal(t, "2025 年度回顾", reopened.State.Topic)
	assert.Equal(t, []string{"Introduction", "Conclusion"}, sectionTitles(reopened.State.Sections))
}

func TestConfirmValidationFailures(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "", "草稿", "presentation")
	opened := s.openSession(t, "", project.ID)
	base := "/api/sessions/" + opened.SessionID

	code, resp := s.do(t, http.MethodPost, base+"/confirm", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, ErrorValidationFailed, resp.Error.Code)
	assert.Equal(t, "empty_topic", resp.Error.Kind)

	s.do(t, http.MethodPut, base+"/topic", TopicRequest{Topic: "主题"}, "")
	blank := "   "
	s.do(t, http.MethodPatch, base+"/sections/2", UpdateSectionRequest{Title: &blank}, "")

	code, resp = s.do(t, http.MethodPost, base+"/validate", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "empty_title", resp.Error.Kind)
	assert.Equal(t, 2, resp.Error.SectionID)

	// 校验失败不会写入存储
	saved, err := s.projects.GetProject(context.Background(), auth.GuestUserID, project.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.Topic)
	assert.Equal(t, models.StatusDraft, saved.Status)
}

func TestConfigureMissingProjectRedirectsToDashboard(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/projects/missing/configure",
		"/api/projects/missing/configure?variant=document",
	} {
		code, resp := s.do(t, http.MethodPost, path, nil, "alice")
		assert.Equal(t, http.StatusNotFound, code, path)
		require.NotNil(t, resp.Error, path)
		assert.Equal(t, ErrorProjectLoadFailed, resp.Error.Code, path)
		assert.Equal(t, "/dashboard", resp.Error.Redirect, path)
	}
}

func TestConfigureUnknownVariant(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "p", "docx")

	code, resp := s.do(t, http.MethodPost, "/api/projects/"+project.ID+"/configure?variant=spreadsheet", nil, "alice")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrorUnknownVariant, resp.Error.Code)
}

func TestConfirmSaveFailureIsRetryable(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "p", "presentation")
	opened := s.openSession(t, "alice", project.ID)
	base := "/api/sessions/" + opened.SessionID

	s.do(t, http.MethodPut, base+"/topic", TopicRequest{Topic: "主题"}, "alice")

	s.store.failUpdates(errors.New("disk full"))
	code, resp := s.do(t, http.MethodPost, base+"/confirm", nil, "alice")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, ErrorProjectSaveFailed, resp.Error.Code)
	assert.True(t, resp.Error.Retryable)

	// 编辑状态保留
	code, resp = s.do(t, http.MethodGet, base, nil, "alice")
	require.Equal(t, http.StatusOK, code)
	state := decode[services.ScreenState](t, resp.Data)
	assert.Equal(t, "主题", state.Topic)
	assert.Len(t, state.Sections, 4)
	assert.False(t, state.Saving)

	s.store.failUpdates(nil)
	code, _ = s.do(t, http.MethodPost, base+"/confirm", nil, "alice")
	assert.Equal(t, http.StatusOK, code)
}

func TestCancelReturnsToDashboard(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "p", "presentation")
	opened := s.openSession(t, "alice", project.ID)
	base := "/api/sessions/" + opened.SessionID

	s.do(t, http.MethodPut, base+"/topic", TopicRequest{Topic: "不会保存"}, "alice")

	code, resp := s.do(t, http.MethodPost, base+"/cancel", nil, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/dashboard", decode[RouteResponse](t, resp.Data).Redirect)
	assert.Equal(t, 0, s.sessions.Count())

	saved, err := s.projects.GetProject(context.Background(), "alice", project.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.Topic)
}

func TestSessionsAreScopedToUser(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "p", "presentation")
	opened := s.openSession(t, "alice", project.ID)

	code, resp := s.do(t, http.MethodGet, "/api/sessions/"+opened.SessionID, nil, "bob")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrorSessionNotFound, resp.Error.Code)

	// 访客也无法访问
	code, _ = s.do(t, http.MethodGet, "/api/sessions/"+opened.SessionID, nil, "")
	assert.Equal(t, http.StatusNotFound, code)

	// bob 打开 alice 的项目同样失败
	code, resp = s.do(t, http.MethodPost, "/api/projects/"+project.ID+"/configure", nil, "bob")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrorProjectLoadFailed, resp.Error.Code)
}

func TestSectionEditErrors(t *testing.T) {
	s := newTestServer(t)
	project := s.createProject(t, "alice", "p", "presentation")
	opened := s.openSession(t, "alice", project.ID)
	base := "/api/sessions/" + opened.SessionID

	code, resp := s.do(t, http.MethodPatch, base+"/sections/1", UpdateSectionRequest{}, "alice")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrorBadRequest, resp.Error.Code)

	content := "正文"
	code, resp = s.do(t, http.MethodPatch, base+"/sections/99", UpdateSectionRequest{Content: &content}, "alice")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrorSectionNotFound, resp.Error.Code)

	code, resp = s.do(t, http.MethodDelete, base+"/sections/abc", nil, "alice")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrorBadRequest, resp.Error.Code)

	code, resp = s.do(t, http.MethodPost, base+"/sections/99/move", MoveRequest{Index: 0}, "alice")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ErrorSectionNotFound, resp.Error.Code)

	// 未知 ID 在重排时被忽略
	code, resp = s.do(t, http.MethodPut, base+"/sections/order", ReorderRequest{Order: []int{4, 99, 4}}, "alice")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Conclusion", decode[services.ScreenState](t, resp.Data).Sections[0].Title)
}

func TestInvalidTokenFallsBackToGuest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/projects",
		bytes.NewReader([]byte(`{"name":"guest","doc_type":"docx"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	list, err := s.projects.ListProjects(context.Background(), auth.GuestUserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", nil, "")

	code, resp := s.do(t, http.MethodGet, "/api/metrics", nil, "")
	require.Equal(t, http.StatusOK, code)

	body := decode[map[string]json.RawMessage](t, resp.Data)
	assert.Contains(t, body, "metrics")
	assert.Contains(t, body, "websocket")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		ok, remaining, _ := rl.Allow("ip", 3, time.Minute)
		assert.True(t, ok)
		assert.Equal(t, 2-i, remaining)
	}
	ok, _, _ := rl.Allow("ip", 3, time.Minute)
	assert.False(t, ok)

	ok, _, _ = rl.Allow("other", 3, time.Minute)
	assert.True(t, ok)
}

func TestSetupRouterRequiresServices(t *testing.T) {
	_, err := SetupRouter(di.NewContainer())
	assert.Error(t, err)
}
