// internal/app/app_test.go
package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DocDeck/internal/api"
	"github.com/Corphon/DocDeck/internal/config"
	"github.com/Corphon/DocDeck/internal/di"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/storage"
)

// 测试前重置全局实例
func setupTest(t *testing.T) string {
	t.Helper()

	instanceMu.Lock()
	instance = nil
	instanceMu.Unlock()
	di.GetContainer().Clear()

	tempDir := t.TempDir()
	t.Cleanup(func() {
		instanceMu.Lock()
		instance = nil
		instanceMu.Unlock()
		di.GetContainer().Clear()
	})
	return tempDir
}

// mockServer 记录 Shutdown 调用
type mockServer struct {
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

func TestGetApp(t *testing.T) {
	setupTest(t)

	app1 := GetApp()
	require.NotNil(t, app1)
	assert.Same(t, app1, GetApp())
	assert.NotNil(t, app1.stopChan)
}

func TestInitServicesRegistersEverything(t *testing.T) {
	tempDir := setupTest(t)

	cfg := &config.AppConfig{
		DataDir:     tempDir,
		StoreDriver: config.StoreDriverSQLite,
		SQLitePath:  filepath.Join(tempDir, "docdeck.db"),
		SessionTTL:  time.Minute,
		DebugMode:   true,
	}
	container := di.NewContainer()
	require.NoError(t, initServicesInto(context.Background(), container, cfg))

	testApp := &App{container: container}
	defer testApp.cleanup()

	for _, name := range []string{"config", "store", "metrics", "locks", "projects", "catalog", "sessions", "tokens", "websocket", "rate_limiter"} {
		assert.True(t, container.Has(name), name)
	}

	store := container.Get("store").(storage.ProjectStore)
	assert.Equal(t, storage.DriverSQLite, store.Driver())

	projects := container.Get("projects").(*services.ProjectService)
	assert.Equal(t, storage.DriverSQLite, projects.Driver())
}

func TestInitServicesRejectsBadVariantsFile(t *testing.T) {
	tempDir := setupTest(t)

	cfg := &config.AppConfig{
		DataDir:      tempDir,
		StoreDriver:  config.StoreDriverFile,
		VariantsFile: filepath.Join(tempDir, "missing.yaml"),
	}
	container := di.NewContainer()
	before := runtime.NumGoroutine()

	err := initServicesInto(context.Background(), container, cfg)
	require.Error(t, err)

	// 已创建的存储与锁管理器被释放，注册被撤销
	assert.Empty(t, container.GetNames())
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond, "后台清理协程应已退出")
}

func TestInitialize(t *testing.T) {
	tempDir := setupTest(t)
	t.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))
	t.Setenv("STORE_DRIVER", config.StoreDriverFile)
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("PORT", "18089")

	require.NoError(t, Initialize(tempDir))

	app := GetApp()
	defer app.Shutdown()

	require.NotNil(t, app.GetConfig())
	assert.Equal(t, "18089", app.GetConfig().Port)
	assert.True(t, IsDebugMode())
	require.NotNil(t, app.Router())

	_, err := os.Stat(filepath.Join(tempDir, "config.json"))
	assert.NoError(t, err, "配置快照应该已被创建")

	files, _ := os.ReadDir(filepath.Join(tempDir, "logs"))
	assert.NotEmpty(t, files, "应该已创建日志文件")

	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestInitLogger(t *testing.T) {
	tempDir := setupTest(t)
	logDir := filepath.Join(tempDir, "custom_logs")

	require.NoError(t, initLogger(logDir))

	files, err := os.ReadDir(logDir)
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestRun(t *testing.T) {
	setupTest(t)

	mockSrv := &mockServer{}
	testApp := &App{
		config:   &config.AppConfig{Port: "8081"},
		server:   mockSrv,
		stopChan: make(chan os.Signal, 1),
	}
	instanceMu.Lock()
	instance = testApp
	instanceMu.Unlock()

	go func() {
		time.Sleep(50 * time.Millisecond)
		testApp.stopChan <- syscall.SIGTERM
	}()

	require.NoError(t, Run())
	assert.True(t, mockSrv.ShutdownCalled)
}

func TestRunWithoutInitialize(t *testing.T) {
	setupTest(t)
	assert.Error(t, Run())
}

func TestIsDebugMode(t *testing.T) {
	setupTest(t)

	assert.False(t, IsDebugMode())

	testApp := GetApp()
	assert.False(t, IsDebugMode())

	testApp.config = &config.AppConfig{DebugMode: true}
	assert.True(t, IsDebugMode())

	testApp.config.DebugMode = false
	assert.False(t, IsDebugMode())
}

func TestGetDIContainer(t *testing.T) {
	setupTest(t)
	assert.Same(t, di.GetContainer(), GetDIContainer())
}
