// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DocDeck/internal/api"
	"github.com/Corphon/DocDeck/internal/auth"
	"github.com/Corphon/DocDeck/internal/config"
	"github.com/Corphon/DocDeck/internal/di"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/storage"
	"github.com/Corphon/DocDeck/internal/tracing"
	"github.com/Corphon/DocDeck/internal/utils"
)

// server 便于测试替换的 HTTP 服务器
type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例，持有配置、路由与服务器生命周期
type App struct {
	config    *config.AppConfig
	container *di.Container
	router    http.Handler
	server    server
	stopChan  chan os.Signal

	stopMetrics     context.CancelFunc
	shutdownTracing tracing.ShutdownFunc
	cleanupOnce     sync.Once
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 返回全局应用实例
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = &App{
			container: di.GetContainer(),
			stopChan:  make(chan os.Signal, 1),
		}
	}
	return instance
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// Router 返回 HTTP 处理器
func (a *App) Router() http.Handler {
	return a.router
}

// GetDIContainer 返回全局依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 当前是否为调试模式
func IsDebugMode() bool {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	return instance != nil && instance.config != nil && instance.config.DebugMode
}

// Initialize 加载配置、初始化日志与服务，并创建 HTTP 服务器
func Initialize(dataDir string) error {
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if app.config.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdown, err := tracing.Setup(context.Background(), app.config.OTLPEndpoint, app.config.ServiceName)
	if err != nil {
		return fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	app.shutdownTracing = shutdown

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter(app.container)
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router

	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsCtx, cancel := context.WithCancel(context.Background())
	app.stopMetrics = cancel
	if metrics, ok := app.container.Get("metrics").(*utils.APIMetrics); ok {
		metrics.StartMetricsCollection(metricsCtx, 5*time.Minute)
	}

	return nil
}

// InitServices 按依赖顺序创建服务并注册到全局容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	return initServicesInto(context.Background(), di.GetContainer(), cfg)
}

func initServicesInto(ctx context.Context, container *di.Container, cfg *config.AppConfig) (err error) {
	// 中途失败时按相反顺序释放已创建的资源并撤销注册
	var registered []string
	var rollback []func()
	register := func(name string, service interface{}, release func()) {
		container.Register(name, service)
		registered = append(registered, name)
		if release != nil {
			rollback = append(rollback, release)
		}
	}
	defer func() {
		if err == nil {
			return
		}
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		for _, name := range registered {
			container.Remove(name)
		}
	}()

	register("config", cfg, nil)

	// 1. 存储
	store, err := storage.Open(ctx, storage.Options{
		Driver:     cfg.StoreDriver,
		DataDir:    cfg.DataDir,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("打开项目存储失败: %w", err)
	}
	register("store", store, func() { _ = store.Close() })

	// 2. 基础设施
	metrics := utils.NewAPIMetrics()
	register("metrics", metrics, nil)

	locks := services.NewLockManager()
	register("locks", locks, locks.Stop)

	// 3. 业务服务
	projects := services.NewProjectService(store, locks, metrics)
	register("projects", projects, nil)

	catalog, err := services.LoadVariantCatalog(cfg.VariantsFile)
	if err != nil {
		return fmt.Errorf("加载界面变体失败: %w", err)
	}
	register("catalog", catalog, nil)

	sessions := services.NewSessionService(projects, catalog, cfg.SessionTTL, services.WithSessionMetrics(metrics))
	sessions.StartCleanup(time.Minute)
	register("sessions", sessions, sessions.Stop)

	// 4. 接入层
	tokens, err := auth.NewTokenConfig(cfg.AuthSecret, cfg.DebugMode, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("初始化令牌配置失败: %w", err)
	}
	register("tokens", tokens, nil)

	wsManager := api.NewWebSocketManager(sessions)
	wsManager.Start()
	register("websocket", wsManager, wsManager.Stop)

	limiter := api.NewRateLimiter()
	register("rate_limiter", limiter, limiter.Stop)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"store_driver": store.Driver(),
		"variants":     len(catalog.List()),
		"session_ttl":  cfg.SessionTTL.String(),
	})

	return nil
}

// initLogger 在日志目录下创建按日期命名的日志文件
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("docdeck_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// Run 启动服务器并阻塞到收到退出信号
func Run() error {
	app := GetApp()
	if app.server == nil {
		return fmt.Errorf("应用尚未初始化")
	}

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	select {
	case err := <-errChan:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case sig := <-app.stopChan:
		log.Printf("🛑 收到信号 %s，正在关闭服务器...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.cleanup()
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	app.cleanup()
	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// cleanup 按与创建相反的顺序停止后台任务并关闭存储
func (a *App) cleanup() {
	a.cleanupOnce.Do(func() {
		if a.stopMetrics != nil {
			a.stopMetrics()
		}

		if a.container != nil {
			for _, name := range []string{"websocket", "sessions", "rate_limiter", "locks"} {
				if s, ok := a.container.Get(name).(interface{ Stop() }); ok {
					s.Stop()
				}
			}
			if store, ok := a.container.Get("store").(storage.ProjectStore); ok {
				if err := store.Close(); err != nil {
					utils.GetLogger().Warn("关闭项目存储失败", map[string]interface{}{"error": err.Error()})
				}
			}
		}

		if a.shutdownTracing != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.shutdownTracing(ctx); err != nil {
				utils.GetLogger().Warn("关闭链路追踪失败", map[string]interface{}{"error": err.Error()})
			}
		}
	})
}

// Shutdown 释放资源，供不经过 Run 的调用方使用
func (a *App) Shutdown() {
	a.cleanup()
}
