// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// 存储驱动
const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 存储配置
	StoreDriver string `json:"store_driver"`
	SQLitePath  string `json:"sqlite_path,omitempty"`

	// 配置界面
	VariantsFile string        `json:"variants_file,omitempty"`
	SessionTTL   time.Duration `json:"session_ttl"`

	// 令牌签名密钥，不写入快照
	AuthSecret string `json:"-"`

	// 可观测性
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	ServiceName  string `json:"service_name"`
}

// Config 存储从环境变量读取的基础配置
type Config struct {
	Port         string
	DataDir      string
	LogDir       string
	DebugMode    bool
	StoreDriver  string
	SQLitePath   string
	VariantsFile string
	SessionTTL   time.Duration
	AuthSecret   string
	OTLPEndpoint string
	ServiceName  string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	dataDir := getEnvPath("DATA_DIR", "data")

	config := &Config{
		Port:         getEnv("PORT", "8080"),
		DataDir:      dataDir,
		LogDir:       getEnvPath("LOG_DIR", "logs"),
		DebugMode:    getEnvBool("DEBUG_MODE", true),
		StoreDriver:  getEnv("STORE_DRIVER", StoreDriverFile),
		SQLitePath:   getEnv("SQLITE_PATH", filepath.Join(dataDir, "docdeck.db")),
		VariantsFile: getEnv("VARIANTS_FILE", ""),
		SessionTTL:   getEnvDuration("SESSION_TTL", 30*time.Minute),
		AuthSecret:   getEnv("AUTH_SECRET_KEY", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "docdeck"),
	}

	if config.StoreDriver != StoreDriverFile && config.StoreDriver != StoreDriverSQLite {
		return nil, fmt.Errorf("不支持的存储驱动: %s", config.StoreDriver)
	}

	if config.AuthSecret == "" && !config.DebugMode {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置 AUTH_SECRET_KEY，将使用随机密钥，重启后令牌失效")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration 获取时长类型环境变量，支持 "15m" 或秒数
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("警告: %s 格式无效 (%s)，使用默认值 %s", key, value, defaultValue)
	return defaultValue
}

func fromBase(base *Config) *AppConfig {
	return &AppConfig{
		Port:         base.Port,
		DataDir:      base.DataDir,
		LogDir:       base.LogDir,
		DebugMode:    base.DebugMode,
		StoreDriver:  base.StoreDriver,
		SQLitePath:   base.SQLitePath,
		VariantsFile: base.VariantsFile,
		SessionTTL:   base.SessionTTL,
		AuthSecret:   base.AuthSecret,
		OTLPEndpoint: base.OTLPEndpoint,
		ServiceName:  base.ServiceName,
	}
}

// InitConfig 初始化配置管理器
// 环境变量优先；config.json 只作为上次运行配置的快照写出。
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, err := Load()
		if err != nil {
			return &AppConfig{
				Port:        "8080",
				DataDir:     "data",
				LogDir:      "logs",
				StoreDriver: StoreDriverFile,
				SessionTTL:  30 * time.Minute,
				ServiceName: "docdeck",
			}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	return &configCopy
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
