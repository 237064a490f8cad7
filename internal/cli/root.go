// internal/cli/root.go
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Corphon/DocDeck/internal/auth"
	"github.com/Corphon/DocDeck/internal/config"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/storage"
	"github.com/Corphon/DocDeck/internal/utils"
)

// NewRootCmd 创建 docdeckctl 根命令
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docdeckctl",
		Short:         "DocDeck 项目管理工具",
		Long:          `docdeckctl 直接读写 DocDeck 的项目存储，用于初始化数据、排查问题和签发访问令牌。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 服务层的 INFO 日志不混入命令输出
			utils.GetLogger().SetLogLevel(utils.WARNING)
		},
	}

	flags := root.PersistentFlags()
	flags.String("data-dir", "", "数据目录 (默认读取 DATA_DIR)")
	flags.String("driver", "", "存储驱动 file|sqlite (默认读取 STORE_DRIVER)")
	flags.String("sqlite-path", "", "SQLite 数据库文件 (默认读取 SQLITE_PATH)")
	flags.String("user", "", "操作的用户ID (默认访客用户)")
	flags.Bool("json", false, "以 JSON 输出")
	flags.Bool("quiet", false, "只输出ID")

	root.AddCommand(projectCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(variantsCmd())

	return root
}

// Execute 运行命令行
func Execute() error {
	return NewRootCmd().Execute()
}

func formatter(cmd *cobra.Command) *OutputFormatter {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")
	return &OutputFormatter{
		Out:   cmd.OutOrStdout(),
		Err:   cmd.ErrOrStderr(),
		JSON:  jsonOutput,
		Quiet: quiet,
	}
}

// runtime 一次命令执行期间打开的存储与服务
type runtime struct {
	store    storage.ProjectStore
	locks    *services.LockManager
	projects *services.ProjectService
	userID   string
}

func (r *runtime) Close() error {
	r.locks.Stop()
	return r.store.Close()
}

// openRuntime 以环境变量为默认值、命令行参数优先打开项目存储
func openRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	base, err := config.Load()
	if err != nil {
		return nil, err
	}

	opts := storage.Options{
		Driver:     stringFlag(cmd, "driver", base.StoreDriver),
		DataDir:    stringFlag(cmd, "data-dir", base.DataDir),
		SQLitePath: stringFlag(cmd, "sqlite-path", base.SQLitePath),
	}

	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("打开项目存储失败: %w", err)
	}

	// 命令行工具不需要服务端日志
	metrics := utils.NewAPIMetricsWith(utils.NewMetricsCollector(), utils.NewLogger(io.Discard))
	locks := services.NewLockManager()

	return &runtime{
		store:    store,
		locks:    locks,
		projects: services.NewProjectService(store, locks, metrics),
		userID:   userFlag(cmd),
	}, nil
}

func userFlag(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		return v
	}
	return auth.GuestUserID
}

func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
