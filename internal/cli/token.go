// internal/cli/token.go
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/DocDeck/internal/auth"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "为用户签发访问令牌",
		Long: `使用服务端相同的密钥签发 Bearer 令牌。

未指定 --secret 时读取 AUTH_SECRET_KEY；两者都为空时使用开发模式密钥。

示例:
  docdeckctl token --user alice
  docdeckctl token --user alice --ttl 2h --quiet`,
		Args: cobra.NoArgs,
		RunE: runToken,
	}

	cmd.Flags().String("secret", "", "签名密钥 (默认读取 AUTH_SECRET_KEY)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "令牌有效期")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	out := formatter(cmd)

	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("AUTH_SECRET_KEY")
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")

	// 随机密钥签出的令牌服务端无法验证
	tokens, err := auth.NewTokenConfig(secret, secret == "", ttl)
	if err != nil {
		_ = out.Error("TOKEN_FAILED", err.Error())
		return err
	}

	userID := userFlag(cmd)
	token, err := auth.GenerateToken(userID, tokens)
	if err != nil {
		_ = out.Error("TOKEN_FAILED", err.Error())
		return err
	}

	expiresAt := time.Now().Add(tokens.Expiration)
	data := map[string]interface{}{
		"user_id":    userID,
		"token":      token,
		"expires_at": expiresAt,
	}

	return out.Success(data, token, func(w io.Writer) {
		fmt.Fprintf(w, "用户: %s\n", userID)
		fmt.Fprintf(w, "过期: %s\n", expiresAt.Format(time.RFC3339))
		fmt.Fprintf(w, "令牌: %s\n", token)
	})
}
