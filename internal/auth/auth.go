// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GuestUserID 未携带令牌时使用的访客用户
const GuestUserID = "console_user"

// 开发模式下的固定密钥，重启后令牌仍然有效
const devSecret = "dev_auth_key_for_testing_purposes_only_"

// TokenConfig 令牌签名配置
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Token 解析后的令牌
type Token struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
	IssuedAt  int64  `json:"issued_at"`
}

// NewTokenConfig 根据配置的密钥创建签名配置
// 未配置密钥时：开发模式使用固定密钥，否则生成随机密钥（重启后旧令牌失效）。
func NewTokenConfig(secret string, debug bool, expiration time.Duration) (*TokenConfig, error) {
	var key []byte
	switch {
	case secret != "":
		key = []byte(secret)
	case debug:
		key = []byte(devSecret)
	default:
		generated, err := GenerateSecureKey(32)
		if err != nil {
			return nil, fmt.Errorf("生成随机密钥失败: %w", err)
		}
		key = generated
	}

	// 统一为 32 字节
	if len(key) < 32 {
		padded := make([]byte, 32)
		copy(padded, key)
		key = padded
	} else if len(key) > 32 {
		key = key[:32]
	}

	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	return &TokenConfig{Secret: key, Expiration: expiration}, nil
}

// GenerateToken 为用户签发令牌
func GenerateToken(userID string, config *TokenConfig) (string, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", fmt.Errorf("缺少签名密钥")
	}
	if userID == "" || strings.Contains(userID, "|") {
		return "", fmt.Errorf("非法用户ID: %q", userID)
	}

	now := time.Now()
	payload := fmt.Sprintf("%s|%d|%d", userID, now.Add(config.Expiration).Unix(), now.Unix())

	encodedPayload := base64.URLEncoding.EncodeToString([]byte(payload))
	encodedSignature := base64.URLEncoding.EncodeToString(sign([]byte(payload), config.Secret))

	return encodedPayload + "." + encodedSignature, nil
}

func sign(payload, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

// ParseToken 校验签名与有效期并返回令牌内容
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, fmt.Errorf("缺少签名密钥")
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("令牌格式错误")
	}

	payloadBytes, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("令牌内容无效: %w", err)
	}

	signatureBytes, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("令牌签名无效: %w", err)
	}

	if !hmac.Equal(signatureBytes, sign(payloadBytes, config.Secret)) {
		return nil, fmt.Errorf("令牌签名不匹配")
	}

	fields := strings.Split(string(payloadBytes), "|")
	if len(fields) != 3 || fields[0] == "" {
		return nil, fmt.Errorf("令牌内容格式错误")
	}

	expiresAt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("令牌过期时间无效: %w", err)
	}
	issuedAt, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("令牌签发时间无效: %w", err)
	}

	if time.Now().Unix() > expiresAt {
		return nil, fmt.Errorf("令牌已过期")
	}

	return &Token{
		UserID:    fields[0],
		ExpiresAt: expiresAt,
		IssuedAt:  issuedAt,
	}, nil
}

// GenerateSecureKey 生成随机密钥
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
