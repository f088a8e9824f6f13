package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/utils"
)

const (
	playerIDKey = "playerID"
	tokenKey    = "token"
)

// TokenValidator 令牌校验
type TokenValidator interface {
	ValidateToken(token string) (*utils.PlayerClaims, error)
}

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
	}
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			abort(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		// 验证令牌
		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			code := apperrors.ErrTokenInvalid
			if errors.Is(err, utils.ErrExpiredToken) {
				code = apperrors.ErrTokenExpired
			}
			abort(c, apperrors.New(code, err.Error()))
			return
		}

		// 将玩家信息存入上下文
		c.Set(playerIDKey, claims.Player())
		c.Set(tokenKey, token)

		c.Next()
	}
}

// ExtractToken 从请求中提取令牌
func ExtractToken(c *gin.Context) string {
	// 1. 从Authorization Header获取 (Bearer Token)
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.SplitN(bearerToken, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. 从X-Access-Token Header获取
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. 从Query参数获取（浏览器WebSocket无法设置Header）
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetPlayerID 从上下文获取玩家ID
func GetPlayerID(c *gin.Context) (string, bool) {
	if playerID, exists := c.Get(playerIDKey); exists {
		if id, ok := playerID.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// IsAuthenticated 检查是否已认证
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetPlayerID(c)
	return ok
}

func abort(c *gin.Context, err *apperrors.AppError) {
	err.Stack = nil
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.NewErrorResponse(err, GetRequestID(c)))
}
