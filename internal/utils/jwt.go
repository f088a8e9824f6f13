package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrMissingSubject = errors.New("token has no player subject")
)

// PlayerClaims 玩家令牌 Claims
// 令牌由外部身份服务签发，玩家ID放在 sub 中；旧版令牌使用 player_id 字段
type PlayerClaims struct {
	PlayerID string `json:"player_id,omitempty"`
	jwt.RegisteredClaims
}

// Player 返回令牌对应的玩家ID
func (c *PlayerClaims) Player() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.PlayerID
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey string
	issuer    string
	now       func() time.Time
}

// NewJWTManager 创建JWT管理器。issuer 为空时不校验签发方
func NewJWTManager(secretKey, issuer string) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		issuer:    issuer,
		now:       time.Now,
	}
}

// GenerateToken 生成玩家令牌（用于测试和本地调试，生产环境由身份服务签发）
func (j *JWTManager) GenerateToken(playerID string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := &PlayerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   playerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ValidateToken 验证令牌
func (j *JWTManager) ValidateToken(tokenString string) (*PlayerClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(j.secretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, err
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Player() == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}
