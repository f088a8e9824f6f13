package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager("test-secret-key", "duel-identity")
}

// 测试生成并验证令牌
func (suite *JWTTestSuite) TestGenerateAndValidate() {
	token, err := suite.manager.GenerateToken("alice", time.Hour)
	suite.Require().NoError(err)
	suite.NotEmpty(token)

	claims, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal("alice", claims.Player())
	suite.Equal("duel-identity", claims.Issuer)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestExpiredToken() {
	issuedAt := time.Now().Add(-2 * time.Hour)
	suite.manager.now = func() time.Time { return issuedAt }
	token, err := suite.manager.GenerateToken("alice", time.Hour)
	suite.Require().NoError(err)

	suite.manager.now = time.Now
	_, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
}

// 测试错误的密钥
func (suite *JWTTestSuite) TestWrongSecret() {
	other := NewJWTManager("other-secret", "duel-identity")
	token, err := other.GenerateToken("alice", time.Hour)
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试签发方不匹配
func (suite *JWTTestSuite) TestWrongIssuer() {
	other := NewJWTManager("test-secret-key", "someone-else")
	token, err := other.GenerateToken("alice", time.Hour)
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试旧版 player_id 字段
func (suite *JWTTestSuite) TestLegacyPlayerIDClaim() {
	claims := &PlayerClaims{
		PlayerID: "bob",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "duel-identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	suite.Require().NoError(err)

	parsed, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal("bob", parsed.Player())
}

// 测试缺少玩家ID
func (suite *JWTTestSuite) TestMissingSubject() {
	token, err := suite.manager.GenerateToken("", time.Hour)
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrMissingSubject)
}

// 测试拒绝 none 算法
func (suite *JWTTestSuite) TestRejectsNoneAlgorithm() {
	claims := &PlayerClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "duel-identity"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

func TestJWTTestSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
