package api

import (
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/middleware"
)

// Response 成功响应
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorResponse 错误响应
type ErrorResponse = apperrors.ErrorResponse

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
		Timestamp: time.Now().Unix(),
	})
}

// respondError 按错误码映射HTTP状态，调用栈不返回给客户端
func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	out := *appErr
	out.Stack = nil
	c.AbortWithStatusJSON(out.HTTPStatus(), apperrors.NewErrorResponse(&out, middleware.GetRequestID(c)))
}

func respondBindError(c *gin.Context, err error) {
	respondError(c, apperrors.New(apperrors.ErrInvalidParam, err.Error()))
}

// currentPlayer 取认证后的玩家ID，RequireAuth 之后调用
func currentPlayer(c *gin.Context) (string, bool) {
	playerID, ok := middleware.GetPlayerID(c)
	if !ok {
		respondError(c, apperrors.New(apperrors.ErrAuthentication, "未认证"))
		return "", false
	}
	return playerID, true
}
