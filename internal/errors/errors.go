package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// 大厅错误 (2000-2099)
	ErrInvalidStake        ErrorCode = 2000
	ErrInvalidFaction      ErrorCode = 2001
	ErrInvalidWait         ErrorCode = 2002
	ErrLobbyNotFound       ErrorCode = 2003
	ErrLobbyAlreadyMatched ErrorCode = 2004
	ErrLobbyExpired        ErrorCode = 2005
	ErrLobbyCancelled      ErrorCode = 2006
	ErrSelfJoinForbidden   ErrorCode = 2007
	ErrNotLobbyCreator     ErrorCode = 2008

	// 对局错误 (2100-2199)
	ErrMatchNotFound         ErrorCode = 2100
	ErrNotAParticipant       ErrorCode = 2101
	ErrMoveAlreadyCommitted  ErrorCode = 2102
	ErrCommitRevealMismatch  ErrorCode = 2103
	ErrMatchNotAwaitingMoves ErrorCode = 2104
	ErrMatchAlreadyResolved  ErrorCode = 2105
	ErrInvalidCommitment     ErrorCode = 2106
	ErrInvalidMove           ErrorCode = 2107
	ErrRevealNotExpected     ErrorCode = 2108
	ErrMoveAlreadyRevealed   ErrorCode = 2109

	// 再战错误 (2200-2299)
	ErrOfferNotFound         ErrorCode = 2200
	ErrOfferAlreadyResolved  ErrorCode = 2201
	ErrMatchNotResolved      ErrorCode = 2202
	ErrRematchAlreadyPending ErrorCode = 2203
	ErrNotOfferRecipient     ErrorCode = 2204

	// 通信错误 (4000-4999)
	ErrWebSocketConnect ErrorCode = 4000
	ErrWebSocketSend    ErrorCode = 4001
	ErrWebSocketClosed  ErrorCode = 4003
	ErrMessageFormat    ErrorCode = 4007

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrDatabaseUpdate  ErrorCode = 5003
	ErrTransaction     ErrorCode = 5005
	ErrDataIntegrity   ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",

	// 大厅错误
	ErrInvalidStake:        "无效的押注",
	ErrInvalidFaction:      "无效的阵营",
	ErrInvalidWait:         "无效的等待时长",
	ErrLobbyNotFound:       "大厅不存在",
	ErrLobbyAlreadyMatched: "大厅已匹配",
	ErrLobbyExpired:        "大厅已过期",
	ErrLobbyCancelled:      "大厅已取消",
	ErrSelfJoinForbidden:   "不能加入自己创建的大厅",
	ErrNotLobbyCreator:     "只有创建者可以取消大厅",

	// 对局错误
	ErrMatchNotFound:         "对局不存在",
	ErrNotAParticipant:       "不是对局参与者",
	ErrMoveAlreadyCommitted:  "已经提交过出招承诺",
	ErrCommitRevealMismatch:  "揭示内容与承诺不一致",
	ErrMatchNotAwaitingMoves: "对局不在等待出招阶段",
	ErrMatchAlreadyResolved:  "对局已结算",
	ErrInvalidCommitment:     "无效的承诺哈希",
	ErrInvalidMove:           "无效的出招",
	ErrRevealNotExpected:     "当前阶段不能揭示",
	ErrMoveAlreadyRevealed:   "已经揭示过出招",

	// 再战错误
	ErrOfferNotFound:         "再战邀请不存在",
	ErrOfferAlreadyResolved:  "再战邀请已处理",
	ErrMatchNotResolved:      "对局尚未结算",
	ErrRematchAlreadyPending: "已有待处理的再战邀请",
	ErrNotOfferRecipient:     "不是再战邀请的接收方",

	// 通信错误
	ErrWebSocketConnect: "WebSocket连接失败",
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrWebSocketClosed:  "WebSocket连接已关闭",
	ErrMessageFormat:    "消息格式错误",

	// 数据库错误
	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",
	ErrDatabaseUpdate:  "数据库更新失败",
	ErrTransaction:     "事务处理失败",
	ErrDataIntegrity:   "数据完整性错误",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 安全错误
	ErrAuthentication: "认证失败",
	ErrAuthorization:  "授权失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// As 从错误链中取出AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is 判断错误是否为指定错误码（会沿错误链查找）
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := As(err); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/duel-game/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrNotFound, ErrLobbyNotFound, ErrMatchNotFound, ErrOfferNotFound:
		return 404 // Not Found
	case ErrPermissionDenied, ErrSelfJoinForbidden, ErrNotLobbyCreator,
		ErrNotAParticipant, ErrNotOfferRecipient:
		return 403 // Forbidden
	case ErrInvalidParam, ErrAlreadyExists, ErrInvalidStake, ErrInvalidFaction,
		ErrInvalidWait, ErrInvalidCommitment, ErrInvalidMove:
		return 400 // Bad Request
	case ErrTimeout:
		return 408 // Request Timeout
	}

	switch {
	case e.Code >= 2000 && e.Code <= 2299:
		return 409 // Conflict（状态时序错误）
	case e.Code >= 7000 && e.Code <= 7003:
		return 401 // Unauthorized
	case e.Code >= 5000 && e.Code <= 5999:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// IsRetryable 判断错误是否可重试
// 校验错误和时序错误都不重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrTimeout,
		ErrWebSocketConnect,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrDatabaseConnect,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrDataIntegrity:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
