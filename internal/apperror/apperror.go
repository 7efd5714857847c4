// Package apperror 业务错误分类。错误在产生处即确定类别，
// 处理器根据类别选择响应码，不再匹配错误信息字符串。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindInternal   Kind = iota
	KindValidation      // 参数缺失或格式错误
	KindNotFound        // 订单、配置、商品不存在
	KindConflict        // 状态不允许、库存不足、网关未启用
	KindTrust           // 签名无效、不支持的网关
	KindUpstream        // 支付网关调用失败或超时
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTrust:
		return "trust"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Code 类别对应的响应码
func (k Kind) Code() int {
	switch k {
	case KindValidation, KindConflict, KindTrust:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error 带类别的业务错误
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同类别同信息的错误视为相等，便于 errors.Is 比较预定义错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

func Trust(msg string) *Error { return &Error{Kind: KindTrust, Msg: msg} }

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

func Internal(err error) *Error { return &Error{Kind: KindInternal, Err: err} }

// KindOf 取错误链上第一个业务错误的类别，普通错误视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message 面向调用方的错误信息，内部错误不暴露细节
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Error()
	}
	return "internal server error"
}
