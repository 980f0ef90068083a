package handler

import "errors"

// ErrInvalidRequest 请求体校验失败
var ErrInvalidRequest = errors.New("请求参数非法")
