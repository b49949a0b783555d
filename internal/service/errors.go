package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrUserBan              = errors.New("用户已被封禁")
	ErrUserExist            = errors.New("用户已存在")
	ErrPasswordIncorrect    = errors.New("密码错误")
	ErrNotificationNotFound = errors.New("通知不存在")
	ErrNotificationType     = errors.New("未知的通知类型")
	ErrEventNotRelayable    = errors.New("该事件不允许转发")
	UnauthorizedError       = errors.New("权限不足")
	ForbiddenError          = errors.New("无权访问该资源")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrUserNotFound:         NotFound,
	ErrUserBan:              Unauthorized,
	ErrUserExist:            BadRequest,
	ErrPasswordIncorrect:    Unauthorized,
	ErrNotificationNotFound: NotFound,
	ErrNotificationType:     BadRequest,
	ErrEventNotRelayable:    BadRequest,
	UnauthorizedError:       Unauthorized,
	ForbiddenError:          Forbidden,
	UnExpectedError:         InternalServerError,
}
