package realtime

import (
	"errors"
	"strings"
	"time"
)

// Kind 通知类型，决定前端图标与跳转
type Kind string

const (
	KindLoan    Kind = "loan"
	KindChat    Kind = "chat"
	KindAlert   Kind = "alert"
	KindGeneric Kind = "generic"
)

var ErrUnknownKind = errors.New("未知的通知类型")

// ParseKind 空值视为 generic，其余必须属于封闭集合
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindGeneric:
		return KindGeneric, nil
	case KindLoan:
		return KindLoan, nil
	case KindChat:
		return KindChat, nil
	case KindAlert:
		return KindAlert, nil
	}
	return "", ErrUnknownKind
}

// DefaultTitle 未显式提供标题时使用首字母大写的类型名
func (k Kind) DefaultTitle() string {
	if k == "" {
		return "Generic"
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// Record 账本中的一条通知
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot 账本的只读副本
type Snapshot struct {
	Records []Record
	Unread  int
}

// Severity 临时提示的级别
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Alert 临时提示，不进入账本也不上报服务端
type Alert struct {
	ID       string
	Message  string
	Severity Severity
	Duration time.Duration
}
