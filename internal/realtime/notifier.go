package realtime

import (
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultAlertDuration = 6000 * time.Millisecond

// AlertSink 展示临时提示的底层原语
type AlertSink interface {
	Show(a Alert)
}

// AlertSinkFunc 函数适配器
type AlertSinkFunc func(a Alert)

func (f AlertSinkFunc) Show(a Alert) { f(a) }

// Notifier 临时提示门面，与账本完全解耦
type Notifier struct {
	sink AlertSink
}

// NewNotifier sink 为 nil 时写入日志
func NewNotifier(sink AlertSink) *Notifier {
	if sink == nil {
		sink = LogSink{}
	}
	return &Notifier{sink: sink}
}

func (n *Notifier) Success(message string, duration ...time.Duration) {
	n.show(SeveritySuccess, message, duration)
}

func (n *Notifier) Error(message string, duration ...time.Duration) {
	n.show(SeverityError, message, duration)
}

func (n *Notifier) Warning(message string, duration ...time.Duration) {
	n.show(SeverityWarning, message, duration)
}

func (n *Notifier) Info(message string, duration ...time.Duration) {
	n.show(SeverityInfo, message, duration)
}

func (n *Notifier) show(severity Severity, message string, duration []time.Duration) {
	d := DefaultAlertDuration
	if len(duration) > 0 && duration[0] > 0 {
		d = duration[0]
	}
	n.sink.Show(Alert{
		ID:       uuid.NewString(),
		Message:  message,
		Severity: severity,
		Duration: d,
	})
}

// LogSink 将提示输出到日志
type LogSink struct{}

func (LogSink) Show(a Alert) {
	attrs := []any{"alert_id", a.ID, "severity", string(a.Severity), "duration", a.Duration}
	switch a.Severity {
	case SeverityError:
		log.Error(a.Message, attrs...)
	case SeverityWarning:
		log.Warn(a.Message, attrs...)
	default:
		log.Info(a.Message, attrs...)
	}
}
