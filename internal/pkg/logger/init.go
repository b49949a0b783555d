package logger

import (
	"Folio/internal/api/config"
	"io"
	log "log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// LogWriter gin 访问日志的输出目标
var LogWriter io.Writer = os.Stdout

var logToken string

// InitLogger 配置全局 slog：stdout JSON，地址可用时同时上报到 logstash
func InitLogger(cfg config.LogstashConfig) {
	level := ParseLevel(cfg.Level)
	opts := &log.HandlerOptions{Level: level}
	var handler log.Handler = log.NewJSONHandler(os.Stdout, opts)

	logToken = cfg.Token
	LogWriter = os.Stdout

	if cfg.Address != "" {
		conn, err := net.DialTimeout("tcp", cfg.Address, 3*time.Second)
		if err != nil {
			log.Warn("Failed to connect to Logstash, logging to stdout only", "addr", cfg.Address, "err", err)
		} else {
			remote := log.NewJSONHandler(conn, opts).WithAttrs([]log.Attr{
				log.String("target_index", cfg.Index),
				log.String("log_token", cfg.Token),
			})
			handler = NewTeeHandler(handler, &RemoteFilterHandler{next: remote})
			LogWriter = io.MultiWriter(os.Stdout, conn)
		}
	}

	log.SetDefault(log.New(&ContextHandler{handler}))
}

// ParseLevel 未知或为空时返回 Info
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	}
	return log.LevelInfo
}
