package main

import (
	"Folio/internal/api/config"
	"Folio/internal/pkg/logger"
	"Folio/internal/realtime"
	"bufio"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type clientConfig struct {
	Server   string        `mapstructure:"server"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Ack      string        `mapstructure:"ack"`
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LogLevel string        `mapstructure:"log_level"`
}

func loadClientConfig(args []string) (*clientConfig, error) {
	fs := pflag.NewFlagSet("folio-client", pflag.ContinueOnError)
	fs.String("server", "http://localhost:8080", "服务端地址")
	fs.StringP("username", "u", "", "用户名")
	fs.StringP("password", "p", "", "密码")
	fs.String("ack", "rest", "已读回执通道: rest | socket")
	fs.Int("page_size", 50, "初始加载条数")
	fs.Duration("timeout", 10*time.Second, "REST 请求超时")
	fs.String("log_level", "warn", "日志级别")
	configFile := fs.String("config", "", "配置文件路径")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("client")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}
	v.SetEnvPrefix("FOLIO_CLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg clientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("username and password are required")
	}
	if cfg.Ack != "rest" && cfg.Ack != "socket" {
		return nil, fmt.Errorf("unknown ack mode %q", cfg.Ack)
	}
	return &cfg, nil
}

func wsURL(server string) string {
	server = strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(server, "https://"):
		server = "wss://" + strings.TrimPrefix(server, "https://")
	case strings.HasPrefix(server, "http://"):
		server = "ws://" + strings.TrimPrefix(server, "http://")
	}
	return server + "/api/ws"
}

func printAlert(a realtime.Alert) {
	fmt.Printf("[%s] %s\n", strings.ToUpper(string(a.Severity)), a.Message)
}

func printSnapshot(s realtime.Snapshot) {
	fmt.Printf("-- %d unread / %d total --\n", s.Unread, len(s.Records))
	for _, r := range s.Records {
		mark := "*"
		if r.Read {
			mark = " "
		}
		fmt.Printf("%s %s  %-7s %s: %s\n", mark, r.ID, r.Kind, r.Title, r.Message)
	}
}

func main() {
	cfg, err := loadClientConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.InitLogger(config.LogstashConfig{Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := realtime.NewRestRemote(cfg.Server, cfg.Timeout)
	token, err := rest.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		log.Error("login failed", "err", err)
		os.Exit(1)
	}

	var session *realtime.Session
	manager := realtime.NewManager(realtime.ManagerOptions{
		URL:     wsURL(cfg.Server),
		OnState: func(s realtime.State) { session.OnState(s) },
	}, nil)

	var ack realtime.Remote = rest
	if cfg.Ack == "socket" {
		ack = realtime.NewSocketRemote(manager)
	}
	ledger := realtime.NewLedger(realtime.WithRemote(ack))
	session = realtime.NewSession(realtime.SessionOptions{
		Manager:  manager,
		Ledger:   ledger,
		Notifier: realtime.NewNotifier(realtime.AlertSinkFunc(printAlert)),
		Lister:   rest,
		PageSize: cfg.PageSize,
	})
	cancel := ledger.OnChange(printSnapshot)
	defer cancel()

	session.Start(ctx, token)
	defer session.End()

	fmt.Println("commands: read <id> | clear | list | quit")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, session, line); quit {
				return
			}
		}
	}
}

func runCommand(ctx context.Context, session *realtime.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	ledger := session.Ledger()
	switch fields[0] {
	case "read":
		if len(fields) < 2 {
			fmt.Println("usage: read <id>")
			return false
		}
		if err := ledger.MarkRead(ctx, fields[1]); err != nil {
			log.Warn("mark read failed", "id", fields[1], "err", err)
		}
	case "clear":
		if err := ledger.ClearAll(ctx); err != nil {
			log.Warn("clear all failed", "err", err)
		}
	case "list":
		printSnapshot(ledger.Snapshot())
	case "quit", "exit":
		return true
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}
