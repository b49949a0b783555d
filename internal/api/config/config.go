package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从 ./configs/config.yaml 加载配置，FOLIO_ 前缀的环境变量优先
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("jwt.secret", "folio")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("notification.page_size", 50)
	v.SetDefault("notification.retention_days", 30)
	v.SetDefault("notification.cleanup_spec", "0 30 3 * * *")
	v.SetDefault("kafka_library_consumer.topic", "library_events")
	v.SetDefault("kafka_library_consumer.group_id", "folio-notifications")
	v.SetDefault("kafka_relay_consumer.topic", "realtime_relay")
	v.SetDefault("kafka_relay_consumer.group_id", "folio-relay")
	v.SetDefault("mongo.database", "folio")
}
