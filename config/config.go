// Package config 从 YAML 装配管理器运行环境
//
// 加载顺序：代码中的默认值，然后是 YAML 文件（先展开 ${VAR} 与 ${VAR:-默认值}），最后校验。
//
//	database:
//	  driver: postgres
//	  host: ${DB_HOST:-localhost}
//	  database: shop
//	manager:
//	  identifier_generator: snowflake
//	  snowflake: {worker_id: 3}
//	logging: {driver: zap, level: debug}
//	notify:
//	  transport: redis
//	  codec: msgpack
//	  redis: {addr: "${REDIS_ADDR:-localhost:6379}"}
//	  outbox: {enabled: true}
//	metrics:
//	  enabled: true
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gqm/codegen/snowflake"
	core "gqm/data/db"
	"gqm/errors"
	"gqm/notify"
	"gqm/notify/memory"
	"gqm/notify/natsjetstream"
	"gqm/notify/outbox"
	"gqm/notify/redisstreams"
	"gqm/validation"
)

// Config 运行环境配置
type Config struct {
	Database core.DBConfig `yaml:"database"`
	Manager  ManagerConfig `yaml:"manager"`
	Logging  LoggingConfig `yaml:"logging"`
	Notify   NotifyConfig  `yaml:"notify"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// ManagerConfig 注册表选项
type ManagerConfig struct {
	LazyManyToOne bool `yaml:"lazy_many_to_one"`
	// IdentifierGenerator sequence（默认）或 snowflake
	IdentifierGenerator string           `yaml:"identifier_generator" validate:"oneof=sequence snowflake"`
	Snowflake           snowflake.Config `yaml:"snowflake"`
}

// LoggingConfig 日志
type LoggingConfig struct {
	// Driver zap（默认）、std 或 noop
	Driver string `yaml:"driver" validate:"oneof=zap std noop"`
	// Level debug、info（默认）、warn 或 error
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// NotifyConfig 变更通知
type NotifyConfig struct {
	// Transport none（默认）、memory、redis 或 nats
	Transport string `yaml:"transport" validate:"oneof=none memory redis nats"`
	Codec     string `yaml:"codec" validate:"oneof=json msgpack"`
	// Kinds 发布的事件种类，为空时使用 Publisher 的默认值
	Kinds   []string             `yaml:"kinds" validate:"dive,oneof=installed removed inserted updated restored deleted"`
	Memory  memory.Config        `yaml:"memory"`
	Redis   redisstreams.Config  `yaml:"redis"`
	NATS    natsjetstream.Config `yaml:"nats"`
	Breaker notify.BreakerConfig `yaml:"breaker"`
	Retry   notify.RetryConfig   `yaml:"retry"`
	Outbox  OutboxConfig         `yaml:"outbox"`
}

// OutboxConfig 事务性发件箱；启用后通知先写入发件箱表，由中继异步发布
type OutboxConfig struct {
	Enabled bool               `yaml:"enabled"`
	Table   string             `yaml:"table"`
	Relay   outbox.RelayConfig `yaml:"relay"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default 默认配置：sqlite 内存库、序列标识、zap 日志、不发布通知
func Default() *Config {
	return &Config{
		Database: core.DBConfig{Driver: "sqlite", Database: ":memory:"},
		Manager:  ManagerConfig{IdentifierGenerator: "sequence"},
		Logging:  LoggingConfig{Driver: "zap", Level: "info"},
		Notify: NotifyConfig{
			Transport: "none",
			Codec:     "json",
			Breaker:   notify.DefaultBreakerConfig(),
			Retry:     notify.DefaultRetryConfig(),
			Outbox:    OutboxConfig{Table: outbox.DefaultTable, Relay: outbox.DefaultRelayConfig()},
		},
		Metrics: MetricsConfig{Namespace: "gqm"},
	}
}

// Load 读取并解析 YAML 文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "config: read "+path)
	}
	return Parse(data)
}

// Parse 在默认配置上覆盖 YAML 内容并校验
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "config: parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 按 validate 标签校验
func (c *Config) Validate() error {
	if err := validation.Default().Engine().Struct(c); err != nil {
		return errors.WrapError(err, errors.ErrCodeConfiguration, "config: invalid")
	}
	return nil
}

// expandEnv 展开 ${VAR} 与 ${VAR:-默认值}；变量未设置或为空时使用默认值
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, fallback, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
}
