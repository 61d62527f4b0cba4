package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 IntentLane 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Queue      QueueConfig      `json:"queue"`
	Domain     DomainConfig     `json:"domain"`
	Settlement SettlementConfig `json:"settlement"`
	Events     EventsConfig     `json:"events"`
	Alerting   AlertingConfig   `json:"alerting"`
	Auth       AuthConfig       `json:"auth"`
	Logging    LoggingConfig    `json:"logging"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述结算标记、执行标记与作业存储的后端。
// driver 为 memory 或 mysql；mysql 后端共享同一个连接池。
type StorageConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述作业队列的后端。driver 为 memory、redis 或 rabbitmq。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Size     int            `json:"size"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
	Stream   string `json:"stream"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Exchange string `json:"exchange"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// DomainConfig 标识本部署所服务的目标域，并指向域定义文件。
type DomainConfig struct {
	ID          uint64 `json:"id"`
	Definitions string `json:"definitions"`
}

// SettlementConfig 承载结算策略开关与作业流水线参数。
type SettlementConfig struct {
	MaxRetries int `json:"max_retries"`
	Workers    int `json:"workers"`
	// VerifyIntentID 开启后从解码的意图重新推导 intentId 并与声明值比对。
	VerifyIntentID bool `json:"verify_intent_id"`
	// StrictFingerprint 开启后执行代理交叉校验意图携带的委托指纹。
	StrictFingerprint bool `json:"strict_fingerprint"`
}

// EventsConfig 选择对外事件的发布通道。sinks 支持 audit、memory、redis、
// rabbitmq 的任意组合；为空时默认只写审计日志。
type EventsConfig struct {
	Sinks          []string `json:"sinks"`
	MemoryCapacity int      `json:"memory_capacity"`
}

// AlertingConfig 配置结算异常的告警通道。启用后告警始终写入审计日志，
// 配置了回调地址的渠道额外推送。
type AlertingConfig struct {
	Enabled  bool                `json:"enabled"`
	DingTalk DingTalkAlertConfig `json:"dingtalk"`
	Slack    SlackAlertConfig    `json:"slack"`
}

// DingTalkAlertConfig 描述钉钉机器人回调。
type DingTalkAlertConfig struct {
	Webhook string `json:"webhook"`
}

// SlackAlertConfig 描述 Slack incoming webhook。
type SlackAlertConfig struct {
	Webhook string `json:"webhook"`
	Channel string `json:"channel"`
}

// AuthConfig 描述填单方 API 凭证。
type AuthConfig struct {
	Enabled bool           `json:"enabled"`
	Keys    []APIKeyConfig `json:"keys"`
}

// APIKeyConfig 是一条静态 API 凭证记录。
type APIKeyConfig struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       struct {
		Enabled    bool   `json:"enabled"`
		Path       string `json:"path"`
		MaxSizeMB  int    `json:"max_size_mb"`
		MaxBackups int    `json:"max_backups"`
		MaxAgeDays int    `json:"max_age_days"`
	} `json:"audit"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 256
	}

	if c.Domain.Definitions != "" && !filepath.IsAbs(c.Domain.Definitions) {
		c.Domain.Definitions = filepath.Join(baseDir, c.Domain.Definitions)
	}

	if c.Settlement.MaxRetries <= 0 {
		c.Settlement.MaxRetries = 3
	}
	if c.Settlement.Workers <= 0 {
		c.Settlement.Workers = 4
	}

	if len(c.Events.Sinks) == 0 {
		c.Events.Sinks = []string{"audit"}
	}
	if c.Events.MemoryCapacity <= 0 {
		c.Events.MemoryCapacity = 256
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
