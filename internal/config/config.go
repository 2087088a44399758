package config

import (
	"fmt"
	"time"
)

type AppConfig struct {
	Env                    string `mapstructure:"env"`
	Port                   int    `mapstructure:"port"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

func (a AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MongoConfig struct {
	URI                 string `mapstructure:"uri"`
	DB                  string `mapstructure:"db"`
	MessagesCollection  string `mapstructure:"messages_collection"`
	UsersCollection     string `mapstructure:"users_collection"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	ConnectRetrySeconds int    `mapstructure:"connect_retry_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Alg           string `mapstructure:"alg"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	ReadDeadlineSeconds  int   `mapstructure:"read_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendBuffer           int   `mapstructure:"send_buffer"`
	RateLimitPerSec      int   `mapstructure:"rate_limit_per_sec"`
}

type MessagesConfig struct {
	ReconciliationWindowSeconds int `mapstructure:"reconciliation_window_seconds"`
	HistoryPageSize             int `mapstructure:"history_page_size"`
	HistoryMaxPageSize          int `mapstructure:"history_max_page_size"`
}

type S3Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	PublicRead     bool   `mapstructure:"public_read"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type BreakerConfig struct {
	MaxRequests         uint32 `mapstructure:"max_requests"`
	IntervalSeconds     int    `mapstructure:"interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

type StoreConfig struct {
	// Driver is "mongo" or "memory".
	Driver string `mapstructure:"driver"`
}

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	WS       WSConfig       `mapstructure:"ws"`
	Messages MessagesConfig `mapstructure:"messages"`
	S3       S3Config       `mapstructure:"s3"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Store    StoreConfig    `mapstructure:"store"`

	// derived/timeouts
	ShutdownTimeout      time.Duration `mapstructure:"-"`
	MongoTimeout         time.Duration `mapstructure:"-"`
	MongoConnectRetry    time.Duration `mapstructure:"-"`
	PingInterval         time.Duration `mapstructure:"-"`
	WriteDeadline        time.Duration `mapstructure:"-"`
	ReadDeadline         time.Duration `mapstructure:"-"`
	ReconciliationWindow time.Duration `mapstructure:"-"`
	BreakerInterval      time.Duration `mapstructure:"-"`
	BreakerTimeout       time.Duration `mapstructure:"-"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) derive() {
	c.ShutdownTimeout = seconds(c.App.ShutdownTimeoutSeconds)
	c.MongoTimeout = seconds(c.Mongo.TimeoutSeconds)
	c.MongoConnectRetry = seconds(c.Mongo.ConnectRetrySeconds)
	c.PingInterval = seconds(c.WS.PingIntervalSeconds)
	c.WriteDeadline = seconds(c.WS.WriteDeadlineSeconds)
	c.ReadDeadline = seconds(c.WS.ReadDeadlineSeconds)
	c.ReconciliationWindow = seconds(c.Messages.ReconciliationWindowSeconds)
	c.BreakerInterval = seconds(c.Breaker.IntervalSeconds)
	c.BreakerTimeout = seconds(c.Breaker.TimeoutSeconds)
}
