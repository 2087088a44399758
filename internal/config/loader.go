package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var defaults = map[string]any{
	"app.env":                      "development",
	"app.port":                     8085,
	"app.shutdown_timeout_seconds": 10,

	"log.level":       "info",
	"log.development": false,

	"mongo.uri":                   "mongodb://localhost:27017",
	"mongo.db":                    "chat",
	"mongo.messages_collection":   "messages",
	"mongo.users_collection":      "users",
	"mongo.timeout_seconds":       10,
	"mongo.connect_retry_seconds": 30,

	"redis.enabled":  false,
	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,
	"redis.prefix":   "ws",

	"kafka.enabled": false,
	"kafka.brokers": []string{"localhost:9092"},
	"kafka.topic":   "message.lifecycle",

	"jwt.enabled":         false,
	"jwt.alg":             "HS256",
	"jwt.hs_secret":       "",
	"jwt.public_key_path": "",

	"ws.ping_interval_seconds":  25,
	"ws.write_deadline_seconds": 10,
	"ws.read_deadline_seconds":  60,
	"ws.max_message_size_bytes": 65536,
	"ws.send_buffer":            256,
	"ws.rate_limit_per_sec":     20,

	"messages.reconciliation_window_seconds": 60,
	"messages.history_page_size":             50,
	"messages.history_max_page_size":         200,

	"s3.enabled":          false,
	"s3.region":           "us-east-1",
	"s3.bucket":           "",
	"s3.public_read":      true,
	"s3.max_upload_bytes": 5 << 20,

	"breaker.max_requests":         1,
	"breaker.interval_seconds":     60,
	"breaker.timeout_seconds":      15,
	"breaker.consecutive_failures": 5,

	"store.driver": "mongo",
}

// Load reads path (YAML, optional when empty), then .env, then the process
// environment. Env keys are the config keys upper-cased with "." -> "_",
// e.g. APP_PORT, MONGO_URI, KAFKA_BROKERS=a:9092,b:9092.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.JWT.Alg = strings.ToUpper(c.JWT.Alg)
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.derive()
	return &c, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range", c.App.Port))
	}
	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.DB == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.db are required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be mongo or memory", c.Store.Driver))
	}
	if c.JWT.Enabled {
		switch c.JWT.Alg {
		case "HS256":
			if c.JWT.HSSecret == "" {
				errs = append(errs, errors.New("jwt.hs_secret is required for HS256"))
			}
		case "RS256":
			if c.JWT.PublicKeyPath == "" {
				errs = append(errs, errors.New("jwt.public_key_path is required for RS256"))
			}
		default:
			errs = append(errs, fmt.Errorf("jwt.alg %q must be HS256 or RS256", c.JWT.Alg))
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		errs = append(errs, errors.New("s3.bucket and s3.region are required when s3 is enabled"))
	}
	if c.WS.RateLimitPerSec <= 0 {
		errs = append(errs, errors.New("ws.rate_limit_per_sec must be positive"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if c.Messages.ReconciliationWindowSeconds <= 0 {
		errs = append(errs, errors.New("messages.reconciliation_window_seconds must be positive"))
	}
	return errors.Join(errs...)
}
