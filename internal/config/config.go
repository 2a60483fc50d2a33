package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Cron      CronConfig      `mapstructure:"cron"`
	Anchor    AnchorConfig    `mapstructure:"anchor"`
	Pinata    PinataConfig    `mapstructure:"pinata"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Push      PushConfig      `mapstructure:"push"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ExpirySweep   string `mapstructure:"expiry_sweep"`
	PublishRescan string `mapstructure:"publish_rescan"`
}

type AnchorConfig struct {
	ExplorerBase string `mapstructure:"explorer_base"`
}

type PinataConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	GatewayURL string        `mapstructure:"gateway_url"`
	JWT        string        `mapstructure:"jwt"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PublisherConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout"`
}

type PushConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PriceFeedConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "agroforward")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.expiry_sweep", "0 */5 * * * *")
	v.SetDefault("cron.publish_rescan", "0 */10 * * * *")
	v.SetDefault("anchor.explorer_base", "https://amoy.polygonscan.com")
	v.SetDefault("pinata.base_url", "https://api.pinata.cloud")
	v.SetDefault("pinata.gateway_url", "https://gateway.pinata.cloud")
	v.SetDefault("pinata.timeout", "30s")
	v.SetDefault("publisher.workers", 2)
	v.SetDefault("publisher.queue_size", 64)
	v.SetDefault("publisher.scan_interval", "30s")
	v.SetDefault("publisher.max_attempts", 3)
	v.SetDefault("publisher.retry_backoff", "2s")
	v.SetDefault("publisher.task_timeout", "45s")
	v.SetDefault("push.enabled", false)
	v.SetDefault("push.timeout", "5s")
	v.SetDefault("price_feed.enabled", false)
	v.SetDefault("price_feed.base_url", "http://localhost:8000")
	v.SetDefault("price_feed.timeout", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
