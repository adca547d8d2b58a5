package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type AppConfig struct {
	Env     string `mapstructure:"env"`
	Mode    string `mapstructure:"mode"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
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
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ExecutorCycle string `mapstructure:"executor_cycle"`
	RiskEval      string `mapstructure:"risk_eval"`
}

type QueueConfig struct {
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

type ExecutorConfig struct {
	WorkerID    string   `mapstructure:"worker_id"`
	Pairs       []string `mapstructure:"pairs"`
	LiveEnabled bool     `mapstructure:"live_enabled"`
}

type RiskConfig struct {
	StartBalance    float64 `mapstructure:"start_balance"`
	MaxDailyLossPct float64 `mapstructure:"max_daily_loss_pct"`
}

type AlertConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	DedupeWindow   time.Duration `mapstructure:"dedupe_window"`
}

type LedgerConfig struct {
	FallbackPath string `mapstructure:"fallback_path"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.mode", "PAPER")
	v.SetDefault("app.version", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "data/scalpbot.db")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.executor_cycle", "@every 2s")
	v.SetDefault("cron.risk_eval", "@every 30s")
	v.SetDefault("queue.stale_timeout", "5m")
	v.SetDefault("executor.worker_id", "executor-1")
	v.SetDefault("executor.pairs", []string{"USD_JPY", "EUR_USD", "GBP_USD"})
	v.SetDefault("executor.live_enabled", false)
	v.SetDefault("risk.start_balance", 500000)
	v.SetDefault("risk.max_daily_loss_pct", 0.05)
	v.SetDefault("alert.enabled", false)
	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.webhook_timeout", "10s")
	v.SetDefault("alert.dedupe_window", "1m")
	v.SetDefault("ledger.fallback_path", "data/trades_fallback.csv")

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
