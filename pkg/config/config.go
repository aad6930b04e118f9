package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Metabase  MetabaseConfig  `mapstructure:"metabase"`
	Questions QuestionsConfig `mapstructure:"questions"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Session   SessionConfig   `mapstructure:"session"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lmstfy    LmstfyConfig    `mapstructure:"lmstfy"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port               string        `mapstructure:"port"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	WSBufferSize       int           `mapstructure:"ws_buffer_size"`
	WSPingInterval     time.Duration `mapstructure:"ws_ping_interval"`
}

// MetabaseConfig 分析数据源配置
type MetabaseConfig struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"` // id、团队别名或完整库名
	PageSize       int           `mapstructure:"page_size"`
	Workers        int           `mapstructure:"workers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// QuestionsConfig 三个数据集对应的问题 ID
type QuestionsConfig struct {
	DiscountStock       int `mapstructure:"discount_stock"`
	VendorStatus        int `mapstructure:"vendor_status"`
	VendorProductStatus int `mapstructure:"vendor_product_status"`
}

// JobsConfig 刷新任务配置
type JobsConfig struct {
	DiscountStockInterval       time.Duration `mapstructure:"discount_stock_interval"`
	VendorStatusInterval        time.Duration `mapstructure:"vendor_status_interval"`
	VendorProductStatusInterval time.Duration `mapstructure:"vendor_product_status_interval"`
	SessionWorkers              int           `mapstructure:"session_workers"`
	SessionTimeout              time.Duration `mapstructure:"session_timeout"`
}

// AlertsConfig 告警规则配置
type AlertsConfig struct {
	DiscountNearEndThreshold int  `mapstructure:"discount_near_end_threshold"`
	PrimeProductStatus       bool `mapstructure:"prime_product_status"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

// MySQLConfig MySQL 配置（为空则不归档已清除告警）
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置（为空则不镜像事件、令牌只存内存）
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
	TokenKey      string `mapstructure:"token_key"`
}

// LmstfyConfig Lmstfy 配置（为空则不投递告警通知）
type LmstfyConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Namespace string        `mapstructure:"namespace"`
	Token     string        `mapstructure:"token"`
	Queue     string        `mapstructure:"queue"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vendor-monitor")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", "5000")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.ws_buffer_size", 64)
	v.SetDefault("server.ws_ping_interval", 25*time.Second)

	v.SetDefault("metabase.url", "")
	v.SetDefault("metabase.username", "")
	v.SetDefault("metabase.password", "")
	v.SetDefault("metabase.database", "growth")
	v.SetDefault("metabase.page_size", 50000)
	v.SetDefault("metabase.workers", 8)
	v.SetDefault("metabase.request_timeout", 300*time.Second)

	v.SetDefault("questions.discount_stock", 7179)
	v.SetDefault("questions.vendor_status", 7163)
	v.SetDefault("questions.vendor_product_status", 7196)

	v.SetDefault("jobs.discount_stock_interval", 180*time.Second)
	v.SetDefault("jobs.vendor_status_interval", 185*time.Second)
	v.SetDefault("jobs.vendor_product_status_interval", 190*time.Second)
	v.SetDefault("jobs.session_workers", 4)
	v.SetDefault("jobs.session_timeout", 30*time.Second)

	v.SetDefault("alerts.discount_near_end_threshold", 3)
	v.SetDefault("alerts.prime_product_status", true)

	v.SetDefault("session.inactivity_timeout", 5*time.Minute)
	v.SetDefault("session.lock_timeout", 30*time.Second)
	v.SetDefault("session.event_buffer", 256)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "vendor-monitor")
	v.SetDefault("redis.token_key", "vendor-monitor:metabase:token")
	v.SetDefault("lmstfy.host", "")
	v.SetDefault("lmstfy.port", 7777)
	v.SetDefault("lmstfy.namespace", "")
	v.SetDefault("lmstfy.token", "")
	v.SetDefault("lmstfy.queue", "vendor_alerts")
	v.SetDefault("lmstfy.ttl", 24*time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 加载配置：.env -> 默认值 -> 配置文件 -> 环境变量
// configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Metabase.URL == "" {
		return errors.New("metabase.url is required")
	}
	if c.Metabase.Username == "" || c.Metabase.Password == "" {
		return errors.New("metabase.username and metabase.password are required")
	}
	if c.Metabase.PageSize <= 0 || c.Metabase.Workers <= 0 {
		return errors.New("metabase.page_size and metabase.workers must be positive")
	}
	if c.Jobs.DiscountStockInterval <= 0 || c.Jobs.VendorStatusInterval <= 0 || c.Jobs.VendorProductStatusInterval <= 0 {
		return errors.New("jobs intervals must be positive")
	}
	if c.Jobs.SessionWorkers <= 0 {
		return errors.New("jobs.session_workers must be positive")
	}
	if c.Session.InactivityTimeout <= 0 || c.Session.LockTimeout <= 0 {
		return errors.New("session.inactivity_timeout and session.lock_timeout must be positive")
	}
	if c.Alerts.DiscountNearEndThreshold < 1 {
		return errors.New("alerts.discount_near_end_threshold must be at least 1")
	}
	if c.Lmstfy.Host != "" && c.Lmstfy.Queue == "" {
		return errors.New("lmstfy.queue is required when lmstfy.host is set")
	}
	return nil
}

// RefreshInterval 调度间隔：三个数据集间隔的最小值
func (c *Config) RefreshInterval() time.Duration {
	d := c.Jobs.DiscountStockInterval
	if c.Jobs.VendorStatusInterval < d {
		d = c.Jobs.VendorStatusInterval
	}
	if c.Jobs.VendorProductStatusInterval < d {
		d = c.Jobs.VendorProductStatusInterval
	}
	return d
}

// HeartbeatThreshold 心跳超过该时长视为后台任务卡死
func (c *Config) HeartbeatThreshold() time.Duration {
	return 2 * c.RefreshInterval()
}
