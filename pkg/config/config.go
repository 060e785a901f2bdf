package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Security SecurityConfig `mapstructure:"security"`
	Guard    GuardConfig    `mapstructure:"guard"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminPort   int    `mapstructure:"admin_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	SecretKey   string `mapstructure:"secret_key"`
}

type UpstreamConfig struct {
	Target string `mapstructure:"target"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MetricsConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	EnableLatency bool `mapstructure:"enable_latency"`
}

// SecurityConfig controls the hardening headers stamped onto admitted
// responses. HSTS is only emitted on HTTPS traffic.
type SecurityConfig struct {
	STSSeconds            int    `mapstructure:"sts_seconds"`
	STSIncludeSubdomains  bool   `mapstructure:"sts_include_subdomains"`
	FrameDeny             bool   `mapstructure:"frame_deny"`
	ContentTypeNosniff    bool   `mapstructure:"content_type_nosniff"`
	BrowserXSSFilter      bool   `mapstructure:"browser_xss_filter"`
	ReferrerPolicy        string `mapstructure:"referrer_policy"`
	ContentSecurityPolicy string `mapstructure:"content_security_policy"`
}

// GuardConfig carries every admission tunable. Zero values are replaced by
// the documented defaults in setDefaultValues, so a partial config file or
// plain environment variables are enough to boot.
type GuardConfig struct {
	Provider      string           `mapstructure:"provider"` // "redis" or "memory"
	StoreTimeout  time.Duration    `mapstructure:"store_timeout"`
	AlwaysAllow   []string         `mapstructure:"always_allow"`
	BanDuration   time.Duration    `mapstructure:"ban_duration"`
	Burst         WindowConfig     `mapstructure:"burst"`
	Fingerprint   WindowConfig     `mapstructure:"fingerprint"`
	Suspicion     SuspicionConfig  `mapstructure:"suspicion"`
	AttackMode    AttackModeConfig `mapstructure:"attack_mode"`
	SweepInterval time.Duration    `mapstructure:"sweep_interval"`
}

type WindowConfig struct {
	WindowMs  int64 `mapstructure:"window_ms"`
	MaxEvents int64 `mapstructure:"max_events"`
}

type SuspicionConfig struct {
	Threshold          int64                    `mapstructure:"threshold"`
	EscalateMultiplier int64                    `mapstructure:"escalate_multiplier"`
	RecordTTL          time.Duration            `mapstructure:"record_ttl"`
	MaxForwardedDepth  int                      `mapstructure:"max_forwarded_depth"`
	SensitivePaths     []map[string]interface{} `mapstructure:"sensitive_paths"`
	BotAgents          []map[string]interface{} `mapstructure:"bot_agents"`
}

type AttackModeConfig struct {
	HighThreshold int64         `mapstructure:"high_threshold"`
	ExitRatio     float64       `mapstructure:"exit_ratio"`
	BucketTTL     time.Duration `mapstructure:"bucket_ttl"`
	FlagTTL       time.Duration `mapstructure:"flag_ttl"`
}

var globalConfig Config

func Load(configPath string) error {
	// Boolean defaults must go through viper so an explicit false in the
	// file still wins.
	viper.SetDefault("security.frame_deny", true)
	viper.SetDefault("security.content_type_nosniff", true)
	viper.SetDefault("security.browser_xss_filter", true)

	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return err
	}
	setDefaultValues()
	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
		}
		// No file is fine: defaults plus environment variables.
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

func setDefaultValues() {
	cfg := &globalConfig
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AdminPort == 0 {
		cfg.Server.AdminPort = 8081
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Security.STSSeconds == 0 {
		cfg.Security.STSSeconds = 31536000
	}
	if cfg.Security.ReferrerPolicy == "" {
		cfg.Security.ReferrerPolicy = "no-referrer"
	}
	if cfg.Guard.Provider == "" {
		cfg.Guard.Provider = "redis"
	}
	if cfg.Guard.StoreTimeout == 0 {
		cfg.Guard.StoreTimeout = 2 * time.Second
	}
	if len(cfg.Guard.AlwaysAllow) == 0 {
		cfg.Guard.AlwaysAllow = []string{"127.0.0.1", "::1"}
	}
	if cfg.Guard.BanDuration == 0 {
		cfg.Guard.BanDuration = 30 * time.Minute
	}
	if cfg.Guard.Burst.WindowMs == 0 {
		cfg.Guard.Burst.WindowMs = 1000
	}
	if cfg.Guard.Burst.MaxEvents == 0 {
		cfg.Guard.Burst.MaxEvents = 50
	}
	if cfg.Guard.Fingerprint.WindowMs == 0 {
		cfg.Guard.Fingerprint.WindowMs = 5 * 60 * 1000
	}
	if cfg.Guard.Fingerprint.MaxEvents == 0 {
		cfg.Guard.Fingerprint.MaxEvents = 100
	}
	if cfg.Guard.Suspicion.Threshold == 0 {
		cfg.Guard.Suspicion.Threshold = 3
	}
	if cfg.Guard.Suspicion.EscalateMultiplier == 0 {
		cfg.Guard.Suspicion.EscalateMultiplier = 5
	}
	if cfg.Guard.Suspicion.RecordTTL == 0 {
		cfg.Guard.Suspicion.RecordTTL = time.Hour
	}
	if cfg.Guard.Suspicion.MaxForwardedDepth == 0 {
		cfg.Guard.Suspicion.MaxForwardedDepth = 5
	}
	if cfg.Guard.AttackMode.HighThreshold == 0 {
		cfg.Guard.AttackMode.HighThreshold = 1000
	}
	if cfg.Guard.AttackMode.ExitRatio == 0 {
		cfg.Guard.AttackMode.ExitRatio = 0.5
	}
	if cfg.Guard.AttackMode.BucketTTL == 0 {
		cfg.Guard.AttackMode.BucketTTL = 2 * time.Minute
	}
	if cfg.Guard.AttackMode.FlagTTL == 0 {
		cfg.Guard.AttackMode.FlagTTL = 5 * time.Minute
	}
	if cfg.Guard.SweepInterval == 0 {
		cfg.Guard.SweepInterval = time.Minute
	}
}

func GetConfig() *Config {
	return &globalConfig
}
