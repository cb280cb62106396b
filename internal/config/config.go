package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// ScraperConfig describes the maintenance portal and the browser session.
type ScraperConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	LoginPath      string        `mapstructure:"login_path"`
	TargetPath     string        `mapstructure:"target_path"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Headless       bool          `mapstructure:"headless"`
	ReloadTimeout  time.Duration `mapstructure:"reload_timeout"`
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout"`
	LoginAttempts  int           `mapstructure:"login_attempts"`
	LoginPoll      time.Duration `mapstructure:"login_poll"`
	RowWorkers     int           `mapstructure:"row_workers"`
}

// LoginURL is the absolute URL of the login view.
func (c ScraperConfig) LoginURL() string {
	return joinURL(c.BaseURL, c.LoginPath)
}

// TargetURL is the absolute URL of the pending orders view.
func (c ScraperConfig) TargetURL() string {
	return joinURL(c.BaseURL, c.TargetPath)
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

type MonitorConfig struct {
	Interval               time.Duration        `mapstructure:"interval"`
	CacheTTL               time.Duration        `mapstructure:"cache_ttl"`
	CacheFile              string               `mapstructure:"cache_file"`
	SaveProbability        float64              `mapstructure:"save_probability"`
	Timezone               string               `mapstructure:"timezone"`
	Schedule               ScheduleConfig       `mapstructure:"schedule"`
	DailyReconcile         DailyReconcileConfig `mapstructure:"daily_reconcile"`
	CriticalCloseThreshold time.Duration        `mapstructure:"critical_close_threshold"`
	RestartGrace           time.Duration        `mapstructure:"restart_grace"`
	AutoRestartDelay       time.Duration        `mapstructure:"auto_restart_delay"`
	Heartbeat              HeartbeatConfig      `mapstructure:"heartbeat"`
	StoreImport            bool                 `mapstructure:"store_import"`
}

// ScheduleConfig is the daily operating window, as HH:MM in the monitor timezone.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Start   string `mapstructure:"start"`
	End     string `mapstructure:"end"`
}

type DailyReconcileConfig struct {
	Start  string        `mapstructure:"start"`
	Window time.Duration `mapstructure:"window"`
}

type HeartbeatConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Check   time.Duration `mapstructure:"check"`
}

type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	ChatID        int64         `mapstructure:"chat_id"`
	APIURL        string        `mapstructure:"api_url"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
}

// Enabled reports whether chat alerts can be sent.
func (c TelegramConfig) Enabled() bool {
	return c.Token != "" && c.ChatID != 0
}

// SnapshotConfig configures the optional S3-compatible mirror of the cache file.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Key       string `mapstructure:"key"`
}

type AdminConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("scraper.username", "GETS_USERNAME")
	v.BindEnv("scraper.password", "GETS_PASSWORD")
	v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")
	v.BindEnv("snapshot.access_key", "S3_ACCESS_KEY")
	v.BindEnv("snapshot.secret_key", "S3_SECRET_KEY")
	v.BindEnv("admin.password_hash", "ADMIN_PASSWORD_HASH")
	v.BindEnv("admin.jwt_secret", "JWT_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/orders.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scraper.base_url", "https://gets.ceb.unicamp.br/nec/view")
	v.SetDefault("scraper.login_path", "/inicio/index.jsf")
	v.SetDefault("scraper.target_path", "/pendencias/consulta.jsf")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.reload_timeout", "15s")
	v.SetDefault("scraper.element_timeout", "7s")
	v.SetDefault("scraper.login_timeout", "30s")
	v.SetDefault("scraper.login_attempts", 15)
	v.SetDefault("scraper.login_poll", "1s")
	v.SetDefault("scraper.row_workers", 8)

	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.cache_ttl", "5m")
	v.SetDefault("monitor.cache_file", "./data/cache_os.json")
	v.SetDefault("monitor.save_probability", 0.1)
	v.SetDefault("monitor.timezone", "America/Sao_Paulo")
	v.SetDefault("monitor.schedule.enabled", true)
	v.SetDefault("monitor.schedule.start", "06:45")
	v.SetDefault("monitor.schedule.end", "19:45")
	v.SetDefault("monitor.daily_reconcile.start", "08:00")
	v.SetDefault("monitor.daily_reconcile.window", "10m")
	v.SetDefault("monitor.critical_close_threshold", "24h")
	v.SetDefault("monitor.restart_grace", "2s")
	v.SetDefault("monitor.auto_restart_delay", "30s")
	v.SetDefault("monitor.heartbeat.timeout", "2m")
	v.SetDefault("monitor.heartbeat.check", "30s")
	v.SetDefault("monitor.store_import", true)

	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_backoff", "5s")
	v.SetDefault("telegram.rate_per_minute", 20)
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.search_timeout", "5m")

	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.use_ssl", true)
	v.SetDefault("snapshot.key", "monitor/cache_os.json")

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.token_ttl", "8h")
}

// Validate checks the settings every entry point needs.
func (c *Config) Validate() error {
	var problems []string
	if c.Scraper.Username == "" || c.Scraper.Password == "" {
		problems = append(problems, "scraper credentials are required (GETS_USERNAME, GETS_PASSWORD)")
	}
	if c.Monitor.Interval <= 0 {
		problems = append(problems, "monitor.interval must be positive")
	}
	if c.Monitor.CacheTTL <= 0 {
		problems = append(problems, "monitor.cache_ttl must be positive")
	}
	if c.Monitor.SaveProbability < 0 || c.Monitor.SaveProbability > 1 {
		problems = append(problems, "monitor.save_probability must be within [0,1]")
	}
	if _, err := time.LoadLocation(c.Monitor.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("monitor.timezone: %v", err))
	}
	if c.Admin.Enabled && (c.Admin.PasswordHash == "" || c.Admin.JWTSecret == "") {
		problems = append(problems, "admin panel requires ADMIN_PASSWORD_HASH and JWT_SECRET")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
