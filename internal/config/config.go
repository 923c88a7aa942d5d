package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Anthropic     AnthropicConfig    `mapstructure:"anthropic"`
	Monitoring    MonitoringConfig   `mapstructure:"monitoring"`
	Safety        SafetyConfig       `mapstructure:"safety"`
	Termination   TerminationConfig  `mapstructure:"termination"`
	Suppression   SuppressionConfig  `mapstructure:"suppression"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	History       HistoryConfig      `mapstructure:"history"`
	API           APIConfig          `mapstructure:"api"`
	Describe      DescribeConfig     `mapstructure:"describe"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type MonitoringConfig struct {
	ScanInterval         time.Duration `mapstructure:"scan_interval"`
	ServiceRefreshCycles int           `mapstructure:"service_refresh_cycles"`
	NetCounters          bool          `mapstructure:"net_counters"`
}

type SafetyConfig struct {
	ConsentLevel     int      `mapstructure:"consent_level"`
	AlwaysCritical   []string `mapstructure:"always_critical"`
	CautionOverrides []string `mapstructure:"caution_overrides"`
	CatalogFile      string   `mapstructure:"catalog_file"`
}

type TerminationConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	KillWait     time.Duration `mapstructure:"kill_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RespawnDelay time.Duration `mapstructure:"respawn_delay"`
}

type SuppressionConfig struct {
	LedgerFile    string   `mapstructure:"ledger_file"`
	HookDir       string   `mapstructure:"hook_dir"`
	AutostartDirs []string `mapstructure:"autostart_dirs"`
}

type NotificationConfig struct {
	LogFile      string `mapstructure:"log_file"`
	AuditFile    string `mapstructure:"audit_file"`
	Verbose      bool   `mapstructure:"verbose"`
	ColorEnabled bool   `mapstructure:"color_enabled"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type APIConfig struct {
	Addr    string `mapstructure:"addr"`
	PIDFile string `mapstructure:"pid_file"`
}

type DescribeConfig struct {
	AIEnabled         bool          `mapstructure:"ai_enabled"`
	CacheSize         int           `mapstructure:"cache_size"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	MaxRequestsPerMin int           `mapstructure:"max_requests_per_min"`
}

// DefaultAlwaysCritical are processes that are never terminated without force.
var DefaultAlwaysCritical = []string{
	"system", "smss.exe", "csrss.exe", "wininit.exe", "winlogon.exe",
	"services.exe", "lsass.exe", "lsaiso.exe", "dwm.exe", "ntoskrnl.exe",
	"registry.exe", "registry", "memory_compression", "memory compression",
	"secure system", "trustedinstaller.exe", "fontdrvhost.exe",
	"systemd", "init", "kthreadd", "systemd-journald", "systemd-logind", "dbus-daemon",
}

// DefaultCautionOverrides are processes that always need confirmation.
var DefaultCautionOverrides = []string{
	"explorer.exe", "spoolsv.exe", "searchindexer.exe", "audiodg.exe",
	"msmpeng.exe", "securityhealthservice.exe", "wlanext.exe",
	"nissrv.exe", "wudfhost.exe",
	"sshd", "NetworkManager", "Xorg", "Xwayland", "gnome-shell", "kwin_wayland",
	"pipewire", "pulseaudio", "gdm", "lightdm", "login",
}

func homePath(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(parts...)
	}
	return filepath.Join(append([]string{home}, parts...)...)
}

func setDefaults() {
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")

	viper.SetDefault("monitoring.scan_interval", "2s")
	viper.SetDefault("monitoring.service_refresh_cycles", 30)
	viper.SetDefault("monitoring.net_counters", false)

	viper.SetDefault("safety.consent_level", 1)
	viper.SetDefault("safety.always_critical", DefaultAlwaysCritical)
	viper.SetDefault("safety.caution_overrides", DefaultCautionOverrides)
	viper.SetDefault("safety.catalog_file", "")

	viper.SetDefault("termination.timeout", "3s")
	viper.SetDefault("termination.kill_wait", "1s")
	viper.SetDefault("termination.poll_interval", "100ms")
	viper.SetDefault("termination.respawn_delay", "3s")

	viper.SetDefault("suppression.ledger_file", homePath(".procguard", "suppressions.json"))
	viper.SetDefault("suppression.hook_dir", "/usr/local/sbin")
	viper.SetDefault("suppression.autostart_dirs", []string{})

	viper.SetDefault("notifications.log_file", "procguard.log")
	viper.SetDefault("notifications.audit_file", "procguard-audit.log")
	viper.SetDefault("notifications.verbose", false)
	viper.SetDefault("notifications.color_enabled", true)

	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.db_path", homePath(".procguard", "history.db"))

	viper.SetDefault("api.addr", "127.0.0.1:7664")
	viper.SetDefault("api.pid_file", homePath(".procguard", "procguard.pid"))

	viper.SetDefault("describe.ai_enabled", false)
	viper.SetDefault("describe.cache_size", 512)
	viper.SetDefault("describe.cache_ttl", "30m")
	viper.SetDefault("describe.max_requests_per_min", 30)
}

// Load reads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	viper.Reset()
	setDefaults()

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("PROCGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow API key from env
	_ = viper.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		// Search in current dir, home dir, /etc
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".procguard"))
		}
		viper.AddConfigPath("/etc/procguard")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, we use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Monitoring.ScanInterval <= 0 {
		return fmt.Errorf("monitoring.scan_interval must be positive")
	}
	if c.Monitoring.ServiceRefreshCycles < 1 {
		return fmt.Errorf("monitoring.service_refresh_cycles must be at least 1")
	}
	if c.Termination.Timeout <= 0 {
		return fmt.Errorf("termination.timeout must be positive")
	}
	if c.Safety.ConsentLevel < 0 || c.Safety.ConsentLevel > 3 {
		return fmt.Errorf("safety.consent_level must be between 0 and 3")
	}
	if c.Suppression.LedgerFile == "" {
		return fmt.Errorf("suppression.ledger_file is required")
	}
	return nil
}

// Global holds the current loaded configuration.
var Global *Config
