package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Export   ExportConfig   `mapstructure:"export"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	PublicURL string `mapstructure:"public_url"` // Origin of the caller window, e.g. http://localhost:8765
}

// OAuthConfig configures the PKCE authorization-code handshake.
type OAuthConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	AuthorizeURL  string        `mapstructure:"authorize_url"`
	TokenURL      string        `mapstructure:"token_url"`
	UserInfoURL   string        `mapstructure:"userinfo_url"`
	RedirectURI   string        `mapstructure:"redirect_uri"`
	Scopes        []string      `mapstructure:"scopes"`
	DevOrigins    []string      `mapstructure:"dev_origins"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FallbackGrace time.Duration `mapstructure:"fallback_grace"`
	PopupWidth    int           `mapstructure:"popup_width"`
	PopupHeight   int           `mapstructure:"popup_height"`
	OpenBrowser   bool          `mapstructure:"open_browser"`
}

// ExportConfig configures the backend export service contract.
type ExportConfig struct {
	SubmitURL      string        `mapstructure:"submit_url"`
	BaseURL        string        `mapstructure:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type WorkflowConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffUnit time.Duration `mapstructure:"backoff_unit"`
}

// PublishConfig selects and configures the destination repository client.
type PublishConfig struct {
	Target      string `mapstructure:"target"` // hub, s3
	License     string `mapstructure:"license"`
	HubEndpoint string `mapstructure:"hub_endpoint"`
	RepoType    string `mapstructure:"repo_type"`
	Private     bool   `mapstructure:"private"`
}

// StorageConfig holds S3-compatible object storage settings for the s3 publish target.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"` // Key prefix under which repositories are laid out
}

// LogConfig configures the process logger. LOG_LEVEL, LOG_FORMAT and LOG_FILE
// override the file through the env key replacer.
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`   // Rotated log file; empty disables file output
	FileOnly   bool   `mapstructure:"file_only"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
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
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("oauth.client_id", "OAUTH_CLIENT_ID")
	v.BindEnv("oauth.redirect_uri", "OAUTH_REDIRECT_URI")
	v.BindEnv("export.submit_url", "EXPORT_SUBMIT_URL")
	v.BindEnv("export.base_url", "EXPORT_BASE_URL")
	v.BindEnv("publish.hub_endpoint", "HUB_ENDPOINT")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.public_url", "http://localhost:8765")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/hubexport.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "hubexport")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("oauth.authorize_url", "https://huggingface.co/oauth/authorize")
	v.SetDefault("oauth.token_url", "https://huggingface.co/oauth/token")
	v.SetDefault("oauth.userinfo_url", "https://huggingface.co/oauth/userinfo")
	v.SetDefault("oauth.redirect_uri", "http://localhost:8765/oauth/callback")
	v.SetDefault("oauth.scopes", []string{"openid", "profile", "write-repos"})
	v.SetDefault("oauth.dev_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173"})
	v.SetDefault("oauth.timeout", 5*time.Minute)
	v.SetDefault("oauth.fallback_grace", 500*time.Millisecond)
	v.SetDefault("oauth.popup_width", 600)
	v.SetDefault("oauth.popup_height", 700)
	v.SetDefault("oauth.open_browser", true)

	v.SetDefault("export.poll_interval", 5*time.Second)
	v.SetDefault("export.request_timeout", 30*time.Second)

	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.backoff_unit", time.Second)

	v.SetDefault("publish.target", "hub")
	v.SetDefault("publish.license", "cc-by-4.0")
	v.SetDefault("publish.hub_endpoint", "https://huggingface.co")
	v.SetDefault("publish.repo_type", "dataset")

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "datasets")
	v.SetDefault("storage.prefix", "repos")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.file_only", false)
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
}

// Validate checks the settings every invocation depends on, including the
// callback-server-only mode.
func (c *Config) Validate() error {
	if c.Workflow.MaxRetries < 1 {
		return fmt.Errorf("workflow.max_retries must be at least 1")
	}
	switch c.Publish.Target {
	case "hub", "s3":
	default:
		return fmt.Errorf("publish.target: unknown target %q", c.Publish.Target)
	}
	return nil
}

// ValidateExport checks the settings an export run needs on top of Validate.
func (c *Config) ValidateExport() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required (set directly or via OAUTH_CLIENT_ID)")
	}
	if c.Export.SubmitURL == "" {
		return fmt.Errorf("export.submit_url is required (set directly or via EXPORT_SUBMIT_URL)")
	}
	if c.Export.BaseURL == "" {
		return fmt.Errorf("export.base_url is required (set directly or via EXPORT_BASE_URL)")
	}
	return nil
}
