package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "NOTENEST"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "notenest-documents.db"
	defaultLogLevel       = "info"
	defaultLocalStorePath = "NoteNestLocalDB.db"
	defaultCacheDir       = ".notenest"
	defaultIPLookupURL    = "https://api64.ipify.org?format=json"
	defaultTimeoutSeconds = 30
	defaultS3Key          = "notenest-backup.json"
)

// AppConfig captures runtime configuration for the CLI and the document server.
type AppConfig struct {
	LocalStorePath string
	CacheDir       string
	RemoteEndpoint string
	BackupEndpoint string
	IPLookupURL    string
	RemoteTimeout  time.Duration
	Chapters       notes.ChapterSet
	BackupS3       S3Config
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
}

// S3Config selects an S3 object as the backup target when Bucket is set.
// Empty credentials defer to the default AWS credential chain.
type S3Config struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether the S3 backup target is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("local.store_path", defaultLocalStorePath)
	configViper.SetDefault("local.cache_dir", defaultCacheDir)
	configViper.SetDefault("remote.endpoint", "")
	configViper.SetDefault("remote.backup_endpoint", "")
	configViper.SetDefault("remote.ip_lookup_url", defaultIPLookupURL)
	configViper.SetDefault("remote.timeout_seconds", defaultTimeoutSeconds)
	configViper.SetDefault("backup.s3.bucket", "")
	configViper.SetDefault("backup.s3.key", defaultS3Key)
	configViper.SetDefault("backup.s3.region", "")
	configViper.SetDefault("backup.s3.endpoint", "")
	configViper.SetDefault("backup.s3.access_key_id", "")
	configViper.SetDefault("backup.s3.secret_access_key", "")
	configViper.SetDefault("chapters", notes.DefaultChapters)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// chapterNames reads the whitelist. A plain string, as set through NOTENEST_CHAPTERS, is a
// comma-separated list so chapter names may contain spaces.
func chapterNames(configViper *viper.Viper) []string {
	raw, isString := configViper.Get("chapters").(string)
	if !isString {
		return configViper.GetStringSlice("chapters")
	}
	names := []string{}
	for _, name := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	chapters, err := notes.NewChapterSet(chapterNames(configViper))
	if err != nil {
		return AppConfig{}, fmt.Errorf("chapters: %w", err)
	}

	cfg := AppConfig{
		LocalStorePath: strings.TrimSpace(configViper.GetString("local.store_path")),
		CacheDir:       strings.TrimSpace(configViper.GetString("local.cache_dir")),
		RemoteEndpoint: strings.TrimSpace(configViper.GetString("remote.endpoint")),
		BackupEndpoint: strings.TrimSpace(configViper.GetString("remote.backup_endpoint")),
		IPLookupURL:    strings.TrimSpace(configViper.GetString("remote.ip_lookup_url")),
		RemoteTimeout:  time.Duration(configViper.GetInt("remote.timeout_seconds")) * time.Second,
		Chapters:       chapters,
		BackupS3: S3Config{
			Bucket:          strings.TrimSpace(configViper.GetString("backup.s3.bucket")),
			Key:             strings.TrimSpace(configViper.GetString("backup.s3.key")),
			Region:          strings.TrimSpace(configViper.GetString("backup.s3.region")),
			Endpoint:        strings.TrimSpace(configViper.GetString("backup.s3.endpoint")),
			AccessKeyID:     strings.TrimSpace(configViper.GetString("backup.s3.access_key_id")),
			SecretAccessKey: configViper.GetString("backup.s3.secret_access_key"),
		},
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.LocalStorePath == "" {
		return fmt.Errorf("local.store_path is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("local.cache_dir is required")
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote.timeout_seconds must be positive")
	}
	if err := validateEndpoint("remote.endpoint", c.RemoteEndpoint); err != nil {
		return err
	}
	if err := validateEndpoint("remote.backup_endpoint", c.BackupEndpoint); err != nil {
		return err
	}
	if err := validateEndpoint("remote.ip_lookup_url", c.IPLookupURL); err != nil {
		return err
	}
	if c.BackupS3.Enabled() && c.BackupS3.Key == "" {
		return fmt.Errorf("backup.s3.key is required when backup.s3.bucket is set")
	}
	if err := validateEndpoint("backup.s3.endpoint", c.BackupS3.Endpoint); err != nil {
		return err
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// validateEndpoint accepts an empty value (feature disabled) or an absolute http(s) URL.
func validateEndpoint(key, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
