package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Registry backends.
const (
	RegistryMemory = "memory"
	RegistrySQLite = "sqlite"
	RegistryRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	Port           int               `toml:"port"`
	ArtifactDir    string            `toml:"artifact_dir"`
	MaxArtifactAge time.Duration     `toml:"max_artifact_age"`
	JobTTL         time.Duration     `toml:"job_ttl"`
	SweepInterval  time.Duration     `toml:"sweep_interval"`
	Workers        int               `toml:"workers"`
	JobTimeout     time.Duration     `toml:"job_timeout"`
	AudioExt       string            `toml:"audio_ext"`
	VideoExt       string            `toml:"video_ext"`
	Registry       string            `toml:"registry"`
	DBPath         string            `toml:"db_path"`
	Redis          RedisConfig       `toml:"redis"`
	YtDlp          YtDlpConfig       `toml:"ytdlp"`
	Extractors     []ExtractorConfig `toml:"extractor"`

	// ConfigPath is the file the config was read from, if any.
	ConfigPath string `toml:"-"`
}

// RedisConfig configures the redis registry backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// YtDlpConfig configures the built-in yt-dlp extractor.
type YtDlpConfig struct {
	Path         string `toml:"path"`
	FFmpegPath   string `toml:"ffmpeg_path"`
	AudioQuality string `toml:"audio_quality"`
	Pattern      string `toml:"pattern"`
}

// ExtractorConfig describes a command-based extractor, one [[extractor]]
// table in the config file.
type ExtractorConfig struct {
	Name    string   `toml:"name"`
	Pattern string   `toml:"pattern"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Isolate *bool    `toml:"isolate"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:           8080,
		ArtifactDir:    DefaultArtifactDir(),
		MaxArtifactAge: 24 * time.Hour,
		JobTTL:         24 * time.Hour,
		SweepInterval:  10 * time.Minute,
		Workers:        3,
		JobTimeout:     30 * time.Minute,
		AudioExt:       "mp3",
		VideoExt:       "mp4",
		Registry:       RegistryMemory,
		DBPath:         ":memory:",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "mediagrab:",
		},
		YtDlp: YtDlpConfig{
			Path:         "yt-dlp",
			AudioQuality: "192K",
		},
	}
}

// DefaultConfigPath returns the config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "mediagrab", "config.toml")
}

// DefaultArtifactDir returns the default download directory using
// XDG_CACHE_HOME.
func DefaultArtifactDir() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "mediagrab", "downloads")
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Load builds Config from defaults, the TOML file, environment and flags,
// each layer overriding the previous one. Only flags given explicitly on
// the command line override.
func Load(args []string) (*Config, error) {
	fv := Defaults()
	flags := flag.NewFlagSet("mediagrab", flag.ContinueOnError)
	configPath := flags.String("config", DefaultConfigPath(), "TOML config file")
	flags.IntVar(&fv.Port, "port", fv.Port, "HTTP server port")
	flags.StringVar(&fv.ArtifactDir, "artifact-dir", fv.ArtifactDir, "Directory for produced artifacts")
	flags.DurationVar(&fv.MaxArtifactAge, "max-artifact-age", fv.MaxArtifactAge, "Delete artifacts older than this")
	flags.DurationVar(&fv.JobTTL, "job-ttl", fv.JobTTL, "Forget jobs older than this")
	flags.DurationVar(&fv.SweepInterval, "sweep-interval", fv.SweepInterval, "Maintenance interval")
	flags.IntVar(&fv.Workers, "workers", fv.Workers, "Maximum concurrent extractions")
	flags.DurationVar(&fv.JobTimeout, "job-timeout", fv.JobTimeout, "Deadline for one extraction")
	flags.StringVar(&fv.Registry, "registry", fv.Registry, "Job registry backend: memory, sqlite or redis")
	flags.StringVar(&fv.DBPath, "db", fv.DBPath, "SQLite database path for the sqlite registry")
	flags.StringVar(&fv.Redis.Addr, "redis-addr", fv.Redis.Addr, "Redis address for the redis registry")
	flags.StringVar(&fv.YtDlp.Path, "ytdlp", fv.YtDlp.Path, "yt-dlp binary")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := Defaults()
	if err := cfg.loadFile(*configPath, explicit["config"]); err != nil {
		return nil, err
	}
	cfg.loadEnv()

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fv.Port
		case "artifact-dir":
			cfg.ArtifactDir = fv.ArtifactDir
		case "max-artifact-age":
			cfg.MaxArtifactAge = fv.MaxArtifactAge
		case "job-ttl":
			cfg.JobTTL = fv.JobTTL
		case "sweep-interval":
			cfg.SweepInterval = fv.SweepInterval
		case "workers":
			cfg.Workers = fv.Workers
		case "job-timeout":
			cfg.JobTimeout = fv.JobTimeout
		case "registry":
			cfg.Registry = fv.Registry
		case "db":
			cfg.DBPath = fv.DBPath
		case "redis-addr":
			cfg.Redis.Addr = fv.Redis.Addr
		case "ytdlp":
			cfg.YtDlp.Path = fv.YtDlp.Path
		}
	})

	cfg.ArtifactDir = ExpandPath(cfg.ArtifactDir)
	cfg.DBPath = ExpandPath(cfg.DBPath)
	cfg.YtDlp.Path = ExpandPath(cfg.YtDlp.Path)
	cfg.YtDlp.FFmpegPath = ExpandPath(cfg.YtDlp.FFmpegPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes the TOML file into cfg. A missing file is an error only
// when the path was given explicitly.
func (c *Config) loadFile(path string, required bool) error {
	path = ExpandPath(path)
	_, err := toml.DecodeFile(path, c)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	c.ConfigPath = path
	return nil
}

// loadEnv applies MEDIAGRAB_* overrides. Unparseable values are ignored.
func (c *Config) loadEnv() {
	if port := os.Getenv("MEDIAGRAB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
	}
	if dir := os.Getenv("MEDIAGRAB_ARTIFACT_DIR"); dir != "" {
		c.ArtifactDir = dir
	}
	if v := os.Getenv("MEDIAGRAB_MAX_ARTIFACT_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxArtifactAge = d
		}
	}
	if v := os.Getenv("MEDIAGRAB_JOB_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.JobTTL = d
		}
	}
	if v := os.Getenv("MEDIAGRAB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("MEDIAGRAB_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.JobTimeout = d
		}
	}
	if v := os.Getenv("MEDIAGRAB_REGISTRY"); v != "" {
		c.Registry = v
	}
	if v := os.Getenv("MEDIAGRAB_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MEDIAGRAB_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MEDIAGRAB_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("MEDIAGRAB_YTDLP_PATH"); v != "" {
		c.YtDlp.Path = v
	}
	if v := os.Getenv("MEDIAGRAB_FFMPEG_PATH"); v != "" {
		c.YtDlp.FFmpegPath = v
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Registry {
	case RegistryMemory, RegistrySQLite, RegistryRedis:
	default:
		return fmt.Errorf("unknown registry %q", c.Registry)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxArtifactAge <= 0 || c.JobTTL <= 0 || c.SweepInterval <= 0 || c.JobTimeout <= 0 {
		return errors.New("durations must be positive")
	}
	if c.ArtifactDir == "" {
		return errors.New("artifact_dir is required")
	}
	for i, ec := range c.Extractors {
		if ec.Name == "" || ec.Command == "" {
			return fmt.Errorf("extractor #%d: name and command are required", i+1)
		}
	}
	return nil
}
