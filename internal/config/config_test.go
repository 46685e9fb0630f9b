package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigPath(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")

		path := DefaultConfigPath()
		expected := "/custom/config/mediagrab/config.toml"
		if path != expected {
			t.Errorf("DefaultConfigPath() = %q, want %q", path, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")

		path := DefaultConfigPath()
		if !strings.HasSuffix(path, filepath.Join(".config", "mediagrab", "config.toml")) {
			t.Errorf("DefaultConfigPath() = %q, want suffix .config/mediagrab/config.toml", path)
		}
	})
}

func TestDefaultArtifactDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/custom/cache")

	if got := DefaultArtifactDir(); got != "/custom/cache/mediagrab/downloads" {
		t.Errorf("DefaultArtifactDir() = %q, want /custom/cache/mediagrab/downloads", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/bin/yt-dlp", filepath.Join(home, "bin", "yt-dlp")},
		{"/usr/bin/yt-dlp", "/usr/bin/yt-dlp"},
		{"yt-dlp", "yt-dlp"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// isolate points every lookup at a fresh directory so the developer's own
// config and environment never leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	for _, key := range []string{
		"MEDIAGRAB_PORT", "MEDIAGRAB_ARTIFACT_DIR", "MEDIAGRAB_MAX_ARTIFACT_AGE",
		"MEDIAGRAB_JOB_TTL", "MEDIAGRAB_WORKERS", "MEDIAGRAB_JOB_TIMEOUT",
		"MEDIAGRAB_REGISTRY", "MEDIAGRAB_DB", "MEDIAGRAB_REDIS_ADDR",
		"MEDIAGRAB_REDIS_PASSWORD", "MEDIAGRAB_YTDLP_PATH", "MEDIAGRAB_FFMPEG_PATH",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "mediagrab", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.MaxArtifactAge != 24*time.Hour || cfg.JobTTL != 24*time.Hour {
		t.Errorf("MaxArtifactAge, JobTTL = %s, %s, want 24h, 24h", cfg.MaxArtifactAge, cfg.JobTTL)
	}
	if cfg.JobTimeout != 30*time.Minute {
		t.Errorf("JobTimeout = %s, want 30m", cfg.JobTimeout)
	}
	if cfg.Registry != RegistryMemory {
		t.Errorf("Registry = %q, want %q", cfg.Registry, RegistryMemory)
	}
	if want := filepath.Join(dir, "mediagrab", "downloads"); cfg.ArtifactDir != want {
		t.Errorf("ArtifactDir = %q, want %q", cfg.ArtifactDir, want)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty without a file", cfg.ConfigPath)
	}
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
port = 9000
workers = 5
max_artifact_age = "2h"
registry = "sqlite"
db_path = "/tmp/jobs.db"

[ytdlp]
path = "/opt/yt-dlp"
audio_quality = "320K"

[[extractor]]
name = "soundcloud"
pattern = "^https://soundcloud\\.com/"
command = "scdl"
args = ["-l", "{url}", "--path", "{dir}"]
isolate = false
`)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", cfg.ConfigPath, path)
	}
	if cfg.Port != 9000 || cfg.Workers != 5 {
		t.Errorf("Port, Workers = %d, %d, want 9000, 5", cfg.Port, cfg.Workers)
	}
	if cfg.MaxArtifactAge != 2*time.Hour {
		t.Errorf("MaxArtifactAge = %s, want 2h", cfg.MaxArtifactAge)
	}
	if cfg.JobTTL != 24*time.Hour {
		t.Errorf("JobTTL = %s, want default 24h", cfg.JobTTL)
	}
	if cfg.Registry != RegistrySQLite || cfg.DBPath != "/tmp/jobs.db" {
		t.Errorf("Registry, DBPath = %q, %q", cfg.Registry, cfg.DBPath)
	}
	if cfg.YtDlp.Path != "/opt/yt-dlp" || cfg.YtDlp.AudioQuality != "320K" {
		t.Errorf("YtDlp = %+v", cfg.YtDlp)
	}
	if len(cfg.Extractors) != 1 {
		t.Fatalf("Extractors len = %d, want 1", len(cfg.Extractors))
	}
	ec := cfg.Extractors[0]
	if ec.Name != "soundcloud" || ec.Command != "scdl" || len(ec.Args) != 4 {
		t.Errorf("Extractors[0] = %+v", ec)
	}
	if ec.Isolate == nil || *ec.Isolate {
		t.Errorf("Extractors[0].Isolate = %v, want false", ec.Isolate)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
port = 9000
workers = 5
registry = "sqlite"
`)
	t.Setenv("MEDIAGRAB_PORT", "9100")
	t.Setenv("MEDIAGRAB_WORKERS", "7")

	cfg, err := Load([]string{"-workers", "2"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// file < env < explicit flag
	if cfg.Registry != RegistrySQLite {
		t.Errorf("Registry = %q, want sqlite from file", cfg.Registry)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100 from env", cfg.Port)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 from flag", cfg.Workers)
	}
}

func TestLoad_UnsetFlagKeepsFileValue(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `port = 9000`)

	cfg, err := Load([]string{"-workers", "4"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000 (flag default must not override file)", cfg.Port)
	}
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("MEDIAGRAB_PORT", "not-a-port")
	t.Setenv("MEDIAGRAB_JOB_TTL", "soon")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 || cfg.JobTTL != 24*time.Hour {
		t.Errorf("Port, JobTTL = %d, %s, want defaults", cfg.Port, cfg.JobTTL)
	}
}

func TestLoad_ExplicitConfigMissing(t *testing.T) {
	dir := isolate(t)

	_, err := Load([]string{"-config", filepath.Join(dir, "nope.toml")})
	if err == nil {
		t.Error("Load() error = nil, want error for missing explicit config")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `port = "eighty"`)

	if _, err := Load(nil); err == nil {
		t.Error("Load() error = nil, want decode error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"redis", func(c *Config) { c.Registry = RegistryRedis }, false},
		{"unknown registry", func(c *Config) { c.Registry = "etcd" }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero ttl", func(c *Config) { c.JobTTL = 0 }, true},
		{"negative timeout", func(c *Config) { c.JobTimeout = -time.Second }, true},
		{"empty artifact dir", func(c *Config) { c.ArtifactDir = "" }, true},
		{"extractor without command", func(c *Config) {
			c.Extractors = []ExtractorConfig{{Name: "x", Pattern: ".*"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
