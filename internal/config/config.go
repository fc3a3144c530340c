// Package config loads runtime configuration for the pipeline runner into
// an explicit struct threaded through constructors rather than a
// module-level singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// OIDCConfig controls the OIDC Token Issuer's claims.
type OIDCConfig struct {
	Enabled  bool
	Issuer   string
	Audience string
}

// Config is the fully-resolved set of knobs the engine reads. It is built
// once per process by Load and passed by reference into the runners.
type Config struct {
	ProjectDirectory string
	PipelinesFile    string
	EnvFiles         []string
	SelectedSteps    []string
	SelectedStages   []string

	Volumes []string // docker-spec "host:container[:mode]" strings

	TotalMemoryLimit                int // MiB
	ServiceContainerDefaultMemory   int // MiB
	BuildContainerMinimumMemory     int // MiB
	CPULimits                       bool

	DefaultImage    string
	DefaultServices []string
	DefaultCaches   map[string]string

	OIDC OIDCConfig

	Color bool

	DataDir  string
	CacheDir string
}

const envPrefix = "PIPELINE"

// Load reads configuration from environment variables (PIPELINE_* prefix),
// an optional ~/.config/pipeline-runner/config.yml, and falls back to
// Defaults(). Mirrors the way the rest of the pack binds viper to env vars
// plus a config file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pipeline-runner"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: reading config file: %w", err)
			}
		}
	}

	def := Defaults()

	cfg := &Config{
		ProjectDirectory:              v.GetString("project_directory"),
		PipelinesFile:                 v.GetString("file"),
		TotalMemoryLimit:              getIntOr(v, "total_memory_limit", def.TotalMemoryLimit),
		ServiceContainerDefaultMemory: getIntOr(v, "service_container_default_memory_limit", def.ServiceContainerDefaultMemory),
		BuildContainerMinimumMemory:   getIntOr(v, "build_container_minimum_memory", def.BuildContainerMinimumMemory),
		CPULimits:                     v.GetBool("cpu_limits"),
		DefaultImage:                  getStringOr(v, "default_image", def.DefaultImage),
		DefaultServices:               def.DefaultServices,
		DefaultCaches:                 def.DefaultCaches,
		OIDC: OIDCConfig{
			Enabled:  v.GetBool("oidc.enabled"),
			Issuer:   getStringOr(v, "oidc.issuer", "https://api.bitbucket.org"),
			Audience: getStringOr(v, "oidc.audience", "ari:cloud:bitbucket::workspace"),
		},
		Color: v.GetBool("color"),
	}

	if envFiles := v.GetString("env_files"); envFiles != "" {
		cfg.EnvFiles = strings.Split(envFiles, ",")
	}
	if steps := v.GetString("steps"); steps != "" {
		cfg.SelectedSteps = strings.Split(steps, ",")
	}

	if cfg.ProjectDirectory == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: resolving project directory: %w", err)
		}
		cfg.ProjectDirectory = wd
	}
	if cfg.PipelinesFile == "" {
		cfg.PipelinesFile = filepath.Join(cfg.ProjectDirectory, "bitbucket-pipelines.yml")
	}

	dataDir, cacheDir, err := Dirs()
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir
	cfg.CacheDir = cacheDir

	return cfg, nil
}

func getIntOr(v *viper.Viper, key string, fallback int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return fallback
}

func getStringOr(v *viper.Viper, key, fallback string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return fallback
}

// Dirs resolves the XDG-style data/cache directories, kept minimal since
// full platform-specific path discovery isn't attempted.
func Dirs() (dataDir, cacheDir string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		dataDir = filepath.Join(d, "pipeline-runner")
	} else {
		dataDir = filepath.Join(home, ".local", "share", "pipeline-runner")
	}
	if d := os.Getenv("XDG_CACHE_HOME"); d != "" {
		cacheDir = filepath.Join(d, "pipeline-runner")
	} else {
		cacheDir = filepath.Join(home, ".cache", "pipeline-runner")
	}
	return dataDir, cacheDir, nil
}
