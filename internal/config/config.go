// Package config loads mcfetch settings from ~/.mcfetch.yaml and MCFETCH_*
// environment variables. Command-line flags are applied on top by cmd.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/minelauncher/mcfetch/internal/coordinator"
	"github.com/minelauncher/mcfetch/internal/source"
	"github.com/minelauncher/mcfetch/internal/transport"
	"github.com/minelauncher/mcfetch/internal/utils"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "MCFETCH"

type MirrorConfig struct {
	Base     string `yaml:"base" envconfig:"BASE" validate:"omitempty,url"`
	Token    string `yaml:"token" envconfig:"TOKEN"`
	Manifest string `yaml:"manifest" envconfig:"MANIFEST" validate:"omitempty,url"`
}

type OfficialConfig struct {
	Manifest string `yaml:"manifest" envconfig:"MANIFEST" validate:"omitempty,url"`
}

type S3Config struct {
	Profile string `yaml:"profile" envconfig:"PROFILE"`
	Region  string `yaml:"region" envconfig:"REGION"`
}

type Config struct {
	Root             string            `yaml:"root" envconfig:"ROOT" validate:"required"`
	Source           string            `yaml:"source" envconfig:"SOURCE" validate:"oneof=mirror-only mirror-first official-first official-only"`
	Workers          int               `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=256"`
	Timeout          time.Duration     `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	ReadTimeout      time.Duration     `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	KeepAliveTimeout time.Duration     `yaml:"keep_alive_timeout" envconfig:"KEEP_ALIVE_TIMEOUT" validate:"gt=0"`
	AttemptsPerURL   int               `yaml:"attempts_per_url" envconfig:"ATTEMPTS_PER_URL" validate:"min=1,max=10"`
	UserAgent        string            `yaml:"user_agent" envconfig:"USER_AGENT"`
	Proxy            string            `yaml:"proxy" envconfig:"PROXY" validate:"omitempty,url"`
	Headers          map[string]string `yaml:"headers" envconfig:"HEADERS"`
	LimitRate        int64             `yaml:"limit_rate" envconfig:"LIMIT_RATE" validate:"min=0"`
	Mirror           MirrorConfig      `yaml:"mirror" envconfig:"MIRROR"`
	Official         OfficialConfig    `yaml:"official" envconfig:"OFFICIAL"`
	S3               S3Config          `yaml:"s3" envconfig:"S3"`
}

func Default() *Config {
	return &Config{
		Root:             ".minecraft",
		Source:           utils.MirrorFirst.String(),
		Workers:          utils.DefaultWorkers,
		Timeout:          30 * time.Second,
		ReadTimeout:      60 * time.Second,
		KeepAliveTimeout: 90 * time.Second,
		AttemptsPerURL:   utils.DefaultAttemptsPerURL,
		UserAgent:        utils.ToolUserAgent,
	}
}

// DefaultPath is ~/.mcfetch.yaml, or empty when there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mcfetch.yaml")
}

// Load reads path over the defaults, then applies the environment. A
// missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Preference() utils.SourcePreference {
	pref, err := utils.ParseSourcePreference(c.Source)
	if err != nil {
		return utils.MirrorFirst
	}
	return pref
}

// RootDir expands a leading ~ in Root.
func (c *Config) RootDir() string {
	if rest, ok := strings.CutPrefix(c.Root, "~"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return c.Root
}

func (c *Config) Origins() source.Origins {
	origins := source.DefaultOrigins()
	if c.Mirror.Base != "" {
		origins = source.MirrorOrigins(c.Mirror.Base)
	}
	if c.Mirror.Manifest != "" {
		origins.MirrorManifest = c.Mirror.Manifest
	}
	if c.Official.Manifest != "" {
		origins.OfficialManifest = c.Official.Manifest
	}
	return origins
}

// HTTPConfig builds the client settings; proxy credentials embedded in the
// proxy URL are split out.
func (c *Config) HTTPConfig() transport.HTTPClientConfig {
	cfg := transport.HTTPClientConfig{
		Timeout:   c.Timeout,
		KATimeout: c.KeepAliveTimeout,
		ProxyURL:  c.Proxy,
		UserAgent: c.UserAgent,
		Headers:   c.Headers,
		AuthToken: c.Mirror.Token,
	}
	if parsed, err := url.Parse(c.Proxy); err == nil && c.Proxy != "" && parsed.User != nil {
		cfg.ProxyUsername = parsed.User.Username()
		cfg.ProxyPassword, _ = parsed.User.Password()
		parsed.User = nil
		cfg.ProxyURL = parsed.String()
	}
	return cfg
}

// CoordinatorOptions is the shared base for every download.
func (c *Config) CoordinatorOptions() coordinator.Options {
	return coordinator.Options{
		Root:           c.RootDir(),
		Preference:     c.Preference(),
		Origins:        c.Origins(),
		MaxWorkers:     c.Workers,
		HTTP:           c.HTTPConfig(),
		S3:             transport.S3Config{Profile: c.S3.Profile, Region: c.S3.Region},
		AttemptsPerURL: c.AttemptsPerURL,
		ReadTimeout:    c.ReadTimeout,
		LimitRate:      c.LimitRate,
	}
}
