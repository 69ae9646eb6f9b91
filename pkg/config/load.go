package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/deepdiver/pkg/browser"
)

// ProjectFile is the configuration file looked up in the working directory.
const ProjectFile = "deepdiver.yaml"

// UserConfigPath returns ~/.config/deepdiver/config.yaml, or the platform
// equivalent.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "deepdiver", "config.yaml"), nil
}

// Load reads a single YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Options selects the inputs of Resolve. Empty paths use the standard
// locations; Path, when set, replaces the project file lookup.
type Options struct {
	Path        string
	ProjectDir  string
	UserPath    string
	EnvFile     string
	CDPOverride string
}

// Resolved is a loaded configuration together with where it came from.
type Resolved struct {
	*Config

	// Files lists the configuration files that were applied, lowest
	// precedence first.
	Files     []string
	Endpoints []browser.Endpoint
}

// Resolve loads the .env file, then layers the user file and the project
// file over the defaults. The CDP endpoint chain follows flag > env >
// project > user > default.
func Resolve(opts Options) (*Resolved, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	userPath := opts.UserPath
	if userPath == "" {
		if p, err := UserConfigPath(); err == nil {
			userPath = p
		}
	}
	projectPath := opts.Path
	if projectPath == "" {
		projectPath = filepath.Join(opts.ProjectDir, ProjectFile)
	}

	cfg := DefaultConfig()
	out := &Resolved{Config: cfg}
	var userCDP, projectCDP string

	for _, layer := range []struct {
		path     string
		cdp      *string
		required bool
	}{
		{path: userPath, cdp: &userCDP},
		{path: projectPath, cdp: &projectCDP, required: opts.Path != ""},
	} {
		if layer.path == "" {
			continue
		}
		data, err := os.ReadFile(layer.path)
		if errors.Is(err, os.ErrNotExist) && !layer.required {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var probe struct {
			Browser struct {
				CDPURL string `yaml:"cdp_url"`
			} `yaml:"browser"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", layer.path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", layer.path, err)
		}
		*layer.cdp = probe.Browser.CDPURL
		out.Files = append(out.Files, layer.path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	out.Endpoints = browser.Candidates(opts.CDPOverride, os.Getenv(browser.EnvCDPURL), projectCDP, userCDP)
	cfg.Browser.CDPURL = out.Endpoints[0].URL
	return out, nil
}

// Save writes cfg to path as YAML, replacing the file atomically.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
