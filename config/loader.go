package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Loader loads Config from a base file plus an optional environment-specific
// overlay, expanding ${VAR}/${VAR:default} placeholders from the process
// environment before parsing.
type Loader struct {
	baseDir   string
	env       string
	config    *Config
	mu        sync.RWMutex
	validator *validator.Validate
}

// NewLoader creates a Loader rooted at baseDir (the directory holding
// config.toml and any config.<env>.toml overlay). If baseDir/.env exists it
// is loaded into the process environment first.
func NewLoader(baseDir string) (*Loader, error) {
	envPath := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	return &Loader{
		baseDir:   baseDir,
		env:       env,
		validator: validator.New(),
	}, nil
}

// Load reads config.toml, overlays config.<env>.toml if present, validates
// the result, and caches it.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	basePath := filepath.Join(l.baseDir, "config.toml")
	baseContent, err := l.loadAndExpand(basePath)
	if err != nil {
		return nil, fmt.Errorf("load base config: %w", err)
	}

	var cfg Config
	if _, err := toml.Decode(baseContent, &cfg); err != nil {
		return nil, fmt.Errorf("parse base config: %w", err)
	}

	envPath := filepath.Join(l.baseDir, fmt.Sprintf("config.%s.toml", l.env))
	if _, err := os.Stat(envPath); err == nil {
		envContent, err := l.loadAndExpand(envPath)
		if err != nil {
			return nil, fmt.Errorf("load env config: %w", err)
		}
		if _, err := toml.Decode(envContent, &cfg); err != nil {
			return nil, fmt.Errorf("parse env config: %w", err)
		}
	}

	if err := l.validator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	l.config = &cfg
	return &cfg, nil
}

func (l *Loader) loadAndExpand(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return expandEnv(string(content)), nil
}

var envPlaceholder = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnv substitutes ${VAR} and ${VAR:default} placeholders from the
// process environment.
func expandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPlaceholder.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		if len(groups) >= 3 {
			defaultVal = groups[2]
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// Get returns the most recently loaded Config, or nil before the first Load.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Env returns the resolved environment name (APP_ENV, default "dev").
func (l *Loader) Env() string { return l.env }

// BaseDir returns the directory this Loader reads from.
func (l *Loader) BaseDir() string { return l.baseDir }
