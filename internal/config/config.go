// Package config provides configuration management for the ShutterCut agent.
// Values come from built-in defaults, then an optional TOML file, then a
// .env file, then the process environment; later sources win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort           = 8787
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".shuttercut"
	DefaultBackendURL     = "http://127.0.0.1:8000"
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxPolls       = 300
	DefaultUploadTimeout  = 5 * time.Minute
	DefaultRequestTimeout = 30 * time.Second

	// Environment variable names
	EnvConfigFile     = "SHUTTERCUT_CONFIG"
	EnvPort           = "SHUTTERCUT_PORT"
	EnvLogLevel       = "SHUTTERCUT_LOG_LEVEL"
	EnvDataDir        = "SHUTTERCUT_DATA_DIR"
	EnvBackendURL     = "SHUTTERCUT_BACKEND_URL"
	EnvBackendToken   = "SHUTTERCUT_BACKEND_TOKEN"
	EnvPollInterval   = "SHUTTERCUT_POLL_INTERVAL"
	EnvMaxPolls       = "SHUTTERCUT_MAX_POLLS"
	EnvUploadTimeout  = "SHUTTERCUT_UPLOAD_TIMEOUT"
	EnvRequestTimeout = "SHUTTERCUT_REQUEST_TIMEOUT"
	EnvFFProbe        = "SHUTTERCUT_FFPROBE"
	EnvCORSOrigins    = "SHUTTERCUT_CORS_ORIGINS"

	// Database filename
	DBFilename = "shuttercut.db"
	// Lock file guarding the data dir against a second agent
	LockFilename = "agent.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	ResultsDir() string
	BackendURL() string
	BackendToken() string
	PollInterval() time.Duration
	MaxPolls() int
	UploadTimeout() time.Duration
	RequestTimeout() time.Duration
	FFProbePath() string
	CORSOrigins() []string
}

// Options selects the files Load reads. Empty fields use the defaults:
// $SHUTTERCUT_CONFIG or ~/.config/shuttercut/config.toml, and ./.env.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	DataDir  string `toml:"data_dir"`
	FFProbe  string `toml:"ffprobe"`
	Backend  struct {
		URL            string `toml:"url"`
		Token          string `toml:"token"`
		PollInterval   string `toml:"poll_interval"`
		MaxPolls       int    `toml:"max_polls"`
		UploadTimeout  string `toml:"upload_timeout"`
		RequestTimeout string `toml:"request_timeout"`
	} `toml:"backend"`
	API struct {
		CORSOrigins []string `toml:"cors_origins"`
	} `toml:"api"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port           int
	logLevel       string
	dataDir        string
	backendURL     string
	backendToken   string
	pollInterval   time.Duration
	maxPolls       int
	uploadTimeout  time.Duration
	requestTimeout time.Duration
	ffprobePath    string
	corsOrigins    []string

	source string
}

// New loads configuration with default file locations.
func New() (*EnvConfig, error) {
	return Load(Options{})
}

// Load resolves the configuration from every source.
func Load(opts Options) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		backendURL:     DefaultBackendURL,
		pollInterval:   DefaultPollInterval,
		maxPolls:       DefaultMaxPolls,
		uploadTimeout:  DefaultUploadTimeout,
		requestTimeout: DefaultRequestTimeout,
	}

	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.dataDir, err = expandPath(cfg.dataDir)
	if err != nil {
		return nil, err
	}
	cfg.backendURL = strings.TrimRight(cfg.backendURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.source = path

	if fc.Port != 0 {
		c.port = fc.Port
	}
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.ffprobePath, fc.FFProbe)
	setString(&c.backendURL, fc.Backend.URL)
	setString(&c.backendToken, fc.Backend.Token)
	if fc.Backend.MaxPolls != 0 {
		c.maxPolls = fc.Backend.MaxPolls
	}
	if len(fc.API.CORSOrigins) > 0 {
		c.corsOrigins = fc.API.CORSOrigins
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"backend.poll_interval", fc.Backend.PollInterval, &c.pollInterval},
		{"backend.upload_timeout", fc.Backend.UploadTimeout, &c.uploadTimeout},
		{"backend.request_timeout", fc.Backend.RequestTimeout, &c.requestTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key, d.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *EnvConfig) applyEnv(lookup func(string) string) error {
	// Override port from environment
	if p := lookup(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if p := lookup(EnvMaxPolls); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxPolls, err)
		}
		c.maxPolls = n
	}

	setString(&c.logLevel, lookup(EnvLogLevel))
	setString(&c.dataDir, lookup(EnvDataDir))
	setString(&c.backendURL, lookup(EnvBackendURL))
	setString(&c.backendToken, lookup(EnvBackendToken))
	setString(&c.ffprobePath, lookup(EnvFFProbe))

	if origins := lookup(EnvCORSOrigins); origins != "" {
		c.corsOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.corsOrigins = append(c.corsOrigins, o)
			}
		}
	}

	for key, dst := range map[string]*time.Duration{
		EnvPollInterval:   &c.pollInterval,
		EnvUploadTimeout:  &c.uploadTimeout,
		EnvRequestTimeout: &c.requestTimeout,
	} {
		if err := setDuration(dst, key, lookup(key)); err != nil {
			return err
		}
	}
	return nil
}

// settings is the validated view of an EnvConfig; validator only reads
// exported fields.
type settings struct {
	Port           int           `validate:"min=1,max=65535"`
	LogLevel       string        `validate:"oneof=debug info warn warning error"`
	DataDir        string        `validate:"required"`
	BackendURL     string        `validate:"required,http_url"`
	PollInterval   time.Duration `validate:"min=1ms"`
	MaxPolls       int           `validate:"min=1"`
	UploadTimeout  time.Duration `validate:"min=1s"`
	RequestTimeout time.Duration `validate:"min=1s"`
}

var validate = validator.New()

func (c *EnvConfig) validate() error {
	s := settings{
		Port:           c.port,
		LogLevel:       strings.ToLower(c.logLevel),
		DataDir:        c.dataDir,
		BackendURL:     c.backendURL,
		PollInterval:   c.pollInterval,
		MaxPolls:       c.maxPolls,
		UploadTimeout:  c.uploadTimeout,
		RequestTimeout: c.requestTimeout,
	}
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s (%v) failed %s", fe.Field(), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// ResultsDir is where downloaded renders are kept.
func (c *EnvConfig) ResultsDir() string {
	return filepath.Join(c.dataDir, "results")
}

func (c *EnvConfig) BackendURL() string {
	return c.backendURL
}

func (c *EnvConfig) BackendToken() string {
	return c.backendToken
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *EnvConfig) MaxPolls() int {
	return c.maxPolls
}

func (c *EnvConfig) UploadTimeout() time.Duration {
	return c.uploadTimeout
}

func (c *EnvConfig) RequestTimeout() time.Duration {
	return c.requestTimeout
}

// FFProbePath returns the configured ffprobe binary, or "" to search PATH.
func (c *EnvConfig) FFProbePath() string {
	return c.ffprobePath
}

// CORSOrigins lists browser origins allowed to call the local API.
func (c *EnvConfig) CORSOrigins() []string {
	return c.corsOrigins
}

// Source returns the config file that was read, or "".
func (c *EnvConfig) Source() string {
	return c.source
}

// DefaultConfigPath returns ~/.config/shuttercut/config.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "shuttercut.toml"
	}
	return filepath.Join(home, ".config", "shuttercut", "config.toml")
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve data dir %q: %w", p, err)
	}
	return abs, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
