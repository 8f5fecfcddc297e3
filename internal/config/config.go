package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"sdconvert/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Section names identify the per-conversion credential tables.
const (
	SectionCADToSdtf  = "cad_to_sdtf"
	SectionSdtfToGltf = "sdtf_to_gltf"
)

// ShapeDiver contains settings shared by every conversion against the
// geometry backend.
type ShapeDiver struct {
	// ModelViewURL is the default model view URL used when a conversion
	// section does not set its own.
	ModelViewURL string `toml:"model_view_url"`
	// HTTPTimeout bounds a single HTTP exchange, in seconds.
	HTTPTimeout int `toml:"http_timeout"`
	// JobTimeout bounds the wait for a computation to finish, in seconds.
	JobTimeout int `toml:"job_timeout"`
	// MaxPollDelay caps the delay between result polls, in milliseconds.
	MaxPollDelay int `toml:"max_poll_delay_ms"`
	// TransportRetries is the attempt count for idempotent requests
	// (result downloads and cache polls).
	TransportRetries int `toml:"transport_retries"`
}

// Conversion contains the endpoint credentials of one converter model.
type Conversion struct {
	ModelViewURL string `toml:"model_view_url"`
	Ticket       string `toml:"ticket"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for sdconvert.
//
// Configuration sections:
//   - ShapeDiver: shared model view URL, HTTP and polling limits
//   - CADToSdtf: credentials for the CAD to sdTF converter model
//   - SdtfToGltf: credentials for the sdTF to glTF converter model
//   - Logging: log format, level, and optional log file
type Config struct {
	ShapeDiver ShapeDiver `toml:"shapediver"`
	CADToSdtf  Conversion `toml:"cad_to_sdtf"`
	SdtfToGltf Conversion `toml:"sdtf_to_gltf"`
	Logging    Logging    `toml:"logging"`
}

// Endpoint is the resolved model view URL and backend ticket for one
// conversion.
type Endpoint struct {
	ModelViewURL string
	Ticket       string
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// LoadDotEnv loads environment variables from the given .env file. An empty
// path loads ./.env when present. Variables already set in the process
// environment are never overridden.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if err := godotenv.Load(defaultDotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", defaultDotEnvFile, err)
		}
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := godotenv.Load(expanded); err != nil {
		return fmt.Errorf("load env file %s: %w", expanded, err)
	}
	return nil
}

// Load locates, parses, and validates a configuration file. The returned config has
// environment fallbacks applied and all values normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// Endpoint returns the credentials for the named conversion section. Missing
// values are reported as configuration errors so callers fail before any
// network activity.
func (c *Config) Endpoint(section string) (Endpoint, error) {
	var conv Conversion
	var ticketEnv string
	switch section {
	case SectionCADToSdtf:
		conv, ticketEnv = c.CADToSdtf, envTicketCADToSdtf
	case SectionSdtfToGltf:
		conv, ticketEnv = c.SdtfToGltf, envTicketSdtfToGltf
	default:
		return Endpoint{}, fmt.Errorf("%w: unknown conversion section %q", services.ErrConfiguration, section)
	}

	endpoint := Endpoint{
		ModelViewURL: conv.ModelViewURL,
		Ticket:       conv.Ticket,
	}
	if endpoint.ModelViewURL == "" {
		endpoint.ModelViewURL = c.ShapeDiver.ModelViewURL
	}
	if endpoint.ModelViewURL == "" {
		return Endpoint{}, fmt.Errorf("%w: %s.model_view_url is required. Set %s or edit %s (create with 'sdconvert config init')",
			services.ErrConfiguration, section, envModelViewURL, displayConfigPath())
	}
	if endpoint.Ticket == "" {
		return Endpoint{}, fmt.Errorf("%w: %s.ticket is required. Set %s or edit %s (create with 'sdconvert config init')",
			services.ErrConfiguration, section, ticketEnv, displayConfigPath())
	}
	return endpoint, nil
}

// HTTPTimeoutDuration returns the per-request HTTP timeout.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.ShapeDiver.HTTPTimeout) * time.Second
}

// JobTimeoutDuration returns the maximum wait for a computation.
func (c *Config) JobTimeoutDuration() time.Duration {
	return time.Duration(c.ShapeDiver.JobTimeout) * time.Second
}

// MaxPollDelayDuration returns the cap applied to server-suggested poll delays.
func (c *Config) MaxPollDelayDuration() time.Duration {
	return time.Duration(c.ShapeDiver.MaxPollDelay) * time.Millisecond
}

func displayConfigPath() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy of the config with backend tickets masked, suitable
// for printing.
func (c *Config) Redacted() Config {
	cp := *c
	cp.CADToSdtf.Ticket = redact(cp.CADToSdtf.Ticket)
	cp.SdtfToGltf.Ticket = redact(cp.SdtfToGltf.Ticket)
	return cp
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "…" + value[len(value)-4:]
}
