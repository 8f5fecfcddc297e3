package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Missing credentials are not
// reported here because each command only needs the section it converts
// with; see Endpoint.
func (c *Config) Validate() error {
	if err := c.validateShapeDiver(); err != nil {
		return err
	}
	if err := validateConversion(SectionCADToSdtf, c.CADToSdtf); err != nil {
		return err
	}
	if err := validateConversion(SectionSdtfToGltf, c.SdtfToGltf); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateShapeDiver() error {
	if err := validateURL("shapediver.model_view_url", c.ShapeDiver.ModelViewURL); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"shapediver.http_timeout":      c.ShapeDiver.HTTPTimeout,
		"shapediver.job_timeout":       c.ShapeDiver.JobTimeout,
		"shapediver.max_poll_delay_ms": c.ShapeDiver.MaxPollDelay,
		"shapediver.transport_retries": c.ShapeDiver.TransportRetries,
	}); err != nil {
		return err
	}
	return nil
}

func validateConversion(section string, conv Conversion) error {
	return validateURL(section+".model_view_url", conv.ModelViewURL)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func validateURL(key, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", key, value)
	}
	if parsed.Host == "" {
		return errors.New(key + " must include a host")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
