package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeShapeDiver()
	c.CADToSdtf = normalizeConversion(c.CADToSdtf, envModelViewURLCADToSdtf, envTicketCADToSdtf)
	c.SdtfToGltf = normalizeConversion(c.SdtfToGltf, envModelViewURLSdtfToGltf, envTicketSdtfToGltf)
	return c.normalizeLogging()
}

func (c *Config) normalizeShapeDiver() {
	c.ShapeDiver.ModelViewURL = trimURL(c.ShapeDiver.ModelViewURL)
	if c.ShapeDiver.ModelViewURL == "" {
		if value, ok := os.LookupEnv(envModelViewURL); ok {
			c.ShapeDiver.ModelViewURL = trimURL(value)
		}
	}
	if c.ShapeDiver.HTTPTimeout == 0 {
		c.ShapeDiver.HTTPTimeout = defaultHTTPTimeoutSeconds
	}
	if c.ShapeDiver.JobTimeout == 0 {
		c.ShapeDiver.JobTimeout = defaultJobTimeoutSeconds
	}
	if c.ShapeDiver.MaxPollDelay == 0 {
		c.ShapeDiver.MaxPollDelay = defaultMaxPollDelayMillis
	}
	if c.ShapeDiver.TransportRetries == 0 {
		c.ShapeDiver.TransportRetries = defaultTransportRetries
	}
}

func normalizeConversion(conv Conversion, urlEnv, ticketEnv string) Conversion {
	conv.ModelViewURL = trimURL(conv.ModelViewURL)
	if conv.ModelViewURL == "" {
		if value, ok := os.LookupEnv(urlEnv); ok {
			conv.ModelViewURL = trimURL(value)
		}
	}
	conv.Ticket = strings.TrimSpace(conv.Ticket)
	if conv.Ticket == "" {
		if value, ok := os.LookupEnv(ticketEnv); ok {
			conv.Ticket = strings.TrimSpace(value)
		}
	}
	return conv
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Logging.File))
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = expanded
	}
	return nil
}

func trimURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}
