package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sdconvert/internal/config"
	"sdconvert/internal/conversion"
	"sdconvert/internal/logging"
	"sdconvert/internal/services"
	"sdconvert/internal/services/shapediver"
)

type globalFlags struct {
	config    string
	envFile   string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	// stderr receives progress bars; tests swap it for a buffer.
	stderr io.Writer
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags, stderr: os.Stderr}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if err := config.LoadDotEnv(c.flags.envFile); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "load env file", "", err)
			return
		}
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "load config", "", err)
			return
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if format := strings.TrimSpace(c.flags.logFormat); format != "" {
			cfg.Logging.Format = strings.ToLower(format)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "log flags", "", err)
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg, shouldColorize(c.stderr))
	})
	return c.logger, c.loggerErr
}

// runContext tags ctx with a fresh run identifier and the mode name.
func runContext(cmd *cobra.Command, mode conversion.Mode) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithRunID(ctx, uuid.NewString())
	return services.WithMode(ctx, mode.Name)
}

// newRemote builds the ShapeDiver adapter from configuration.
func (c *commandContext) newRemote(cfg *config.Config, logger *slog.Logger, showProgress bool) *shapediver.Remote {
	opts := []shapediver.Option{
		shapediver.WithLogger(logger),
		shapediver.WithTimeout(cfg.HTTPTimeoutDuration()),
		shapediver.WithPolling(cfg.JobTimeoutDuration(), cfg.MaxPollDelayDuration()),
		shapediver.WithRetryMaxAttempts(cfg.ShapeDiver.TransportRetries),
	}
	if showProgress && shouldColorize(c.stderr) {
		opts = append(opts, shapediver.WithProgress(newProgressFunc(c.stderr)))
	}
	return shapediver.NewRemote(shapediver.NewClient(opts...))
}

// endpointFor resolves the credentials of mode's configuration section.
func endpointFor(cfg *config.Config, mode conversion.Mode) (config.Endpoint, error) {
	return cfg.Endpoint(sectionForMode(mode))
}

func sectionForMode(mode conversion.Mode) string {
	switch mode.Name {
	case conversion.IntermediateToDisplay.Name:
		return config.SectionSdtfToGltf
	default:
		return config.SectionCADToSdtf
	}
}

func parseModeArg(arg string) (conversion.Mode, error) {
	mode, err := conversion.ParseMode(arg)
	if err != nil {
		return conversion.Mode{}, fmt.Errorf("%w (run 'sdconvert convert --help' for the list)", err)
	}
	return mode, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
