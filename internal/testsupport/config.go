package testsupport

import (
	"path/filepath"
	"testing"

	"sdconvert/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config with both conversion modes pointed at a local
// placeholder endpoint and seeded tickets. Logging goes to a per-test file.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.ShapeDiver.ModelViewURL = "http://127.0.0.1:0"
	cfgVal.CADToSdtf.Ticket = "ticket-cad"
	cfgVal.SdtfToGltf.Ticket = "ticket-sdtf"
	cfgVal.Logging.File = filepath.Join(base, "logs", "sdconvert.log")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEndpoint points the shared model view URL at url, typically an
// httptest server.
func WithEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ShapeDiver.ModelViewURL = url
	}
}

// WithTickets overrides both per-mode tickets. Empty values clear them.
func WithTickets(cadToSdtf, sdtfToGltf string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.CADToSdtf.Ticket = cadToSdtf
		b.cfg.SdtfToGltf.Ticket = sdtfToGltf
	}
}

// WithJobTimeout sets the job timeout in seconds.
func WithJobTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ShapeDiver.JobTimeout = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(filepath.Dir(cfg.Logging.File))
}
