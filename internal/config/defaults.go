package config

const (
	defaultConfigPath         = "~/.config/sdconvert/config.toml"
	defaultProjectConfigName  = "sdconvert.toml"
	defaultHTTPTimeoutSeconds = 120
	defaultJobTimeoutSeconds  = 600
	defaultMaxPollDelayMillis = 10000
	defaultTransportRetries   = 3
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	envModelViewURL           = "MODEL_VIEW_URL"
	envTicketCADToSdtf        = "BACKEND_TICKET_CAD_TO_SDTF"
	envTicketSdtfToGltf       = "BACKEND_TICKET_SDTF_TO_GLTF"
	envModelViewURLCADToSdtf  = "MODEL_VIEW_URL_CAD_TO_SDTF"
	envModelViewURLSdtfToGltf = "MODEL_VIEW_URL_SDTF_TO_GLTF"
	defaultDotEnvFile         = ".env"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		ShapeDiver: ShapeDiver{
			HTTPTimeout:      defaultHTTPTimeoutSeconds,
			JobTimeout:       defaultJobTimeoutSeconds,
			MaxPollDelay:     defaultMaxPollDelayMillis,
			TransportRetries: defaultTransportRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
