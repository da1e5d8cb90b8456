package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported live transports
const (
	TransportGenAI     = "genai"
	TransportWebSocket = "websocket"
)

// Config holds all configuration for the voice companion
type Config struct {
	// HTTP port for health, readiness and metrics
	Port string `envconfig:"PORT" default:"8080"`

	// Live session transport: "genai" talks to the Gemini Live API directly,
	// "websocket" talks to a relay that speaks the same message contract.
	LiveTransport string `envconfig:"LIVE_TRANSPORT" default:"genai"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" default:""`
	LiveModel     string `envconfig:"LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	LiveVoice     string `envconfig:"LIVE_VOICE" default:"Kore"` // Prebuilt voice name
	LiveRelayURL  string `envconfig:"LIVE_RELAY_URL" default:""` // ws:// or wss:// relay endpoint

	// Audio configuration. Rates and frame size are fixed for the lifetime of a session.
	InputSampleRate        int `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`
	InputFrameSize         int `envconfig:"INPUT_FRAME_SIZE" default:"4096"` // Samples per captured frame
	OutputSampleRate       int `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"`
	OutputDeviceSampleRate int `envconfig:"OUTPUT_DEVICE_SAMPLE_RATE" default:"0"` // 0 means same as OUTPUT_SAMPLE_RATE
	SendQueueSize          int `envconfig:"SEND_QUEUE_SIZE" default:"64"`          // Outbound frames queued per channel

	// Local barge-in: interrupt playback as soon as the microphone picks up speech
	LocalBargeIn       bool    `envconfig:"LOCAL_BARGE_IN" default:"false"`
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"3"`       // Frames of silence to mark speech end

	// Read-only contact book injected into the system instruction
	ContactsFile string `envconfig:"CONTACTS_FILE" default:""`

	// Twilio dialer. When unset, calls are only logged.
	TwilioAccountSID   string `envconfig:"TWILIO_ACCOUNT_SID" default:""`
	TwilioAuthToken    string `envconfig:"TWILIO_AUTH_TOKEN" default:""`
	TwilioFromNumber   string `envconfig:"TWILIO_FROM_NUMBER" default:""`
	DialerBridgeNumber string `envconfig:"DIALER_BRIDGE_NUMBER" default:""` // Owner's phone, rung first and bridged to the target

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that envconfig tags cannot express
func (c *Config) Validate() error {
	if c.InputSampleRate <= 0 {
		return fmt.Errorf("INPUT_SAMPLE_RATE must be positive, got %d", c.InputSampleRate)
	}
	if c.InputFrameSize <= 0 {
		return fmt.Errorf("INPUT_FRAME_SIZE must be positive, got %d", c.InputFrameSize)
	}
	if c.OutputSampleRate <= 0 {
		return fmt.Errorf("OUTPUT_SAMPLE_RATE must be positive, got %d", c.OutputSampleRate)
	}
	if c.OutputDeviceSampleRate < 0 {
		return fmt.Errorf("OUTPUT_DEVICE_SAMPLE_RATE must not be negative, got %d", c.OutputDeviceSampleRate)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", c.SendQueueSize)
	}

	switch c.LiveTransport {
	case TransportGenAI:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the %s transport", TransportGenAI)
		}
	case TransportWebSocket:
		if c.LiveRelayURL == "" {
			return fmt.Errorf("LIVE_RELAY_URL is required for the %s transport", TransportWebSocket)
		}
	default:
		return fmt.Errorf("unknown LIVE_TRANSPORT %q", c.LiveTransport)
	}

	anyTwilio := c.TwilioAccountSID != "" || c.TwilioAuthToken != "" || c.TwilioFromNumber != "" || c.DialerBridgeNumber != ""
	if anyTwilio && !c.TwilioEnabled() {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and DIALER_BRIDGE_NUMBER must be set together")
	}

	return nil
}

// TwilioEnabled reports whether every Twilio dialer setting is present
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != "" && c.DialerBridgeNumber != ""
}

// PlaybackDeviceRate returns the rate the speaker runs at
func (c *Config) PlaybackDeviceRate() int {
	if c.OutputDeviceSampleRate > 0 {
		return c.OutputDeviceSampleRate
	}
	return c.OutputSampleRate
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
