package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CommitPolicy selects how buffered caller audio is committed upstream.
type CommitPolicy string

const (
	// CommitCadence commits on a recurring timer while uncommitted audio exists.
	CommitCadence CommitPolicy = "cadence"
	// CommitThreshold commits as soon as the forwarded byte count crosses a threshold.
	CommitThreshold CommitPolicy = "threshold"
)

// AudioFormatStyle selects the wire shape of the session audio format fields.
// The realtime service has accepted both the short codec name ("g711_ulaw")
// and the structured object form ({"type":"audio/pcmu"}) across API revisions.
type AudioFormatStyle string

const (
	FormatStyleName   AudioFormatStyle = "name"
	FormatStyleObject AudioFormatStyle = "object"
)

// Config holds the voicegate configuration. It is built once at startup and
// passed read-only into every session.
type Config struct {
	// HTTP/WebSocket server settings
	Port       int
	BindAddr   string
	StreamPath string // WebSocket endpoint admitted by the upgrade router
	PublicHost string // Hostname advertised in TwiML stream URLs
	LogLevel   string

	// Upstream realtime service settings
	OpenAIAPIKey  string
	RealtimeURL   string
	Model         string
	Voice         string
	Instructions  string
	TurnDetection string
	FormatStyle   AudioFormatStyle
	GreetFirst    bool // trigger an agent turn as soon as the session is ready

	// Commit scheduling
	CommitPolicy         CommitPolicy
	CommitInterval       time.Duration
	CommitThresholdBytes int

	// Telephony provider settings (call origination + recordings)
	TwilioAccountSID string
	TwilioAuthToken  string
	CallerNumber     string

	// Post-call transcription workflow
	NotifyURL       string
	TranscribeModel string
}

// Default returns the built-in defaults before flags and environment are applied.
func Default() *Config {
	return &Config{
		Port:                 8080,
		BindAddr:             "0.0.0.0",
		StreamPath:           "/media",
		LogLevel:             "info",
		RealtimeURL:          "wss://api.openai.com/v1/realtime",
		Model:                "gpt-4o-realtime-preview-2024-12-17",
		Voice:                "alloy",
		Instructions:         "You are a friendly phone assistant. Keep answers short and conversational.",
		TurnDetection:        "server_vad",
		FormatStyle:          FormatStyleName,
		CommitPolicy:         CommitCadence,
		CommitInterval:       700 * time.Millisecond,
		CommitThresholdBytes: 800, // ~100ms of 8kHz mu-law
		TranscribeModel:      "whisper-1",
	}
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := Default()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP/WebSocket listening port")
	flag.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "Bind address")
	flag.StringVar(&cfg.StreamPath, "stream-path", cfg.StreamPath, "WebSocket media stream path")
	flag.StringVar(&cfg.PublicHost, "host", cfg.PublicHost, "Public hostname for TwiML stream URLs")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Realtime model identifier")
	flag.StringVar(&cfg.Voice, "voice", cfg.Voice, "Agent voice persona")
	flag.StringVar((*string)(&cfg.CommitPolicy), "commit-policy", string(cfg.CommitPolicy), "Audio commit policy (cadence or threshold)")
	flag.DurationVar(&cfg.CommitInterval, "commit-interval", cfg.CommitInterval, "Commit cadence interval")
	flag.IntVar(&cfg.CommitThresholdBytes, "commit-threshold", cfg.CommitThresholdBytes, "Commit byte threshold")
	flag.BoolVar(&cfg.GreetFirst, "greet-first", cfg.GreetFirst, "Agent speaks first once the session is ready")
	flag.Parse()

	FromEnv(cfg)
	return cfg
}

// FromEnv overrides configuration fields from environment variables.
func FromEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("BIND"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("STREAM_PATH"); v != "" {
		cfg.StreamPath = v
	}
	if v := os.Getenv("DOMAIN"); v != "" {
		cfg.PublicHost = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_REALTIME_URL"); v != "" {
		cfg.RealtimeURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("VOICE"); v != "" {
		cfg.Voice = v
	}
	if v := os.Getenv("INSTRUCTIONS"); v != "" {
		cfg.Instructions = v
	}
	if v := os.Getenv("TURN_DETECTION"); v != "" {
		cfg.TurnDetection = v
	}
	if v := os.Getenv("AUDIO_FORMAT_STYLE"); v != "" {
		cfg.FormatStyle = AudioFormatStyle(v)
	}
	if v := os.Getenv("GREET_FIRST"); v != "" {
		cfg.GreetFirst = parseBool(v)
	}
	if v := os.Getenv("COMMIT_POLICY"); v != "" {
		cfg.CommitPolicy = CommitPolicy(v)
	}
	if v := os.Getenv("COMMIT_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.CommitInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("COMMIT_THRESHOLD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CommitThresholdBytes = n
		}
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.TwilioAccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.TwilioAuthToken = v
	}
	if v := os.Getenv("PHONE_NUMBER_FROM"); v != "" {
		cfg.CallerNumber = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.NotifyURL = v
	}
	if v := os.Getenv("TRANSCRIBE_MODEL"); v != "" {
		cfg.TranscribeModel = v
	}
}

// Validate checks that the configuration is usable. A missing upstream
// credential is fatal before any connection is accepted.
func Validate(cfg *Config) error {
	if cfg.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	switch cfg.CommitPolicy {
	case CommitCadence, CommitThreshold:
	default:
		return fmt.Errorf("unknown commit policy %q", cfg.CommitPolicy)
	}
	switch cfg.FormatStyle {
	case FormatStyleName, FormatStyleObject:
	default:
		return fmt.Errorf("unknown audio format style %q", cfg.FormatStyle)
	}
	if cfg.CommitInterval <= 0 {
		return errors.New("commit interval must be positive")
	}
	if cfg.CommitThresholdBytes <= 0 {
		return errors.New("commit threshold must be positive")
	}
	return nil
}

// RecordingEnabled reports whether the post-call transcription workflow has
// enough configuration to run.
func (c *Config) RecordingEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.NotifyURL != ""
}

// OriginationEnabled reports whether outbound calls can be placed.
func (c *Config) OriginationEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.CallerNumber != "" && c.PublicHost != ""
}

// ListenAddr returns the bind address and port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

// StreamURL returns the public WebSocket URL advertised in TwiML.
func (c *Config) StreamURL() string {
	return "wss://" + c.PublicHost + c.StreamPath
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
