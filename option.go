package realtime

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/realtime-go/api"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/pcm"
	"github.com/codewandler/realtime-go/tool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
)

type clientConfig struct {
	url        string
	model      string
	apiKey     string
	credential api.CredentialMode
	relay      bool
	sampleRate int
	latencyMS  int
	logger     *slog.Logger
	session    events.SessionConfig
	tools      []tool.Registration

	// audioRate is the sample rate of the caller's audio device. Zero
	// disables the audio stream.
	audioRate int

	err error
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *clientConfig) validate() error {
	if c.err != nil {
		return c.err
	}
	if c.sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.sampleRate)
	}
	if c.audioRate < 0 {
		return fmt.Errorf("invalid audio stream sample rate %d", c.audioRate)
	}
	if c.latencyMS <= 0 {
		return fmt.Errorf("invalid latency %dms", c.latencyMS)
	}
	return nil
}

type ClientOption func(*clientConfig)

func WithURL(url string) ClientOption {
	return func(o *clientConfig) {
		o.url = url
	}
}

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

func WithKey(apiKey string) ClientOption {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

// WithEnvKey takes the api key from the first non-empty environment variable.
func WithEnvKey(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

// WithEnvFile loads the given dotenv files and then looks up the api key like
// WithEnvKey does with the default variable names. Variables that are already
// set are not overridden.
func WithEnvFile(files ...string) ClientOption {
	return func(o *clientConfig) {
		if err := godotenv.Load(files...); err != nil {
			o.err = fmt.Errorf("could not load env file: %w", err)
			return
		}
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong)(o)
	}
}

func WithCredentialMode(mode api.CredentialMode) ClientOption {
	return func(o *clientConfig) {
		o.credential = mode
	}
}

// WithRelay connects to a relay at url. The relay owns the credential and the
// session setup, so tools cannot be registered and are never executed locally.
func WithRelay(url string) ClientOption {
	return func(o *clientConfig) {
		o.url = url
		o.relay = true
		o.credential = api.CredentialNone
	}
}

// WithSampleRate sets the PCM sample rate of the conversation audio.
func WithSampleRate(sr int) ClientOption {
	return func(o *clientConfig) {
		o.sampleRate = sr
	}
}

// WithLatency sets the latency in milliseconds.
func WithLatency(latencyMS int) ClientOption {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

// WithAudioStream enables Client.Audio for a device running at sampleRate.
func WithAudioStream(sampleRate int) ClientOption {
	return func(o *clientConfig) {
		o.audioRate = sampleRate
	}
}

func WithSessionConfig(session events.SessionConfig) ClientOption {
	return func(o *clientConfig) {
		mergeSession(&o.session, session)
	}
}

func WithInstruction(instruction string) ClientOption {
	return func(o *clientConfig) {
		o.session.Instructions = instruction
	}
}

func WithVoice(voice string) ClientOption {
	return func(o *clientConfig) {
		o.session.Voice = voice
	}
}

func WithTemperature(temperature float64) ClientOption {
	return func(o *clientConfig) {
		o.session.Temperature = temperature
	}
}

func WithMaxOutputTokens(n events.MaxTokens) ClientOption {
	return func(o *clientConfig) {
		o.session.MaxResponseOutputTokens = n
	}
}

// WithTurnDetection enables server side voice activity detection. Without it
// the caller commits input audio through CreateResponse.
func WithTurnDetection(td *events.TurnDetection) ClientOption {
	return func(o *clientConfig) {
		o.session.TurnDetection = td
	}
}

func WithTools(tools ...tool.Registration) ClientOption {
	return func(o *clientConfig) {
		o.tools = append(o.tools, tools...)
	}
}

func WithTool(def tool.Definition, h tool.Handler) ClientOption {
	return WithTools(tool.Registration{Definition: def, Handler: h})
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

// WithOTelLogger sends logs through the OpenTelemetry log bridge.
func WithOTelLogger() ClientOption {
	return WithLogger(slog.New(otelslog.NewHandler(scopeName)))
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return func(o *clientConfig) {
		o.url = api.DefaultURL
		o.model = api.DefaultModel
		o.credential = api.CredentialHeader
		o.sampleRate = pcm.DefaultSampleRate
		o.latencyMS = 200
		o.logger = slog.New(slog.DiscardHandler)
		o.session = events.DefaultSessionConfig()
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong)(o)
	}
}
