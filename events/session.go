package events

import (
	"encoding/json"
	"strconv"

	"github.com/codewandler/realtime-go/tool"
)

type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
)

// MaxTokens is an output token cap. Infinite marshals as "inf".
type MaxTokens int

const Infinite MaxTokens = -1

func (m MaxTokens) MarshalJSON() ([]byte, error) {
	if m < 0 {
		return []byte(`"inf"`), nil
	}
	return []byte(strconv.Itoa(int(m))), nil
}

func (m *MaxTokens) UnmarshalJSON(data []byte) error {
	if string(data) == `"inf"` {
		*m = Infinite
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = MaxTokens(n)
	return nil
}

// SessionConfig is the caller-mutable part of a realtime session.
type SessionConfig struct {
	Modalities              []string          `json:"modalities,omitempty" yaml:"modalities,omitempty"`
	Instructions            string            `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Voice                   string            `json:"voice,omitempty" yaml:"voice,omitempty"`
	InputAudioFormat        AudioFormat       `json:"input_audio_format,omitempty" yaml:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat       `json:"output_audio_format,omitempty" yaml:"output_audio_format,omitempty"`
	InputAudioTranscription *Transcription    `json:"input_audio_transcription" yaml:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection    `json:"turn_detection" yaml:"turn_detection,omitempty"`
	Tools                   []tool.Definition `json:"tools" yaml:"-"`
	ToolChoice              tool.Choice       `json:"tool_choice,omitempty" yaml:"tool_choice,omitempty"`
	Temperature             float64           `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxResponseOutputTokens MaxTokens         `json:"max_response_output_tokens,omitempty" yaml:"max_response_output_tokens,omitempty"`
	Speed                   float64           `json:"speed,omitempty" yaml:"speed,omitempty"`
}

// Session is the session object reported by the service.
type Session struct {
	SessionConfig
	ID        string `json:"id,omitempty"`
	Object    string `json:"object,omitempty"`
	Model     string `json:"model,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type Transcription struct {
	Model    string `json:"model" yaml:"model"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

const TurnDetectionServerVAD = "server_vad"

// TurnDetection holds the VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty" yaml:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty" yaml:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty" yaml:"silence_duration_ms,omitempty"`
	CreateResponse    *bool   `json:"create_response,omitempty" yaml:"create_response,omitempty"`
	InterruptResponse *bool   `json:"interrupt_response,omitempty" yaml:"interrupt_response,omitempty"`
}

// DefaultServerVAD returns the server VAD settings used when none are given.
func DefaultServerVAD() *TurnDetection {
	return &TurnDetection{
		Type:              TurnDetectionServerVAD,
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 200,
	}
}

// DefaultSessionConfig is the configuration a client starts with.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Voice:                   "verse",
		InputAudioFormat:        AudioFormatPCM16,
		OutputAudioFormat:       AudioFormatPCM16,
		ToolChoice:              tool.ChoiceAuto,
		Temperature:             0.8,
		MaxResponseOutputTokens: 4096,
	}
}
