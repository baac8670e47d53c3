package realtime

import (
	"fmt"
	"os"
	"slices"

	"github.com/codewandler/realtime-go/events"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// LoadSessionConfig reads a YAML session file. Fields that are absent keep the
// defaults of events.DefaultSessionConfig.
//
//	voice: alloy
//	instructions: Be brief.
//	turn_detection:
//	  type: server_vad
//	  silence_duration_ms: 500
func LoadSessionConfig(path string) (events.SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return events.SessionConfig{}, fmt.Errorf("could not read session config: %w", err)
	}

	var patch events.SessionConfig
	if err := yaml.Unmarshal(data, &patch); err != nil {
		return events.SessionConfig{}, fmt.Errorf("invalid session config %s: %w", path, err)
	}

	session := events.DefaultSessionConfig()
	mergeSession(&session, patch)
	return session, nil
}

// mergeSession copies the non-empty fields of patch onto dst. Slices are
// replaced, nested structs are merged field by field.
func mergeSession(dst *events.SessionConfig, patch events.SessionConfig) {
	*dst = cloneSession(*dst)
	tools := patch.Tools
	patch.Tools = nil
	if len(patch.Modalities) > 0 {
		dst.Modalities = nil
	}

	if err := copier.CopyWithOption(dst, &patch, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
		// both sides have the same type
		panic(err)
	}

	// definitions carry schemas that are shared, not deep copied
	if len(tools) > 0 {
		dst.Tools = tools
	}
	*dst = cloneSession(*dst)
}

func cloneSession(s events.SessionConfig) events.SessionConfig {
	out := s
	out.Modalities = slices.Clone(s.Modalities)
	out.Tools = slices.Clone(s.Tools)
	if s.TurnDetection != nil {
		td := *s.TurnDetection
		out.TurnDetection = &td
	}
	if s.InputAudioTranscription != nil {
		t := *s.InputAudioTranscription
		out.InputAudioTranscription = &t
	}
	return out
}
