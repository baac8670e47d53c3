package events

import (
	"encoding/json"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Type is the value of an envelope's "type" field.
type Type string

func (t Type) String() string { return string(t) }

// Client event types.
const (
	TypeSessionUpdate            Type = "session.update"
	TypeConversationItemCreate   Type = "conversation.item.create"
	TypeConversationItemTruncate Type = "conversation.item.truncate"
	TypeConversationItemDelete   Type = "conversation.item.delete"
	TypeInputAudioBufferAppend   Type = "input_audio_buffer.append"
	TypeInputAudioBufferCommit   Type = "input_audio_buffer.commit"
	TypeInputAudioBufferClear    Type = "input_audio_buffer.clear"
	TypeResponseCreate           Type = "response.create"
	TypeResponseCancel           Type = "response.cancel"
)

// Server event types.
const (
	TypeError                            Type = "error"
	TypeSessionCreated                   Type = "session.created"
	TypeSessionUpdated                   Type = "session.updated"
	TypeConversationCreated              Type = "conversation.created"
	TypeConversationItemCreated          Type = "conversation.item.created"
	TypeInputAudioTranscriptionCompleted Type = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioTranscriptionFailed    Type = "conversation.item.input_audio_transcription.failed"
	TypeConversationItemTruncated        Type = "conversation.item.truncated"
	TypeConversationItemDeleted          Type = "conversation.item.deleted"
	TypeInputAudioBufferCommitted        Type = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared          Type = "input_audio_buffer.cleared"
	TypeSpeechStarted                    Type = "input_audio_buffer.speech_started"
	TypeSpeechStopped                    Type = "input_audio_buffer.speech_stopped"
	TypeResponseCreated                  Type = "response.created"
	TypeResponseDone                     Type = "response.done"
	TypeResponseOutputItemAdded          Type = "response.output_item.added"
	TypeResponseOutputItemDone           Type = "response.output_item.done"
	TypeResponseContentPartAdded         Type = "response.content_part.added"
	TypeResponseContentPartDone          Type = "response.content_part.done"
	TypeResponseTextDelta                Type = "response.text.delta"
	TypeResponseTextDone                 Type = "response.text.done"
	TypeResponseAudioTranscriptDelta     Type = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone      Type = "response.audio_transcript.done"
	TypeResponseAudioDelta               Type = "response.audio.delta"
	TypeResponseAudioDone                Type = "response.audio.done"
	TypeResponseFunctionCallArgsDelta    Type = "response.function_call_arguments.delta"
	TypeResponseFunctionCallArgsDone     Type = "response.function_call_arguments.done"
	TypeRateLimitsUpdated                Type = "rate_limits.updated"
)

// Event is implemented by every envelope, inbound or outbound.
type Event interface {
	Envelope() *BaseEvent
}

type BaseEvent struct {
	EventID string `json:"event_id"`
	Type    Type   `json:"type"`
}

func (b *BaseEvent) Envelope() *BaseEvent { return b }

// NewID returns prefix followed by a random nanoid.
func NewID(prefix string) string {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return prefix + id
}

func NewBaseEvent(eventType Type) BaseEvent {
	return BaseEvent{
		EventID: NewID("evt_"),
		Type:    eventType,
	}
}

// Parse decodes data into a new T.
func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}

// Unknown holds a server event whose type is not part of the catalog.
type Unknown struct {
	BaseEvent
	Raw json.RawMessage `json:"-"`
}

func (u *Unknown) MarshalJSON() ([]byte, error) {
	return u.Raw, nil
}

var serverEvents = map[Type]func() Event{
	TypeError:                            func() Event { return &ErrorEvent{} },
	TypeSessionCreated:                   func() Event { return &SessionCreatedEvent{} },
	TypeSessionUpdated:                   func() Event { return &SessionUpdatedEvent{} },
	TypeConversationCreated:              func() Event { return &ConversationCreatedEvent{} },
	TypeConversationItemCreated:          func() Event { return &ConversationItemCreatedEvent{} },
	TypeInputAudioTranscriptionCompleted: func() Event { return &InputAudioTranscriptionCompletedEvent{} },
	TypeInputAudioTranscriptionFailed:    func() Event { return &InputAudioTranscriptionFailedEvent{} },
	TypeConversationItemTruncated:        func() Event { return &ConversationItemTruncatedEvent{} },
	TypeConversationItemDeleted:          func() Event { return &ConversationItemDeletedEvent{} },
	TypeInputAudioBufferCommitted:        func() Event { return &InputAudioBufferCommittedEvent{} },
	TypeInputAudioBufferCleared:          func() Event { return &InputAudioBufferClearedEvent{} },
	TypeSpeechStarted:                    func() Event { return &SpeechStartedEvent{} },
	TypeSpeechStopped:                    func() Event { return &SpeechStoppedEvent{} },
	TypeResponseCreated:                  func() Event { return &ResponseCreatedEvent{} },
	TypeResponseDone:                     func() Event { return &ResponseDoneEvent{} },
	TypeResponseOutputItemAdded:          func() Event { return &ResponseOutputItemAddedEvent{} },
	TypeResponseOutputItemDone:           func() Event { return &ResponseOutputItemDoneEvent{} },
	TypeResponseContentPartAdded:         func() Event { return &ResponseContentPartAddedEvent{} },
	TypeResponseContentPartDone:          func() Event { return &ResponseContentPartDoneEvent{} },
	TypeResponseTextDelta:                func() Event { return &ResponseTextDeltaEvent{} },
	TypeResponseTextDone:                 func() Event { return &ResponseTextDoneEvent{} },
	TypeResponseAudioTranscriptDelta:     func() Event { return &ResponseAudioTranscriptDeltaEvent{} },
	TypeResponseAudioTranscriptDone:      func() Event { return &ResponseAudioTranscriptDoneEvent{} },
	TypeResponseAudioDelta:               func() Event { return &ResponseAudioDeltaEvent{} },
	TypeResponseAudioDone:                func() Event { return &ResponseAudioDoneEvent{} },
	TypeResponseFunctionCallArgsDelta:    func() Event { return &ResponseFunctionCallArgumentsDeltaEvent{} },
	TypeResponseFunctionCallArgsDone:     func() Event { return &ResponseFunctionCallArgumentsDoneEvent{} },
	TypeRateLimitsUpdated:                func() Event { return &RateLimitsUpdatedEvent{} },
}

// ParseServer decodes an inbound envelope into its concrete event struct.
// Types outside the catalog decode into *Unknown without error.
func ParseServer(data []byte) (Event, error) {
	env, err := Parse[BaseEvent](data)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	newEvent, ok := serverEvents[env.Type]
	if !ok {
		return &Unknown{BaseEvent: *env, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	evt := newEvent()
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", env.Type, err)
	}
	return evt, nil
}
