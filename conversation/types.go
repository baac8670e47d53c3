package conversation

import (
	"slices"

	"github.com/codewandler/realtime-go/events"
	"github.com/jinzhu/copier"
)

// Formatted is the flattened, append-friendly view of an item's streamed
// content. It is derived from the content parts and kept next to them.
type Formatted struct {
	Text       string         `json:"text"`
	Transcript string         `json:"transcript"`
	Audio      []int16        `json:"-"`
	Tool       *FormattedTool `json:"tool,omitempty"`
	Output     string         `json:"output,omitempty"`
}

type FormattedTool struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments"`
}

type Item struct {
	events.Item
	Formatted Formatted `json:"formatted"`
}

func (i *Item) IsAssistantMessage() bool {
	return i.Type == events.ItemTypeMessage && i.Role == events.RoleAssistant
}

// Clone returns a copy that shares no memory with i.
func (i *Item) Clone() *Item {
	out := *i
	if i.Content != nil {
		out.Content = make([]events.ContentPart, len(i.Content))
		for idx, part := range i.Content {
			if part.Transcript != nil {
				t := *part.Transcript
				part.Transcript = &t
			}
			out.Content[idx] = part
		}
	}
	out.Formatted.Audio = slices.Clone(i.Formatted.Audio)
	if i.Formatted.Tool != nil {
		tool := *i.Formatted.Tool
		out.Formatted.Tool = &tool
	}
	return &out
}

// snapshot is Clone without copying the audio.
func (i *Item) snapshot() *Item {
	audio := i.Formatted.Audio
	i.Formatted.Audio = nil
	out := i.Clone()
	i.Formatted.Audio = audio
	out.Formatted.Audio = audio[:len(audio):len(audio)]
	return out
}

// AudioContentIndex returns the index of the first audio content part or -1.
func (i *Item) AudioContentIndex() int {
	for idx, c := range i.Content {
		if c.Type == events.ContentAudio {
			return idx
		}
	}
	return -1
}

// Response tracks one generation cycle. Output holds the ids of its items in
// the order they were added.
type Response struct {
	ID            string                `json:"id"`
	Status        events.ResponseStatus `json:"status"`
	StatusDetails *events.StatusDetails `json:"status_details,omitempty"`
	Usage         *events.Usage         `json:"usage,omitempty"`
	Output        []string              `json:"output"`
}

// Delta is the increment applied by a streaming event.
type Delta struct {
	Text       string  `json:"text,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	Arguments  string  `json:"arguments,omitempty"`
	Audio      []int16 `json:"-"`
}

// Result is what processing one event produced. Item and Response are copies,
// except that for streaming deltas Item.Formatted.Audio is a read-only view of
// the engine's audio capped at its current length. The engine only appends to
// audio, so the view never changes, but writing to it corrupts the engine.
// Use Conversation.Item for an independent copy.
type Result struct {
	Item     *Item
	Response *Response
	Delta    *Delta
}

type speechSegment struct {
	startMs int
	endMs   *int
	audio   []int16
}

func deepCopy[T any](src *T) *T {
	if src == nil {
		return nil
	}
	var dst T
	if err := copier.CopyWithOption(&dst, src, copier.Option{DeepCopy: true}); err != nil {
		panic(err)
	}
	return &dst
}
