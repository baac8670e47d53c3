// Package conversation reconstructs the conversation transcript from the
// stream of server events.
//
// Each server event type has a projector that applies the event to the item
// and response arenas and reports what changed. Events that reference an item
// or response that is not tracked fail on their own without touching state,
// with one exception: an input audio transcript that arrives before its item
// is kept until the item is created.
package conversation

import (
	"errors"
	"fmt"

	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/pcm"
)

var (
	ErrMissingEventID   = errors.New("missing event_id")
	ErrMissingType      = errors.New("missing type")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrItemNotFound     = errors.New("item not found")
	ErrResponseNotFound = errors.New("response not found")
	ErrContentIndex     = errors.New("content index out of range")
	ErrMissingItem      = errors.New("missing item")
	ErrNotFunctionCall  = errors.New("item is not a function call")
)

// Conversation is not safe for concurrent use; the owner serializes calls.
type Conversation struct {
	sampleRate int

	items      []*Item
	itemLookup map[string]*Item

	responses      []*Response
	responseLookup map[string]*Response

	queuedSpeech      map[string]*speechSegment
	queuedTranscripts map[string]string
	queuedInputAudio  []int16
}

func New(sampleRate int) *Conversation {
	if sampleRate <= 0 {
		sampleRate = pcm.DefaultSampleRate
	}
	c := &Conversation{sampleRate: sampleRate}
	c.Clear()
	return c
}

func (c *Conversation) SampleRate() int {
	return c.sampleRate
}

// Clear drops all items, responses and pending state.
func (c *Conversation) Clear() {
	c.items = nil
	c.itemLookup = make(map[string]*Item)
	c.responses = nil
	c.responseLookup = make(map[string]*Response)
	c.queuedSpeech = make(map[string]*speechSegment)
	c.queuedTranscripts = make(map[string]string)
	c.queuedInputAudio = nil
}

// QueueInputAudio stores manually committed input audio. The next user
// message created takes it as its formatted audio.
func (c *Conversation) QueueInputAudio(samples []int16) {
	c.queuedInputAudio = append([]int16(nil), samples...)
}

// Process applies evt. inputAudio is the caller's rolling input buffer and is
// only used by speech_stopped.
func (c *Conversation) Process(evt events.Event, inputAudio []int16) (Result, error) {
	if evt == nil {
		return Result{}, ErrMissingType
	}
	env := evt.Envelope()
	if env.EventID == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrMissingEventID, env.Type)
	}
	if env.Type == "" {
		return Result{}, fmt.Errorf("%w: event %s", ErrMissingType, env.EventID)
	}

	p, ok := projectors[env.Type]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}

	res, err := p(c, evt, inputAudio)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", env.Type, env.EventID, err)
	}
	return res, nil
}

func (c *Conversation) Item(id string) (*Item, bool) {
	item, ok := c.itemLookup[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Status reports the status of a tracked item without copying it.
func (c *Conversation) Status(id string) (events.ItemStatus, bool) {
	item, ok := c.itemLookup[id]
	if !ok {
		return "", false
	}
	return item.Status, true
}

// Items returns copies of all items in creation order.
func (c *Conversation) Items() []*Item {
	out := make([]*Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.Clone()
	}
	return out
}

func (c *Conversation) Response(id string) (*Response, bool) {
	r, ok := c.responseLookup[id]
	if !ok {
		return nil, false
	}
	return deepCopy(r), true
}

func (c *Conversation) Responses() []*Response {
	out := make([]*Response, len(c.responses))
	for i, r := range c.responses {
		out[i] = deepCopy(r)
	}
	return out
}

// InProgressResponse returns the most recent response still generating.
func (c *Conversation) InProgressResponse() (*Response, bool) {
	for i := len(c.responses) - 1; i >= 0; i-- {
		if c.responses[i].Status == events.ResponseStatusInProgress {
			return deepCopy(c.responses[i]), true
		}
	}
	return nil, false
}

func (c *Conversation) item(id string) (*Item, error) {
	item, ok := c.itemLookup[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	return item, nil
}

func (c *Conversation) content(id string, index int) (*Item, *events.ContentPart, error) {
	item, err := c.item(id)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(item.Content) {
		return nil, nil, fmt.Errorf("%w: item %q has %d parts, got %d", ErrContentIndex, id, len(item.Content), index)
	}
	return item, &item.Content[index], nil
}

func (c *Conversation) response(id string) (*Response, error) {
	r, ok := c.responseLookup[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrResponseNotFound, id)
	}
	return r, nil
}
