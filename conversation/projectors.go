package conversation

import (
	"fmt"

	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/pcm"
)

// A projector applies one server event. It must validate everything it needs
// before the first mutation so a failed event leaves the arenas untouched.
type projector func(c *Conversation, evt events.Event, inputAudio []int16) (Result, error)

func on[T events.Event](f func(c *Conversation, evt T, inputAudio []int16) (Result, error)) projector {
	return func(c *Conversation, evt events.Event, inputAudio []int16) (Result, error) {
		typed, ok := evt.(T)
		if !ok {
			return Result{}, fmt.Errorf("unexpected payload %T", evt)
		}
		return f(c, typed, inputAudio)
	}
}

func noop(*Conversation, events.Event, []int16) (Result, error) {
	return Result{}, nil
}

var projectors = map[events.Type]projector{
	events.TypeConversationItemCreated:          on(itemCreated),
	events.TypeConversationItemTruncated:        on(itemTruncated),
	events.TypeConversationItemDeleted:          on(itemDeleted),
	events.TypeInputAudioTranscriptionCompleted: on(transcriptionCompleted),
	events.TypeSpeechStarted:                    on(speechStarted),
	events.TypeSpeechStopped:                    on(speechStopped),
	events.TypeResponseCreated:                  on(responseCreated),
	events.TypeResponseDone:                     on(responseDone),
	events.TypeResponseOutputItemAdded:          on(outputItemAdded),
	events.TypeResponseOutputItemDone:           on(outputItemDone),
	events.TypeResponseContentPartAdded:         on(contentPartAdded),
	events.TypeResponseTextDelta:                on(textDelta),
	events.TypeResponseAudioTranscriptDelta:     on(audioTranscriptDelta),
	events.TypeResponseAudioDelta:               on(audioDelta),
	events.TypeResponseFunctionCallArgsDelta:    on(functionCallArgumentsDelta),

	events.TypeError:                         noop,
	events.TypeSessionCreated:                noop,
	events.TypeSessionUpdated:                noop,
	events.TypeConversationCreated:           noop,
	events.TypeInputAudioTranscriptionFailed: noop,
	events.TypeInputAudioBufferCommitted:     noop,
	events.TypeInputAudioBufferCleared:       noop,
	events.TypeResponseContentPartDone:       noop,
	events.TypeResponseTextDone:              noop,
	events.TypeResponseAudioTranscriptDone:   noop,
	events.TypeResponseAudioDone:             noop,
	events.TypeResponseFunctionCallArgsDone:  noop,
	events.TypeRateLimitsUpdated:             noop,
}

func itemCreated(c *Conversation, evt *events.ConversationItemCreatedEvent, _ []int16) (Result, error) {
	if evt.Item.ID == "" {
		return Result{}, fmt.Errorf("%w: item has no id", ErrMissingItem)
	}
	if existing, ok := c.itemLookup[evt.Item.ID]; ok {
		return Result{Item: existing.Clone()}, nil
	}

	item := (&Item{Item: evt.Item}).Clone()

	if speech, ok := c.queuedSpeech[item.ID]; ok {
		if speech.audio != nil {
			item.Formatted.Audio = speech.audio
		}
		delete(c.queuedSpeech, item.ID)
	}

	for _, part := range item.Content {
		if part.IsText() {
			item.Formatted.Text += part.Text
		}
	}

	if transcript, ok := c.queuedTranscripts[item.ID]; ok {
		item.Formatted.Transcript = transcript
		delete(c.queuedTranscripts, item.ID)
	}

	switch item.Type {
	case events.ItemTypeMessage:
		if item.Role == events.RoleUser {
			item.Status = events.ItemStatusCompleted
			if c.queuedInputAudio != nil {
				item.Formatted.Audio = c.queuedInputAudio
				c.queuedInputAudio = nil
			}
		} else {
			item.Status = events.ItemStatusInProgress
		}
	case events.ItemTypeFunctionCall:
		item.Status = events.ItemStatusInProgress
		item.Formatted.Tool = &FormattedTool{
			Type:   "function",
			Name:   item.Name,
			CallID: item.CallID,
		}
	case events.ItemTypeFunctionCallOutput:
		item.Status = events.ItemStatusCompleted
		item.Formatted.Output = item.Output
	}

	c.items = append(c.items, item)
	c.itemLookup[item.ID] = item
	return Result{Item: item.Clone()}, nil
}

func itemTruncated(c *Conversation, evt *events.ConversationItemTruncatedEvent, _ []int16) (Result, error) {
	item, err := c.item(evt.ItemID)
	if err != nil {
		return Result{}, err
	}

	end := max(0, pcm.SampleIndex(evt.AudioEndMs, c.sampleRate))
	if end < len(item.Formatted.Audio) {
		item.Formatted.Audio = item.Formatted.Audio[:end:end]
	}
	item.Formatted.Transcript = ""
	return Result{Item: item.Clone()}, nil
}

func itemDeleted(c *Conversation, evt *events.ConversationItemDeletedEvent, _ []int16) (Result, error) {
	item, err := c.item(evt.ItemID)
	if err != nil {
		return Result{}, err
	}

	for i, it := range c.items {
		if it == item {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	delete(c.itemLookup, item.ID)
	return Result{Item: item}, nil
}

func transcriptionCompleted(c *Conversation, evt *events.InputAudioTranscriptionCompletedEvent, _ []int16) (Result, error) {
	// An empty transcript is stored as a single space so that it still
	// reads as present.
	formatted := evt.Transcript
	if formatted == "" {
		formatted = " "
	}

	if _, ok := c.itemLookup[evt.ItemID]; !ok {
		c.queuedTranscripts[evt.ItemID] = formatted
		return Result{}, nil
	}

	item, part, err := c.content(evt.ItemID, evt.ContentIndex)
	if err != nil {
		return Result{}, err
	}
	transcript := evt.Transcript
	part.Transcript = &transcript
	item.Formatted.Transcript = formatted
	return Result{
		Item:  item.Clone(),
		Delta: &Delta{Transcript: evt.Transcript},
	}, nil
}

func speechStarted(c *Conversation, evt *events.SpeechStartedEvent, _ []int16) (Result, error) {
	c.queuedSpeech[evt.ItemID] = &speechSegment{startMs: evt.AudioStartMs}
	return Result{}, nil
}

func speechStopped(c *Conversation, evt *events.SpeechStoppedEvent, inputAudio []int16) (Result, error) {
	seg, ok := c.queuedSpeech[evt.ItemID]
	if !ok {
		seg = &speechSegment{startMs: evt.AudioEndMs}
		c.queuedSpeech[evt.ItemID] = seg
	}
	end := evt.AudioEndMs
	seg.endMs = &end

	if inputAudio != nil {
		seg.audio = pcm.Slice(inputAudio,
			pcm.SampleIndex(seg.startMs, c.sampleRate),
			pcm.SampleIndex(end, c.sampleRate),
		)
	}
	return Result{}, nil
}

func responseCreated(c *Conversation, evt *events.ResponseCreatedEvent, _ []int16) (Result, error) {
	if existing, ok := c.responseLookup[evt.Response.ID]; ok {
		return Result{Response: deepCopy(existing)}, nil
	}
	if evt.Response.ID == "" {
		return Result{}, fmt.Errorf("%w: response has no id", ErrResponseNotFound)
	}

	r := &Response{
		ID:            evt.Response.ID,
		Status:        evt.Response.Status,
		StatusDetails: evt.Response.StatusDetails,
		Usage:         evt.Response.Usage,
		Output:        []string{},
	}
	for _, it := range evt.Response.Output {
		r.Output = append(r.Output, it.ID)
	}

	c.responses = append(c.responses, r)
	c.responseLookup[r.ID] = r
	return Result{Response: deepCopy(r)}, nil
}

func responseDone(c *Conversation, evt *events.ResponseDoneEvent, _ []int16) (Result, error) {
	r, err := c.response(evt.Response.ID)
	if err != nil {
		return Result{}, err
	}
	r.Status = evt.Response.Status
	r.StatusDetails = evt.Response.StatusDetails
	r.Usage = evt.Response.Usage
	return Result{Response: deepCopy(r)}, nil
}

func outputItemAdded(c *Conversation, evt *events.ResponseOutputItemAddedEvent, _ []int16) (Result, error) {
	r, err := c.response(evt.ResponseID)
	if err != nil {
		return Result{}, err
	}
	r.Output = append(r.Output, evt.Item.ID)
	return Result{Response: deepCopy(r)}, nil
}

func outputItemDone(c *Conversation, evt *events.ResponseOutputItemDoneEvent, _ []int16) (Result, error) {
	if evt.Item == nil {
		return Result{}, ErrMissingItem
	}
	item, err := c.item(evt.Item.ID)
	if err != nil {
		return Result{}, err
	}
	item.Status = evt.Item.Status
	return Result{Item: item.Clone()}, nil
}

func contentPartAdded(c *Conversation, evt *events.ResponseContentPartAddedEvent, _ []int16) (Result, error) {
	item, err := c.item(evt.ItemID)
	if err != nil {
		return Result{}, err
	}
	part := evt.Part
	if part.Transcript != nil {
		t := *part.Transcript
		part.Transcript = &t
	}
	item.Content = append(item.Content, part)
	return Result{Item: item.Clone()}, nil
}

func textDelta(c *Conversation, evt *events.ResponseTextDeltaEvent, _ []int16) (Result, error) {
	item, part, err := c.content(evt.ItemID, evt.ContentIndex)
	if err != nil {
		return Result{}, err
	}
	part.Text += evt.Delta
	item.Formatted.Text += evt.Delta
	return Result{
		Item:  item.snapshot(),
		Delta: &Delta{Text: evt.Delta},
	}, nil
}

func audioTranscriptDelta(c *Conversation, evt *events.ResponseAudioTranscriptDeltaEvent, _ []int16) (Result, error) {
	item, part, err := c.content(evt.ItemID, evt.ContentIndex)
	if err != nil {
		return Result{}, err
	}
	transcript := evt.Delta
	if part.Transcript != nil {
		transcript = *part.Transcript + evt.Delta
	}
	part.Transcript = &transcript
	item.Formatted.Transcript += evt.Delta
	return Result{
		Item:  item.snapshot(),
		Delta: &Delta{Transcript: evt.Delta},
	}, nil
}

// audioDelta only grows the formatted audio. The base64 audio of the content
// part is left alone; re-encoding it on every delta is quadratic.
func audioDelta(c *Conversation, evt *events.ResponseAudioDeltaEvent, _ []int16) (Result, error) {
	item, err := c.item(evt.ItemID)
	if err != nil {
		return Result{}, err
	}
	samples, err := pcm.DecodeBase64(evt.Delta)
	if err != nil {
		return Result{}, err
	}
	item.Formatted.Audio = append(item.Formatted.Audio, samples...)
	return Result{
		Item:  item.snapshot(),
		Delta: &Delta{Audio: samples},
	}, nil
}

func functionCallArgumentsDelta(c *Conversation, evt *events.ResponseFunctionCallArgumentsDeltaEvent, _ []int16) (Result, error) {
	item, err := c.item(evt.ItemID)
	if err != nil {
		return Result{}, err
	}
	if item.Formatted.Tool == nil {
		return Result{}, fmt.Errorf("%w: %q", ErrNotFunctionCall, item.ID)
	}
	item.Arguments += evt.Delta
	item.Formatted.Tool.Arguments += evt.Delta
	return Result{
		Item:  item.snapshot(),
		Delta: &Delta{Arguments: evt.Delta},
	}, nil
}
