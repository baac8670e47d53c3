// Package realtime is a client for speech and text conversations over the
// OpenAI realtime protocol.
//
// A Client keeps one connection, reconstructs the conversation from the
// server events, executes registered tools and reports changes through
// notifications:
//
//	c := realtime.New(realtime.WithEnvKey("OPENAI_API_KEY"))
//	c.On(realtime.EventUpdated, func(n realtime.Notification) { ... })
//	if err := c.Connect(ctx); err != nil { ... }
//	_ = c.SendUserMessageContent(events.InputText("Hello"))
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codewandler/realtime-go/api"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/eventbus"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/pcm"
	"github.com/codewandler/realtime-go/tool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotConnected        = api.ErrNotConnected
	ErrRelayMode           = errors.New("not available in relay mode")
	ErrItemNotFound        = errors.New("item not found")
	ErrNotAssistantMessage = errors.New("item is not an assistant message")
	ErrNoAudioContent      = errors.New("item has no audio content")
	ErrInvalidTool         = errors.New("invalid tool")
)

type Client struct {
	eventbus.Bus[Notification]

	config *clientConfig
	logger *slog.Logger
	api    *api.API
	tools  *tool.Registry
	audio  *AudioIO

	mu             sync.Mutex
	conv           *conversation.Conversation
	session        events.SessionConfig
	inputAudio     []int16
	sessionCreated bool
}

func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	c := &Client{
		config: config,
		logger: config.logger,
		api: api.New(api.Config{
			URL:        config.url,
			Model:      config.model,
			APIKey:     config.apiKey,
			Credential: config.credential,
			Logger:     config.logger,
		}),
		tools: tool.NewRegistry(),
		conv:  conversation.New(config.sampleRate),
	}
	c.resetSession()
	c.wire()

	if config.audioRate > 0 && config.validate() == nil {
		c.audio = NewAudioIO(config.sampleRate, config.audioRate, config.latency(), c.logger)
		go c.audio.pump(c.AppendInputAudio)
	}
	return c
}

// resetSession restores the configured session and tools. The caller holds
// c.mu or has exclusive access.
func (c *Client) resetSession() {
	c.session = cloneSession(c.config.session)
	c.tools.Clear()
	if c.config.relay {
		return
	}
	for _, reg := range c.config.tools {
		if _, err := c.tools.Add(reg.Definition, reg.Handler); err != nil {
			c.logger.Error("invalid tool option", slog.Any("err", err))
		}
	}
}

func (c *Client) wire() {
	c.api.On(api.ClientWildcard, c.handleClient)
	c.api.On(api.ServerWildcard, c.handleServer)
	c.api.On(api.EventClose, c.handleClose)
}

// Audio returns the speaker reader and the microphone writer of the audio
// stream. Both carry mono PCM16 at the rate given to WithAudioStream.
func (c *Client) Audio() (io.Reader, io.Writer) {
	if c.audio == nil {
		return nil, nil
	}
	return c.audio.output, c.audio.input
}

func (c *Client) IsConnected() bool {
	return c.api.IsConnected()
}

func (c *Client) IsRelay() bool {
	return c.config.relay
}

// Connect opens the connection and pushes the session configuration. In relay
// mode the upstream owns the session and nothing is pushed.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.api.IsConnected() {
		return nil
	}
	if err := c.api.Connect(ctx); err != nil {
		return err
	}
	if c.config.relay {
		return nil
	}
	return c.UpdateSession(events.SessionConfig{})
}

// WaitForSessionCreated blocks until the service has reported the session.
func (c *Client) WaitForSessionCreated(ctx context.Context) error {
	if !c.api.IsConnected() {
		return ErrNotConnected
	}

	name := string(events.TypeSessionCreated)
	created := make(chan struct{}, 1)
	sub := c.api.Once(name, func(events.Event) { created <- struct{}{} })
	defer func() { _ = c.api.Off(name, sub) }()

	c.mu.Lock()
	done := c.sessionCreated
	c.mu.Unlock()
	if done {
		return nil
	}

	select {
	case <-created:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection and clears the conversation.
func (c *Client) Disconnect(ctx context.Context) error {
	err := c.api.Disconnect(ctx)

	c.mu.Lock()
	c.sessionCreated = false
	c.conv.Clear()
	c.inputAudio = nil
	c.mu.Unlock()

	if c.audio != nil {
		c.audio.Interrupt()
	}
	return err
}

// Reset disconnects, removes every notification handler and restores the
// configured session and tools.
func (c *Client) Reset(ctx context.Context) error {
	err := c.Disconnect(ctx)

	c.Bus.Clear()
	c.api.Clear()

	c.mu.Lock()
	c.conv = conversation.New(c.config.sampleRate)
	c.resetSession()
	c.mu.Unlock()

	c.wire()
	return err
}

// Close disconnects and stops the audio stream. The client cannot stream
// audio afterwards.
func (c *Client) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)
	if c.audio != nil {
		c.audio.Close()
	}
	return err
}

// UpdateSession merges the non-empty fields of patch into the session
// configuration and pushes the result while connected. Tools in patch are
// sent together with the registered tools. In relay mode the upstream owns
// the session and ErrRelayMode is returned.
func (c *Client) UpdateSession(patch events.SessionConfig) error {
	if c.config.relay {
		return ErrRelayMode
	}
	c.mu.Lock()
	next := c.session
	mergeSession(&next, patch)
	session, err := c.effectiveSession(next)
	if err == nil {
		c.session = next
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.pushSession(session)
}

// SetTurnDetection replaces the turn detection settings. nil disables server
// VAD and input audio is committed by CreateResponse.
func (c *Client) SetTurnDetection(td *events.TurnDetection) error {
	if c.config.relay {
		return ErrRelayMode
	}
	c.mu.Lock()
	if td != nil {
		cp := *td
		td = &cp
	}
	c.session.TurnDetection = td
	session, err := c.effectiveSession(c.session)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.pushSession(session)
}

func (c *Client) pushSession(session events.SessionConfig) error {
	if !c.api.IsConnected() {
		return nil
	}
	return c.api.Send(events.TypeSessionUpdate, &events.SessionUpdateEvent{Session: session})
}

// effectiveSession is s as sent: explicit tools followed by the registered
// ones.
func (c *Client) effectiveSession(s events.SessionConfig) (events.SessionConfig, error) {
	session := cloneSession(s)

	catalog := make([]tool.Definition, 0, len(session.Tools)+c.tools.Len())
	for _, def := range session.Tools {
		if def.Name == "" {
			return events.SessionConfig{}, fmt.Errorf("%w: definition without name", ErrInvalidTool)
		}
		if c.tools.Has(def.Name) {
			return events.SessionConfig{}, fmt.Errorf("%w: %q is already registered", ErrInvalidTool, def.Name)
		}
		if def.Type == "" {
			def.Type = tool.TypeFunction
		}
		catalog = append(catalog, def)
	}
	session.Tools = append(catalog, c.tools.Definitions()...)
	return session, nil
}

func (c *Client) SessionConfig() events.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, err := c.effectiveSession(c.session)
	if err != nil {
		return cloneSession(c.session)
	}
	return session
}

// TurnDetectionType returns the configured turn detection type, or "" when
// input audio is committed manually.
func (c *Client) TurnDetectionType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.TurnDetection == nil {
		return ""
	}
	return c.session.TurnDetection.Type
}

// AddTool registers a tool and pushes the new catalog. A tool with the same
// name is replaced.
func (c *Client) AddTool(def tool.Definition, h tool.Handler) error {
	if c.config.relay {
		return ErrRelayMode
	}
	c.mu.Lock()
	explicit := slices.ContainsFunc(c.session.Tools, func(d tool.Definition) bool { return d.Name == def.Name })
	c.mu.Unlock()
	if explicit {
		return fmt.Errorf("%w: %q is part of the session tools", ErrInvalidTool, def.Name)
	}
	if _, err := c.tools.Add(def, h); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTool, err)
	}
	return c.UpdateSession(events.SessionConfig{})
}

func (c *Client) RemoveTool(name string) error {
	if c.config.relay {
		return ErrRelayMode
	}
	if err := c.tools.Remove(name); err != nil {
		return err
	}
	return c.UpdateSession(events.SessionConfig{})
}

// Item returns a copy of the item with the given id.
func (c *Client) Item(id string) (*conversation.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Item(id)
}

func (c *Client) Items() []*conversation.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Items()
}

func (c *Client) Responses() []*conversation.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Responses()
}

// SendUserMessageContent adds a user message and asks for a response.
func (c *Client) SendUserMessageContent(parts ...events.ContentPart) error {
	if !c.api.IsConnected() {
		return ErrNotConnected
	}
	if len(parts) > 0 {
		err := c.api.Send(events.TypeConversationItemCreate, &events.ConversationItemCreateEvent{
			Item: events.Item{
				Type:    events.ItemTypeMessage,
				Role:    events.RoleUser,
				Content: parts,
			},
		})
		if err != nil {
			return err
		}
	}
	return c.CreateResponse()
}

// InputAudio is a user content part holding samples.
func InputAudio(samples []int16) events.ContentPart {
	return events.ContentPart{Type: events.ContentInputAudio, Audio: pcm.EncodeBase64(samples)}
}

// AppendInputAudio streams samples to the service and keeps them for the
// current turn.
func (c *Client) AppendInputAudio(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	err := c.api.Send(events.TypeInputAudioBufferAppend, &events.InputAudioBufferAppendEvent{
		Audio: pcm.EncodeBase64(samples),
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.inputAudio = append(c.inputAudio, samples...)
	c.mu.Unlock()
	return nil
}

// ClearInputAudio discards input audio that has not been committed, on the
// service and locally.
func (c *Client) ClearInputAudio() error {
	if err := c.api.Send(events.TypeInputAudioBufferClear, &events.InputAudioBufferClearEvent{}); err != nil {
		return err
	}

	c.mu.Lock()
	c.inputAudio = nil
	c.mu.Unlock()
	return nil
}

// CreateResponse asks for a response. Without turn detection, buffered input
// audio is committed first and becomes the audio of the next user item.
func (c *Client) CreateResponse() error {
	if !c.api.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	var committed []int16
	if c.session.TurnDetection == nil && len(c.inputAudio) > 0 {
		committed = c.inputAudio
		c.inputAudio = nil
		c.conv.QueueInputAudio(committed)
	}
	c.mu.Unlock()

	if committed != nil {
		if err := c.api.Send(events.TypeInputAudioBufferCommit, &events.InputAudioBufferCommitEvent{}); err != nil {
			c.mu.Lock()
			c.inputAudio = append(committed, c.inputAudio...)
			c.conv.QueueInputAudio(nil)
			c.mu.Unlock()
			return err
		}
	}
	return c.api.Send(events.TypeResponseCreate, &events.ResponseCreateEvent{})
}

// CancelResponse cancels the response in progress. With an item id it also
// truncates that assistant item's audio after sampleCount samples, the amount
// the caller actually played.
func (c *Client) CancelResponse(itemID string, sampleCount int) error {
	if !c.api.IsConnected() {
		return ErrNotConnected
	}
	if itemID == "" {
		return c.api.Send(events.TypeResponseCancel, &events.ResponseCancelEvent{})
	}

	c.mu.Lock()
	item, ok := c.conv.Item(itemID)
	rate := c.conv.SampleRate()
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if !item.IsAssistantMessage() {
		return fmt.Errorf("%w: %q", ErrNotAssistantMessage, itemID)
	}
	index := item.AudioContentIndex()
	if index < 0 {
		return fmt.Errorf("%w: %q", ErrNoAudioContent, itemID)
	}

	if err := c.api.Send(events.TypeResponseCancel, &events.ResponseCancelEvent{}); err != nil {
		return err
	}
	return c.api.Send(events.TypeConversationItemTruncate, &events.ConversationItemTruncateEvent{
		ItemID:       itemID,
		ContentIndex: index,
		AudioEndMs:   pcm.Millis(max(0, sampleCount), rate),
	})
}

// DeleteItem asks the service to delete an item. It disappears locally once
// the service confirms.
func (c *Client) DeleteItem(id string) error {
	return c.api.Send(events.TypeConversationItemDelete, &events.ConversationItemDeleteEvent{ItemID: id})
}

// WaitForNextItem returns the next item appended to the conversation.
func (c *Client) WaitForNextItem(ctx context.Context) (*conversation.Item, error) {
	n, err := c.WaitForNext(ctx, EventItemAppended, 0)
	if err != nil {
		return nil, err
	}
	return n.Item, nil
}

// WaitForNextCompletedItem returns the next item that completes.
func (c *Client) WaitForNextCompletedItem(ctx context.Context) (*conversation.Item, error) {
	n, err := c.WaitForNext(ctx, EventItemCompleted, 0)
	if err != nil {
		return nil, err
	}
	return n.Item, nil
}

func (c *Client) handleClient(evt events.Event) {
	c.Dispatch(EventLog, Notification{Time: time.Now(), Source: SourceClient, Event: evt})
}

func (c *Client) handleClose(evt events.Event) {
	c.mu.Lock()
	c.sessionCreated = false
	c.mu.Unlock()

	n := Notification{Time: time.Now(), Event: evt}
	if closed, ok := evt.(*api.CloseEvent); ok {
		n.Err = closed.Err
	}
	c.Dispatch(EventClose, n)
}

func (c *Client) handleServer(evt events.Event) {
	c.Dispatch(EventLog, Notification{Time: time.Now(), Source: SourceServer, Event: evt})

	env := evt.Envelope()
	if e, ok := evt.(*events.ErrorEvent); ok {
		c.logger.Error("service error", slog.String("event_id", env.EventID), slog.Any("err", e))
		c.Dispatch(EventError, Notification{Event: evt, Err: e})
	}

	var (
		itemID      string
		interrupted bool
	)
	switch e := evt.(type) {
	case *events.ConversationItemCreatedEvent:
		itemID = e.Item.ID
	case *events.ResponseOutputItemDoneEvent:
		if e.Item != nil {
			itemID = e.Item.ID
		}
	}

	c.mu.Lock()
	if _, ok := evt.(*events.SessionCreatedEvent); ok {
		c.sessionCreated = true
	}
	prevStatus, existed := c.conv.Status(itemID)

	var inputAudio []int16
	if _, ok := evt.(*events.SpeechStoppedEvent); ok {
		inputAudio = c.inputAudio
	}
	res, err := c.conv.Process(evt, inputAudio)
	if _, ok := evt.(*events.SpeechStartedEvent); ok && err == nil {
		_, interrupted = c.conv.InProgressResponse()
	}
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, conversation.ErrUnknownEventType) {
			c.logger.Warn("ignoring unknown event", slog.String("type", env.Type.String()))
			return
		}
		c.logger.Error("failed to apply event", slog.String("type", env.Type.String()), slog.Any("err", err))
		c.Dispatch(EventError, Notification{Event: evt, Err: err})
		return
	}

	if interrupted {
		if c.audio != nil {
			c.audio.Interrupt()
		}
		c.Dispatch(EventInterrupted, Notification{Event: evt})
	}

	if res.Item == nil {
		return
	}
	if c.audio != nil && res.Delta != nil && len(res.Delta.Audio) > 0 {
		if err := c.audio.Play(res.Delta.Audio); errors.Is(err, ErrPlaybackFull) {
			c.logger.Warn("audio stream is not read fast enough", slog.Any("err", err))
		} else if err != nil {
			c.logger.Error("failed to queue playback", slog.Any("err", err))
		}
	}

	item := Notification{Item: res.Item, Delta: res.Delta, Event: evt}
	completed := res.Item.Status == events.ItemStatusCompleted &&
		(!existed || prevStatus != events.ItemStatusCompleted)

	switch evt.(type) {
	case *events.ConversationItemCreatedEvent:
		if !existed {
			c.Dispatch(EventItemAppended, item)
		}
		c.Dispatch(EventUpdated, item)
		if completed {
			c.Dispatch(EventItemCompleted, item)
		}
	case *events.ResponseOutputItemDoneEvent:
		c.Dispatch(EventUpdated, item)
		if completed {
			c.Dispatch(EventItemCompleted, item)
		}
		call := res.Item.Formatted.Tool
		if call != nil && res.Item.Status == events.ItemStatusCompleted && !c.config.relay {
			go c.callTool(*call)
		}
	default:
		c.Dispatch(EventUpdated, item)
	}
}

func (c *Client) callTool(call conversation.FormattedTool) {
	ctx, span := tracer.Start(context.Background(), "realtime tool call", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.CallID),
	))
	defer span.End()

	output, err := c.runTool(ctx, call)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("tool call failed", slog.String("name", call.Name), slog.Any("err", err))
		data, _ := json.Marshal(map[string]any{"error": err.Error()})
		output = string(data)
	}
	toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("status", status),
	))
	c.logger.Debug("tool call", slog.String("name", call.Name), slog.String("output", output))

	err = c.api.Send(events.TypeConversationItemCreate, &events.ConversationItemCreateEvent{
		Item: events.Item{
			Type:   events.ItemTypeFunctionCallOutput,
			CallID: call.CallID,
			Output: output,
		},
	})
	if err == nil {
		err = c.CreateResponse()
	}
	if err != nil {
		c.logger.Error("failed to send tool output", slog.String("name", call.Name), slog.Any("err", err))
	}
}

func (c *Client) runTool(ctx context.Context, call conversation.FormattedTool) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			output, err = "", fmt.Errorf("tool panicked: %v", r)
		}
	}()

	reg, ok := c.tools.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("%w: %q", tool.ErrNotFound, call.Name)
	}

	var args map[string]any
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	res, err := reg.Handler(ctx, args)
	if err != nil {
		return "", err
	}
	if res == nil {
		res = map[string]any{"success": true}
	}
	data, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("could not encode result: %w", err)
	}
	return string(data), nil
}
