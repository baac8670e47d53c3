package realtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/pcm"
	"github.com/codewandler/realtime-go/internal/realtimetest"
	"github.com/codewandler/realtime-go/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, srv *realtimetest.Server, opts ...ClientOption) (*Client, *realtimetest.Conn) {
	t.Helper()
	c := New(append([]ClientOption{WithURL(srv.URL()), WithKey("sk-test")}, opts...)...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })

	conn := srv.Accept(t)
	if !c.IsRelay() {
		conn.NextOfType(t, "session.update")
	}
	return c, conn
}

func subscribe(c *Client, name string) <-chan Notification {
	ch := make(chan Notification, 16)
	c.On(name, func(n Notification) { ch <- n })
	return ch
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(realtimetest.DefaultTimeout):
		require.FailNow(t, "timed out")
		var zero T
		return zero
	}
}

func itemCreated(id string, item map[string]any) map[string]any {
	item["id"] = id
	item["object"] = "realtime.item"
	return map[string]any{
		"event_id":         "event_" + id,
		"type":             "conversation.item.created",
		"previous_item_id": nil,
		"item":             item,
	}
}

func TestSendUserMessageContent(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	var order []string
	done := make(chan struct{})
	c.On(EventItemAppended, func(n Notification) {
		order = append(order, "appended:"+string(n.Item.Role)+":"+string(n.Item.Status))
	})
	c.On(EventItemCompleted, func(n Notification) {
		order = append(order, "completed:"+n.Item.ID)
		close(done)
	})

	require.NoError(t, c.SendUserMessageContent(events.InputText("hi")))

	create := conn.NextOfType(t, "conversation.item.create")
	item := create["item"].(map[string]any)
	assert.Equal(t, "message", item["type"])
	assert.Equal(t, "user", item["role"])
	content := item["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "hi", content[0].(map[string]any)["text"])
	conn.NextOfType(t, "response.create")

	conn.Send(t, itemCreated("item_1", map[string]any{
		"type":    "message",
		"status":  "completed",
		"role":    "user",
		"content": []any{map[string]any{"type": "input_text", "text": "hi"}},
	}))

	recv(t, done)
	assert.Equal(t, []string{"appended:user:completed", "completed:item_1"}, order)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "hi", items[0].Formatted.Text)
}

func TestSendUserMessageNotConnected(t *testing.T) {
	c := New(WithKey("sk-test"))
	require.ErrorIs(t, c.SendUserMessageContent(events.InputText("hi")), ErrNotConnected)
	require.ErrorIs(t, c.CreateResponse(), ErrNotConnected)
	require.ErrorIs(t, c.CancelResponse("", 0), ErrNotConnected)
	require.ErrorIs(t, c.WaitForSessionCreated(context.Background()), ErrNotConnected)
}

func TestAddToolTwiceKeepsOneEntry(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	first := func(context.Context, map[string]any) (any, error) { return "first", nil }
	second := func(context.Context, map[string]any) (any, error) { return "second", nil }
	def := tool.Definition{Name: "lookup", Description: "Looks things up"}

	require.NoError(t, c.AddTool(def, first))
	conn.NextOfType(t, "session.update")
	require.NoError(t, c.AddTool(def, second))
	update := conn.NextOfType(t, "session.update")

	tools := update["session"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].(map[string]any)["name"])
	assert.Equal(t, "function", tools[0].(map[string]any)["type"])

	assert.Len(t, c.SessionConfig().Tools, 1)
	reg, ok := c.tools.Get("lookup")
	require.True(t, ok)
	res, err := reg.Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res)
}

func TestRemoveTool(t *testing.T) {
	c := New(WithKey("sk-test"), WithTool(tool.Definition{Name: "a"}, func(context.Context, map[string]any) (any, error) {
		return nil, nil
	}))
	require.Len(t, c.SessionConfig().Tools, 1)

	require.NoError(t, c.RemoveTool("a"))
	assert.Empty(t, c.SessionConfig().Tools)
	require.ErrorIs(t, c.RemoveTool("a"), tool.ErrNotFound)
}

func TestExplicitToolConflictsWithRegistered(t *testing.T) {
	c := New(WithKey("sk-test"))
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.NoError(t, c.AddTool(tool.Definition{Name: "a"}, noop))

	err := c.UpdateSession(events.SessionConfig{Tools: []tool.Definition{{Name: "a"}}})
	require.ErrorIs(t, err, ErrInvalidTool)

	require.NoError(t, c.UpdateSession(events.SessionConfig{Tools: []tool.Definition{{Name: "b"}}}))
	require.ErrorIs(t, c.AddTool(tool.Definition{Name: "b"}, noop), ErrInvalidTool)

	names := []string{}
	for _, def := range c.SessionConfig().Tools {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names)
}

func sendFunctionCall(t *testing.T, conn *realtimetest.Conn, name, args string) {
	t.Helper()
	conn.Send(t, itemCreated("item_call", map[string]any{
		"type":      "function_call",
		"status":    "in_progress",
		"name":      name,
		"call_id":   "call_1",
		"arguments": "",
	}))
	conn.Send(t, map[string]any{
		"event_id":     "event_args",
		"type":         "response.function_call_arguments.delta",
		"response_id":  "resp_1",
		"item_id":      "item_call",
		"output_index": 0,
		"call_id":      "call_1",
		"delta":        args,
	})
	conn.Send(t, map[string]any{
		"event_id":     "event_done",
		"type":         "response.output_item.done",
		"response_id":  "resp_1",
		"output_index": 0,
		"item": map[string]any{
			"id":        "item_call",
			"type":      "function_call",
			"status":    "completed",
			"name":      name,
			"call_id":   "call_1",
			"arguments": args,
		},
	})
}

type weatherArgs struct {
	City string `json:"city"`
}

func TestToolExecution(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	calls := make(chan map[string]any, 1)
	require.NoError(t, c.AddTool(
		tool.Definition{Name: "get_weather", Parameters: tool.Params[weatherArgs]()},
		func(_ context.Context, args map[string]any) (any, error) {
			calls <- args
			return map[string]any{"temp": 21}, nil
		},
	))
	conn.NextOfType(t, "session.update")

	sendFunctionCall(t, conn, "get_weather", `{"city":"Berlin"}`)

	assert.Equal(t, map[string]any{"city": "Berlin"}, recv(t, calls))

	output := conn.NextOfType(t, "conversation.item.create")
	item := output["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call_1", item["call_id"])
	assert.JSONEq(t, `{"temp":21}`, item["output"].(string))
	assert.Equal(t, "response.create", conn.Next(t)["type"])

	call, ok := c.Item("item_call")
	require.True(t, ok)
	assert.Equal(t, events.ItemStatusCompleted, call.Status)
	assert.Equal(t, `{"city":"Berlin"}`, call.Formatted.Tool.Arguments)
}

func TestToolFailureSendsErrorPayload(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	require.NoError(t, c.AddTool(tool.Definition{Name: "explode"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))
	conn.NextOfType(t, "session.update")

	sendFunctionCall(t, conn, "explode", `{}`)

	item := conn.NextOfType(t, "conversation.item.create")["item"].(map[string]any)
	assert.JSONEq(t, `{"error":"boom"}`, item["output"].(string))
	assert.Equal(t, "response.create", conn.Next(t)["type"])
	assert.True(t, c.IsConnected())
}

func TestToolPanicSendsErrorPayload(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	require.NoError(t, c.AddTool(tool.Definition{Name: "explode"}, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}))
	conn.NextOfType(t, "session.update")

	sendFunctionCall(t, conn, "explode", `{}`)

	item := conn.NextOfType(t, "conversation.item.create")["item"].(map[string]any)
	assert.Contains(t, item["output"], "kaboom")
	assert.Equal(t, "response.create", conn.Next(t)["type"])
	assert.True(t, c.IsConnected())
}

func TestUnknownToolSendsErrorPayload(t *testing.T) {
	srv := realtimetest.NewServer(t)
	_, conn := connect(t, srv)

	sendFunctionCall(t, conn, "missing", `{}`)

	item := conn.NextOfType(t, "conversation.item.create")["item"].(map[string]any)
	assert.Contains(t, item["output"], "tool not found")
	assert.Equal(t, "response.create", conn.Next(t)["type"])
}

func TestCancelResponse(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	appended := subscribe(c, EventItemAppended)

	conn.Send(t, itemCreated("item_user", map[string]any{
		"type": "message", "role": "user", "status": "completed",
	}))
	conn.Send(t, itemCreated("item_text", map[string]any{
		"type": "message", "role": "assistant", "status": "in_progress",
		"content": []any{map[string]any{"type": "text", "text": ""}},
	}))
	conn.Send(t, itemCreated("item_audio", map[string]any{
		"type": "message", "role": "assistant", "status": "in_progress",
		"content": []any{map[string]any{"type": "audio", "transcript": nil}},
	}))
	for range 3 {
		recv(t, appended)
	}

	require.ErrorIs(t, c.CancelResponse("missing", 100), ErrItemNotFound)
	require.ErrorIs(t, c.CancelResponse("item_user", 100), ErrNotAssistantMessage)
	require.ErrorIs(t, c.CancelResponse("item_text", 100), ErrNoAudioContent)

	require.NoError(t, c.CancelResponse("item_audio", 24_000))
	assert.Equal(t, "response.cancel", conn.Next(t)["type"])
	truncate := conn.Next(t)
	assert.Equal(t, "conversation.item.truncate", truncate["type"])
	assert.Equal(t, "item_audio", truncate["item_id"])
	assert.EqualValues(t, 0, truncate["content_index"])
	assert.EqualValues(t, 1000, truncate["audio_end_ms"])

	require.NoError(t, c.CancelResponse("", 0))
	assert.Equal(t, "response.cancel", conn.Next(t)["type"])
}

func TestManualCommit(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	require.Equal(t, "", c.TurnDetectionType())
	appended := subscribe(c, EventItemAppended)

	require.NoError(t, c.AppendInputAudio([]int16{1, 2, 3}))
	appendMsg := conn.Next(t)
	assert.Equal(t, "input_audio_buffer.append", appendMsg["type"])
	assert.Equal(t, "AQACAAMA", appendMsg["audio"])

	require.NoError(t, c.CreateResponse())
	assert.Equal(t, "input_audio_buffer.commit", conn.Next(t)["type"])
	assert.Equal(t, "response.create", conn.Next(t)["type"])

	conn.Send(t, itemCreated("item_1", map[string]any{
		"type": "message", "role": "user", "status": "completed",
		"content": []any{map[string]any{"type": "input_audio", "transcript": nil}},
	}))
	n := recv(t, appended)
	assert.Equal(t, []int16{1, 2, 3}, n.Item.Formatted.Audio)

	// the buffer was consumed by the commit
	require.NoError(t, c.CreateResponse())
	assert.Equal(t, "response.create", conn.Next(t)["type"])
}

func TestClearInputAudio(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	require.NoError(t, c.AppendInputAudio([]int16{1, 2, 3}))
	assert.Equal(t, "input_audio_buffer.append", conn.Next(t)["type"])

	require.NoError(t, c.ClearInputAudio())
	assert.Equal(t, "input_audio_buffer.clear", conn.Next(t)["type"])

	// nothing left to commit
	require.NoError(t, c.CreateResponse())
	assert.Equal(t, "response.create", conn.Next(t)["type"])
}

func TestClearInputAudioNotConnected(t *testing.T) {
	c := New(WithKey("sk-test"))
	require.ErrorIs(t, c.ClearInputAudio(), ErrNotConnected)
}

func TestServerVADInterrupt(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	require.NoError(t, c.SetTurnDetection(events.DefaultServerVAD()))
	update := conn.NextOfType(t, "session.update")
	td := update["session"].(map[string]any)["turn_detection"].(map[string]any)
	assert.Equal(t, "server_vad", td["type"])
	assert.Equal(t, "server_vad", c.TurnDetectionType())

	interrupted := subscribe(c, EventInterrupted)

	conn.Send(t, map[string]any{
		"event_id": "event_idle", "type": "input_audio_buffer.speech_started",
		"audio_start_ms": 0, "item_id": "item_1",
	})
	conn.Send(t, map[string]any{
		"event_id": "event_resp", "type": "response.created",
		"response": map[string]any{"id": "resp_1", "object": "realtime.response", "status": "in_progress", "output": []any{}},
	})
	conn.Send(t, map[string]any{
		"event_id": "event_busy", "type": "input_audio_buffer.speech_started",
		"audio_start_ms": 800, "item_id": "item_2",
	})

	n := recv(t, interrupted)
	assert.Equal(t, "event_busy", n.Event.Envelope().EventID)

	require.NoError(t, c.SetTurnDetection(nil))
	update = conn.NextOfType(t, "session.update")
	assert.Nil(t, update["session"].(map[string]any)["turn_detection"])
}

func TestSpeechSegmentFromInputAudio(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv, WithTurnDetection(events.DefaultServerVAD()))
	appended := subscribe(c, EventItemAppended)

	samples := make([]int16, 48_000)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	require.NoError(t, c.AppendInputAudio(samples))
	conn.NextOfType(t, "input_audio_buffer.append")

	conn.Send(t, map[string]any{
		"event_id": "event_1", "type": "input_audio_buffer.speech_started",
		"audio_start_ms": 500, "item_id": "item_1",
	})
	conn.Send(t, map[string]any{
		"event_id": "event_2", "type": "input_audio_buffer.speech_stopped",
		"audio_end_ms": 1500, "item_id": "item_1",
	})
	conn.Send(t, itemCreated("item_1", map[string]any{
		"type": "message", "role": "user", "status": "completed",
		"content": []any{map[string]any{"type": "input_audio", "transcript": nil}},
	}))

	n := recv(t, appended)
	assert.Len(t, n.Item.Formatted.Audio, 24_000)
}

func TestRelayMode(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv, WithRelay(srv.URL()), WithKey(""))

	assert.Empty(t, conn.Header.Get("Authorization"))

	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.ErrorIs(t, c.AddTool(tool.Definition{Name: "a"}, noop), ErrRelayMode)
	require.ErrorIs(t, c.RemoveTool("a"), ErrRelayMode)

	// nothing was pushed on connect
	require.NoError(t, c.SendUserMessageContent(events.InputText("hi")))
	assert.Equal(t, "conversation.item.create", conn.Next(t)["type"])

	require.ErrorIs(t, c.UpdateSession(events.SessionConfig{Voice: "alloy"}), ErrRelayMode)
	require.ErrorIs(t, c.SetTurnDetection(nil), ErrRelayMode)
	assert.NotEqual(t, "alloy", c.SessionConfig().Voice)

	// neither call reached the connection
	require.NoError(t, c.CancelResponse("", 0))
	assert.Equal(t, "response.cancel", conn.Next(t)["type"])
}

func TestEventLog(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	log := subscribe(c, EventLog)

	require.NoError(t, c.CreateResponse())
	n := recv(t, log)
	assert.Equal(t, SourceClient, n.Source)
	assert.Equal(t, events.TypeResponseCreate, n.Event.Envelope().Type)
	assert.False(t, n.Time.IsZero())

	conn.Send(t, map[string]any{"event_id": "event_1", "type": "input_audio_buffer.cleared"})
	n = recv(t, log)
	assert.Equal(t, SourceServer, n.Source)
	assert.Equal(t, events.TypeInputAudioBufferCleared, n.Event.Envelope().Type)
}

func TestErrorNotifications(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	errs := subscribe(c, EventError)

	conn.Send(t, map[string]any{"event_id": "event_1", "type": "something.new"})
	conn.Send(t, map[string]any{
		"event_id": "event_2", "type": "error",
		"error": map[string]any{"type": "invalid_request_error", "code": "bad", "message": "nope"},
	})

	n := recv(t, errs)
	var serviceErr *events.ErrorEvent
	require.ErrorAs(t, n.Err, &serviceErr)
	assert.Equal(t, "bad", serviceErr.ErrorDetail.Code)

	conn.Send(t, map[string]any{
		"event_id": "event_3", "type": "response.text.delta",
		"response_id": "resp_1", "item_id": "missing", "output_index": 0, "content_index": 0, "delta": "x",
	})
	n = recv(t, errs)
	require.ErrorIs(t, n.Err, conversation.ErrItemNotFound)
	assert.True(t, c.IsConnected())
}

func TestCloseNotification(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	closed := subscribe(c, EventClose)

	conn.Drop()
	n := recv(t, closed)
	assert.Error(t, n.Err)
	assert.False(t, c.IsConnected())
}

func TestDisconnectFromNotificationHandler(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	closed := subscribe(c, EventClose)

	type result struct {
		err  error
		took time.Duration
	}
	results := make(chan result, 1)
	c.On(EventError, func(Notification) {
		start := time.Now()
		err := c.Disconnect(context.Background())
		results <- result{err: err, took: time.Since(start)}
	})

	conn.Send(t, map[string]any{
		"event_id": "event_1", "type": "error",
		"error": map[string]any{"type": "invalid_request_error", "message": "nope"},
	})

	res := recv(t, results)
	require.NoError(t, res.err)
	assert.Less(t, res.took, time.Second)

	n := recv(t, closed)
	assert.NoError(t, n.Err)
	assert.False(t, c.IsConnected())
}

func TestUnreadAudioDoesNotBlockEvents(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv, WithSampleRate(8_000), WithAudioStream(8_000))
	appended := subscribe(c, EventItemAppended)

	conn.Send(t, itemCreated("item_a", map[string]any{"type": "message", "role": "assistant", "status": "in_progress"}))
	assert.Equal(t, "item_a", recv(t, appended).Item.ID)

	second := pcm.EncodeBase64(make([]int16, 8_000))
	for i := range 62 {
		conn.Send(t, map[string]any{
			"event_id": fmt.Sprintf("event_audio_%d", i), "type": "response.audio.delta",
			"response_id": "resp_1", "item_id": "item_a", "output_index": 0, "content_index": 0,
			"delta": second,
		})
	}
	conn.Send(t, itemCreated("item_b", map[string]any{"type": "message", "role": "assistant", "status": "in_progress"}))

	assert.Equal(t, "item_b", recv(t, appended).Item.ID)
	item, ok := c.Item("item_a")
	require.True(t, ok)
	assert.Len(t, item.Formatted.Audio, 62*8_000)
}

func TestWaitForSessionCreatedAndNextItem(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), realtimetest.DefaultTimeout)
	defer cancel()

	conn.Send(t, map[string]any{
		"event_id": "event_1", "type": "session.created",
		"session": map[string]any{"id": "sess_1", "object": "realtime.session", "model": "m"},
	})
	require.NoError(t, c.WaitForSessionCreated(ctx))
	// already created
	require.NoError(t, c.WaitForSessionCreated(ctx))

	items := make(chan *conversation.Item, 1)
	go func() {
		item, err := c.WaitForNextItem(ctx)
		if err == nil {
			items <- item
		}
	}()
	require.Eventually(t, func() bool { return c.Len(EventItemAppended) == 1 }, time.Second, 5*time.Millisecond)

	conn.Send(t, itemCreated("item_1", map[string]any{"type": "message", "role": "assistant", "status": "in_progress"}))
	assert.Equal(t, "item_1", recv(t, items).ID)
}

func TestDeleteItem(t *testing.T) {
	srv := realtimetest.NewServer(t)
	c, conn := connect(t, srv)
	updated := subscribe(c, EventUpdated)

	conn.Send(t, itemCreated("item_1", map[string]any{"type": "message", "role": "assistant", "status": "in_progress"}))
	recv(t, updated)

	require.NoError(t, c.DeleteItem("item_1"))
	msg := conn.Next(t)
	assert.Equal(t, "conversation.item.delete", msg["type"])
	assert.Equal(t, "item_1", msg["item_id"])
	// local state waits for the confirmation
	assert.Len(t, c.Items(), 1)

	conn.Send(t, map[string]any{"event_id": "event_del", "type": "conversation.item.deleted", "item_id": "item_1"})
	recv(t, updated)
	assert.Empty(t, c.Items())
}

func TestUpdateSessionMerges(t *testing.T) {
	c := New(WithKey("sk-test"), WithInstruction("be nice"))

	require.NoError(t, c.UpdateSession(events.SessionConfig{Voice: "alloy", Modalities: []string{"text"}}))
	session := c.SessionConfig()
	assert.Equal(t, "alloy", session.Voice)
	assert.Equal(t, "be nice", session.Instructions)
	assert.Equal(t, []string{"text"}, session.Modalities)
	assert.InDelta(t, 0.8, session.Temperature, 1e-9)
	assert.Equal(t, events.AudioFormatPCM16, session.InputAudioFormat)
	assert.Nil(t, session.TurnDetection)
}

func TestReset(t *testing.T) {
	srv := realtimetest.NewServer(t)
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	c, _ := connect(t, srv, WithTool(tool.Definition{Name: "configured"}, noop))

	c.On(EventUpdated, func(Notification) {})
	require.NoError(t, c.AddTool(tool.Definition{Name: "extra"}, noop))
	require.NoError(t, c.UpdateSession(events.SessionConfig{Voice: "alloy"}))

	require.NoError(t, c.Reset(context.Background()))
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, c.Len(EventUpdated))

	session := c.SessionConfig()
	assert.Equal(t, "verse", session.Voice)
	require.Len(t, session.Tools, 1)
	assert.Equal(t, "configured", session.Tools[0].Name)

	// the engine is wired again
	require.NoError(t, c.Connect(context.Background()))
	conn := srv.Accept(t)
	conn.NextOfType(t, "session.update")
	appended := subscribe(c, EventItemAppended)
	conn.Send(t, itemCreated("item_1", map[string]any{"type": "message", "role": "assistant"}))
	assert.Equal(t, "item_1", recv(t, appended).Item.ID)
}
