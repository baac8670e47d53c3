// Package api owns the single persistent connection to the realtime service.
//
// Every outbound event is dispatched under its exact type, "client.<type>" and
// "client.*" before it is written; every inbound event under its exact type,
// "server.<type>" and "server.*". When the connection ends a single "close"
// notification is dispatched.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/codewandler/realtime-go/eventbus"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"

	EventClose     = "close"
	ClientWildcard = "client.*"
	ServerWildcard = "server.*"

	closeTimeout = 2 * time.Second
)

var (
	ErrNotConnected = errors.New("realtime api is not connected")
	ErrMissingKey   = errors.New("missing api key")
)

// CredentialMode selects how the api key travels with the handshake. Not every
// runtime can set arbitrary handshake headers.
type CredentialMode int

const (
	CredentialHeader CredentialMode = iota
	CredentialSubprotocol
	CredentialQuery
	// CredentialNone sends no credential, e.g. when talking to a relay.
	CredentialNone
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

type Config struct {
	URL         string
	Model       string
	APIKey      string
	Credential  CredentialMode
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// CloseEvent is dispatched once when a connection ends. Error is set when the
// transport failed rather than closing normally.
type CloseEvent struct {
	events.BaseEvent
	Error bool  `json:"error"`
	Err   error `json:"-"`
}

type connection struct {
	ws        *websocket.Client
	closeOnce sync.Once
}

type API struct {
	eventbus.Bus[events.Event]

	config Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	current *connection
}

func New(config Config) *API {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &API{
		config: config,
		logger: logger,
	}
}

func (a *API) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *API) IsConnected() bool {
	return a.State() == StateOpen
}

func (a *API) handshake() (string, http.Header, []string, error) {
	u, err := url.Parse(a.config.URL)
	if err != nil {
		return "", nil, nil, fmt.Errorf("invalid url: %w", err)
	}
	if a.config.Credential != CredentialNone && a.config.APIKey == "" {
		return "", nil, nil, ErrMissingKey
	}

	q := u.Query()
	if a.config.Model != "" {
		q.Set("model", a.config.Model)
	}

	var (
		headers   = http.Header{}
		protocols []string
	)
	switch a.config.Credential {
	case CredentialHeader:
		headers.Set("Authorization", "Bearer "+a.config.APIKey)
		headers.Set("OpenAI-Beta", "realtime=v1")
	case CredentialSubprotocol:
		protocols = []string{
			"realtime",
			"openai-insecure-api-key." + a.config.APIKey,
			"openai-beta.realtime-v1",
		}
	case CredentialQuery:
		q.Set("api_key", a.config.APIKey)
		q.Set("openai-beta", "realtime-v1")
	}

	u.RawQuery = q.Encode()
	return u.String(), headers, protocols, nil
}

// Connect opens the connection. It is a no-op while a connection is being
// established or open.
func (a *API) Connect(ctx context.Context) (err error) {
	a.mu.Lock()
	if a.state != StateDisconnected {
		a.mu.Unlock()
		return nil
	}
	conn := &connection{}
	a.state = StateConnecting
	a.current = conn
	a.mu.Unlock()

	ctx, span := tracer.Start(ctx, "realtime connect", trace.WithAttributes(
		attribute.String("realtime.model", a.config.Model),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	fail := func(err error) error {
		a.mu.Lock()
		if a.current == conn {
			a.current = nil
			a.state = StateDisconnected
		}
		a.mu.Unlock()
		return err
	}

	wsURL, headers, protocols, err := a.handshake()
	if err != nil {
		return fail(err)
	}

	client, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         wsURL,
		DialTimeout: a.config.DialTimeout,
		Headers:     headers,
		Protocols:   protocols,
		Logger:      a.logger,
		OnText:      a.receive,
		OnClose: func(err error) {
			a.finish(conn, err)
		},
	})
	if err != nil {
		return fail(fmt.Errorf("could not connect to %s: %w", a.config.URL, err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	conn.ws = client
	if a.current != conn {
		return errors.New("connection closed during handshake")
	}
	a.state = StateOpen
	a.logger.Info("connected", slog.String("url", a.config.URL))
	return nil
}

func (a *API) finish(conn *connection, err error) {
	conn.closeOnce.Do(func() {
		a.mu.Lock()
		if a.current == conn {
			a.current = nil
			a.state = StateDisconnected
		}
		a.mu.Unlock()

		if err != nil {
			a.logger.Error("connection lost", slog.Any("err", err))
		} else {
			a.logger.Info("disconnected")
		}

		a.Dispatch(EventClose, &CloseEvent{
			BaseEvent: events.BaseEvent{Type: EventClose},
			Error:     err != nil,
			Err:       err,
		})
	})
}

// Disconnect closes the connection. The close notification is dispatched
// before Disconnect returns unless ctx ends first.
func (a *API) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	conn := a.current
	a.current = nil
	a.state = StateDisconnected
	a.mu.Unlock()

	if conn == nil || conn.ws == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	return conn.ws.Close(ctx)
}

// Send assigns a fresh event id and the given type to evt, notifies observers
// and writes it to the connection. A nil evt sends a bare envelope.
func (a *API) Send(eventType events.Type, evt events.Event) error {
	a.mu.Lock()
	conn := a.current
	open := a.state == StateOpen
	a.mu.Unlock()
	if !open || conn == nil || conn.ws == nil {
		return ErrNotConnected
	}

	if evt == nil {
		evt = &events.BaseEvent{}
	}
	env := evt.Envelope()
	*env = events.NewBaseEvent(eventType)

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", eventType, err)
	}

	name := string(eventType)
	a.Dispatch(name, evt)
	a.Dispatch("client."+name, evt)
	a.Dispatch(ClientWildcard, evt)

	a.logger.Debug("sent", slog.String("type", name), slog.String("event_id", env.EventID))
	sentEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", name)))

	return conn.ws.WriteText(data)
}

func (a *API) receive(data []byte) error {
	evt, err := events.ParseServer(data)
	if err != nil {
		return err
	}

	env := evt.Envelope()
	name := string(env.Type)
	a.logger.Debug("received", slog.String("type", name), slog.String("event_id", env.EventID))
	receivedEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", name)))

	a.Dispatch(name, evt)
	a.Dispatch("server."+name, evt)
	a.Dispatch(ServerWildcard, evt)
	return nil
}
