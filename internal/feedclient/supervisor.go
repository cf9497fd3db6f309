package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"nhooyr.io/websocket"

	"github.com/agentworkforce/queuefeed/internal/feed"
)

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
	StatusOffline    Status = "offline"
)

const defaultEventBuffer = 64

type SupervisorOptions struct {
	URL         string
	Tenant      string
	Tokens      TokenProvider
	Logger      feed.Logger
	OnStatus    func(Status)
	DialOptions *websocket.DialOptions
	DialTimeout time.Duration
	EventBuffer int
}

type Supervisor struct {
	url         string
	tenant      string
	tokens      TokenProvider
	logger      feed.Logger
	onStatus    func(Status)
	dialOpts    *websocket.DialOptions
	dialTimeout time.Duration

	mu      sync.Mutex
	status  Status
	lastErr string
	started bool

	events chan feed.Envelope
	cancel context.CancelFunc
	done   chan struct{}
}

type frame struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

func NewSupervisor(opts SupervisorOptions) *Supervisor {
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Supervisor{
		url:         strings.TrimSpace(opts.URL),
		tenant:      strings.TrimSpace(opts.Tenant),
		tokens:      opts.Tokens,
		logger:      opts.Logger,
		onStatus:    opts.OnStatus,
		dialOpts:    opts.DialOptions,
		dialTimeout: timeout,
		status:      StatusConnecting,
		events:      make(chan feed.Envelope, buffer),
		done:        make(chan struct{}),
	}
}

func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.started = true
	s.mu.Unlock()

	if s.url == "" {
		s.setStatus(StatusOffline, "")
		close(s.events)
		close(s.done)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.setStatus(StatusConnecting, "")
	go s.run(ctx)
	return nil
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-s.done
}

func (s *Supervisor) Events() <-chan feed.Envelope {
	return s.events
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	schema, err := compileFrameSchema()
	if err != nil {
		s.fail("invalid frame schema: " + err.Error())
		return
	}

	token := ""
	if s.tokens != nil {
		token, err = s.tokens.Token(ctx)
	}
	if s.tokens == nil || err != nil {
		s.fail("session token unavailable")
		return
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, s.dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.url, s.dialOpts)
	cancelDial()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail("connect failed: " + err.Error())
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "client shutdown")
	conn.SetReadLimit(1 << 20)

	authFrame, err := json.Marshal(map[string]string{
		"type":      "auth",
		"token":     token,
		"tenant_id": s.tenant,
	})
	if err != nil {
		s.fail("auth frame encode failed")
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, authFrame); err != nil {
		s.fail("auth write failed: " + err.Error())
		return
	}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail("connection lost: " + err.Error())
			return
		}
		s.handleFrame(ctx, schema, raw)
		if s.Status() == StatusError {
			return
		}
	}
}

func (s *Supervisor) handleFrame(ctx context.Context, schema *jsonschema.Schema, raw []byte) {
	if err := validateFrame(schema, raw); err != nil {
		s.logf("feed: dropping malformed frame: %v", err)
		return
	}
	var msg frame
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logf("feed: dropping undecodable frame: %v", err)
		return
	}
	switch msg.Type {
	case "ready":
		s.setStatus(StatusConnected, "")
	case "activity":
		env, err := feed.DecodeEnvelope(msg.Data)
		if err != nil {
			s.logf("feed: dropping activity frame: %v", err)
			return
		}
		select {
		case s.events <- env:
		case <-ctx.Done():
		default:
			s.logf("feed: dropping activity %s, consumer behind", env.Ref.Doc)
		}
	case "heartbeat":
	case "error":
		message := msg.Message
		if message == "" {
			message = "server reported an error"
		}
		s.fail(message)
	}
}

func (s *Supervisor) fail(message string) {
	s.setStatus(StatusError, message)
	s.logf("feed: %s", message)
}

func (s *Supervisor) setStatus(status Status, lastErr string) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	if lastErr != "" || status != StatusError {
		s.lastErr = lastErr
	}
	onStatus := s.onStatus
	s.mu.Unlock()
	if changed && onStatus != nil {
		onStatus(status)
	}
}

func (s *Supervisor) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
