// Package ws binds the push channel to a websocket connection. It joins the
// event room after every dial and reconnects with exponential backoff until
// closed.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/stream"
)

// Control message types exchanged outside the named events
const (
	TypeJoin          = "join"
	TypeAuthenticated = "authenticated"
	TypeAuthError     = "auth-error"
)

// Envelope wraps every websocket message
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// JoinData is sent after each dial
type JoinData struct {
	ShareToken string `json:"shareToken"`
	Role       string `json:"role"`
	ClientID   string `json:"clientId"`
}

// Config contains the websocket endpoint and reconnection policy
type Config struct {
	URL               string        `yaml:"url"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
}

// DefaultConfig returns 1s initial backoff capped at 30s
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// Transport implements stream.Transport over gorilla/websocket
type Transport struct {
	cfg      Config
	dialer   *websocket.Dialer
	clientID string
	log      zerolog.Logger

	reconnects atomic.Uint32

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

var _ stream.Transport = (*Transport)(nil)

// New creates a transport; nothing is dialed until Open
func New(cfg Config, logger zerolog.Logger) *Transport {
	clientID := uuid.NewString()
	return &Transport{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		clientID: clientID,
		log:      logger.With().Str("component", "ws").Str("client_id", clientID).Logger(),
	}
}

// Reconnects returns the number of failed sessions so far
func (t *Transport) Reconnects() uint32 {
	return t.reconnects.Load()
}

// Open validates the endpoint and starts the connection loop in the
// background. Connection progress is reported through sink.
func (t *Transport) Open(ctx context.Context, room stream.Room, sink stream.Sink) error {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid websocket url scheme: %q", u.Scheme)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return errors.New("websocket transport already open")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, room, sink, t.done)
	return nil
}

// Close stops reconnecting, closes the live connection and waits for the
// connection loop to exit
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel, done, conn := t.cancel, t.done, t.conn
	t.cancel, t.done, t.conn = nil, nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	<-done
	return nil
}

func (t *Transport) run(ctx context.Context, room stream.Room, sink stream.Sink, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		connected, err := t.session(ctx, room, sink)
		if ctx.Err() != nil {
			t.log.Info().Msg("websocket transport stopped")
			return
		}
		if connected {
			attempt = 0
		}
		attempt++
		t.reconnects.Add(1)

		delay := backoff(attempt, t.cfg)
		t.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("websocket session ended, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// session dials, joins and pumps events until the connection fails. It
// reports whether the dial succeeded.
func (t *Transport) session(ctx context.Context, room stream.Room, sink stream.Sink) (bool, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}

	t.mu.Lock()
	if ctx.Err() != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return false, ctx.Err()
	}
	t.conn = conn
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()
	}()

	sink.HandleConnected()

	join, err := json.Marshal(JoinData{ShareToken: room.ShareToken, Role: room.Role, ClientID: t.clientID})
	if err != nil {
		return true, fmt.Errorf("failed to encode join: %w", err)
	}
	if err := conn.WriteJSON(Envelope{Type: TypeJoin, Data: join, Timestamp: time.Now().Unix()}); err != nil {
		t.disconnected(ctx, sink, err)
		return true, fmt.Errorf("failed to send join: %w", err)
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				t.log.Warn().Err(err).Msg("skipping undecodable websocket message")
				continue
			}
			t.disconnected(ctx, sink, err)
			return true, err
		}

		switch env.Type {
		case TypeAuthenticated:
			sink.HandleAuthenticated(true)
		case TypeAuthError:
			sink.HandleAuthenticated(false)
		case "":
			t.log.Debug().Msg("ignoring untyped websocket message")
		default:
			sink.HandleEvent(env.Type, env.Data)
		}
	}
}

func (t *Transport) disconnected(ctx context.Context, sink stream.Sink, err error) {
	if ctx.Err() != nil {
		return
	}
	sink.HandleDisconnected(err)
}

// backoff returns ReconnectDelay * 2^(attempt-1) capped at MaxReconnectDelay
func backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := cfg.ReconnectDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxReconnectDelay > 0 && delay > cfg.MaxReconnectDelay {
		delay = cfg.MaxReconnectDelay
	}
	return delay
}
