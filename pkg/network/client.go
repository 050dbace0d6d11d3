// pkg/network/client.go
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/logging"
)

// Client errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrRejected     = errors.New("rejected by server")
)

// InputClient flies one remote actor by streaming input frames to an InputServer.
type InputClient struct {
	breaker   *Breaker
	logger    *logging.Logger
	sessionID string
	now       func() time.Time

	connectionTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	actor     string
	actorID   uint64
	sequence  uint32
	done      chan struct{}

	lastAck   atomic.Uint32
	rejected  atomic.Uint64
	lastError atomic.Value
}

// NewInputClient creates a client with timeouts and breaker settings from env.
// A nil env uses LoadConfigFromEnv, falling back to defaults on error.
func NewInputClient(env *config.EnvironmentConfig, logger *logging.Logger) *InputClient {
	if env == nil {
		loaded, err := config.LoadConfigFromEnv()
		if err != nil {
			loaded = &config.EnvironmentConfig{
				ReadTimeout:                       30 * time.Second,
				WriteTimeout:                      30 * time.Second,
				CircuitBreakerMaxRequests:         3,
				CircuitBreakerInterval:            60 * time.Second,
				CircuitBreakerTimeout:             30 * time.Second,
				CircuitBreakerMaxConsecutiveFails: 5,
			}
		}
		env = loaded
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &InputClient{
		breaker:           NewBreaker(env, logger),
		logger:            logger.Component("input_client"),
		sessionID:         uuid.NewString(),
		now:               time.Now,
		connectionTimeout: 10 * time.Second,
		readTimeout:       env.ReadTimeout,
		writeTimeout:      env.WriteTimeout,
	}
}

// Breaker returns the circuit breaker guarding the client.
func (c *InputClient) Breaker() *Breaker { return c.breaker }

// SessionID returns the client's session id.
func (c *InputClient) SessionID() string { return c.sessionID }

// ActorID returns the id the server assigned on connect.
func (c *InputClient) ActorID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actorID
}

// Connected reports whether the session is open.
func (c *InputClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastAck returns the highest sequence the server accepted.
func (c *InputClient) LastAck() uint32 { return c.lastAck.Load() }

// Rejected returns the number of frames the server refused.
func (c *InputClient) Rejected() uint64 { return c.rejected.Load() }

// LastError returns the most recent server-side rejection reason.
func (c *InputClient) LastError() string {
	if s, ok := c.lastError.Load().(string); ok {
		return s
	}
	return ""
}

// Done is closed when the session ends.
func (c *InputClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connect dials address through the circuit breaker and asks to fly actor.
func (c *InputClient) Connect(ctx context.Context, address, actor string) error {
	var conn net.Conn
	err := c.breaker.DoWithRetry(ctx, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.connectionTimeout)
		defer cancel()

		dialer := &net.Dialer{}
		dialed, err := dialer.DialContext(dialCtx, "tcp", address)
		if err != nil {
			return err
		}
		conn = dialed
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	return c.Attach(ctx, conn, actor)
}

// Attach runs the handshake over an established connection. The client owns
// conn afterwards and closes it on failure.
func (c *InputClient) Attach(ctx context.Context, conn net.Conn, actor string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("session %s already connected", c.sessionID)
	}
	stale, staleDone := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	if stale != nil {
		stale.Close()
		<-staleDone
	}

	ack, err := c.handshake(ctx, conn, actor)
	if err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.actor = actor
	c.actorID = ack.ActorID
	c.sequence = 0
	c.done = done
	c.mu.Unlock()
	c.lastAck.Store(0)

	go c.readLoop(conn, done)
	c.logger.Info(ctx, "connected to input server",
		"session_id", c.sessionID, "actor", actor, "actor_id", ack.ActorID)
	return nil
}

func (c *InputClient) handshake(ctx context.Context, conn net.Conn, actor string) (AckMessage, error) {
	var ack AckMessage
	conn.SetDeadline(c.deadline(ctx, c.readTimeout))
	defer conn.SetDeadline(time.Time{})

	hello := HelloMessage{SessionID: c.sessionID, Actor: actor, Version: ProtocolVersion}
	if err := writeMessage(conn, Hello, hello); err != nil {
		return ack, fmt.Errorf("sending hello: %w", err)
	}

	msgType, data, err := readMessage(conn)
	if err != nil {
		return ack, fmt.Errorf("reading hello ack: %w", err)
	}
	if msgType != Ack {
		return ack, fmt.Errorf("expected ack, got %s", msgType)
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return ack, fmt.Errorf("parsing hello ack: %w", err)
	}
	if !ack.Accepted {
		return ack, fmt.Errorf("%w: %s", ErrRejected, ack.Error)
	}
	return ack, nil
}

// Send streams one control intent and returns its sequence number. Writes go
// through the circuit breaker so a stalled server trips it.
func (c *InputClient) Send(ctx context.Context, in control.ControlInput) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return 0, ErrNotConnected
	}
	c.sequence++
	frame := InputFrame{
		ActorID:  c.actorID,
		Sequence: c.sequence,
		SentAt:   c.now().UnixMilli(),
		Input:    in,
	}

	err := c.breaker.Do(ctx, func() error {
		return c.writeLocked(ctx, Input, frame)
	})
	return frame.Sequence, err
}

func (c *InputClient) writeLocked(ctx context.Context, msgType MessageType, msg interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.conn.SetWriteDeadline(c.deadline(ctx, c.writeTimeout))
	defer c.conn.SetWriteDeadline(time.Time{})
	return writeMessage(c.conn, msgType, msg)
}

// deadline picks the earlier of the context deadline and now plus fallback.
func (c *InputClient) deadline(ctx context.Context, fallback time.Duration) time.Time {
	var d time.Time
	if fallback > 0 {
		d = time.Now().Add(fallback)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

// readLoop consumes acks until the connection ends.
func (c *InputClient) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		msgType, data, err := readMessage(conn)
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.connected = false
			}
			c.mu.Unlock()
			return
		}
		if msgType != Ack {
			continue
		}

		var ack AckMessage
		if err := json.Unmarshal(data, &ack); err != nil {
			continue
		}
		if ack.Accepted {
			if ack.Sequence > c.lastAck.Load() {
				c.lastAck.Store(ack.Sequence)
			}
			continue
		}
		c.rejected.Add(1)
		c.lastError.Store(ack.Error)
		c.logger.Debug(context.Background(), "input frame rejected",
			"session_id", c.sessionID, "sequence", ack.Sequence, "error", ack.Error)
	}
}

// Close says goodbye and closes the connection. It is safe to call when not connected.
func (c *InputClient) Close() error {
	c.mu.Lock()
	conn, done, wasConnected := c.conn, c.done, c.connected
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	if wasConnected {
		// Best effort: the server treats a dropped connection like a Bye.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.writeLocked(ctx, Bye, nil)
		cancel()
	}
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	err := conn.Close()
	<-done
	c.logger.Info(context.Background(), "disconnected from input server", "session_id", c.sessionID)
	return err
}
