// pkg/network/server.go
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/event"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/validation"
)

// Server errors
var (
	ErrServerFull    = errors.New("server full")
	ErrUnknownActor  = errors.New("no network-controlled actor with that name")
	ErrActorClaimed  = errors.New("actor already has a pilot")
	ErrServerStopped = errors.New("server stopped")
)

// route binds an actor name to the controller that replays its input.
type route struct {
	actorID    uint64
	controller *control.NetworkController
	session    string
}

// session is one connected pilot.
type session struct {
	id       string
	actor    string
	actorID  uint64
	conn     net.Conn
	lastSeq  uint32
	received uint64
	logger   *logging.Logger
}

// InputServer accepts pilot connections and feeds their input frames into
// network controllers.
type InputServer struct {
	logger    *logging.Logger
	bus       *event.Bus
	validator *validation.MessageValidator

	maxClients   int
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	listener net.Listener
	routes   map[string]*route
	sessions map[string]*session
	running  bool
	wg       sync.WaitGroup

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewInputServer creates a server using the network section of the config.
// bus may be nil.
func NewInputServer(cfg config.NetworkConfig, bus *event.Bus, logger *logging.Logger) *InputServer {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &InputServer{
		logger:       logger.Component("input_server"),
		bus:          bus,
		validator:    validation.NewMessageValidator(cfg.InputRateLimit, time.Second),
		maxClients:   cfg.MaxClients,
		readTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		writeTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
		now:          time.Now,
		routes:       make(map[string]*route),
		sessions:     make(map[string]*session),
	}
}

// SetClock replaces the arrival timestamp source.
func (s *InputServer) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Route makes the actor named name available to remote pilots.
func (s *InputServer) Route(name string, actorID uint64, c *control.NetworkController) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[name] = &route{actorID: actorID, controller: c}
}

// Sessions returns the number of connected pilots.
func (s *InputServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats returns the number of accepted and rejected input frames.
func (s *InputServer) Stats() (accepted, rejected uint64) {
	return s.accepted.Load(), s.rejected.Load()
}

// Start listens on address and serves connections in the background.
func (s *InputServer) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start input server: %w", err)
	}
	s.Serve(listener)
	s.logger.Info(context.Background(), "input server started", "address", listener.Addr().String())
	return nil
}

// Serve accepts connections from listener until Stop is called.
func (s *InputServer) Serve(listener net.Listener) {
	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptConnections(listener)
}

// Addr returns the listening address, or nil before Start.
func (s *InputServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every session and waits for their goroutines.
func (s *InputServer) Stop() {
	s.mu.Lock()
	s.running = false
	listener := s.listener
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	s.wg.Wait()
	s.validator.Close()
	s.logger.Info(context.Background(), "input server stopped")
}

func (s *InputServer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *InputServer) acceptConnections(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn(context.Background(), "error accepting connection", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn runs one pilot session on conn until it disconnects. The
// connection is closed on return.
func (s *InputServer) ServeConn(conn net.Conn) {
	defer conn.Close()
	ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())

	sess, err := s.handshake(conn)
	if err != nil {
		s.logger.Warn(ctx, "handshake rejected", "remote", remoteAddr(conn), "error", err)
		s.sendAck(conn, AckMessage{Accepted: false, Error: err.Error()})
		return
	}
	s.sendAck(conn, AckMessage{Accepted: true, ActorID: sess.actorID})
	sess.logger.Info(ctx, "pilot connected", "remote", remoteAddr(conn))

	s.handleMessages(ctx, sess)
	s.removeSession(ctx, sess)
}

// handshake reads the Hello frame and claims the requested actor.
func (s *InputServer) handshake(conn net.Conn) (*session, error) {
	s.setReadDeadline(conn)
	msgType, data, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	if msgType != Hello {
		return nil, fmt.Errorf("expected hello, got %s", msgType)
	}

	var hello HelloMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		return nil, fmt.Errorf("parsing hello: %w", err)
	}
	if hello.Version != ProtocolVersion {
		return nil, fmt.Errorf("protocol version %d not supported", hello.Version)
	}
	if err := validation.ValidateSessionID(hello.SessionID); err != nil {
		return nil, err
	}
	name, err := validation.ValidateActorName(hello.Actor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running && s.listener != nil {
		return nil, ErrServerStopped
	}
	if s.maxClients > 0 && len(s.sessions) >= s.maxClients {
		return nil, ErrServerFull
	}
	if _, exists := s.sessions[hello.SessionID]; exists {
		return nil, fmt.Errorf("session %s already connected", hello.SessionID)
	}
	r, ok := s.routes[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownActor)
	}
	if r.session != "" {
		return nil, fmt.Errorf("%q: %w", name, ErrActorClaimed)
	}

	r.session = hello.SessionID
	sess := &session{
		id:      hello.SessionID,
		actor:   name,
		actorID: r.actorID,
		conn:    conn,
		logger:  s.logger.Session(hello.SessionID).Actor(r.actorID, name),
	}
	s.sessions[sess.id] = sess
	return sess, nil
}

func (s *InputServer) handleMessages(ctx context.Context, sess *session) {
	for {
		s.setReadDeadline(sess.conn)
		msgType, data, err := readMessage(sess.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				sess.logger.Warn(ctx, "error reading from pilot", "error", err)
			}
			return
		}

		switch msgType {
		case Input:
			s.handleInput(ctx, sess, data)
		case Bye:
			sess.logger.Info(ctx, "pilot disconnecting")
			return
		default:
			sess.logger.Warn(ctx, "unexpected message from pilot", "type", msgType.String())
		}
	}
}

// handleInput validates one frame and buffers it with the server arrival time.
func (s *InputServer) handleInput(ctx context.Context, sess *session, data []byte) {
	frame, err := s.parseInput(sess, data)
	if err != nil {
		s.rejected.Add(1)
		if errors.Is(err, validation.ErrRateLimited) {
			sess.logger.Warn(ctx, "pilot exceeded input rate", "error", err)
		} else {
			sess.logger.Debug(ctx, "input frame rejected", "error", err)
		}
		s.sendAck(sess.conn, AckMessage{Accepted: false, ActorID: sess.actorID, Sequence: frame.Sequence, Error: err.Error()})
		return
	}

	s.mu.Lock()
	r := s.routes[sess.actor]
	arrival := s.now()
	s.mu.Unlock()

	r.controller.ReceiveInput(frame.Input, arrival)
	sess.lastSeq = frame.Sequence
	sess.received++
	s.accepted.Add(1)

	if s.bus != nil {
		s.bus.Publish(event.NewNetworkInputEvent(s, sess.actorID, sess.id, frame.Sequence))
	}
	s.sendAck(sess.conn, AckMessage{Accepted: true, ActorID: sess.actorID, Sequence: frame.Sequence})
}

func (s *InputServer) parseInput(sess *session, data []byte) (InputFrame, error) {
	var frame InputFrame
	if err := s.validator.ValidateMessage(data, sess.id); err != nil {
		return frame, err
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return frame, fmt.Errorf("parsing input frame: %w", err)
	}
	if frame.ActorID != sess.actorID {
		return frame, fmt.Errorf("frame for actor %d on a session flying actor %d", frame.ActorID, sess.actorID)
	}
	if frame.Sequence <= sess.lastSeq {
		return frame, fmt.Errorf("stale sequence %d (last %d)", frame.Sequence, sess.lastSeq)
	}
	if err := validation.ValidateInputFrame(frame.ActorID, frame.Input); err != nil {
		return frame, err
	}
	return frame, nil
}

// removeSession releases the actor claim. The actor is left without input so
// it drifts under drag instead of holding the pilot's last command.
func (s *InputServer) removeSession(ctx context.Context, sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	r := s.routes[sess.actor]
	if r != nil && r.session == sess.id {
		r.session = ""
	}
	arrival := s.now()
	s.mu.Unlock()

	if r != nil {
		r.controller.ReceiveInput(control.NoInput(), arrival)
	}
	s.validator.Forget(sess.id)
	sess.logger.Info(ctx, "pilot disconnected", "frames", sess.received)
}

func (s *InputServer) sendAck(conn net.Conn, ack AckMessage) {
	if s.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := writeMessage(conn, Ack, ack); err != nil {
		s.logger.Debug(context.Background(), "failed to send ack", "error", err)
	}
}

func (s *InputServer) setReadDeadline(conn net.Conn) {
	if s.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
