// Package session implements the per-venue WebSocket session: connect,
// subscribe, receive-loop, liveness, and fault classification, as a
// Connecting -> Subscribed -> Streaming -> {Closing|Faulted} state machine
// with the subscribe frame supplied by internal/subscribe and message
// hand-off going to internal/pipeline.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

// State is one node of the session's state machine.
type State string

const (
	StateConnecting State = "connecting"
	StateSubscribed State = "subscribed"
	StateStreaming  State = "streaming"
	StateClosing    State = "closing"
	StateFaulted    State = "faulted"
)

// FaultKind distinguishes the two fault classes the retry supervisor
// dispatches on.
type FaultKind string

const (
	// FaultTransientWire covers read timeouts, ok/err connection closures,
	// context cancellation, websocket protocol errors, and connector
	// (dial/network) errors.
	FaultTransientWire FaultKind = "transient-wire"
	// FaultOther covers everything else, including TLS handshake/certificate
	// failures: these indicate a configuration problem, not a transient
	// network blip, so the retry supervisor falls back immediately instead
	// of burning a backoff cycle on them.
	FaultOther FaultKind = "other"
)

// Fault wraps a session-ending error with its classification.
type Fault struct {
	Kind FaultKind
	Err  error
}

func (f *Fault) Error() string { return fmt.Sprintf("%s: %v", f.Kind, f.Err) }
func (f *Fault) Unwrap() error { return f.Err }

const (
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	frameReadDeadl = 30 * time.Second
)

// Handler receives one filtered/unfiltered raw frame off the wire; the
// pipeline wires this to its enqueue operation.
type Handler func(raw model.RawMessage)

// Session is one venue's WebSocket connection for its lifetime; it owns the
// underlying socket exclusively until it faults or is cancelled.
type Session struct {
	Exchange   string
	Market     string
	Symbol     string
	Endpoint   string
	Subscribe  func(symbol string) (model.RawMessage, error)
	OnMessage  Handler

	log zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
}

// New builds a Session. subscribeFn is the subscribe package's per-venue
// frame builder bound to this session's socket type.
func New(exchange, market, symbol, endpoint string, subscribeFn func(string) (model.RawMessage, error), onMessage Handler, log zerolog.Logger) *Session {
	return &Session{
		Exchange:  exchange,
		Market:    market,
		Symbol:    symbol,
		Endpoint:  endpoint,
		Subscribe: subscribeFn,
		OnMessage: onMessage,
		log:       log.With().Str("component", "session").Str("exchange", exchange).Str("symbol", symbol).Logger(),
		state:     StateConnecting,
	}
}

// State reports the session's current node in its state machine.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect performs one full dial -> subscribe -> stream attempt. It blocks
// until ctx is cancelled (returns ctx.Err(), a non-fault outcome) or until a
// fault ends the streaming loop (returns *Fault). Once streaming, ctx is
// checked between frames, so a cancellation takes effect when the pending
// read returns, at the latest at its 30s read deadline. This is the
// operation the retry supervisor wraps with backoff and retry.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.Endpoint, nil)
	if err != nil {
		return &Fault{Kind: classify(err), Err: fmt.Errorf("session: dial: %w", err)}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer s.release()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	frame, err := s.Subscribe(s.Symbol)
	if err != nil {
		return &Fault{Kind: FaultOther, Err: fmt.Errorf("session: build subscribe frame: %w", err)}
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return &Fault{Kind: classify(err), Err: fmt.Errorf("session: send subscribe: %w", err)}
	}
	s.setState(StateSubscribed)

	conn.SetReadDeadline(time.Now().Add(frameReadDeadl))
	_, first, err := conn.ReadMessage()
	if err != nil {
		return &Fault{Kind: classify(err), Err: fmt.Errorf("session: initial read: %w", err)}
	}
	s.log.Info().Msg("connected")
	s.OnMessage(first)

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx, conn)

	s.setState(StateStreaming)
	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateClosing)
			return err
		}
		conn.SetReadDeadline(time.Now().Add(frameReadDeadl))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.setState(StateFaulted)
			return &Fault{Kind: classify(err), Err: fmt.Errorf("session: read: %w", err)}
		}
		s.OnMessage(msg)
	}
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// release closes the socket on every exit path so a faulted or cancelled
// session never leaks its connection.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// classify maps a dial/read/write error to the fault taxonomy: TLS and
// certificate failures are carved out as FaultOther since a handshake
// failure is wire-fatal, not transient; every other network, timeout,
// cancellation, or websocket-protocol error is transient-wire.
func classify(err error) FaultKind {
	if err == nil {
		return FaultOther
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return FaultOther
	}
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return FaultOther
	}
	if errors.Is(err, context.Canceled) {
		return FaultTransientWire
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		return FaultTransientWire
	}
	if websocket.IsUnexpectedCloseError(err) {
		return FaultTransientWire
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FaultTransientWire
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FaultTransientWire
	}
	return FaultOther
}
