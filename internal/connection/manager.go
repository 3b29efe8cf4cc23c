// internal/connection/manager.go

// Package connection owns the socket lifecycle: connect, heartbeat,
// close classification and the reconnect loop. Every inbound frame is
// parsed here and commands are handed to the dispatcher.
package connection

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nodeagent/internal/metrics"
	"nodeagent/internal/protocol"
)

const (
	// Heartbeats are sent at this cadence while the connection is open.
	// Fire-and-forget: no response is required or awaited.
	defaultHeartbeatInterval = 30 * time.Second

	// Delay between reconnect attempts after a retryable close. There is
	// no backoff growth and no attempt cap: the agent runs unattended
	// and must keep trying.
	defaultReconnectDelay = 5 * time.Second

	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Maximum message size allowed from the server.
	maxMessageSize = 10 * 1024 * 1024
)

// State is the connection lifecycle state, driven solely by socket
// events and the reconnect timer.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosedRetryable
	StateClosedFatal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetryable:
		return "closed-retryable"
	case StateClosedFatal:
		return "closed-fatal"
	default:
		return "unknown"
	}
}

// Dispatcher receives every inbound frame recognized as a command.
type Dispatcher interface {
	Dispatch(cmd protocol.Command)
}

// Config holds the connection parameters. The four identity values are
// appended to the server URL as query parameters; fingerprint and
// access code are supplied externally, the agent never computes them.
type Config struct {
	ServerURL   string
	AgentID     string
	AccessCode  string
	Fingerprint string

	// Zero values fall back to the protocol defaults. Overridable for
	// tests.
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

// Manager maintains exactly one logical connection to the server. It
// owns the socket handle, the heartbeat ticker and the reconnect delay;
// no other component touches them. At most one heartbeat ticker (only
// while open) and one pending reconnect (only while closed-retryable)
// exist at any time.
type Manager struct {
	cfg        Config
	dialer     *websocket.Dialer
	dispatcher Dispatcher

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	heartbeatStop chan struct{}
	sessionID     uuid.UUID
}

// NewManager creates a connection manager. The dispatcher is injected
// separately because it is built around the manager's own send path.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		state:  StateConnecting,
	}
}

// SetDispatcher sets the command dispatcher. Must be called before Run.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatcher = d
}

// Run drives the connection until the context is cancelled or a fatal
// close is received. A fatal close (policy/authorization rejection,
// code 1008) stops the loop for good: retrying would keep presenting
// now-invalid credentials. Every other close schedules exactly one
// reconnect after the configured delay.
func (m *Manager) Run(ctx context.Context) error {
	for {
		fatal, err := m.runOnce(ctx)
		if fatal {
			m.setState(StateClosedFatal)
			log.Printf("[Connection] Fatal close received, giving up: %v", err)
			return fmt.Errorf("fatal close: %v", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			log.Printf("[Connection] Connection lost: %v, retrying in %v", err, m.reconnectDelay())
		}

		m.setState(StateClosedRetryable)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.reconnectDelay()):
			metrics.ReconnectAttempts.Inc()
		}
	}
}

// runOnce performs a single connect/read cycle. It returns fatal=true
// only for a close that must never be retried.
func (m *Manager) runOnce(ctx context.Context) (fatal bool, err error) {
	m.setState(StateConnecting)

	target, err := m.buildURL()
	if err != nil {
		// A malformed server URL will never dial; treat it as fatal
		// rather than spinning on it.
		return true, err
	}

	conn, _, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %v", m.cfg.ServerURL, err)
	}

	conn.SetReadLimit(maxMessageSize)

	session := uuid.New()
	stop := make(chan struct{})

	m.mu.Lock()
	m.conn = conn
	m.state = StateOpen
	m.sessionID = session
	m.heartbeatStop = stop
	m.mu.Unlock()

	log.Printf("[Connection] Connected to server (session %s)", session)

	go m.heartbeatLoop(stop)

	// Unblock the read loop when the agent is shutting down.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	fatal, readErr := m.readLoop(conn)
	m.teardown(conn)
	return fatal, readErr
}

// readLoop reads frames until the socket errors out. The returned flag
// reports whether the close was fatal.
func (m *Manager) readLoop(conn *websocket.Conn) (bool, error) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return true, err
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Connection] Unexpected close: %v", err)
			}
			return false, err
		}

		m.handleFrame(message)
	}
}

// handleFrame parses one inbound frame. Malformed JSON is logged and
// discarded; parsed frames without script and id are silently ignored,
// which is the extension point for future frame types. Nothing in here
// is allowed to take the connection down.
func (m *Manager) handleFrame(message []byte) {
	metrics.FramesReceived.Inc()

	cmd, ok, err := protocol.ParseCommand(message)
	if err != nil {
		metrics.FramesDiscarded.Inc()
		log.Printf("[Connection] Discarding malformed frame: %v", err)
		return
	}
	if !ok {
		return
	}

	m.mu.Lock()
	d := m.dispatcher
	m.mu.Unlock()

	if d == nil {
		log.Printf("[Connection] No dispatcher configured, dropping command %s", cmd.ID)
		return
	}

	d.Dispatch(cmd)
}

// heartbeatLoop sends the fixed heartbeat frame while the socket is
// open. It exits when the connection is torn down.
func (m *Manager) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.heartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.SendJSON(protocol.NewHeartbeat()); err != nil {
				log.Printf("[Connection] Heartbeat send failed: %v", err)
				return
			}
			metrics.HeartbeatsSent.Inc()
		}
	}
}

// SendJSON writes one JSON message to the server. Writers are
// serialized under the manager's lock; gorilla connections support only
// one concurrent writer. When the connection is not open the message is
// rejected so callers can drop it. A write failure force-closes the
// socket, which surfaces through the read loop and the reconnect logic.
func (m *Manager) SendJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.conn == nil {
		return fmt.Errorf("connection is not open (state: %s)", m.state)
	}

	m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := m.conn.WriteJSON(v); err != nil {
		log.Printf("[Connection] Write failed, force-closing socket: %v", err)
		m.conn.Close()
		return err
	}

	return nil
}

// IsOpen reports whether the connection is currently open.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close tears down the current socket, if any. Used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}
}

// teardown stops the heartbeat and releases the socket. Safe to call
// once per connection cycle.
func (m *Manager) teardown(conn *websocket.Conn) {
	m.mu.Lock()
	session := m.sessionID
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	conn.Close()
	log.Printf("[Connection] Session %s closed", session)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// buildURL appends the four identity parameters to the base address.
func (m *Manager) buildURL() (string, error) {
	u, err := url.Parse(m.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %v", m.cfg.ServerURL, err)
	}

	q := u.Query()
	q.Set("type", "agent")
	q.Set("id", m.cfg.AgentID)
	q.Set("accessCode", m.cfg.AccessCode)
	q.Set("fingerprint", m.cfg.Fingerprint)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (m *Manager) heartbeatInterval() time.Duration {
	if m.cfg.HeartbeatInterval > 0 {
		return m.cfg.HeartbeatInterval
	}
	return defaultHeartbeatInterval
}

func (m *Manager) reconnectDelay() time.Duration {
	if m.cfg.ReconnectDelay > 0 {
		return m.cfg.ReconnectDelay
	}
	return defaultReconnectDelay
}
