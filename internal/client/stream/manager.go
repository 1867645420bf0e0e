// Package stream maintains the client's single subscription to the post
// stream, reconnecting with a constant delay whenever the socket is lost.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/post-feed-service/internal/domain/model"
	wsmarshaller "github.com/webitel/post-feed-service/internal/handler/marshaller/ws"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// subscriptionID is the frame id of the manager's only subscription.
const subscriptionID = "1"

type Options struct {
	URL   string
	Topic string
	// Query defaults to a full-post selection on Topic.
	Query             string
	HeartbeatInterval time.Duration
	// HeartbeatTimeoutMultiplier declares the socket dead after this many
	// intervals without a pong. Zero disables the check.
	HeartbeatTimeoutMultiplier int
	ReconnectDelay             time.Duration
}

// Manager is the connection state machine. Every transition happens under mu
// and is tagged with a generation so callbacks from a superseded socket are ignored.
type Manager struct {
	dialer Dialer
	opts   Options
	onPost func(model.Post)
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	gen            uint64
	stopped        bool
	conn           Conn
	cancel         context.CancelFunc
	reconnect      *time.Timer
	lastPingSentAt time.Time
	lastPongAt     time.Time
	onState        func(State)
	wg             sync.WaitGroup
}

func NewManager(dialer Dialer, opts Options, onPost func(model.Post), logger *slog.Logger) *Manager {
	if opts.Topic == "" {
		opts.Topic = model.TopicPostCreated
	}
	if opts.Query == "" {
		opts.Query = "subscription { " + opts.Topic + " { id authorId authorName title content createdAt } }"
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	return &Manager{
		dialer: dialer,
		opts:   opts,
		onPost: onPost,
		logger: logger,
	}
}

// OnStateChange registers fn for every transition. fn runs outside the lock
// and must not block.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Heartbeats returns when the last ping was sent and the last pong received.
func (m *Manager) Heartbeats() (sentAt, ackAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPingSentAt, m.lastPongAt
}

// Connect starts a connection attempt. It is a no-op while connecting,
// connected or after Stop.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.stopped || m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	notify := m.setStateLocked(Connecting)
	m.wg.Add(1)
	m.mu.Unlock()

	notify()
	go m.run(ctx, gen)
}

// Stop cancels any pending reconnect, closes the active connection and
// waits for the reader to exit. It is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.stopped = true
	m.gen++
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	notify := m.setStateLocked(Disconnected)
	m.mu.Unlock()

	notify()
	m.wg.Wait()
	m.logger.Info("STREAM_STOPPED")
}

func (m *Manager) run(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	conn, err := m.dialer.Dial(ctx, m.opts.URL)
	if err == nil {
		err = m.subscribe(conn)
	}
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		m.lost(gen, &model.ConnectivityError{Op: "dial " + m.opts.URL, Err: err})
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// Stopped while dialing.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.lastPongAt = time.Now()
	notify := m.setStateLocked(Connected)
	m.mu.Unlock()

	notify()
	m.logger.Info("STREAM_CONNECTED", "url", m.opts.URL, "topic", m.opts.Topic)

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		m.heartbeat(ctx, conn, gen)
	}()

	err = m.read(conn)

	m.lost(gen, err)
	<-hbDone
}

func (m *Manager) subscribe(conn Conn) error {
	frame, err := wsmarshaller.NewSubscribe(subscriptionID, m.opts.Query)
	if err != nil {
		return err
	}
	return m.write(conn, frame)
}

// read dispatches frames until the socket fails.
func (m *Manager) read(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f wsmarshaller.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.logger.Warn("STREAM_PROTOCOL_ERROR", "err", &model.ProtocolError{Reason: "malformed frame", Err: err})
			continue
		}

		switch f.Type {
		case wsmarshaller.TypeData:
			var post model.Post
			if err := wsmarshaller.DecodeData(f.Payload, m.opts.Topic, &post); err != nil {
				m.logger.Warn("STREAM_PROTOCOL_ERROR", "err", &model.ProtocolError{Reason: "malformed data frame", Err: err})
				continue
			}
			m.onPost(post)
		case wsmarshaller.TypePong:
			m.mu.Lock()
			m.lastPongAt = time.Now()
			m.mu.Unlock()
		case wsmarshaller.TypeComplete:
			// The server ended the subscription; a fresh socket resubscribes.
			return errors.New("subscription completed by server")
		default:
			m.logger.Debug("STREAM_FRAME_IGNORED", "type", f.Type, "payload", string(f.Payload))
		}
	}
}

// heartbeat is the only writer once the subscribe frame is out.
func (m *Manager) heartbeat(ctx context.Context, conn Conn, gen uint64) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	deadline := time.Duration(m.opts.HeartbeatTimeoutMultiplier) * m.opts.HeartbeatInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		stale := deadline > 0 && time.Since(m.lastPongAt) > deadline
		m.mu.Unlock()

		if stale {
			m.logger.Warn("STREAM_HEARTBEAT_TIMEOUT", "deadline", deadline.String())
			// Fails the pending read, which takes the reconnect path.
			_ = conn.Close()
			return
		}

		if err := m.write(conn, wsmarshaller.NewControl(strconv.FormatUint(gen, 10), wsmarshaller.TypePing)); err != nil {
			_ = conn.Close()
			return
		}
		m.mu.Lock()
		m.lastPingSentAt = time.Now()
		m.mu.Unlock()
	}
}

func (m *Manager) write(conn Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(m.opts.HeartbeatInterval))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// lost moves a live generation to Disconnected and schedules exactly one reconnect.
func (m *Manager) lost(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	// Bump so the heartbeat of this socket sees itself superseded.
	m.gen++
	m.reconnect = time.AfterFunc(m.opts.ReconnectDelay, m.Connect)
	notify := m.setStateLocked(Disconnected)
	m.mu.Unlock()

	m.logger.Warn("STREAM_DISCONNECTED", "err", err, "retry_in", m.opts.ReconnectDelay.String())
	notify()
}

// setStateLocked records s and returns the notification to fire after unlocking.
func (m *Manager) setStateLocked(s State) func() {
	if m.state == s {
		return func() {}
	}
	m.state = s
	fn := m.onState
	if fn == nil {
		return func() {}
	}
	return func() { fn(s) }
}
