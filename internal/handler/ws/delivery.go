package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/domain/registry"
	wsmarshaller "github.com/webitel/post-feed-service/internal/handler/marshaller/ws"
	"github.com/webitel/post-feed-service/internal/service"
)

type WSHandler struct {
	logger       *slog.Logger
	deliverer    service.Deliverer
	upgrader     websocket.Upgrader
	idleTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer, cfg *config.Config) *WSHandler {
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true }, // Security: adjust for production
			Subprotocols: []string{"graphql-transport-ws", "graphql-ws"},
		},
		idleTimeout:  cfg.WS.IdleTimeout,
		writeTimeout: cfg.WS.WriteTimeout,
		sessions:     make(map[*session]struct{}),
	}
}

// Shutdown closes every open socket and refuses new ones.
func (h *WSHandler) Shutdown() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *WSHandler) track(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s] = struct{}{}
	return true
}

func (h *WSHandler) untrack(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err)
		return
	}

	// The request context ends with the handler; the session owns its own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	s := &session{
		h:      h,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
		logger: h.logger.With("remote", r.RemoteAddr),
	}

	if !h.track(s) {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer h.untrack(s)

	s.logger.Info("WS_OPENED")
	s.run()
	s.logger.Info("WS_CLOSED")
}

type subscription struct {
	sel wsmarshaller.Selection
	sub *registry.Subscription
}

// session is one client socket. Reads happen on the handler goroutine,
// writes from the handler and every pump are serialized by writeMu.
type session struct {
	h      *WSHandler
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*subscription
	wg   sync.WaitGroup
}

func (s *session) run() {
	defer func() {
		s.cancel()
		_ = s.conn.Close()

		// [CLEANUP] No subscription outlives the socket.
		s.mu.Lock()
		for id, sc := range s.subs {
			s.h.deliverer.Unsubscribe(sc.sub.ID())
			delete(s.subs, id)
		}
		s.mu.Unlock()
		s.wg.Wait()
	}()

	s.extendReadDeadline()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WS_READ_FAILED", "err", err)
			}
			return
		}
		s.extendReadDeadline()
		s.handleFrame(data)
	}
}

func (s *session) extendReadDeadline() {
	if s.h.idleTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.h.idleTimeout))
	}
}

// handleFrame never tears the socket down: protocol errors are answered
// with an error frame and reading continues.
func (s *session) handleFrame(data []byte) {
	var f wsmarshaller.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.protocolError("", &model.ProtocolError{Reason: "malformed frame", Err: err})
		return
	}

	switch f.Type {
	case wsmarshaller.TypePing:
		s.write(wsmarshaller.NewControl(f.ID, wsmarshaller.TypePong))
	case wsmarshaller.TypeSubscribe:
		s.subscribe(f)
	case wsmarshaller.TypeComplete:
		s.complete(f.ID)
	default:
		s.protocolError(f.ID, &model.ProtocolError{Reason: "unknown frame type " + f.Type})
	}
}

func (s *session) subscribe(f wsmarshaller.Frame) {
	if f.ID == "" {
		s.protocolError("", &model.ProtocolError{Reason: "subscribe frame without id"})
		return
	}

	var p wsmarshaller.SubscribePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		s.protocolError(f.ID, &model.ProtocolError{Reason: "malformed subscribe payload", Err: err})
		return
	}
	sel, err := wsmarshaller.ParseSubscriptionQuery(p.Query)
	if err != nil {
		s.protocolError(f.ID, err)
		return
	}
	if _, ok := model.KnownTopics[sel.Topic]; !ok {
		s.protocolError(f.ID, &model.ProtocolError{Reason: "unknown subscription " + sel.Topic})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.subs[f.ID]; dup {
		s.protocolError(f.ID, &model.ProtocolError{Reason: "subscription id already in use"})
		return
	}

	sub, err := s.h.deliverer.Subscribe(s.ctx, sel.Topic)
	if err != nil {
		s.write(wsmarshaller.NewError(f.ID, err.Error()))
		return
	}
	sc := &subscription{sel: sel, sub: sub}
	s.subs[f.ID] = sc

	s.logger.Info("WS_SUBSCRIBED", "id", f.ID, "topic", sel.Topic, "sub_id", sub.ID())

	s.wg.Add(1)
	go s.pump(f.ID, sc)
}

// complete is idempotent; unknown ids are ignored.
func (s *session) complete(id string) {
	s.mu.Lock()
	sc, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if ok {
		s.h.deliverer.Unsubscribe(sc.sub.ID())
		s.logger.Info("WS_COMPLETED", "id", id)
	}
}

// pump forwards events in hub order until the subscription closes.
func (s *session) pump(id string, sc *subscription) {
	defer s.wg.Done()

	for ev := range sc.sub.All(s.ctx) {
		data, err := wsmarshaller.MarshallDeliveryEvent(id, sc.sel, ev)
		if err != nil {
			s.logger.Error("WS_MARSHAL_FAILED", "err", err, "event_id", ev.GetID())
			continue
		}
		if !s.write(data) {
			return
		}
	}

	// [SERVER_COMPLETE] Closed by the hub (overflow or shutdown) rather than the client.
	s.mu.Lock()
	current, owned := s.subs[id]
	if owned && current == sc {
		delete(s.subs, id)
	}
	s.mu.Unlock()

	if owned && current == sc && s.ctx.Err() == nil {
		s.logger.Warn("WS_SUBSCRIPTION_DROPPED", "id", id, "dropped", sc.sub.Dropped())
		s.write(wsmarshaller.NewControl(id, wsmarshaller.TypeComplete))
	}
}

// closeWith sends a close frame and drops the socket, ending run().
func (s *session) closeWith(code int, text string) {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.cancel()
	_ = s.conn.Close()
}

func (s *session) protocolError(id string, err error) {
	s.logger.Warn("WS_PROTOCOL_ERROR", "err", err, "id", id)
	s.write(wsmarshaller.NewError(id, err.Error()))
}

// write reports false once the socket is unusable; the session is then torn down.
func (s *session) write(data []byte) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	if s.h.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("WS_SEND_FAILED", "err", err)
		s.cancel()
		// Unblocks the reader so run() can clean up.
		_ = s.conn.Close()
		return false
	}
	return true
}
