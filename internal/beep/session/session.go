// Package session implements the session core (§4.F): the public API a
// caller drives a BEEP peer through, wired on top of the frame codec,
// message compiler, channel table, and tuning handler.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/casimiro/go-beep/internal/beep/channel"
	"github.com/casimiro/go-beep/internal/beep/cmp"
	"github.com/casimiro/go-beep/internal/beep/frame"
	"github.com/casimiro/go-beep/internal/beep/hooks"
	"github.com/casimiro/go-beep/internal/beep/message"
	"github.com/casimiro/go-beep/internal/beep/transport"
	"github.com/casimiro/go-beep/internal/beep/tuning"
	"github.com/casimiro/go-beep/internal/beeperrors"
	"github.com/casimiro/go-beep/internal/bufpool"
	"github.com/casimiro/go-beep/internal/logger"
)

// Role is a session's numbering parity: Initiator allocates odd channel
// numbers, Listener even.
type Role = channel.Role

const (
	Initiator = channel.Initiator
	Listener  = channel.Listener
)

// ProfileHandler processes messages delivered on channels bound to one
// profile URI, and receives the channel-lifecycle notification that
// binds or unbinds it. Installed with InstallProfile; a profile without
// a handler has its messages queued for AsyncRead instead.
type ProfileHandler interface {
	HandleMessage(ctx context.Context, s *Session, channelNo uint32, msg *message.Message) error

	// HandleChannel notifies the profile that channelNo was just bound to
	// it (closed == false) or unbound from it (closed == true), whether
	// that happened because the peer requested it or because this side
	// did. initMessage carries the offering peer's <profile>
	// initialization text; it is nil when none was sent, and always nil
	// on a close notification.
	HandleChannel(ctx context.Context, s *Session, channelNo uint32, initMessage []byte, peerInitiated, closed bool)
}

// Handler receives session lifecycle notifications. Installing one is
// optional: Session skips the notification when no Handler is
// installed.
type Handler interface {
	OnGreeted()
	OnChannelStarted(channelNo uint32, profile string)
	OnChannelClosed(channelNo uint32)
	OnFatalError(err error)
}

const inboxDepth = 16

// Session is one BEEP peer endpoint: the §4.F core wired to a concrete
// Transport. It is safe for the public methods to be called
// concurrently from multiple goroutines; Run owns the single read loop
// and must be driven by exactly one goroutine.
type Session struct {
	id        string
	role      Role
	transport transport.Transport
	table     *channel.Table
	tuning    *tuning.Handler
	compiler  *message.Compiler
	decoder   *frame.Decoder
	hooks     *hooks.Manager
	log       *slog.Logger

	maxFramePayload int

	mu              sync.Mutex
	profileHandlers map[string]ProfileHandler
	sessionHandler  Handler
	inboxes         map[uint32]chan *message.Message

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Option customizes a Session at construction.
type Option func(*Session)

// WithMaxFramePayload bounds outgoing frame payload size, segmenting
// larger messages across multiple frames (§9 open question 2). The
// default, 0, sends one frame per message regardless of size.
func WithMaxFramePayload(n int) Option {
	return func(s *Session) { s.maxFramePayload = n }
}

// WithHooks attaches an externally constructed hook manager, e.g. one
// pre-configured with webhook sinks.
func WithHooks(m *hooks.Manager) Option {
	return func(s *Session) { s.hooks = m }
}

// New constructs a Session in the fresh state for role, communicating
// over t.
func New(role Role, t transport.Transport, opts ...Option) *Session {
	id := uuid.NewString()
	tbl := channel.NewTable(role)
	s := &Session{
		id:              id,
		role:            role,
		transport:       t,
		table:           tbl,
		tuning:          tuning.NewHandler(tbl),
		compiler:        message.NewCompiler(bufpool.New()),
		decoder:         frame.NewDecoder(),
		log:             logger.WithSession(logger.Logger(), id, roleName(role), ""),
		profileHandlers: make(map[string]ProfileHandler),
		inboxes:         make(map[uint32]chan *message.Message),
		closed:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hooks.NewManager(hooks.DefaultConfig(), nil)
	}
	return s
}

func roleName(r Role) string {
	if r == Initiator {
		return "initiator"
	}
	return "listener"
}

// ID returns the session's generated identifier.
func (s *Session) ID() string { return s.id }

// Status returns the current lifecycle state.
func (s *Session) Status() tuning.Status { return s.tuning.Status() }

// InstallProfile registers uri as supported and, if handler is
// non-nil, routes every message on channels bound to uri to it instead
// of the AsyncRead inbox.
func (s *Session) InstallProfile(uri string, handler ProfileHandler) {
	s.table.InstallProfile(uri)
	if handler != nil {
		s.mu.Lock()
		s.profileHandlers[uri] = handler
		s.mu.Unlock()
	}
}

// InstallSessionHandler attaches h to receive lifecycle notifications.
func (s *Session) InstallSessionHandler(h Handler) {
	s.mu.Lock()
	s.sessionHandler = h
	s.mu.Unlock()
}

// AvailableProfiles returns every locally installed profile URI.
func (s *Session) AvailableProfiles() []string {
	return s.table.AvailableProfiles()
}

// Run drives the session's single read loop until ctx is cancelled or a
// fatal error occurs. The listener side sends its greeting immediately;
// the initiator waits for the peer's greeting before replying with its
// own, per the tuning channel's handshake order.
func (s *Session) Run(ctx context.Context) error {
	if s.role == Listener {
		if err := s.sendGreeting(ctx); err != nil {
			return s.fail(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return s.fail(ctx.Err())
		default:
		}

		b, err := s.transport.ReadSome(ctx)
		if err != nil {
			return s.fail(err)
		}
		s.decoder.Feed(b)

		for {
			f, err := s.decoder.Next()
			if err == frame.ErrNeedMore {
				break
			}
			if err != nil {
				return s.fail(err)
			}
			if err := s.handleFrame(ctx, f); err != nil {
				return s.fail(err)
			}
		}
	}
}

func (s *Session) fail(err error) error {
	s.closeOnce.Do(func() {
		s.closeErr = err
		s.tuning.FailAllPending(err)
		s.mu.Lock()
		handler := s.sessionHandler
		s.mu.Unlock()
		if handler != nil {
			handler.OnFatalError(err)
		}
		s.hooks.Fire(context.Background(), *hooks.NewEvent(hooks.EventFatalError).WithSessionID(s.id).WithData("error", err.Error()))
		_ = s.transport.Close()
		close(s.closed)
	})
	return err
}

func (s *Session) handleFrame(ctx context.Context, f *frame.Frame) error {
	if f.Type == frame.SEQ {
		return nil
	}
	msg, err := s.compiler.Feed(f)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	if msg.Channel == 0 {
		return s.handleTuningMessage(ctx, msg)
	}
	return s.deliverChannelMessage(ctx, msg)
}

func (s *Session) handleTuningMessage(ctx context.Context, msg *message.Message) error {
	node, err := cmp.Parse(msg.Body)
	if err != nil {
		return err
	}

	// The greeting is the one tuning exchange that rides an unsolicited
	// RPY: the listener sends it without having received a prior MSG, so
	// it must be recognized by content before falling into the
	// reply-to-a-pending-request dispatch below.
	if node.Kind == cmp.KindGreeting {
		if err := s.tuning.ApplyPeerGreeting(node); err != nil {
			return err
		}
		s.notifyGreeted()
		if s.role == Initiator {
			return s.sendGreeting(ctx)
		}
		return nil
	}

	if msg.Type == frame.RPY || msg.Type == frame.ERR {
		var outcomeErr error
		if node.Kind == cmp.KindError {
			outcomeErr = beeperrors.NewProtocolError("tuning.reply", node.Code, errStr(node.Diagnostic))
		}
		s.tuning.Complete(msg.MsgNo, node, outcomeErr)
		return nil
	}

	switch node.Kind {
	case cmp.KindStart:
		reply, offer := s.tuning.HandlePeerStart(node)
		if reply.Kind == cmp.KindProfile {
			s.notifyChannelStarted(node.Channel, reply.Profile.URI)
		}
		// The positive RPY must reach the peer before the start handler
		// runs, so a handler that immediately sends on the new channel
		// cannot race its own admission reply (§4.E ordering).
		if err := s.sendTuningReply(ctx, msg.MsgNo, reply); err != nil {
			return err
		}
		if reply.Kind == cmp.KindProfile {
			s.dispatchChannelEvent(ctx, node.Channel, reply.Profile.URI, offer, true, false)
		}
		return nil
	case cmp.KindClose:
		reply, ch := s.tuning.HandlePeerClose(node)
		if reply.Kind == cmp.KindOk {
			s.notifyChannelClosed(node.Channel)
		}
		if err := s.sendTuningReply(ctx, msg.MsgNo, reply); err != nil {
			return err
		}
		if reply.Kind == cmp.KindOk {
			s.dispatchChannelEvent(ctx, node.Channel, ch.Profile, cmp.ProfileOffer{}, true, true)
		}
		return nil
	default:
		return nil
	}
}

// dispatchChannelEvent delivers a start or close lifecycle notification
// to the ProfileHandler installed for profile, if any.
func (s *Session) dispatchChannelEvent(ctx context.Context, channelNo uint32, profile string, offer cmp.ProfileOffer, peerInitiated, closed bool) {
	if profile == "" {
		return
	}
	s.mu.Lock()
	handler, ok := s.profileHandlers[profile]
	s.mu.Unlock()
	if !ok {
		return
	}
	var initMessage []byte
	if offer.HasInit {
		initMessage = []byte(offer.Init)
	}
	handler.HandleChannel(ctx, s, channelNo, initMessage, peerInitiated, closed)
}

func (s *Session) deliverChannelMessage(ctx context.Context, msg *message.Message) error {
	ch, ok := s.table.Lookup(msg.Channel)
	if !ok {
		return nil
	}
	s.mu.Lock()
	handler, hasHandler := s.profileHandlers[ch.Profile]
	s.mu.Unlock()
	if hasHandler {
		return handler.HandleMessage(ctx, s, msg.Channel, msg)
	}

	inbox := s.inboxFor(msg.Channel)
	select {
	case inbox <- msg:
	default:
		s.log.Warn("dropping message, inbox full", "channel", msg.Channel)
	}
	return nil
}

func (s *Session) inboxFor(channelNo uint32) chan *message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.inboxes[channelNo]
	if !ok {
		ch = make(chan *message.Message, inboxDepth)
		s.inboxes[channelNo] = ch
	}
	return ch
}

func (s *Session) notifyGreeted() {
	s.mu.Lock()
	handler := s.sessionHandler
	s.mu.Unlock()
	if handler != nil {
		handler.OnGreeted()
	}
	s.hooks.Fire(context.Background(), *hooks.NewEvent(hooks.EventGreeted).WithSessionID(s.id))
}

func (s *Session) notifyChannelStarted(channelNo uint32, profile string) {
	s.mu.Lock()
	handler := s.sessionHandler
	s.mu.Unlock()
	if handler != nil {
		handler.OnChannelStarted(channelNo, profile)
	}
	s.hooks.Fire(context.Background(), *hooks.NewEvent(hooks.EventChannelStarted).WithSessionID(s.id).WithChannel(channelNo).WithProfile(profile))
}

func (s *Session) notifyChannelClosed(channelNo uint32) {
	s.mu.Lock()
	handler := s.sessionHandler
	s.mu.Unlock()
	if handler != nil {
		handler.OnChannelClosed(channelNo)
	}
	s.hooks.Fire(context.Background(), *hooks.NewEvent(hooks.EventChannelClosed).WithSessionID(s.id).WithChannel(channelNo))
}

// AsyncAddChannel requests a new channel offering profiles in
// preference order and blocks until the peer accepts or refuses it.
func (s *Session) AsyncAddChannel(ctx context.Context, profiles []string) (channelNo uint32, profile string, err error) {
	channelNo, node := s.tuning.BuildStart(profiles, s.id)
	out, err := s.sendTuningRequest(ctx, node)
	if err != nil {
		return 0, "", err
	}
	if out.Err != nil {
		s.table.RejectStart(channelNo)
		return 0, "", out.Err
	}
	if err := s.tuning.ApplyStartReply(channelNo, out.Node); err != nil {
		return 0, "", err
	}
	s.notifyChannelStarted(channelNo, out.Node.Profile.URI)
	s.dispatchChannelEvent(ctx, channelNo, out.Node.Profile.URI, cmp.ProfileOffer{}, false, false)
	return channelNo, out.Node.Profile.URI, nil
}

// AsyncCloseChannel requests that channelNo be closed with the given
// BEEP reply code (200 for a normal close) and blocks until the peer
// confirms.
func (s *Session) AsyncCloseChannel(ctx context.Context, channelNo uint32, code int) error {
	node, err := s.tuning.BuildClose(channelNo, code)
	if err != nil {
		return err
	}
	out, err := s.sendTuningRequest(ctx, node)
	if err != nil {
		return err
	}
	if out.Err != nil {
		return out.Err
	}
	ch, err := s.tuning.ApplyCloseReply(channelNo, out.Node)
	if err != nil {
		return err
	}
	s.notifyChannelClosed(channelNo)
	s.dispatchChannelEvent(ctx, channelNo, ch.Profile, cmp.ProfileOffer{}, false, true)
	return nil
}

// AsyncRead blocks until a message arrives on channelNo (for channels
// whose profile has no installed ProfileHandler) or ctx is done.
func (s *Session) AsyncRead(ctx context.Context, channelNo uint32) (*message.Message, error) {
	inbox := s.inboxFor(channelNo)
	select {
	case m := <-inbox:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, s.closeErr
	}
}

// Send transmits body on channelNo as a new MSG, returning the msgno
// assigned. Use Reply, not Send, to answer a MSG a ProfileHandler just
// received — a reply must carry the request's own msgno.
func (s *Session) Send(ctx context.Context, channelNo uint32, msgType frame.Type, contentType string, body []byte) (uint32, error) {
	msgno, err := s.table.NextMsgNo(channelNo)
	if err != nil {
		return 0, err
	}
	m := &message.Message{Type: msgType, Channel: channelNo, MsgNo: msgno, ContentType: contentType, Body: body}
	return msgno, s.sendMessage(ctx, m)
}

// Reply answers the message numbered msgno on channelNo (typically the
// MsgNo of a MSG a ProfileHandler just received) with an RPY or ERR
// frame carrying body.
func (s *Session) Reply(ctx context.Context, channelNo, msgno uint32, msgType frame.Type, contentType string, body []byte) error {
	m := &message.Message{Type: msgType, Channel: channelNo, MsgNo: msgno, ContentType: contentType, Body: body}
	return s.sendMessage(ctx, m)
}

// Shutdown tears the session down by requesting a close of the tuning
// channel and then closing the transport. Other open channels are not
// closed individually first.
func (s *Session) Shutdown(ctx context.Context) error {
	s.tuning.BeginClosing()
	if err := s.AsyncCloseChannel(ctx, 0, 200); err != nil {
		_ = s.transport.Close()
		return err
	}
	return s.transport.Close()
}

func (s *Session) sendGreeting(ctx context.Context) error {
	node := s.tuning.BuildGreeting()
	msgno, err := s.table.NextMsgNo(0)
	if err != nil {
		return err
	}
	payload, err := cmp.Emit(node)
	if err != nil {
		return err
	}
	m := &message.Message{Type: frame.RPY, Channel: 0, MsgNo: msgno, ContentType: "application/beep+xml", Body: payload}
	return s.sendMessage(ctx, m)
}

func (s *Session) sendTuningReply(ctx context.Context, msgno uint32, node *cmp.Node) error {
	payload, err := cmp.Emit(node)
	if err != nil {
		return err
	}
	typ := frame.RPY
	if node.Kind == cmp.KindError {
		typ = frame.ERR
	}
	m := &message.Message{Type: typ, Channel: 0, MsgNo: msgno, ContentType: "application/beep+xml", Body: payload}
	return s.sendMessage(ctx, m)
}

func (s *Session) sendTuningRequest(ctx context.Context, node *cmp.Node) (tuning.Outcome, error) {
	msgno, err := s.table.NextMsgNo(0)
	if err != nil {
		return tuning.Outcome{}, err
	}
	waitCh := s.tuning.Register(msgno)
	payload, err := cmp.Emit(node)
	if err != nil {
		return tuning.Outcome{}, err
	}
	m := &message.Message{Type: frame.MSG, Channel: 0, MsgNo: msgno, ContentType: "application/beep+xml", Body: payload}
	if err := s.sendMessage(ctx, m); err != nil {
		return tuning.Outcome{}, err
	}
	select {
	case out := <-waitCh:
		return out, nil
	case <-ctx.Done():
		return tuning.Outcome{}, ctx.Err()
	case <-s.closed:
		return tuning.Outcome{}, s.closeErr
	}
}

// sendMessage stamps and emits every frame of m in order. Each frame's
// seqno is drawn from its channel's running outgoing-octet counter and
// advanced by that frame's payload length (mod 2^32), per §4.D's
// prepare_outgoing — this applies uniformly to MSG, RPY, and ERR frames:
// every frame this side sends on a channel advances that channel's
// outgoing counter, whichever side caused the send (§4.E invariants).
func (s *Session) sendMessage(ctx context.Context, m *message.Message) error {
	for _, f := range message.Split(m, s.maxFramePayload) {
		seqno, err := s.table.AdvanceSeqNo(m.Channel, len(f.Payload))
		if err != nil {
			return err
		}
		f.SeqNo = seqno
		b, err := frame.Encode(f)
		if err != nil {
			return err
		}
		if err := s.transport.Write(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
