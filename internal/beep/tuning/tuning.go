// Package tuning implements the tuning channel handler and session
// state machine (§4.E): greeting exchange, channel start/close
// negotiation, and the pending-reply bookkeeping that lets a caller
// await a specific outstanding request exactly once.
package tuning

import (
	"sync"

	"github.com/casimiro/go-beep/internal/beep/channel"
	"github.com/casimiro/go-beep/internal/beep/cmp"
)

// Status is the session lifecycle state driven by the tuning handler.
type Status uint8

const (
	StatusFresh Status = iota
	StatusGreeted
	StatusActive
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusGreeted:
		return "greeted"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outcome is what a pending tuning request resolves to: either the
// peer's reply node, or an error for a transport/translation failure.
type Outcome struct {
	Node *cmp.Node
	Err  error
}

// Handler drives channel 0. It owns the channel table and the map of
// msgnos awaiting a reply on the tuning channel.
type Handler struct {
	mu      sync.Mutex
	table   *channel.Table
	status  Status
	pending map[uint32]chan Outcome
}

// NewHandler returns a Handler in the fresh state, bound to table.
func NewHandler(table *channel.Table) *Handler {
	return &Handler{table: table, status: StatusFresh, pending: make(map[uint32]chan Outcome)}
}

func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// BuildGreeting returns this session's outgoing greeting, advertising
// every installed profile in the order it was installed.
func (h *Handler) BuildGreeting() *cmp.Node {
	return &cmp.Node{Kind: cmp.KindGreeting, ProfileURIs: h.table.AvailableProfiles()}
}

// ApplyPeerGreeting records receipt of the peer's greeting. A session
// must receive exactly one greeting before any other tuning traffic;
// a second greeting, or one received out of the fresh state, is an
// error.
func (h *Handler) ApplyPeerGreeting(n *cmp.Node) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != StatusFresh {
		return errUnexpectedGreeting(h.status)
	}
	if n.Kind != cmp.KindGreeting {
		return errWrongKind("greeting", n.Kind)
	}
	h.status = StatusGreeted
	return nil
}

// BuildStart composes a <start> request for a newly allocated channel
// offering profiles (in preference order) and reserves the channel as
// pending in the table. It returns the allocated channel number and the
// node to send.
func (h *Handler) BuildStart(profiles []string, serverName string) (channelNo uint32, node *cmp.Node) {
	number := h.table.NextNumber()
	offers := make([]cmp.ProfileOffer, len(profiles))
	for i, uri := range profiles {
		offers[i] = cmp.ProfileOffer{URI: uri}
	}
	_ = h.table.ProposeStart(number, "")
	return number, &cmp.Node{Kind: cmp.KindStart, Channel: number, ServerName: serverName, Profiles: offers}
}

// ApplyStartReply resolves the initiator side of a start negotiation
// once the peer's RPY (KindProfile) or ERR (KindError) arrives.
func (h *Handler) ApplyStartReply(channelNo uint32, n *cmp.Node) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch n.Kind {
	case cmp.KindProfile:
		h.table.AcceptStart(channelNo, n.Profile.URI)
		h.status = StatusActive
		return nil
	case cmp.KindError:
		h.table.RejectStart(channelNo)
		return errProfileRejected(n.Code, n.Diagnostic)
	default:
		return errWrongKind("profile or error", n.Kind)
	}
}

// HandlePeerStart answers a peer-initiated <start>: it rejects a
// channel number already occupied, then selects the first locally
// installed profile among the candidates offered and either admits the
// channel (returning a KindProfile reply) or refuses it (returning a
// KindError reply with BEEP reply code 550). The second return value is
// the offer accepted, so the caller can deliver its init text to the
// profile's start notification; it is the zero value when refused.
func (h *Handler) HandlePeerStart(n *cmp.Node) (*cmp.Node, cmp.ProfileOffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.table.Lookup(n.Channel); exists {
		return &cmp.Node{Kind: cmp.KindError, Code: 550, Diagnostic: "channel in use"}, cmp.ProfileOffer{}
	}
	offer, ok := h.table.SelectProfile(n.Profiles)
	if !ok {
		return &cmp.Node{Kind: cmp.KindError, Code: 550, Diagnostic: "all requested profiles unsupported"}, cmp.ProfileOffer{}
	}
	h.table.AcceptStart(n.Channel, offer.URI)
	h.status = StatusActive
	return &cmp.Node{Kind: cmp.KindProfile, Profile: cmp.ProfileOffer{URI: offer.URI}}, offer
}

// BuildClose composes a <close> request for an active channel.
func (h *Handler) BuildClose(channelNo uint32, code int) (*cmp.Node, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.table.RequestClose(channelNo); err != nil {
		return nil, err
	}
	return &cmp.Node{Kind: cmp.KindClose, Channel: channelNo, Code: code}, nil
}

// ApplyCloseReply resolves the initiator side of a close negotiation.
// On success it returns the closed channel's last known state (for the
// caller to deliver a close notification to its bound profile) before
// removing it from the table.
func (h *Handler) ApplyCloseReply(channelNo uint32, n *cmp.Node) (channel.Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch n.Kind {
	case cmp.KindOk:
		ch, _ := h.table.Lookup(channelNo)
		h.table.CompleteClose(channelNo)
		if channelNo == 0 {
			h.status = StatusClosed
		}
		return ch, nil
	case cmp.KindError:
		return channel.Channel{}, errCloseRejected(n.Code, n.Diagnostic)
	default:
		return channel.Channel{}, errWrongKind("ok or error", n.Kind)
	}
}

// HandlePeerClose answers a peer-initiated <close>. It returns
// Error{450, ...} when the channel is unknown; a profile wanting to veto
// a close of a known channel (e.g. to flush outstanding answers) must do
// so before this is called. On success the second return value is the
// channel's last known state, for delivering a close notification to
// its bound profile.
func (h *Handler) HandlePeerClose(n *cmp.Node) (*cmp.Node, channel.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.table.Lookup(n.Channel)
	if !ok {
		return &cmp.Node{Kind: cmp.KindError, Code: 450, Diagnostic: "channel not found"}, channel.Channel{}
	}
	h.table.CompleteClose(n.Channel)
	if n.Channel == 0 {
		h.status = StatusClosed
	}
	return &cmp.Node{Kind: cmp.KindOk}, ch
}

// BeginClosing marks the session as shutting down, ahead of sending the
// channel-0 close request that tears down the whole session.
func (h *Handler) BeginClosing() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusClosing
}

// Register reserves bookkeeping for a pending reply keyed by msgno and
// returns the channel the caller should receive on. Only one waiter
// may be registered per msgno at a time.
func (h *Handler) Register(msgno uint32) <-chan Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Outcome, 1)
	h.pending[msgno] = ch
	return ch
}

// FailAllPending delivers err to every outstanding waiter and clears the
// pending map, used when the session terminates with a fatal error and
// no further replies will ever arrive.
func (h *Handler) FailAllPending(err error) {
	h.mu.Lock()
	pending := h.pending
	h.pending = make(map[uint32]chan Outcome)
	h.mu.Unlock()
	for _, ch := range pending {
		ch <- Outcome{Err: err}
		close(ch)
	}
}

// Complete delivers an outcome to the waiter registered for msgno. It
// fires at most once per msgno: a second call (or a call for an
// unregistered msgno) is a no-op and reports false.
func (h *Handler) Complete(msgno uint32, n *cmp.Node, err error) bool {
	h.mu.Lock()
	ch, ok := h.pending[msgno]
	if ok {
		delete(h.pending, msgno)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	ch <- Outcome{Node: n, Err: err}
	close(ch)
	return true
}
