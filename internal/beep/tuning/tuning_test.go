package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casimiro/go-beep/internal/beep/channel"
	"github.com/casimiro/go-beep/internal/beep/cmp"
)

func newHandlerWithProfile(role channel.Role, profile string) *Handler {
	tbl := channel.NewTable(role)
	if profile != "" {
		tbl.InstallProfile(profile)
	}
	return NewHandler(tbl)
}

func TestBuildGreetingAdvertisesInstalledProfiles(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "casimiro.daniel/test-profile")
	g := h.BuildGreeting()
	assert.Equal(t, cmp.KindGreeting, g.Kind)
	assert.Equal(t, []string{"casimiro.daniel/test-profile"}, g.ProfileURIs)
}

func TestApplyPeerGreetingTransitionsFreshToGreeted(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "")
	assert.Equal(t, StatusFresh, h.Status())
	err := h.ApplyPeerGreeting(&cmp.Node{Kind: cmp.KindGreeting})
	require.NoError(t, err)
	assert.Equal(t, StatusGreeted, h.Status())
}

func TestApplyPeerGreetingTwiceErrors(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "")
	require.NoError(t, h.ApplyPeerGreeting(&cmp.Node{Kind: cmp.KindGreeting}))
	err := h.ApplyPeerGreeting(&cmp.Node{Kind: cmp.KindGreeting})
	assert.Error(t, err)
}

func TestInitiatorStartAcceptedByPeer(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "")
	number, node := h.BuildStart([]string{"x"}, "peer-1")
	assert.Equal(t, uint32(1), number)
	assert.Equal(t, cmp.KindStart, node.Kind)

	err := h.ApplyStartReply(number, &cmp.Node{Kind: cmp.KindProfile, Profile: cmp.ProfileOffer{URI: "x"}})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, h.Status())
}

func TestInitiatorStartRejectedByPeer(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "")
	number, _ := h.BuildStart([]string{"x"}, "")
	err := h.ApplyStartReply(number, &cmp.Node{Kind: cmp.KindError, Code: 550, Diagnostic: "nope"})
	assert.Error(t, err)
}

func TestHandlePeerStartAcceptsMutualProfile(t *testing.T) {
	h := newHandlerWithProfile(channel.Listener, "shared")
	reply, offer := h.HandlePeerStart(&cmp.Node{Kind: cmp.KindStart, Channel: 1, Profiles: []cmp.ProfileOffer{{URI: "shared"}}})
	assert.Equal(t, cmp.KindProfile, reply.Kind)
	assert.Equal(t, "shared", reply.Profile.URI)
	assert.Equal(t, "shared", offer.URI)
}

func TestHandlePeerStartRefusesWhenNoMutualProfile(t *testing.T) {
	h := newHandlerWithProfile(channel.Listener, "mine")
	reply, _ := h.HandlePeerStart(&cmp.Node{Kind: cmp.KindStart, Channel: 1, Profiles: []cmp.ProfileOffer{{URI: "theirs"}}})
	assert.Equal(t, cmp.KindError, reply.Kind)
	assert.Equal(t, 550, reply.Code)
}

func TestHandlePeerStartRefusesOccupiedChannel(t *testing.T) {
	h := newHandlerWithProfile(channel.Listener, "shared")
	reply, _ := h.HandlePeerStart(&cmp.Node{Kind: cmp.KindStart, Channel: 1, Profiles: []cmp.ProfileOffer{{URI: "shared"}}})
	require.Equal(t, cmp.KindProfile, reply.Kind)

	reply, _ = h.HandlePeerStart(&cmp.Node{Kind: cmp.KindStart, Channel: 1, Profiles: []cmp.ProfileOffer{{URI: "shared"}}})
	assert.Equal(t, cmp.KindError, reply.Kind)
	assert.Equal(t, 550, reply.Code)
	assert.Equal(t, "channel in use", reply.Diagnostic)
}

func TestCloseLifecycleInitiatorSide(t *testing.T) {
	h := newHandlerWithProfile(channel.Listener, "shared")
	h.HandlePeerStart(&cmp.Node{Kind: cmp.KindStart, Channel: 1, Profiles: []cmp.ProfileOffer{{URI: "shared"}}})

	node, err := h.BuildClose(1, 200)
	require.NoError(t, err)
	assert.Equal(t, cmp.KindClose, node.Kind)

	ch, err := h.ApplyCloseReply(1, &cmp.Node{Kind: cmp.KindOk})
	assert.NoError(t, err)
	assert.Equal(t, "shared", ch.Profile)
}

func TestHandlePeerCloseAdmitsKnownChannel(t *testing.T) {
	h := newHandlerWithProfile(channel.Listener, "shared")
	h.HandlePeerStart(&cmp.Node{Kind: cmp.KindStart, Channel: 1, Profiles: []cmp.ProfileOffer{{URI: "shared"}}})
	reply, ch := h.HandlePeerClose(&cmp.Node{Kind: cmp.KindClose, Channel: 1, Code: 200})
	assert.Equal(t, cmp.KindOk, reply.Kind)
	assert.Equal(t, "shared", ch.Profile)
}

func TestHandlePeerCloseRejectsUnknownChannel(t *testing.T) {
	h := newHandlerWithProfile(channel.Listener, "shared")
	reply, _ := h.HandlePeerClose(&cmp.Node{Kind: cmp.KindClose, Channel: 7, Code: 200})
	assert.Equal(t, cmp.KindError, reply.Kind)
	assert.Equal(t, 450, reply.Code)
}

func TestRegisterCompleteFiresExactlyOnce(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "")
	ch := h.Register(1)

	ok := h.Complete(1, &cmp.Node{Kind: cmp.KindOk}, nil)
	assert.True(t, ok)

	out := <-ch
	require.NoError(t, out.Err)
	assert.Equal(t, cmp.KindOk, out.Node.Kind)

	ok = h.Complete(1, &cmp.Node{Kind: cmp.KindOk}, nil)
	assert.False(t, ok)
}

func TestCompleteUnknownMsgnoIsNoop(t *testing.T) {
	h := newHandlerWithProfile(channel.Initiator, "")
	ok := h.Complete(42, &cmp.Node{Kind: cmp.KindOk}, nil)
	assert.False(t, ok)
}
