// Package integration exercises the BEEP peer across package
// boundaries: frame/CMP round-trips, message reassembly, channel
// numbering parity, and exactly-once tuning callback delivery.
package integration

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casimiro/go-beep/internal/beep/cmp"
	"github.com/casimiro/go-beep/internal/beep/frame"
	"github.com/casimiro/go-beep/internal/beep/message"
)

// Invariant 1: encode . decode is the identity for every frame type and
// a spread of payload sizes.
func TestFrameRoundTripAllTypes(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	sizes := []int{0, 1, 17, 512, 4096}

	for _, typ := range []frame.Type{frame.MSG, frame.RPY, frame.ANS, frame.ERR, frame.NUL} {
		for _, size := range sizes {
			payload := make([]byte, size)
			r.Read(payload)

			f := &frame.Frame{
				Type:    typ,
				Channel: 3,
				MsgNo:   7,
				More:    size > 0 && size%2 == 0,
				SeqNo:   1234,
				Payload: payload,
			}
			if typ == frame.ANS {
				f.AnsNo = 2
			}

			encoded, err := frame.Encode(f)
			require.NoError(t, err)

			d := frame.NewDecoder()
			d.Feed(encoded)
			got, err := d.Next()
			require.NoError(t, err)

			assert.Equal(t, f.Type, got.Type)
			assert.Equal(t, f.Channel, got.Channel)
			assert.Equal(t, f.MsgNo, got.MsgNo)
			assert.Equal(t, f.More, got.More)
			assert.Equal(t, f.SeqNo, got.SeqNo)
			if typ == frame.ANS {
				assert.Equal(t, f.AnsNo, got.AnsNo)
			}
			assert.True(t, bytes.Equal(payload, got.Payload), "payload mismatch for %s size %d", typ, size)
		}
	}
}

func TestSeqFrameRoundTrip(t *testing.T) {
	f := &frame.Frame{Type: frame.SEQ, Channel: 1, AckNo: 1000, Window: 4096}
	encoded, err := frame.Encode(f)
	require.NoError(t, err)

	d := frame.NewDecoder()
	d.Feed(encoded)
	got, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.SEQ, got.Type)
	assert.Equal(t, f.Channel, got.Channel)
	assert.Equal(t, f.AckNo, got.AckNo)
	assert.Equal(t, f.Window, got.Window)
}

// Invariant 2: parse . emit is the identity for every CMP node variant.
func TestCMPRoundTripAllVariants(t *testing.T) {
	nodes := []*cmp.Node{
		{Kind: cmp.KindGreeting},
		{Kind: cmp.KindGreeting, ProfileURIs: []string{"a", "b"}},
		{Kind: cmp.KindStart, Channel: 1, ServerName: "host", Profiles: []cmp.ProfileOffer{{URI: "x"}}},
		{Kind: cmp.KindProfile, Profile: cmp.ProfileOffer{URI: "x"}},
		{Kind: cmp.KindClose, Channel: 1, Code: 200},
		{Kind: cmp.KindOk},
		{Kind: cmp.KindError, Code: 550, Diagnostic: "no such profile", HasDiag: true},
	}

	for _, n := range nodes {
		encoded, err := cmp.Emit(n)
		require.NoError(t, err)
		got, err := cmp.Parse(encoded)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

// Invariant 3: any partition of a message into correctly-flagged frames
// reassembles to the original message through the compiler.
func TestMessageAssemblyAnyPartition(t *testing.T) {
	body := bytes.Repeat([]byte("abcdefghij"), 37) // 370 octets

	for _, frameSize := range []int{1, 7, 64, 128, 512} {
		msg := &message.Message{
			Type:        frame.MSG,
			Channel:     5,
			MsgNo:       9,
			ContentType: "text/plain",
			Body:        body,
		}
		frames := message.Split(msg, frameSize)

		compiler := message.NewCompiler(nil)
		var got *message.Message
		for _, f := range frames {
			out, err := compiler.Feed(f)
			require.NoError(t, err)
			if out != nil {
				got = out
			}
		}
		require.NotNil(t, got, "frame size %d", frameSize)
		assert.Equal(t, body, got.Body, "frame size %d", frameSize)
		assert.Equal(t, "text/plain", got.ContentType, "frame size %d", frameSize)
	}
}
