package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, b []byte) *Frame {
	t.Helper()
	d := NewDecoder()
	d.Feed(b)
	f, err := d.Next()
	require.NoError(t, err)
	return f
}

func TestRoundTripDataFrames(t *testing.T) {
	cases := []*Frame{
		{Type: MSG, Channel: 0, MsgNo: 1, More: false, SeqNo: 0, Payload: []byte("hello")},
		{Type: RPY, Channel: 1, MsgNo: 2, More: true, SeqNo: 50, Payload: []byte("partial")},
		{Type: ERR, Channel: 0, MsgNo: 2, More: false, SeqNo: 71, Payload: nil},
		{Type: NUL, Channel: 3, MsgNo: 9, More: false, SeqNo: 200},
		{Type: ANS, Channel: 4, MsgNo: 1, More: false, SeqNo: 10, AnsNo: 2, Payload: []byte("answer")},
	}
	for _, f := range cases {
		b, err := Encode(f)
		require.NoError(t, err)
		got := decodeOne(t, b)
		assert.Equal(t, f.Type, got.Type)
		assert.Equal(t, f.Channel, got.Channel)
		assert.Equal(t, f.MsgNo, got.MsgNo)
		assert.Equal(t, f.More, got.More)
		assert.Equal(t, f.SeqNo, got.SeqNo)
		assert.Equal(t, f.AnsNo, got.AnsNo)
		assert.Equal(t, f.Payload, got.Payload)
		assert.Zero(t, d_leftover(t, b))
	}
}

// d_leftover confirms the decoder consumes exactly the encoded bytes.
func d_leftover(t *testing.T, b []byte) int {
	t.Helper()
	d := NewDecoder()
	d.Feed(b)
	_, err := d.Next()
	require.NoError(t, err)
	return d.Buffered()
}

func TestRoundTripSeqFrame(t *testing.T) {
	f := &Frame{Type: SEQ, Channel: 2, AckNo: 1000, Window: 8192}
	b, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, "SEQ 2 1000 8192\r\nEND\r\n", string(b))
	got := decodeOne(t, b)
	assert.Equal(t, SEQ, got.Type)
	assert.Equal(t, uint32(2), got.Channel)
	assert.Equal(t, uint32(1000), got.AckNo)
	assert.Equal(t, uint32(8192), got.Window)
}

func TestIncrementalFeedNeedsMore(t *testing.T) {
	f := &Frame{Type: MSG, Channel: 0, MsgNo: 0, More: false, SeqNo: 0, Payload: []byte("0123456789")}
	full, err := Encode(f)
	require.NoError(t, err)

	d := NewDecoder()
	// Feed one byte at a time; Next should report ErrNeedMore until complete.
	for i := 0; i < len(full)-1; i++ {
		d.Feed(full[i : i+1])
		_, err := d.Next()
		assert.ErrorIs(t, err, ErrNeedMore)
	}
	d.Feed(full[len(full)-1:])
	got, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), got.Payload)
}

func TestConsecutiveFramesInOneBuffer(t *testing.T) {
	f1 := &Frame{Type: MSG, Channel: 0, MsgNo: 0, SeqNo: 0, Payload: []byte("a")}
	f2 := &Frame{Type: RPY, Channel: 0, MsgNo: 0, SeqNo: 1, Payload: []byte("b")}
	b1, _ := Encode(f1)
	b2, _ := Encode(f2)

	d := NewDecoder()
	d.Feed(append(append([]byte{}, b1...), b2...))
	got1, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got1.Payload)
	got2, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got2.Payload)
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrNeedMore)
}

func TestMalformedHeaderIsFatal(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("GARBAGE 0 0 . 0 0\r\nEND\r\n"))
	_, err := d.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNeedMore)
}

func TestInvalidContinuationSymbol(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("MSG 0 0 x 0 0\r\nEND\r\n"))
	_, err := d.Next()
	require.Error(t, err)
}

func TestOutOfRangeChannel(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("MSG 2147483648 0 . 0 0\r\nEND\r\n"))
	_, err := d.Next()
	require.Error(t, err)
}

func TestMissingTrailer(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("MSG 0 0 . 0 3\r\nabcNOPE\r\n"))
	_, err := d.Next()
	require.Error(t, err)
}

func TestEncodeRejectsOutOfRangeMsgNo(t *testing.T) {
	_, err := Encode(&Frame{Type: MSG, Channel: 0, MsgNo: 1 << 31, SeqNo: 0})
	assert.Error(t, err)
}

// S1 literal header sequence from spec §8: the bare greeting RPY.
func TestLiteralGreetingHeaders(t *testing.T) {
	payload := []byte("Content-Type: application/beep+xml\r\n\r\n<greeting />")
	f := &Frame{Type: RPY, Channel: 0, MsgNo: 0, More: false, SeqNo: 0, Payload: payload}
	b, err := Encode(f)
	require.NoError(t, err)
	want := "RPY 0 0 . 0 50\r\n" + string(payload) + "END\r\n"
	assert.Equal(t, want, string(b))
}
