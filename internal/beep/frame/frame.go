// Package frame implements the BEEP wire-frame codec (§4.A): parsing and
// serializing the line-oriented MSG/RPY/ANS/ERR/NUL/SEQ frames that make
// up every byte exchanged over a session's transport.
//
// RFC 3081's SEQ frame is parsed in full (channel, ackno, window) but this
// package — and the session built on top of it — does not advertise a
// receive window or apply backpressure beyond the transport's own write
// queue. That is a deliberate deviation from full RFC 3081 flow control,
// not an oversight (see spec §9 open question 1).
package frame

import "fmt"

// Type identifies the keyword of a frame's header line.
type Type uint8

const (
	MSG Type = iota
	RPY
	ANS
	ERR
	NUL
	SEQ
)

func (t Type) String() string {
	switch t {
	case MSG:
		return "MSG"
	case RPY:
		return "RPY"
	case ANS:
		return "ANS"
	case ERR:
		return "ERR"
	case NUL:
		return "NUL"
	case SEQ:
		return "SEQ"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// maxChannel31 and maxUint32 bound the decimal fields per §4.A's numeric
// ranges: channel/msgno/size in [0, 2^31); seqno/ansno/ackno/window in
// [0, 2^32).
const (
	maxChannel31 = uint64(1) << 31
	maxUint32    = uint64(1) << 32
)

// trailer is the literal octet sequence that terminates every frame.
const trailer = "END\r\n"

// Frame is the tagged value produced by the decoder and consumed by the
// encoder. Not every field is meaningful for every Type:
//   - MSG/RPY/ERR/NUL: Channel, MsgNo, More, SeqNo, Payload
//   - ANS: the above plus AnsNo
//   - SEQ: Channel, AckNo, Window (no payload, no MsgNo/More/SeqNo)
type Frame struct {
	Type    Type
	Channel uint32
	MsgNo   uint32
	More    bool
	SeqNo   uint32
	AnsNo   uint32
	AckNo   uint32
	Window  uint32
	Payload []byte
}

// IsData reports whether the frame carries (or, for a trailing
// more=false frame, completes) a message body, i.e. every type other
// than SEQ.
func (f *Frame) IsData() bool { return f.Type != SEQ }

// Key identifies the (channel, message number, frame-type) tuple the
// message compiler uses to aggregate continuation frames (§4.C).
type Key struct {
	Channel uint32
	MsgNo   uint32
	Type    Type
}

func (f *Frame) Key() Key { return Key{Channel: f.Channel, MsgNo: f.MsgNo, Type: f.Type} }
