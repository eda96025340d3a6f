package frame

import (
	"bytes"
	"strconv"
)

// Decoder incrementally assembles Frame values out of a byte stream that
// may arrive in arbitrary chunks from the transport. Feed appends newly
// read bytes; Next attempts to parse one complete frame out of whatever
// has been buffered so far, leaving any residual bytes in place for the
// next call — exactly the "decoder contract" of §4.A.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns a Decoder with an empty residual buffer.
func NewDecoder() *Decoder { return &Decoder{} }

// Feed appends bytes read from the transport to the residual buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf.Write(b)
}

// Buffered reports how many residual bytes are currently held.
func (d *Decoder) Buffered() int { return d.buf.Len() }

// Next attempts to decode one frame from the buffered bytes. It returns
// ErrNeedMore (non-fatal) if the header line is incomplete, or if fewer
// bytes than size+|TRAILER| follow the header; callers should Feed more
// bytes and retry. Any other error is a fatal §4.A wire error.
func (d *Decoder) Next() (*Frame, error) {
	data := d.buf.Bytes()

	headerEnd := bytes.Index(data, []byte("\r\n"))
	if headerEnd < 0 {
		return nil, ErrNeedMore
	}
	headerLine := data[:headerEnd]

	f, payloadSize, err := parseHeaderLine(headerLine)
	if err != nil {
		return nil, err
	}

	need := headerEnd + 2 + payloadSize + len(trailer)
	if len(data) < need {
		return nil, ErrNeedMore
	}

	payloadStart := headerEnd + 2
	payloadEnd := payloadStart + payloadSize
	trailerBytes := data[payloadEnd:need]
	if string(trailerBytes) != trailer {
		return nil, missingTrailer()
	}

	if payloadSize > 0 {
		f.Payload = append([]byte(nil), data[payloadStart:payloadEnd]...)
	}

	d.buf.Next(need)
	return f, nil
}

// parseHeaderLine parses a header line (without its terminating CRLF)
// and returns the partially populated frame plus the payload size
// encoded in the header (0 for SEQ).
func parseHeaderLine(line []byte) (*Frame, int, error) {
	fields := bytes.Split(line, []byte(" "))
	if len(fields) == 0 {
		return nil, 0, malformedHeader("empty header line")
	}
	keyword := string(fields[0])

	if keyword == "SEQ" {
		if len(fields) != 4 {
			return nil, 0, malformedHeader("SEQ header field count")
		}
		channel, err := parseField31(fields[1], "channel")
		if err != nil {
			return nil, 0, err
		}
		ackno, err := parseField32(fields[2], "ackno")
		if err != nil {
			return nil, 0, err
		}
		window, err := parseField32(fields[3], "window")
		if err != nil {
			return nil, 0, err
		}
		return &Frame{Type: SEQ, Channel: channel, AckNo: ackno, Window: window}, 0, nil
	}

	typ, ok := parseType(keyword)
	if !ok {
		return nil, 0, malformedHeader("unknown keyword " + keyword)
	}

	expected := 6
	if typ == ANS {
		expected = 7
	}
	if len(fields) != expected {
		return nil, 0, malformedHeader(keyword + " header field count")
	}

	channel, err := parseField31(fields[1], "channel")
	if err != nil {
		return nil, 0, err
	}
	msgno, err := parseField31(fields[2], "msgno")
	if err != nil {
		return nil, 0, err
	}
	more, err := parseMore(fields[3])
	if err != nil {
		return nil, 0, err
	}
	seqno, err := parseField32(fields[4], "seqno")
	if err != nil {
		return nil, 0, err
	}
	size, err := parseField31(fields[5], "size")
	if err != nil {
		return nil, 0, err
	}

	f := &Frame{Type: typ, Channel: channel, MsgNo: msgno, More: more, SeqNo: seqno}
	if typ == ANS {
		ansno, err := parseField32(fields[6], "ansno")
		if err != nil {
			return nil, 0, err
		}
		f.AnsNo = ansno
	}
	return f, int(size), nil
}

func parseType(keyword string) (Type, bool) {
	switch keyword {
	case "MSG":
		return MSG, true
	case "RPY":
		return RPY, true
	case "ANS":
		return ANS, true
	case "ERR":
		return ERR, true
	case "NUL":
		return NUL, true
	}
	return 0, false
}

func parseMore(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, invalidContinuation(0)
	}
	switch b[0] {
	case '*':
		return true, nil
	case '.':
		return false, nil
	default:
		return false, invalidContinuation(b[0])
	}
}

func parseField31(b []byte, name string) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, malformedHeader(name + " not numeric")
	}
	if v >= maxChannel31 {
		return 0, OutOfRange(name)
	}
	return uint32(v), nil
}

func parseField32(b []byte, name string) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, malformedHeader(name + " not numeric")
	}
	if v >= maxUint32 {
		return 0, OutOfRange(name)
	}
	return uint32(v), nil
}
