// Package message implements the message compiler (§4.C): it aggregates
// incoming continuation frames into whole messages and splits outgoing
// messages into the frame sequence the wire codec requires.
package message

import (
	"bytes"
	"strings"

	"github.com/casimiro/go-beep/internal/beep/frame"
	"github.com/casimiro/go-beep/internal/bufpool"
)

// Message is a fully assembled BEEP message: a MIME entity with its
// Content-Type (defaulted to application/octet-stream when the sender
// omits it) plus the decoded body.
type Message struct {
	Type        frame.Type
	Channel     uint32
	MsgNo       uint32
	AnsNo       uint32
	ContentType string
	Body        []byte
}

const defaultContentType = "application/octet-stream"

// pending accumulates the frames belonging to one in-flight message.
type pending struct {
	body  bytes.Buffer
	ansno uint32
}

// Compiler aggregates inbound frames keyed by (channel, msgno, type) and
// emits a Message once a frame with more=false completes the sequence.
// It is not safe for concurrent use; the session serializes calls onto
// its single read loop.
type Compiler struct {
	pool    *bufpool.Pool
	pending map[frame.Key]*pending
}

// NewCompiler returns a Compiler that draws payload buffers from pool.
// A nil pool falls back to unpooled allocation.
func NewCompiler(pool *bufpool.Pool) *Compiler {
	return &Compiler{pool: pool, pending: make(map[frame.Key]*pending)}
}

// Feed absorbs one inbound data frame (SEQ frames are the transport's
// concern and never reach the compiler). It returns a complete Message
// once f.More is false for its key, or nil while aggregation continues.
func (c *Compiler) Feed(f *frame.Frame) (*Message, error) {
	key := f.Key()
	p, ok := c.pending[key]
	if !ok {
		p = &pending{}
		c.pending[key] = p
	}
	if f.Type == frame.ANS {
		p.ansno = f.AnsNo
	}
	p.body.Write(f.Payload)

	if f.More {
		return nil, nil
	}
	delete(c.pending, key)

	contentType, rawBody, err := splitEntity(p.body.Bytes())
	if err != nil {
		return nil, err
	}
	body := c.copyBody(rawBody)
	return &Message{
		Type:        f.Type,
		Channel:     f.Channel,
		MsgNo:       f.MsgNo,
		AnsNo:       p.ansno,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// copyBody hands back a pooled buffer sized to raw, falling back to a
// plain copy when the compiler has no pool.
func (c *Compiler) copyBody(raw []byte) []byte {
	if c.pool == nil {
		return append([]byte(nil), raw...)
	}
	buf := c.pool.Get(len(raw))
	copy(buf, raw)
	return buf
}

// splitEntity separates the MIME header block from the message body.
// Only Content-Type is recognized; any other header line is ignored. A
// payload with no header block at all (no blank line) is returned whole
// as the body, with the default content type.
func splitEntity(raw []byte) (string, []byte, error) {
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(raw, sep)
	if idx < 0 {
		return defaultContentType, raw, nil
	}
	headerBlock := string(raw[:idx])
	body := raw[idx+len(sep):]

	contentType := defaultContentType
	for _, line := range strings.Split(headerBlock, "\r\n") {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return "", nil, malformedEntity("header line missing colon")
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Type") {
			contentType = strings.TrimSpace(value)
		}
	}
	return contentType, body, nil
}

// Split produces the frame sequence for an outgoing message. When
// maxFramePayload is 0 the whole body is emitted as a single frame;
// otherwise the body is segmented across multiple frames with more=true
// on every frame but the last (§9 open question 2).
func Split(m *Message, maxFramePayload int) []*frame.Frame {
	entity := buildEntity(m)

	if maxFramePayload <= 0 || len(entity) <= maxFramePayload {
		return []*frame.Frame{{
			Type:    m.Type,
			Channel: m.Channel,
			MsgNo:   m.MsgNo,
			AnsNo:   m.AnsNo,
			More:    false,
			Payload: entity,
		}}
	}

	var frames []*frame.Frame
	for offset := 0; offset < len(entity); offset += maxFramePayload {
		end := offset + maxFramePayload
		if end > len(entity) {
			end = len(entity)
		}
		frames = append(frames, &frame.Frame{
			Type:    m.Type,
			Channel: m.Channel,
			MsgNo:   m.MsgNo,
			AnsNo:   m.AnsNo,
			More:    end < len(entity),
			Payload: entity[offset:end],
		})
	}
	return frames
}

func buildEntity(m *Message) []byte {
	contentType := m.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	var buf bytes.Buffer
	buf.WriteString("Content-Type: ")
	buf.WriteString(contentType)
	buf.WriteString("\r\n\r\n")
	buf.Write(m.Body)
	return buf.Bytes()
}

// ReleaseBuffers returns a Message's body buffer to the pool, if one was
// supplied at construction and the buffer originated from it. Callers
// that retain the body past this call must copy it first.
func (c *Compiler) ReleaseBuffers(m *Message) {
	if c.pool == nil || m == nil {
		return
	}
	c.pool.Put(m.Body)
}
