package main

import (
	"context"

	"github.com/casimiro/go-beep/internal/beep/frame"
	"github.com/casimiro/go-beep/internal/beep/message"
	"github.com/casimiro/go-beep/internal/beep/session"
)

const defaultEchoProfile = "casimiro.daniel/echo"

// echoHandler replies to every MSG it receives with an RPY carrying the
// same body, a minimal demo profile for exercising the channel and
// message-compiler machinery end to end.
type echoHandler struct{}

func (echoHandler) HandleMessage(ctx context.Context, s *session.Session, channelNo uint32, msg *message.Message) error {
	if msg.Type != frame.MSG {
		return nil
	}
	return s.Reply(ctx, channelNo, msg.MsgNo, frame.RPY, msg.ContentType, msg.Body)
}

// HandleChannel has nothing to do at bind/unbind time: the echo profile
// carries no per-channel state and ignores any init text.
func (echoHandler) HandleChannel(ctx context.Context, s *session.Session, channelNo uint32, initMessage []byte, peerInitiated, closed bool) {
}
