package frame

import (
	"fmt"

	"github.com/casimiro/go-beep/internal/beeperrors"
)

// ErrNeedMore is returned by Decoder.Next when the buffered bytes do not
// yet contain a full frame. It is not fatal: the caller should feed more
// bytes from the transport and try again.
var ErrNeedMore = fmt.Errorf("frame: need more bytes")

// OutOfRange reports a numeric field outside its §4.A range. Fatal at the
// session level per §4.A / §7.
func OutOfRange(field string) error {
	return beeperrors.NewWireError("frame.decode", fmt.Errorf("field %q out of range", field))
}

func malformedHeader(reason string) error {
	return beeperrors.NewWireError("frame.decode.header", fmt.Errorf("malformed header: %s", reason))
}

func invalidContinuation(sym byte) error {
	return beeperrors.NewWireError("frame.decode.header", fmt.Errorf("invalid continuation symbol %q", sym))
}

func missingTrailer() error {
	return beeperrors.NewWireError("frame.decode.trailer", fmt.Errorf("missing END trailer"))
}

func sizeMismatch() error {
	return beeperrors.NewWireError("frame.decode.size", fmt.Errorf("payload size mismatch"))
}
