package tuning

import (
	"fmt"

	"github.com/casimiro/go-beep/internal/beep/cmp"
	"github.com/casimiro/go-beep/internal/beeperrors"
)

func errUnexpectedGreeting(current Status) error {
	return beeperrors.NewProtocolError("tuning.greeting", 501, fmt.Errorf("greeting received in state %s", current))
}

func errWrongKind(expected string, got cmp.Kind) error {
	return beeperrors.NewProtocolError("tuning", 501, fmt.Errorf("expected %s element, got kind %d", expected, got))
}

func errProfileRejected(code int, diagnostic string) error {
	return beeperrors.NewProtocolError("tuning.start", code, fmt.Errorf("profile negotiation failed: %s", diagnostic))
}

func errCloseRejected(code int, diagnostic string) error {
	return beeperrors.NewProtocolError("tuning.close", code, fmt.Errorf("close refused: %s", diagnostic))
}
