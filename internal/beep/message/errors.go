package message

import (
	"fmt"

	"github.com/casimiro/go-beep/internal/beeperrors"
)

func malformedEntity(reason string) error {
	return beeperrors.NewWireError("message.compile", fmt.Errorf("malformed MIME entity: %s", reason))
}
