package channel

import (
	"fmt"

	"github.com/casimiro/go-beep/internal/beeperrors"
)

func errUnknownChannel(number uint32) error {
	return beeperrors.NewUserError("channel.close", fmt.Errorf("channel %d not found", number))
}
