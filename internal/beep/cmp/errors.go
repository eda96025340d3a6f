package cmp

import (
	"fmt"

	"github.com/casimiro/go-beep/internal/beeperrors"
)

func cmpSyntax(cause error) error {
	return beeperrors.NewWireError("cmp.parse", fmt.Errorf("cmp syntax: %w", cause))
}

func unknownCmp(element string) error {
	return beeperrors.NewWireError("cmp.parse", fmt.Errorf("unknown cmp element %q", element))
}

func missingAttr(element, attr string) error {
	return beeperrors.NewWireError("cmp.parse", fmt.Errorf("%s: missing required attribute %q", element, attr))
}

func badAttr(element, attr, value string) error {
	return beeperrors.NewWireError("cmp.parse", fmt.Errorf("%s: invalid %s %q", element, attr, value))
}

func initTooLarge(n int) error {
	return beeperrors.NewWireError("cmp.parse", fmt.Errorf("profile init text %d octets exceeds 4096", n))
}

var (
	errBadNumber  = fmt.Errorf("channel number out of range")
	errBadCode    = fmt.Errorf("reply code must be three digits")
	errNoProfiles = fmt.Errorf("start element carries no profile candidates")
)
