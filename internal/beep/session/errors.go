package session

import "errors"

func errStr(s string) error {
	if s == "" {
		s = "no diagnostic"
	}
	return errors.New(s)
}
