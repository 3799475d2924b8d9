package service

import (
	"fmt"
	"strings"
)

const (
	errPrefix = "[error]"
	okPrefix  = "[ok]"

	// NilMarker stands in for an absent value in an [ok] reply.
	NilMarker = "(nil)"
)

// WrapError - wrapping error with prefix '[error]'.
func WrapError(err error) string {
	return fmt.Sprintf("%s %v", errPrefix, err)
}

// WrapOK - wrapping message with prefix '[ok]'.
func WrapOK(msg string) string {
	if msg == "" {
		return okPrefix
	}

	return fmt.Sprintf("%s %s", okPrefix, msg)
}

// IsError - check the prefix 'error' exists.
func IsError(val string) bool {
	return strings.HasPrefix(val, errPrefix)
}

// CutError - cut prefix 'error'.
func CutError(val string) (string, bool) {
	return strings.CutPrefix(val, errPrefix)
}

// CutOK - cut prefix 'ok'.
func CutOK(val string) (string, bool) {
	return strings.CutPrefix(val, okPrefix)
}
