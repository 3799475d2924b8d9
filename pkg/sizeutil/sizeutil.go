package sizeutil

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidSize is returned for strings that are not a number followed by
// one of B, KB, MB or GB.
var ErrInvalidSize = errors.New("invalid size format")

// ParseSize converts a human-readable size like "4KB" or "10mb" into bytes.
func ParseSize(raw string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, ErrInvalidSize
	}

	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, ErrInvalidSize
	}

	var shift uint
	switch s[i:] {
	case "B":
		shift = 0
	case "KB":
		shift = 10
	case "MB":
		shift = 20
	case "GB":
		shift = 30
	default:
		return 0, ErrInvalidSize
	}

	return n << shift, nil
}
