package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

const maxFileNameRunes = 255

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName reduces a client-supplied upload name to its base name
// with separators and control characters removed.
func SanitizeFileName(name string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	s = path.Base(s)
	if s == "." || s == ".." || s == "/" {
		return "", ErrInvalidFileName
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidFileName
	}
	if runes := []rune(s); len(runes) > maxFileNameRunes {
		s = string(runes[len(runes)-maxFileNameRunes:])
	}
	return s, nil
}
