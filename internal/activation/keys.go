package activation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrUnknownKey = errors.New("activation: unknown key")

// xterm sequences for the function keys.
var functionKeys = map[string]string{
	"f1": "\x1bOP", "f2": "\x1bOQ", "f3": "\x1bOR", "f4": "\x1bOS",
	"f5": "\x1b[15~", "f6": "\x1b[17~", "f7": "\x1b[18~", "f8": "\x1b[19~",
	"f9": "\x1b[20~", "f10": "\x1b[21~", "f11": "\x1b[23~", "f12": "\x1b[24~",
}

// KeySequences returns the byte sequences a terminal sends for the named
// key. Names are case-insensitive: "F1".."F12", "enter", "space", "tab",
// or any single character.
func KeySequences(name string) ([][]byte, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if seq, ok := functionKeys[n]; ok {
		return [][]byte{[]byte(seq)}, nil
	}
	switch n {
	case "enter", "return":
		return [][]byte{{'\r'}, {'\n'}}, nil
	case "space":
		return [][]byte{{' '}}, nil
	case "tab":
		return [][]byte{{'\t'}}, nil
	}
	raw := strings.TrimSpace(name)
	if utf8.RuneCountInString(raw) == 1 {
		lower, upper := strings.ToLower(raw), strings.ToUpper(raw)
		if lower == upper {
			return [][]byte{[]byte(raw)}, nil
		}
		return [][]byte{[]byte(lower), []byte(upper)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}
