package protocol

import (
	"unicode"
	"unicode/utf8"
)

// IsValidStatus reports whether s is one of the three wire status literals.
func IsValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusBusy, StatusInactive:
		return true
	default:
		return false
	}
}

// IsValidName reports whether name can serve as a display identifier:
// non-empty, valid UTF-8, and free of control characters. Uniqueness is the
// registry's concern, not the codec's.
func IsValidName(name string) bool {
	if name == "" || name == SenderServer || !utf8.ValidString(name) {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
