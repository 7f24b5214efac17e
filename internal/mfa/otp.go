package mfa

import "strings"

// NormalizeCode strips spaces and dashes from a user-entered code. The code is
// otherwise opaque; ok is false only when nothing is left.
func NormalizeCode(code string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, code)
	return s, s != ""
}
