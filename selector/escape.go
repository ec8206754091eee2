package selector

import (
	"fmt"
	"strconv"
	"strings"
)

// EscapeIdent escapes an identifier for use after '#' in a CSS selector.
// It follows the CSSOM serialize-an-identifier rules, the same ones the
// browser's CSS.escape applies.
func EscapeIdent(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('�')
		case r >= 0x01 && r <= 0x1F, r == 0x7F:
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80, r == '-', r == '_',
			r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnescapeIdent reverses EscapeIdent. Hex escapes consume one optional
// trailing whitespace character.
func UnescapeIdent(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		i++
		if i >= len(runes) {
			return "", fmt.Errorf("%w: dangling escape in %q", ErrSyntax, s)
		}
		if !isHex(runes[i]) {
			b.WriteRune(runes[i])
			continue
		}
		j := i
		for j < len(runes) && j-i < 6 && isHex(runes[j]) {
			j++
		}
		cp, err := strconv.ParseUint(string(runes[i:j]), 16, 32)
		if err != nil {
			return "", fmt.Errorf("%w: bad escape in %q", ErrSyntax, s)
		}
		b.WriteRune(rune(cp))
		if j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
			j++
		}
		i = j - 1
	}
	return b.String(), nil
}

func isHex(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F'
}
