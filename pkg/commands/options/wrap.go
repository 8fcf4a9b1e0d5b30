package options

import (
	"strings"
	"unicode/utf8"
)

func Wrap80(text string) string {
	return Wrap(text, 80)
}

// Wrap reflows text into lines of at most width runes. Words longer than
// width get a line of their own.
func Wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(words[0])
	room := width - utf8.RuneCountInString(words[0])
	for _, word := range words[1:] {
		n := utf8.RuneCountInString(word)
		if n+1 > room {
			b.WriteByte('\n')
			room = width - n
		} else {
			b.WriteByte(' ')
			room -= n + 1
		}
		b.WriteString(word)
	}
	return b.String()
}
