package notify

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is the chunk budget, below Telegram's 4096 hard limit.
const MaxMessageLen = 4000

// SplitMessage cuts text into chunks of at most limit runes on line
// boundaries. Joining the chunks with "\n" gives back the original text,
// except that a single line longer than limit is hard-split across chunks.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    []string
		curLen int
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur, curLen = nil, 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n > limit {
			flush()
			r := []rune(line)
			for len(r) > limit {
				chunks = append(chunks, string(r[:limit]))
				r = r[limit:]
			}
			line, n = string(r), len(r)
		}

		need := n
		if len(cur) > 0 {
			need++ // separator
		}
		if curLen+need > limit {
			flush()
			need = n
		}
		cur = append(cur, line)
		curLen += need
	}
	flush()

	return chunks
}
