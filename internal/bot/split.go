package bot

import (
	"strings"
	"unicode/utf8"
)

// Platform message size limits, in characters.
const (
	TelegramMaxMessage = 4096
	DiscordMaxMessage  = 2000
)

// SplitMessage cuts text into chunks of at most limit runes, breaking on
// line boundaries where possible. Long pool lists exceed a single message.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if n > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		ln := utf8.RuneCountInString(line)
		sep := 0
		if n > 0 {
			sep = 1
		}
		if n+sep+ln > limit {
			flush()
			sep = 0
		}
		for ln > limit {
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		n += sep + ln
	}
	flush()
	return chunks
}
