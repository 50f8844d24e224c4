package companion

import (
	"regexp"
	"strings"
	"time"
)

// Segment is one sentence together with its synthesized audio.
type Segment struct {
	Index    int
	Text     string
	Audio    []byte
	Format   string
	Duration time.Duration
}

// A sentence is a run of non-terminators closed by one or more of . ! ?, or
// trailing text without a terminator.
var sentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+|[^.!?]+`)

// SplitSentences splits text on sentence-terminal punctuation. Terminators stay
// with their sentence, whitespace is trimmed and empty pieces are dropped.
func SplitSentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
