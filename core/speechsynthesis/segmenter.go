package speechsynthesis

import (
	"regexp"
	"strings"
)

// Punctuation holds the characters that end a segment.
const Punctuation = "，。！？；：,.!?;:"

// Segmenter splits streamed text into speakable segments. Text after the last
// boundary is held until more text arrives or Flush is called.
type Segmenter struct {
	pending strings.Builder
}

// Push appends chunk and returns every segment it completed.
func (s *Segmenter) Push(chunk string) []string {
	text := s.pending.String() + chunk
	s.pending.Reset()

	segments, rest := split(text)
	s.pending.WriteString(rest)
	return segments
}

// Flush returns the pending remainder as a final segment, or "" when the
// remainder is blank.
func (s *Segmenter) Flush() string {
	rest := s.pending.String()
	s.pending.Reset()
	if strings.TrimSpace(rest) == "" {
		return ""
	}
	return rest
}

func (s *Segmenter) Pending() string {
	return s.pending.String()
}

func (s *Segmenter) Reset() {
	s.pending.Reset()
}

// Segment splits complete text, including any unterminated tail.
func Segment(text string) []string {
	segments, rest := split(text)
	if strings.TrimSpace(rest) != "" {
		segments = append(segments, rest)
	}
	return segments
}

func split(text string) (segments []string, rest string) {
	start := 0
	for i, r := range text {
		if !strings.ContainsRune(Punctuation, r) {
			continue
		}
		end := i + len(string(r))
		if segment := text[start:end]; strings.TrimSpace(segment) != "" {
			segments = append(segments, segment)
		}
		start = end
	}
	return segments, text[start:]
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	asidePattern  = regexp.MustCompile(`（.*?）|\(.*?\)`)
	actionPattern = regexp.MustCompile(`\*.*?\*`)
)

// CleanText removes markup, parenthesised asides and *actions* that should
// be shown but not spoken.
func CleanText(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = asidePattern.ReplaceAllString(text, "")
	text = actionPattern.ReplaceAllString(text, "")
	return text
}
