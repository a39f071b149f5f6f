package pipeline

import "strings"

// SentenceBuffer accumulates streamed tokens and yields complete sentences at
// punctuation boundaries, so synthesis can begin while the responder is still
// generating.
type SentenceBuffer struct {
	buf strings.Builder
}

// Add appends a token and returns any complete sentence ready for synthesis,
// or "" if no boundary has been reached yet.
func (s *SentenceBuffer) Add(token string) string {
	s.buf.WriteString(token)
	text := s.buf.String()
	complete, remainder := splitAtSentence(text)
	if complete == "" {
		return ""
	}
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return complete
}

// Flush returns any remaining buffered text.
func (s *SentenceBuffer) Flush() string {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return text
}

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// abbreviations are titles and shorthand whose trailing period does not end
// a sentence. Lowercased, period stripped.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"st": true, "vs": true, "etc": true, "e.g": true, "i.e": true,
}

// splitAtSentence finds the last sentence boundary in text: an ender (.!?)
// followed by whitespace, where the period does not belong to a known
// abbreviation. Returns (completeSentences, remainder), or ("", text) when
// no boundary exists.
func splitAtSentence(text string) (string, string) {
	lastIdx := -1
	for i := range len(text) - 1 {
		if !sentenceEnders[text[i]] || !isWordBoundary(text[i+1]) {
			continue
		}
		if text[i] == '.' && endsWithAbbreviation(text, i) {
			continue
		}
		lastIdx = i + 1
	}
	if lastIdx < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:lastIdx]), text[lastIdx:]
}

// endsWithAbbreviation reports whether the word ending at the period at dot
// is a known abbreviation.
func endsWithAbbreviation(text string, dot int) bool {
	start := dot
	for start > 0 && !isWordBoundary(text[start-1]) {
		start--
	}
	return abbreviations[strings.ToLower(text[start:dot])]
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
