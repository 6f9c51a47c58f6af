package chunking

import (
	"strings"
	"unicode"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Span is a trimmed piece of text with rune offsets into the source.
type Span struct {
	Text  string
	Start int
	End   int
}

// Section is a structural unit produced by a format transformer, such as a
// PDF page, a spreadsheet sheet or the body under an HTML heading.
type Section struct {
	Text        string
	Page        int
	HeadingPath []string
	Attributes  map[string]any
}

func (s *Splitter) Split(text string) []string {
	spans := s.SplitSpans(text)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, sp.Text)
	}
	return out
}

// SplitSpans cuts text into windows of at most ChunkSize runes, preferring a
// sentence end and then whitespace in the second half of each window.
// Consecutive windows share up to Overlap runes.
func (s *Splitter) SplitSpans(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []Span
	start := 0
	for start < n {
		end := start + s.ChunkSize
		if end >= n {
			end = n
		} else {
			end = boundary(runes, start, end)
		}
		if sp, ok := trimSpan(runes, start, end); ok {
			out = append(out, sp)
		}
		if end == n {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = alignWordStart(runes, next, end)
	}
	return out
}

// ChunkSections splits every section and numbers the chunks in document
// order. Offsets are relative to the chunk's own section.
func (s *Splitter) ChunkSections(sections []Section) []domain.DocumentChunk {
	var chunks []domain.DocumentChunk
	for _, section := range sections {
		for _, sp := range s.SplitSpans(section.Text) {
			chunk := domain.DocumentChunk{
				Index:       len(chunks),
				Text:        sp.Text,
				Page:        section.Page,
				StartOffset: sp.Start,
				EndOffset:   sp.End,
			}
			if len(section.HeadingPath) > 0 {
				chunk.HeadingPath = append([]string(nil), section.HeadingPath...)
			}
			if len(section.Attributes) > 0 {
				chunk.Attributes = make(map[string]any, len(section.Attributes))
				for k, v := range section.Attributes {
					chunk.Attributes[k] = v
				}
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func boundary(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for i := end; i > floor; i-- {
		prev := runes[i-1]
		if prev == '\n' {
			return i
		}
		if isSentenceEnd(prev) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return strings.ContainsRune(".!?;。！？", r)
}

func alignWordStart(runes []rune, pos, limit int) int {
	if pos == 0 || unicode.IsSpace(runes[pos-1]) {
		return pos
	}
	for i := pos; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return pos
}

func trimSpan(runes []rune, start, end int) (Span, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start == end {
		return Span{}, false
	}
	return Span{Text: string(runes[start:end]), Start: start, End: end}, true
}
