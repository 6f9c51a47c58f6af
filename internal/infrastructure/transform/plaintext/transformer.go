package plaintext

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

// Transformer handles UTF-8 text. With Markdown enabled, ATX headings
// ("# Title") start new sections and form the heading path.
type Transformer struct {
	splitter *chunking.Splitter
	markdown bool
}

func New(splitter *chunking.Splitter) *Transformer {
	return &Transformer{splitter: splitter}
}

func NewMarkdown(splitter *chunking.Splitter) *Transformer {
	return &Transformer{splitter: splitter, markdown: true}
}

func (t *Transformer) Transform(ctx context.Context, blob []byte, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	if !utf8.Valid(blob) {
		return nil, domain.NewTransformationError(domain.SubCodeUnsupportedFormat, errors.New("binary content is not valid utf-8 text"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimPrefix(string(blob), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sections []chunking.Section
	if t.markdown {
		sections = markdownSections(text)
	} else if trimmed := strings.TrimSpace(text); trimmed != "" {
		sections = []chunking.Section{{Text: trimmed}}
	}
	for i := range sections {
		sections[i].Attributes = map[string]any{"doc_source": meta.FileName}
	}
	return t.splitter.ChunkSections(sections), nil
}

func markdownSections(text string) []chunking.Section {
	var (
		sections []chunking.Section
		path     []string
		levels   []int
		body     strings.Builder
		fenced   bool
	)
	flush := func() {
		if trimmed := strings.TrimSpace(body.String()); trimmed != "" {
			sections = append(sections, chunking.Section{Text: trimmed, HeadingPath: append([]string(nil), path...)})
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fenced = !fenced
		}
		if level, title := atxHeading(line); !fenced && level > 0 {
			flush()
			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels = levels[:len(levels)-1]
				path = path[:len(path)-1]
			}
			levels = append(levels, level)
			path = append(path, title)
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections
}

func atxHeading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) || line[level] != ' ' {
		return 0, ""
	}
	title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[level:]), "#"))
	if title == "" {
		return 0, ""
	}
	return level, title
}
