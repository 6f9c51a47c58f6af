package html

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

// Transformer splits an HTML document at h1-h6 and records the enclosing
// headings of each chunk as its heading path.
type Transformer struct {
	splitter *chunking.Splitter
}

func New(splitter *chunking.Splitter) *Transformer {
	return &Transformer{splitter: splitter}
}

func (t *Transformer) Transform(ctx context.Context, blob []byte, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	root, err := html.Parse(bytes.NewReader(blob))
	if err != nil {
		return nil, domain.NewTransformationError(domain.SubCodeCorruptedInput, fmt.Errorf("parse html: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &walker{}
	w.walk(root)
	w.flush()

	for i := range w.sections {
		attrs := map[string]any{"doc_source": meta.FileName}
		if w.title != "" {
			attrs["doc_title"] = w.title
		}
		w.sections[i].Attributes = attrs
	}
	return t.splitter.ChunkSections(w.sections), nil
}

type walker struct {
	title    string
	headings []heading
	text     strings.Builder
	sections []chunking.Section
}

type heading struct {
	level int
	text  string
}

func (w *walker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
			if n.DataAtom == atom.Head {
				w.readTitle(n)
			}
			return
		}
		if level := headingLevel(n.DataAtom); level > 0 {
			w.flush()
			w.push(level, collapse(textOf(n)))
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if n.Type == html.ElementNode && isBlock(n.DataAtom) {
		w.text.WriteByte('\n')
	}
}

func (w *walker) readTitle(head *html.Node) {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Title {
			w.title = collapse(textOf(c))
			return
		}
	}
}

func (w *walker) push(level int, text string) {
	for len(w.headings) > 0 && w.headings[len(w.headings)-1].level >= level {
		w.headings = w.headings[:len(w.headings)-1]
	}
	if text != "" {
		w.headings = append(w.headings, heading{level: level, text: text})
	}
}

func (w *walker) flush() {
	text := normalize(w.text.String())
	w.text.Reset()
	if text == "" {
		return
	}
	path := make([]string, 0, len(w.headings))
	for _, h := range w.headings {
		path = append(path, h.text)
	}
	w.sections = append(w.sections, chunking.Section{Text: text, HeadingPath: path})
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Br, atom.Tr, atom.Table, atom.Ul, atom.Ol,
		atom.Section, atom.Article, atom.Blockquote, atom.Pre, atom.Dd, atom.Dt:
		return true
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalize collapses whitespace within lines and drops blank lines.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
