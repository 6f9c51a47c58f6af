package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

// Transformer extracts plain text page by page and chunks each page.
type Transformer struct {
	splitter *chunking.Splitter
}

func New(splitter *chunking.Splitter) *Transformer {
	return &Transformer{splitter: splitter}
}

func (t *Transformer) Transform(ctx context.Context, blob []byte, meta domain.DocumentMetadata) (chunks []domain.DocumentChunk, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = domain.NewTransformationError(domain.SubCodeCorruptedInput, fmt.Errorf("parse pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, domain.NewTransformationError(domain.SubCodeCorruptedInput, fmt.Errorf("open pdf: %w", err))
	}

	total := reader.NumPage()
	docAttrs := documentAttributes(reader.Trailer().Key("Info"), total, meta.FileName)

	sections := make([]chunking.Section, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.NewTransformationError(domain.SubCodeCorruptedInput, fmt.Errorf("page %d text: %w", i, err))
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		attrs := pageAttributes(page)
		for k, v := range docAttrs {
			attrs[k] = v
		}
		sections = append(sections, chunking.Section{Text: text, Page: i, Attributes: attrs})
	}
	return t.splitter.ChunkSections(sections), nil
}

func documentAttributes(info pdf.Value, total int, fileName string) map[string]any {
	attrs := map[string]any{"doc_total_pages": total}
	if fileName != "" {
		attrs["doc_source"] = fileName
	}
	fields := map[string]string{
		"Title":        "doc_title",
		"Author":       "doc_author",
		"Subject":      "doc_subject",
		"Creator":      "doc_creator",
		"Producer":     "doc_producer",
		"CreationDate": "doc_creation_date",
		"ModDate":      "doc_modification_date",
	}
	if info.IsNull() {
		return attrs
	}
	for key, attr := range fields {
		if v := strings.TrimSpace(info.Key(key).Text()); v != "" {
			attrs[attr] = v
		}
	}
	return attrs
}

func pageAttributes(page pdf.Page) map[string]any {
	attrs := map[string]any{}
	box := page.V.Key("MediaBox")
	if box.Len() == 4 {
		attrs["page_width"] = box.Index(2).Float64() - box.Index(0).Float64()
		attrs["page_height"] = box.Index(3).Float64() - box.Index(1).Float64()
	}
	if rotate := page.V.Key("Rotate"); !rotate.IsNull() {
		attrs["page_rotation"] = rotate.Int64()
	}
	return attrs
}
