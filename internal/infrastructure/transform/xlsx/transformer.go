package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

// Transformer renders each worksheet as tab-separated rows and chunks it.
type Transformer struct {
	splitter *chunking.Splitter
}

func New(splitter *chunking.Splitter) *Transformer {
	return &Transformer{splitter: splitter}
}

func (t *Transformer) Transform(ctx context.Context, blob []byte, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	book, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, domain.NewTransformationError(domain.SubCodeCorruptedInput, fmt.Errorf("open workbook: %w", err))
	}
	defer book.Close()

	sheets := book.GetSheetList()
	sections := make([]chunking.Section, 0, len(sheets))
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, domain.NewTransformationError(domain.SubCodeCorruptedInput, fmt.Errorf("read sheet %q: %w", sheet, err))
		}
		text := renderRows(rows)
		if text == "" {
			continue
		}
		sections = append(sections, chunking.Section{
			Text:        text,
			HeadingPath: []string{sheet},
			Attributes: map[string]any{
				"sheet_name":       sheet,
				"sheet_index":      i,
				"sheet_row_count":  len(rows),
				"doc_total_sheets": len(sheets),
				"doc_source":       meta.FileName,
			},
		})
	}
	return t.splitter.ChunkSections(sections), nil
}

func renderRows(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
