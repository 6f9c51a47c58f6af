package xlsx

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

func workbookFixture(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellValue("Sheet1", "A1", "Name"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Amount"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Widget"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B2", 42); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func TestTransformRendersSheets(t *testing.T) {
	tr := New(chunking.NewSplitter(512, 128))

	chunks, err := tr.Transform(context.Background(), workbookFixture(t), domain.DocumentMetadata{FileName: "book.xlsx"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk for the non-empty sheet, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != "Name\tAmount\nWidget\t42" {
		t.Fatalf("unexpected text %q", c.Text)
	}
	if c.Attributes["sheet_name"] != "Sheet1" || c.Attributes["doc_total_sheets"] != 2 {
		t.Fatalf("unexpected attributes: %v", c.Attributes)
	}
	if len(c.HeadingPath) != 1 || c.HeadingPath[0] != "Sheet1" {
		t.Fatalf("unexpected heading path: %v", c.HeadingPath)
	}
}

func TestTransformRejectsCorruptWorkbook(t *testing.T) {
	tr := New(chunking.NewSplitter(512, 128))
	_, err := tr.Transform(context.Background(), []byte("not a zip"), domain.DocumentMetadata{})
	if class := domain.Classify(err); class.SubCode != domain.SubCodeCorruptedInput {
		t.Fatalf("expected CORRUPTED_INPUT, got %+v (%v)", class, err)
	}
}
