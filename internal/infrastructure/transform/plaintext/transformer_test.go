package plaintext

import (
	"context"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

func TestTransformPlainText(t *testing.T) {
	tr := New(chunking.NewSplitter(512, 128))

	chunks, err := tr.Transform(context.Background(), []byte("\ufeff  hello\r\nworld  "), domain.DocumentMetadata{FileName: "a.txt"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "hello\nworld" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if chunks[0].Attributes["doc_source"] != "a.txt" {
		t.Fatalf("expected doc_source attribute")
	}
}

func TestTransformRejectsBinary(t *testing.T) {
	tr := New(chunking.NewSplitter(512, 128))
	_, err := tr.Transform(context.Background(), []byte{0xff, 0xfe, 0x00, 0x81}, domain.DocumentMetadata{})
	if class := domain.Classify(err); class.SubCode != domain.SubCodeUnsupportedFormat {
		t.Fatalf("expected UNSUPPORTED_FORMAT, got %+v (%v)", class, err)
	}
}

func TestTransformBlankTextHasNoChunks(t *testing.T) {
	tr := New(chunking.NewSplitter(512, 128))
	chunks, err := tr.Transform(context.Background(), []byte(" \n\t"), domain.DocumentMetadata{})
	if err != nil || len(chunks) != 0 {
		t.Fatalf("expected no chunks and no error, got %d, %v", len(chunks), err)
	}
}

func TestMarkdownHeadingPath(t *testing.T) {
	tr := NewMarkdown(chunking.NewSplitter(512, 0))
	doc := "Intro line\n# Guide\nTop text\n## Setup\nSetup text\n```\n# not a heading\n```\n# Reference\nRef text\n"

	chunks, err := tr.Transform(context.Background(), []byte(doc), domain.DocumentMetadata{FileName: "a.md"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := [][]string{nil, {"Guide"}, {"Guide", "Setup"}, {"Reference"}}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i, path := range want {
		got := chunks[i].HeadingPath
		if len(got) != len(path) {
			t.Fatalf("chunk %d: expected path %v, got %v", i, path, got)
		}
		for j := range path {
			if got[j] != path[j] {
				t.Fatalf("chunk %d: expected path %v, got %v", i, path, got)
			}
		}
	}
	if chunks[2].Text != "Setup text\n```\n# not a heading\n```" {
		t.Fatalf("expected fenced block kept in section, got %q", chunks[2].Text)
	}
}
