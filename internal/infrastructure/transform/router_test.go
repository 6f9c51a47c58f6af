package transform

import (
	"context"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
)

type stubTransformer struct {
	calls int
}

func (s *stubTransformer) Transform(context.Context, []byte, domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	s.calls++
	return []domain.DocumentChunk{{Index: 0, Text: "stub"}}, nil
}

func TestRouterRejectsNonDocumentContent(t *testing.T) {
	r := NewRouter(chunking.NewSplitter(512, 128))
	for _, ct := range []domain.ContentType{domain.ContentTypeImage, domain.ContentTypeVideo, domain.ContentTypeAudio} {
		_, err := r.Transform(context.Background(), []byte("x"), domain.DocumentMetadata{ContentType: ct})
		class := domain.Classify(err)
		if class.Code != domain.CodeTransformationError || class.SubCode != domain.SubCodeUnsupportedFormat {
			t.Fatalf("%s: expected UNSUPPORTED_FORMAT, got %+v", ct, class)
		}
	}
}

func TestRouterPrefersMIMEOverExtension(t *testing.T) {
	r := NewRouter(chunking.NewSplitter(512, 128))
	byMIME := &stubTransformer{}
	byExt := &stubTransformer{}
	r.Register("application/x-custom", byMIME)
	r.Register("", byExt, ".cst")

	meta := domain.DocumentMetadata{ContentType: domain.ContentTypeDocument, MimeType: "application/x-custom; charset=binary", FileName: "a.cst"}
	if _, err := r.Transform(context.Background(), []byte{0xff}, meta); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if byMIME.calls != 1 || byExt.calls != 0 {
		t.Fatalf("expected mime route, got mime=%d ext=%d", byMIME.calls, byExt.calls)
	}

	meta.MimeType = "application/octet-stream"
	if _, err := r.Transform(context.Background(), []byte{0xff}, meta); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if byExt.calls != 1 {
		t.Fatalf("expected extension route")
	}
}

func TestRouterFallsBackToText(t *testing.T) {
	r := NewRouter(chunking.NewSplitter(512, 128))

	chunks, err := r.Transform(context.Background(), []byte("some notes"), domain.DocumentMetadata{ContentType: domain.ContentTypeDocument, FileName: "notes"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "some notes" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}

	_, err = r.Transform(context.Background(), []byte{0xff, 0x00}, domain.DocumentMetadata{ContentType: domain.ContentTypeDocument, FileName: "blob.bin"})
	if class := domain.Classify(err); class.SubCode != domain.SubCodeUnsupportedFormat {
		t.Fatalf("expected UNSUPPORTED_FORMAT for unknown binary, got %+v", class)
	}
}

func TestRouterRoutesMarkdownByExtension(t *testing.T) {
	r := NewRouter(chunking.NewSplitter(512, 128))
	chunks, err := r.Transform(context.Background(), []byte("# Title\nbody"), domain.DocumentMetadata{ContentType: domain.ContentTypeDocument, FileName: "README.md"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(chunks) != 1 || len(chunks[0].HeadingPath) != 1 || chunks[0].HeadingPath[0] != "Title" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}
